// Package htmlsanitize strips markup from text that participants and
// counselors type. Responses and answers are stored and rendered as plain
// text, so every tag is removed and entities are decoded back to the
// characters the user typed.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// Text removes all HTML from s and trims surrounding whitespace.
func Text(s string) string {
	if s == "" {
		return ""
	}
	if IsPlainText(s) {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Response cleans a counselor response before it is stored.
func Response(s string) string {
	return Text(s)
}

// Answers returns a copy of a with every string value passed through Text,
// at any nesting depth. Non-string values are copied as-is.
func Answers(a map[string]any) map[string]any {
	if a == nil {
		return nil
	}
	out := make(map[string]any, len(a))
	for k, v := range a {
		out[k] = clean(v)
	}
	return out
}

func clean(v any) any {
	switch t := v.(type) {
	case string:
		if IsPlainText(t) {
			return t
		}
		return html.UnescapeString(strict.Sanitize(t))
	case map[string]any:
		return Answers(t)
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = clean(e)
		}
		return s
	default:
		return v
	}
}

// IsPlainText reports whether s contains no HTML tags.
// A string needs both '<' and a later '>' to hold a tag.
func IsPlainText(s string) bool {
	i := strings.IndexByte(s, '<')
	if i < 0 {
		return true
	}
	return !strings.Contains(s[i:], ">")
}
