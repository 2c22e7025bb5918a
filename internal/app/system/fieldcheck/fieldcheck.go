// Package fieldcheck decides whether an answer buffer satisfies a session's
// field schema. It is pure: no I/O, no clock, no hidden state.
package fieldcheck

import (
	"strings"

	"github.com/dalemusser/mindpath/internal/domain/models"
	"github.com/dalemusser/mindpath/internal/domain/programs"
)

// IsValid reports whether every visible field passes its type's rule.
func IsValid(answers models.Answers, fields []programs.Field) bool {
	_, bad := FirstInvalid(answers, fields)
	return !bad
}

// FirstInvalid returns the key of the first visible field, in schema order,
// that fails validation.
func FirstInvalid(answers models.Answers, fields []programs.Field) (string, bool) {
	for _, f := range fields {
		if !Visible(answers, fields, f) {
			continue
		}
		if !fieldOK(f, answers[f.Key]) {
			return f.Key, true
		}
	}
	return "", false
}

// Invalid returns the keys of all visible failing fields, in schema order.
func Invalid(answers models.Answers, fields []programs.Field) []string {
	var out []string
	for _, f := range fields {
		if Visible(answers, fields, f) && !fieldOK(f, answers[f.Key]) {
			out = append(out, f.Key)
		}
	}
	return out
}

// Visible reports whether f's show_if condition holds. A field whose
// controlling field is itself hidden is hidden too.
func Visible(answers models.Answers, fields []programs.Field, f programs.Field) bool {
	for depth := 0; f.ShowIf != nil; depth++ {
		if depth > len(fields) {
			return false
		}
		if !matches(answers[f.ShowIf.Field], f.ShowIf.Equals) {
			return false
		}
		parent, ok := lookup(fields, f.ShowIf.Field)
		if !ok {
			return false
		}
		f = parent
	}
	return true
}

func lookup(fields []programs.Field, key string) (programs.Field, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f, true
		}
	}
	return programs.Field{}, false
}

func matches(v, want any) bool {
	if list, ok := asList(v); ok {
		for _, item := range list {
			if scalarEqual(item, want) {
				return true
			}
		}
		return false
	}
	return scalarEqual(v, want)
}

func scalarEqual(a, b any) bool {
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func fieldOK(f programs.Field, v any) bool {
	if f.Optional && blank(v) {
		return true
	}
	switch f.Type {
	case programs.FieldText:
		return filled(v)
	case programs.FieldAcknowledgement:
		_, ok := v.(bool)
		return ok
	case programs.FieldTextGroup:
		m, ok := asMap(v)
		return ok && rowOK(f.Sub, m)
	case programs.FieldMultiSelect:
		return selectionOK(f, v)
	case programs.FieldContactList:
		return contactsOK(v)
	case programs.FieldNumberedList:
		items, ok := asList(v)
		if !ok || !countOK(f, len(items)) {
			return false
		}
		for _, it := range items {
			if !filled(it) {
				return false
			}
		}
		return true
	case programs.FieldTable, programs.FieldCards:
		rows, ok := asList(v)
		if !ok || !countOK(f, len(rows)) {
			return false
		}
		for _, r := range rows {
			m, ok := asMap(r)
			if !ok || !rowOK(f.Sub, m) {
				return false
			}
		}
		return true
	}
	return false
}

// countOK applies [min, max] to an item count. A required list with no
// configured minimum still needs one item.
func countOK(f programs.Field, n int) bool {
	min := f.Min
	if min < 1 {
		min = 1
	}
	if n < min {
		return false
	}
	return f.Max == 0 || n <= f.Max
}

func rowOK(sub []programs.SubField, m map[string]any) bool {
	for _, sf := range sub {
		if sf.Optional {
			continue
		}
		if !filled(m[sf.Key]) {
			return false
		}
	}
	return true
}

func selectionOK(f programs.Field, v any) bool {
	items, ok := asList(v)
	if !ok {
		return false
	}
	allowed := make(map[string]bool, len(f.Options))
	for _, o := range f.Options {
		allowed[o.Value] = true
	}
	picked := make(map[string]bool, len(items))
	for _, it := range items {
		s, ok := it.(string)
		if !ok || !allowed[s] {
			return false
		}
		picked[s] = true
	}
	n := len(picked)
	min := f.MinSelected
	if min < 1 {
		min = 1
	}
	if n < min {
		return false
	}
	return f.MaxSelected == 0 || n <= f.MaxSelected
}

// contactsOK needs at least one non-empty entry; the rest may stay blank.
func contactsOK(v any) bool {
	items, ok := asList(v)
	if !ok {
		return false
	}
	for _, it := range items {
		if !blank(it) {
			return true
		}
	}
	return false
}

func filled(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) != ""
}

// blank reports whether v carries no user content at any depth.
func blank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case bool:
		return false
	}
	if m, ok := asMap(v); ok {
		for _, e := range m {
			if !blank(e) {
				return false
			}
		}
		return true
	}
	if list, ok := asList(v); ok {
		for _, e := range list {
			if !blank(e) {
				return false
			}
		}
		return true
	}
	return false
}

func asList(v any) ([]any, bool) {
	switch t := normalized(v).(type) {
	case []any:
		return t, true
	}
	return nil, false
}

func asMap(v any) (map[string]any, bool) {
	switch t := normalized(v).(type) {
	case map[string]any:
		return t, true
	}
	return nil, false
}

// normalized folds driver container types (bson.A, bson.M, typed slices)
// into []any and map[string]any.
func normalized(v any) any {
	a := models.Answers{"v": v}
	return a.Normalize()["v"]
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
