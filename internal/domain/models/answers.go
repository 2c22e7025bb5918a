package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Answers maps a field key to its typed value. Values are plain Go shapes:
// string, bool, nil, []any and map[string]any (nested to any depth).
type Answers map[string]any

// Normalize converts BSON container types produced by the driver
// (primitive.D, primitive.M, primitive.A) and typed slices into the plain
// shapes documented on Answers. The receiver is not modified.
func (a Answers) Normalize() Answers {
	if a == nil {
		return nil
	}
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = normalizeValue(v)
	}
	return out
}

// Clone returns a deep copy.
func (a Answers) Clone() Answers {
	return a.Normalize()
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case primitive.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case primitive.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalizeValue(e)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalizeValue(e)
		}
		return m
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = e
		}
		return m
	case primitive.A:
		return normalizeSlice([]any(t))
	case []any:
		return normalizeSlice(t)
	case []string:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = e
		}
		return s
	case []map[string]any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = normalizeValue(e)
		}
		return s
	default:
		return v
	}
}

func normalizeSlice(in []any) []any {
	s := make([]any, len(in))
	for i, e := range in {
		s[i] = normalizeValue(e)
	}
	return s
}
