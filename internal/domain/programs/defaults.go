package programs

import "github.com/dalemusser/mindpath/internal/domain/models"

// Defaults returns a fresh answer buffer for the session: every field at its
// type's empty value. Acknowledgements start absent (nil) so an explicit
// choice is required.
func (s Session) Defaults() models.Answers {
	out := make(models.Answers, len(s.Fields))
	for _, f := range s.Fields {
		out[f.Key] = f.Default()
	}
	return out
}

// Default returns the empty value for the field.
func (f Field) Default() any {
	switch f.Type {
	case FieldText:
		return ""
	case FieldAcknowledgement:
		return nil
	case FieldTextGroup:
		m := make(map[string]any, len(f.Sub))
		for _, sf := range f.Sub {
			m[sf.Key] = ""
		}
		return m
	case FieldMultiSelect:
		return []any{}
	case FieldContactList:
		n := f.Slots
		if n < 1 {
			n = 1
		}
		items := make([]any, n)
		for i := range items {
			items[i] = f.blankRow()
		}
		return items
	case FieldNumberedList:
		items := make([]any, f.Min)
		for i := range items {
			items[i] = ""
		}
		return items
	case FieldTable, FieldCards:
		rows := make([]any, f.Min)
		for i := range rows {
			rows[i] = f.blankRow()
		}
		return rows
	}
	return nil
}

func (f Field) blankRow() any {
	if len(f.Sub) == 0 {
		return ""
	}
	m := make(map[string]any, len(f.Sub))
	for _, sf := range f.Sub {
		m[sf.Key] = ""
	}
	return m
}
