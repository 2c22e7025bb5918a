package programs

import "fmt"

// FieldType tags how an answer value is shaped and validated.
type FieldType string

const (
	FieldText            FieldType = "text"            // string
	FieldAcknowledgement FieldType = "acknowledgement" // bool
	FieldTextGroup       FieldType = "text_group"      // map[sub-field]string
	FieldMultiSelect     FieldType = "multi_select"    // []option value
	FieldContactList     FieldType = "contact_list"    // []map[column]string, or []string without columns
	FieldNumberedList    FieldType = "numbered_list"   // []string
	FieldTable           FieldType = "table"           // []map[column]string
	FieldCards           FieldType = "cards"           // []map[sub-field]string
)

func (t FieldType) valid() bool {
	switch t {
	case FieldText, FieldAcknowledgement, FieldTextGroup, FieldMultiSelect,
		FieldContactList, FieldNumberedList, FieldTable, FieldCards:
		return true
	}
	return false
}

// SubField is a named part of a text group, a table column, a card field or
// a contact column.
type SubField struct {
	Key      string `yaml:"key" json:"key"`
	Label    string `yaml:"label" json:"label"`
	Optional bool   `yaml:"optional" json:"optional,omitempty"`
}

// Option is one choice of a multi-select field.
type Option struct {
	Value string `yaml:"value" json:"value"`
	Label string `yaml:"label" json:"label"`
}

// ShowIf makes a field conditional on another field of the same session.
// The condition holds when the other field equals Equals, or, for list
// values, contains it.
type ShowIf struct {
	Field  string `yaml:"field" json:"field"`
	Equals any    `yaml:"equals" json:"equals"`
}

// Field is one entry of a session's assignment schema.
type Field struct {
	Key      string     `yaml:"key" json:"key"`
	Label    string     `yaml:"label" json:"label"`
	Type     FieldType  `yaml:"type" json:"type"`
	Optional bool       `yaml:"optional" json:"optional,omitempty"`
	Sub      []SubField `yaml:"sub" json:"sub,omitempty"`
	Options  []Option   `yaml:"options" json:"options,omitempty"`

	// Bounds for multi_select.
	MinSelected int `yaml:"min_selected" json:"min_selected,omitempty"`
	MaxSelected int `yaml:"max_selected" json:"max_selected,omitempty"`

	// Item/row bounds for numbered_list, table and cards. Max 0 means unbounded.
	Min int `yaml:"min" json:"min,omitempty"`
	Max int `yaml:"max" json:"max,omitempty"`

	// Slots is the number of blank entries a contact list starts with.
	Slots int `yaml:"slots" json:"slots,omitempty"`

	ShowIf *ShowIf `yaml:"show_if" json:"show_if,omitempty"`
}

// Required reports whether the field must be filled when visible.
func (f Field) Required() bool { return !f.Optional }

func (f Field) check(seen map[string]bool) error {
	if f.Key == "" {
		return fmt.Errorf("field with empty key")
	}
	if !f.Type.valid() {
		return fmt.Errorf("field %q: unknown type %q", f.Key, f.Type)
	}
	switch f.Type {
	case FieldTextGroup, FieldTable, FieldCards:
		if len(f.Sub) == 0 {
			return fmt.Errorf("field %q: %s needs sub fields", f.Key, f.Type)
		}
	case FieldMultiSelect:
		if len(f.Options) == 0 {
			return fmt.Errorf("field %q: multi_select needs options", f.Key)
		}
		if f.MaxSelected > 0 && f.MinSelected > f.MaxSelected {
			return fmt.Errorf("field %q: min_selected > max_selected", f.Key)
		}
	}
	if f.Max > 0 && f.Min > f.Max {
		return fmt.Errorf("field %q: min > max", f.Key)
	}
	if f.ShowIf != nil && !seen[f.ShowIf.Field] {
		return fmt.Errorf("field %q: show_if refers to %q which is not an earlier field", f.Key, f.ShowIf.Field)
	}
	return nil
}
