package types

import (
	"time"
)

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldRichText FieldType = "richtext"
	FieldNumber   FieldType = "number"
	FieldBoolean  FieldType = "boolean"
	FieldDate     FieldType = "date"
	FieldURL      FieldType = "url"
	FieldImage    FieldType = "image"
	FieldSelect   FieldType = "select"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldRichText, FieldNumber, FieldBoolean, FieldDate, FieldURL, FieldImage, FieldSelect:
		return true
	}
	return false
}

// ContentField declares one key of a content model. Options is only
// meaningful for select fields.
type ContentField struct {
	ID       FieldID   `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required" yaml:"required"`
	Options  []string  `json:"options,omitempty" yaml:"options,omitempty"`
}

type ContentModel struct {
	ID        ModelID        `json:"id" yaml:"id"`
	Name      string         `json:"name" yaml:"name"`
	Fields    []ContentField `json:"fields" yaml:"fields"`
	CreatedAt time.Time      `json:"created_at" yaml:"-"`
}

// Field returns the field declared under name.
func (m ContentModel) Field(name string) (ContentField, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return ContentField{}, false
}

// ContentEntry is one record of a content model. Data has been validated
// against the model's fields.
type ContentEntry struct {
	ID        EntryID        `json:"id"`
	ModelID   ModelID        `json:"model_id"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
