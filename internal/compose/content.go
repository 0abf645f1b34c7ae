package compose

import (
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/user/composablestudio/internal/types"
)

// NewContentModel builds a model from name and fields, assigning ids where
// they are missing.
func NewContentModel(name string, fields []types.ContentField) (types.ContentModel, error) {
	if strings.TrimSpace(name) == "" {
		return types.ContentModel{}, &ValidationError{Field: "model name", Reason: "empty"}
	}
	model := types.ContentModel{
		ID:        types.NewModelID(),
		Name:      name,
		CreatedAt: now(),
	}
	for _, f := range fields {
		var err error
		if model, err = AddField(model, f); err != nil {
			return types.ContentModel{}, err
		}
	}
	return model, nil
}

// AddField returns a copy of model with field appended.
func AddField(model types.ContentModel, field types.ContentField) (types.ContentModel, error) {
	if strings.TrimSpace(field.Name) == "" {
		return model, &ValidationError{Field: "field name", Reason: "empty"}
	}
	if !field.Type.Valid() {
		return model, &ValidationError{Field: "field type", Value: string(field.Type), Reason: "unknown type"}
	}
	if field.Type == types.FieldSelect && len(field.Options) == 0 {
		return model, &ValidationError{Field: "field options", Value: field.Name, Reason: "select fields need options"}
	}
	if field.ID == "" {
		field.ID = types.NewFieldID()
	}
	for _, f := range model.Fields {
		if f.Name == field.Name {
			return model, &ValidationError{Field: "field name", Value: field.Name, Reason: "already declared"}
		}
		if f.ID == field.ID {
			return model, &ValidationError{Field: "field id", Value: string(field.ID), Reason: "already declared"}
		}
	}
	field.Options = slices.Clone(field.Options)

	out := model
	out.Fields = make([]types.ContentField, len(model.Fields), len(model.Fields)+1)
	copy(out.Fields, model.Fields)
	out.Fields = append(out.Fields, field)
	return out, nil
}

// CreateContentEntry validates data against model and returns a new entry.
// Every violation is reported in a single SchemaValidationError.
func CreateContentEntry(model types.ContentModel, data map[string]any) (types.ContentEntry, error) {
	if model.ID == "" {
		return types.ContentEntry{}, &ValidationError{Field: "model id", Reason: "empty"}
	}
	if err := ValidateEntryData(model, data); err != nil {
		return types.ContentEntry{}, err
	}
	ts := now()
	return types.ContentEntry{
		ID:        types.NewEntryID(),
		ModelID:   model.ID,
		Data:      cloneMap(data),
		CreatedAt: ts,
		UpdatedAt: ts,
	}, nil
}

// UpdateContentEntry replaces the data of entry after validating it and
// bumps UpdatedAt.
func UpdateContentEntry(model types.ContentModel, entry types.ContentEntry, data map[string]any) (types.ContentEntry, error) {
	if entry.ModelID != model.ID {
		return entry, &ValidationError{Field: "model id", Value: string(entry.ModelID), Reason: "entry belongs to another model"}
	}
	if err := ValidateEntryData(model, data); err != nil {
		return entry, err
	}
	out := entry
	out.Data = cloneMap(data)
	out.UpdatedAt = now()
	if !out.UpdatedAt.After(entry.UpdatedAt) {
		out.UpdatedAt = entry.UpdatedAt.Add(time.Nanosecond)
	}
	return out, nil
}

// ValidateEntryData checks data against the fields of model: required fields
// are present, values have the declared type, and no undeclared keys appear.
func ValidateEntryData(model types.ContentModel, data map[string]any) error {
	var violations []FieldViolation
	for _, f := range model.Fields {
		v, ok := data[f.Name]
		if !ok || v == nil {
			if f.Required {
				violations = append(violations, FieldViolation{Field: f.Name, Reason: "required field is missing"})
			}
			continue
		}
		if reason := checkValue(f, v); reason != "" {
			violations = append(violations, FieldViolation{Field: f.Name, Reason: reason})
		}
	}
	for key := range data {
		if _, ok := model.Field(key); !ok {
			violations = append(violations, FieldViolation{Field: key, Reason: "not declared by model"})
		}
	}
	if len(violations) == 0 {
		return nil
	}
	sort.Slice(violations, func(i, j int) bool {
		return violations[i].Field < violations[j].Field
	})
	return &SchemaValidationError{ModelID: model.ID, Violations: violations}
}

func checkValue(f types.ContentField, v any) string {
	switch f.Type {
	case types.FieldText, types.FieldRichText, types.FieldImage:
		s, ok := v.(string)
		if !ok {
			return wrongType(f, v)
		}
		if f.Required && strings.TrimSpace(s) == "" {
			return "required field is blank"
		}
	case types.FieldURL:
		s, ok := v.(string)
		if !ok {
			return wrongType(f, v)
		}
		u, err := url.Parse(s)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Sprintf("%q is not an absolute url", s)
		}
	case types.FieldNumber:
		switch n := v.(type) {
		case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		case json.Number:
			if _, err := n.Float64(); err != nil {
				return fmt.Sprintf("%q is not a number", n.String())
			}
		default:
			return wrongType(f, v)
		}
	case types.FieldBoolean:
		if _, ok := v.(bool); !ok {
			return wrongType(f, v)
		}
	case types.FieldDate:
		switch d := v.(type) {
		case time.Time:
		case string:
			if !isDate(d) {
				return fmt.Sprintf("%q is not a date", d)
			}
		default:
			return wrongType(f, v)
		}
	case types.FieldSelect:
		s, ok := v.(string)
		if !ok {
			return wrongType(f, v)
		}
		if !slices.Contains(f.Options, s) {
			return fmt.Sprintf("%q is not one of %s", s, strings.Join(f.Options, ", "))
		}
	default:
		return fmt.Sprintf("unknown field type %s", f.Type)
	}
	return ""
}

func isDate(s string) bool {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

func wrongType(f types.ContentField, v any) string {
	return fmt.Sprintf("expected %s, got %T", f.Type, v)
}
