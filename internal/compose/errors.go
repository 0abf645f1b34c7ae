package compose

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/user/composablestudio/internal/types"
)

// ValidationError reports a malformed or colliding identifier or value.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InvalidTransitionError reports a step advance that the flow table forbids.
type InvalidTransitionError struct {
	From types.Step
	To   types.Step
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot advance from %s to %s", e.From, e.To)
}

// NotFoundError reports a reference to an entity that does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// SchemaValidationError lists every field of a content entry that violates
// its model.
type SchemaValidationError struct {
	ModelID    types.ModelID
	Violations []FieldViolation
}

func (e *SchemaValidationError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Reason)
	}
	return fmt.Sprintf("entry does not match model %s: %s", e.ModelID, strings.Join(parts, "; "))
}

// Fields returns the names of the violating fields in report order.
func (e *SchemaValidationError) Fields() []string {
	out := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		out = append(out, v.Field)
	}
	return out
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsSchemaValidation(err error) bool {
	var target *SchemaValidationError
	return errors.As(err, &target)
}
