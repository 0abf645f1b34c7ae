package studio

import (
	"github.com/user/composablestudio/internal/compose"
)

// ErrorKind classifies err for metrics and logs. Returns "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case compose.IsSchemaValidation(err):
		return "schema"
	case compose.IsValidation(err):
		return "validation"
	case compose.IsInvalidTransition(err):
		return "invalid_transition"
	case compose.IsNotFound(err):
		return "not_found"
	default:
		return "internal"
	}
}
