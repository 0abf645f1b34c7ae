package api

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/user/composablestudio/internal/compose"
	"github.com/user/composablestudio/internal/gateway"
	"github.com/user/composablestudio/internal/logger"
	"github.com/user/composablestudio/internal/studio"
)

type errorResponse struct {
	Error      string                   `json:"error"`
	Kind       string                   `json:"kind"`
	Violations []compose.FieldViolation `json:"violations,omitempty"`
}

// badRequest reports a request the handler could not parse. status
// defaults to 400.
type badRequest struct {
	reason string
	status int
}

func (e *badRequest) Error() string { return e.reason }

// writeError maps err to a status code and JSON body. Unclassified errors are
// logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var bad *badRequest
	if errors.As(err, &bad) {
		status := http.StatusBadRequest
		if bad.status != 0 {
			status = bad.status
		}
		writeJSON(w, status, errorResponse{Error: bad.reason, Kind: "request"})
		return
	}
	if errors.Is(err, gateway.ErrQueueStopped) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "server is shutting down", Kind: "unavailable"})
		return
	}

	kind := studio.ErrorKind(err)
	resp := errorResponse{Error: err.Error(), Kind: kind}
	switch kind {
	case "schema":
		var schemaErr *compose.SchemaValidationError
		if errors.As(err, &schemaErr) {
			resp.Violations = schemaErr.Violations
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case "validation":
		writeJSON(w, http.StatusBadRequest, resp)
	case "invalid_transition":
		writeJSON(w, http.StatusConflict, resp)
	case "not_found":
		writeJSON(w, http.StatusNotFound, resp)
	default:
		logger.For("api").Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error", Kind: "internal"})
	}
}
