// Package api exposes the distribution engine, the approval workflow, and
// the warning tracker over HTTP. Handlers stay thin: they decode, call a
// service, and translate the typed errors the services return into status
// codes. Role checks live here too, the engine layers never see a role.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/rs/zerolog"
)

// errorResponse is the JSON body of every non-2xx reply
type errorResponse struct {
	Error      string            `json:"error"`
	Field      string            `json:"field,omitempty"`
	Violations []types.Violation `json:"violations,omitempty"`
	Missing    string            `json:"missing,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps the service error taxonomy onto HTTP statuses. Malformed
// input is 400, unknown entities 404, lost compare-and-swap races and
// aborted swap executions 409. Refusals that retrying verbatim cannot fix,
// illegal workflow edges, insufficient leave balance, and commits blocked
// by rule violations, surface as 422.
func writeError(w http.ResponseWriter, logger zerolog.Logger, err error) {
	var (
		valErr  *types.ValidationError
		trnErr  *types.TransitionError
		balErr  *types.InsufficientBalanceError
		swapErr *types.SwapExecutionError
	)
	switch {
	case errors.As(err, &valErr):
		status := http.StatusBadRequest
		if len(valErr.Violations) > 0 {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, errorResponse{Error: valErr.Error(), Field: valErr.Field, Violations: valErr.Violations})
	case errors.As(err, &trnErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: trnErr.Error()})
	case errors.As(err, &balErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: balErr.Error()})
	case errors.As(err, &swapErr):
		writeJSON(w, http.StatusConflict, errorResponse{Error: swapErr.Error(), Missing: swapErr.Missing})
	case types.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case types.IsConflict(err):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	default:
		logger.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeBadBody(w http.ResponseWriter) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
}
