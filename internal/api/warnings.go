package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dennisdiepolder/breakroster/internal/storage"
	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/dennisdiepolder/breakroster/internal/warnings"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// WarningsHandler exposes the advisory warning lifecycle: checking an
// agent's break assignment against their current shift, listing open
// warnings, and dismissing one.
type WarningsHandler struct {
	tracker *warnings.Tracker
	logger  zerolog.Logger
}

func NewWarningsHandler(tracker *warnings.Tracker, logger zerolog.Logger) *WarningsHandler {
	return &WarningsHandler{
		tracker: tracker,
		logger:  logger.With().Str("component", "warnings").Logger(),
	}
}

// checkRequest is the body of POST /api/warnings/check
type checkRequest struct {
	AgentID   string          `json:"agentId"`
	Date      string          `json:"date"`
	ShiftType types.ShiftType `json:"shiftType"`
}

// Check handles POST /api/warnings/check. A null warning in the response
// means the assignment still matches the shift.
func (h *WarningsHandler) Check(w http.ResponseWriter, r *http.Request) {
	var body checkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadBody(w)
		return
	}

	warning, err := h.tracker.CheckForInvalidation(r.Context(), body.AgentID, body.Date, body.ShiftType)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"warning": warning,
		"flagged": warning != nil,
	})
}

// List handles GET /api/warnings with optional agentId, date, and
// unresolved query filters
func (h *WarningsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	unresolved, _ := strconv.ParseBool(q.Get("unresolved"))

	list, err := h.tracker.List(r.Context(), storage.WarningFilter{
		AgentID:    q.Get("agentId"),
		Date:       q.Get("date"),
		Unresolved: unresolved,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"warnings": list,
		"count":    len(list),
	})
}

// Dismiss handles POST /api/warnings/{id}/dismiss. Dismissal resolves the
// warning and nothing else, break assignments are left alone.
func (h *WarningsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	warning, err := h.tracker.Dismiss(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, warning)
}
