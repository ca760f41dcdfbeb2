package api

import (
	"encoding/json"
	"net/http"

	"github.com/dennisdiepolder/breakroster/internal/auth"
	"github.com/dennisdiepolder/breakroster/internal/storage"
	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/dennisdiepolder/breakroster/internal/workflow"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// RequestsHandler exposes the approval workflow: submitting swap, leave,
// and overtime requests, moving them through their stages, and executing
// approved swaps.
type RequestsHandler struct {
	svc    *workflow.Service
	logger zerolog.Logger
}

func NewRequestsHandler(svc *workflow.Service, logger zerolog.Logger) *RequestsHandler {
	return &RequestsHandler{
		svc:    svc,
		logger: logger.With().Str("component", "requests").Logger(),
	}
}

// transitionRequest is the body of POST /api/requests/{id}/transition.
// From is the status the caller last read; the write only applies while
// the persisted status still matches it.
type transitionRequest struct {
	From   types.RequestStatus `json:"from"`
	To     types.RequestStatus `json:"to"`
	Reason string              `json:"reason,omitempty"`
}

// transitionAllowed layers identity and role over machine legality.
// Acceptance belongs to the swap counterpart, stage one to team leads and
// up, fast-track to manager or admin, stage two to wfm or admin. Edges the
// machine does not know fall through so the engine rejects them with a
// typed error instead of a misleading 403.
func transitionAllowed(c *auth.Claims, req *types.Request, from, to types.RequestStatus) bool {
	actor := c.AgentID()
	switch {
	case from == types.StatusPendingAcceptance && to == types.StatusPendingTL:
		return actor == req.TargetID || auth.HasAnyRole(c, auth.RoleManager, auth.RoleAdmin)
	case from == types.StatusPendingAcceptance && to == types.StatusCancelled:
		return actor == req.TargetID || actor == req.RequesterID ||
			auth.HasAnyRole(c, auth.RoleManager, auth.RoleAdmin)
	case from == types.StatusPendingTL && to == types.StatusApproved:
		return auth.HasAnyRole(c, auth.RoleManager, auth.RoleAdmin)
	case from == types.StatusPendingTL:
		return auth.HasAnyRole(c, auth.RoleTeamLead, auth.RoleWFM, auth.RoleManager, auth.RoleAdmin)
	case from == types.StatusPendingWFM:
		return auth.HasAnyRole(c, auth.RoleWFM, auth.RoleAdmin)
	}
	return true
}

// Submit handles POST /api/requests
func (h *RequestsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var in workflow.SubmitInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeBadBody(w)
		return
	}

	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}
	if in.RequesterID == "" {
		in.RequesterID = claims.AgentID()
	}
	if in.RequesterID != claims.AgentID() &&
		!auth.HasAnyRole(claims, auth.RoleTeamLead, auth.RoleWFM, auth.RoleManager, auth.RoleAdmin) {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "cannot submit a request for another agent"})
		return
	}

	req, err := h.svc.Submit(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info().
		Str("request_id", req.ID).
		Str("kind", string(req.Kind)).
		Str("requester_id", req.RequesterID).
		Msg("request submitted")

	writeJSON(w, http.StatusCreated, req)
}

// Get handles GET /api/requests/{id}
func (h *RequestsHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// List handles GET /api/requests with optional status, kind, and
// requesterId query filters
func (h *RequestsHandler) List(w http.ResponseWriter, r *http.Request) {
	f := storage.RequestFilter{
		Status:      types.RequestStatus(r.URL.Query().Get("status")),
		Kind:        types.RequestKind(r.URL.Query().Get("kind")),
		RequesterID: r.URL.Query().Get("requesterId"),
	}

	requests, err := h.svc.List(r.Context(), f)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": requests,
		"count":    len(requests),
	})
}

// Transition handles POST /api/requests/{id}/transition
func (h *RequestsHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadBody(w)
		return
	}

	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}

	req, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !transitionAllowed(claims, req, body.From, body.To) {
		h.logger.Warn().
			Str("request_id", id).
			Str("actor", claims.AgentID()).
			Str("role", claims.Role).
			Str("to", string(body.To)).
			Msg("transition denied")
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "role " + claims.Role + " may not take this transition"})
		return
	}

	updated, err := h.svc.Transition(r.Context(), id, body.From, body.To, claims.AgentID(), body.Reason)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Execute handles POST /api/requests/{id}/execute, the shift exchange for
// an approved swap. Route-level gating restricts it to wfm and admin.
func (h *RequestsHandler) Execute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	exec, err := h.svc.ExecuteSwap(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info().
		Str("request_id", id).
		Str("agent_a", exec.AgentA).
		Str("agent_b", exec.AgentB).
		Msg("swap executed")

	writeJSON(w, http.StatusOK, exec)
}
