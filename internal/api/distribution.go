package api

import (
	"encoding/json"
	"net/http"

	"github.com/dennisdiepolder/breakroster/internal/distribution"
	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/rs/zerolog"
)

// DistributionHandler exposes the break distribution engine: previewing a
// placement run, committing a preview, validating an edited schedule, and
// reading the effective per-shift settings.
type DistributionHandler struct {
	svc    *distribution.Service
	logger zerolog.Logger
}

func NewDistributionHandler(svc *distribution.Service, logger zerolog.Logger) *DistributionHandler {
	return &DistributionHandler{
		svc:    svc,
		logger: logger.With().Str("component", "distribution").Logger(),
	}
}

// commitRequest is the body of POST /api/distribution/commit. The caller
// sends back the proposal it previewed; the embedded revisions pin the
// state the preview was computed against.
type commitRequest struct {
	Proposal            *distribution.Proposal `json:"proposal"`
	AcknowledgeWarnings bool                   `json:"acknowledgeWarnings"`
}

// Propose handles POST /api/distribution/propose
func (h *DistributionHandler) Propose(w http.ResponseWriter, r *http.Request) {
	var params distribution.ProposeParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeBadBody(w)
		return
	}

	proposal, err := h.svc.Propose(r.Context(), params)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info().
		Str("proposal_id", proposal.ID).
		Str("date", proposal.Date).
		Str("strategy", proposal.Strategy).
		Int("placed", len(proposal.Assignments)).
		Int("failed", len(proposal.Failed)).
		Msg("distribution proposed")

	writeJSON(w, http.StatusOK, proposal)
}

// Commit handles POST /api/distribution/commit
func (h *DistributionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var body commitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadBody(w)
		return
	}
	if body.Proposal == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "proposal is required"})
		return
	}

	result, err := h.svc.Commit(r.Context(), body.Proposal, body.AcknowledgeWarnings)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info().
		Str("proposal_id", result.ProposalID).
		Str("date", result.Date).
		Int("written", result.Written).
		Msg("distribution committed")

	writeJSON(w, http.StatusOK, result)
}

// Validate handles POST /api/distribution/validate. It never writes, the
// response lists rule violations for the submitted schedule as it stands.
func (h *DistributionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var sched types.Schedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		writeBadBody(w)
		return
	}

	violations, err := h.svc.Validate(r.Context(), sched)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":       sched.Date,
		"violations": violations,
		"count":      len(violations),
	})
}

// Settings handles GET /api/distribution/settings
func (h *DistributionHandler) Settings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.svc.EffectiveSettings(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"settings": settings,
	})
}
