package api

import (
	"encoding/json"
	"net/http"

	"github.com/dennisdiepolder/breakroster/internal/storage"
	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/dennisdiepolder/breakroster/internal/warnings"
	"github.com/rs/zerolog"
)

// RosterEntry is one agent-day in the sync payload from the upstream
// shift planning system. LeaveDays, when present, seeds or resets the
// agent's leave balance alongside the shift write.
type RosterEntry struct {
	AgentID    string           `json:"agentId"`
	AgentName  string           `json:"agentName"`
	Date       string           `json:"date"`
	Department types.Department `json:"department"`
	ShiftType  types.ShiftType  `json:"shiftType"`
	LeaveDays  *int             `json:"leaveDays,omitempty"`
}

// RosterHandler ingests shift records pushed by the upstream planner.
// Every upsert runs the invalidation check so break assignments planned
// against a stale shift get flagged, and assignments for agents whose day
// became OFF are cleared outright.
type RosterHandler struct {
	store   storage.Store
	tracker *warnings.Tracker
	logger  zerolog.Logger
}

func NewRosterHandler(store storage.Store, tracker *warnings.Tracker, logger zerolog.Logger) *RosterHandler {
	return &RosterHandler{
		store:   store,
		tracker: tracker,
		logger:  logger.With().Str("component", "roster").Logger(),
	}
}

// HandleRoster handles POST /internal/roster
func (h *RosterHandler) HandleRoster(w http.ResponseWriter, r *http.Request) {
	var entries []RosterEntry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	synced, flagged, cleared, skipped := 0, 0, 0, 0
	for _, entry := range entries {
		if entry.AgentID == "" || !types.ValidDate(entry.Date) || !entry.ShiftType.Valid() {
			h.logger.Warn().
				Str("agent_id", entry.AgentID).
				Str("date", entry.Date).
				Str("shift", string(entry.ShiftType)).
				Msg("skipping malformed roster entry")
			skipped++
			continue
		}

		if _, err := h.store.PutShift(r.Context(), types.ShiftRecord{
			AgentID:    entry.AgentID,
			AgentName:  entry.AgentName,
			Date:       entry.Date,
			Department: entry.Department,
			ShiftType:  entry.ShiftType,
		}); err != nil {
			h.logger.Error().Err(err).
				Str("agent_id", entry.AgentID).
				Str("date", entry.Date).
				Msg("failed to upsert shift record")
			skipped++
			continue
		}
		synced++

		if entry.LeaveDays != nil {
			if err := h.store.PutBalance(r.Context(), types.LeaveBalance{
				AgentID: entry.AgentID,
				Days:    *entry.LeaveDays,
			}); err != nil {
				h.logger.Error().Err(err).
					Str("agent_id", entry.AgentID).
					Msg("failed to set leave balance")
			}
		}

		if entry.ShiftType == types.ShiftOff {
			warning, err := h.tracker.ClearBreaks(r.Context(), entry.AgentID, entry.Date, entry.ShiftType)
			if err != nil {
				h.logger.Error().Err(err).
					Str("agent_id", entry.AgentID).
					Str("date", entry.Date).
					Msg("failed to clear break assignment")
				continue
			}
			if warning != nil {
				cleared++
			}
			continue
		}

		warning, err := h.tracker.CheckForInvalidation(r.Context(), entry.AgentID, entry.Date, entry.ShiftType)
		if err != nil {
			h.logger.Error().Err(err).
				Str("agent_id", entry.AgentID).
				Str("date", entry.Date).
				Msg("invalidation check failed")
			continue
		}
		if warning != nil {
			flagged++
		}
	}

	h.logger.Info().
		Int("synced", synced).
		Int("flagged", flagged).
		Int("cleared", cleared).
		Int("skipped", skipped).
		Msg("roster received")

	writeJSON(w, http.StatusOK, map[string]int{
		"synced":  synced,
		"flagged": flagged,
		"cleared": cleared,
		"skipped": skipped,
	})
}
