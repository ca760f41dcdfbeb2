// Package warnings tracks advisories for break assignments that no longer
// match the roster. A shift change after breaks were computed does not
// touch the assignment itself; it raises a persisted, dismissible warning
// so a planner can decide whether to recompute. Dismissal only marks the
// advisory resolved, the underlying breaks stay until a caller explicitly
// clears them.
package warnings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dennisdiepolder/breakroster/internal/metrics"
	"github.com/dennisdiepolder/breakroster/internal/storage"
	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store is the subset of storage.Store the tracker needs
type Store interface {
	GetBreaks(ctx context.Context, agentID, date string) (*types.BreakAssignment, error)
	DeleteBreaks(ctx context.Context, agentID, date string) error
	CreateWarning(ctx context.Context, w *types.Warning) error
	ListWarnings(ctx context.Context, f storage.WarningFilter) ([]*types.Warning, error)
	UnresolvedWarning(ctx context.Context, agentID, date string, kind types.WarningKind) (*types.Warning, error)
	ResolveWarning(ctx context.Context, id string) (*types.Warning, error)
}

// Tracker records and resolves scheduling advisories
type Tracker struct {
	store  Store
	logger zerolog.Logger
}

// NewTracker creates a warning tracker
func NewTracker(store Store, logger zerolog.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger.With().Str("component", "warnings").Logger(),
	}
}

// CheckForInvalidation flags the agent's break assignment when its recorded
// shift type differs from current. Returns the unresolved shift-change
// warning for (agent, date), creating it if necessary, and (nil, nil) when
// there is nothing to flag. At most one unresolved shift-change warning
// exists per (agent, date); a dismissed one does not block a fresh flag.
func (t *Tracker) CheckForInvalidation(ctx context.Context, agentID, date string, current types.ShiftType) (*types.Warning, error) {
	if agentID == "" {
		return nil, types.InvalidInput("agentId", "must not be empty")
	}
	if !types.ValidDate(date) {
		return nil, types.InvalidInput("date", "want YYYY-MM-DD, got %q", date)
	}
	if !current.Valid() {
		return nil, types.InvalidInput("shiftType", "unknown shift type %q", current)
	}

	asn, err := t.store.GetBreaks(ctx, agentID, date)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("check invalidation for %s/%s: %w", agentID, date, err)
	}
	if asn.ShiftType == current {
		return nil, nil
	}

	existing, err := t.store.UnresolvedWarning(ctx, agentID, date, types.WarningShiftChanged)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("check invalidation for %s/%s: %w", agentID, date, err)
	}

	w := &types.Warning{
		ID:           uuid.NewString(),
		AgentID:      agentID,
		Date:         date,
		Kind:         types.WarningShiftChanged,
		OldShiftType: asn.ShiftType,
		NewShiftType: current,
		CreatedAt:    time.Now().UTC(),
	}
	if err := t.store.CreateWarning(ctx, w); err != nil {
		return nil, fmt.Errorf("record shift-change warning for %s/%s: %w", agentID, date, err)
	}
	metrics.WarningsRaised.WithLabelValues(string(types.WarningShiftChanged)).Inc()

	t.logger.Info().
		Str("agent_id", agentID).
		Str("date", date).
		Str("old_shift", string(asn.ShiftType)).
		Str("new_shift", string(current)).
		Msg("break assignment invalidated by shift change")
	return w, nil
}

// Dismiss marks a warning resolved. The break assignment the warning points
// at is left alone.
func (t *Tracker) Dismiss(ctx context.Context, id string) (*types.Warning, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, types.InvalidInput("id", "not a valid uuid: %q", id)
	}
	w, err := t.store.ResolveWarning(ctx, id)
	if err != nil {
		return nil, err
	}
	t.logger.Info().
		Str("warning_id", id).
		Str("agent_id", w.AgentID).
		Str("date", w.Date).
		Msg("warning dismissed")
	return w, nil
}

// ClearBreaks deletes the agent's break assignment for the date and records
// a breaks-cleared advisory naming the shift type that made the assignment
// obsolete. An open shift-change warning for the same (agent, date) is
// resolved alongside, its subject no longer exists. Returns (nil, nil) when
// there was nothing to clear.
func (t *Tracker) ClearBreaks(ctx context.Context, agentID, date string, current types.ShiftType) (*types.Warning, error) {
	asn, err := t.store.GetBreaks(ctx, agentID, date)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("clear breaks for %s/%s: %w", agentID, date, err)
	}
	if err := t.store.DeleteBreaks(ctx, agentID, date); err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("clear breaks for %s/%s: %w", agentID, date, err)
	}

	if open, err := t.store.UnresolvedWarning(ctx, agentID, date, types.WarningShiftChanged); err == nil {
		if _, err := t.store.ResolveWarning(ctx, open.ID); err != nil {
			t.logger.Warn().
				Err(err).
				Str("warning_id", open.ID).
				Msg("failed to resolve shift-change warning after clearing breaks")
		}
	}

	w := &types.Warning{
		ID:           uuid.NewString(),
		AgentID:      agentID,
		Date:         date,
		Kind:         types.WarningBreaksCleared,
		OldShiftType: asn.ShiftType,
		NewShiftType: current,
		CreatedAt:    time.Now().UTC(),
	}
	if err := t.store.CreateWarning(ctx, w); err != nil {
		return nil, fmt.Errorf("record breaks-cleared warning for %s/%s: %w", agentID, date, err)
	}
	metrics.WarningsRaised.WithLabelValues(string(types.WarningBreaksCleared)).Inc()

	t.logger.Info().
		Str("agent_id", agentID).
		Str("date", date).
		Str("shift", string(current)).
		Msg("break assignment cleared")
	return w, nil
}

// List returns warnings matching the filter
func (t *Tracker) List(ctx context.Context, f storage.WarningFilter) ([]*types.Warning, error) {
	return t.store.ListWarnings(ctx, f)
}
