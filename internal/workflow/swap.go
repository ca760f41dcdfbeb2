package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dennisdiepolder/breakroster/internal/metrics"
	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/google/uuid"
)

// ExecuteSwap exchanges the two shift records of an approved swap request.
//
// The status moves approved -> executed before the shifts are touched:
// claiming the edge first means two concurrent executors cannot both reach
// the exchange, which would swap the shifts twice and quietly restore the
// original assignment. If the exchange then fails, the claim is rolled back
// to approved so the request stays executable.
func (s *Service) ExecuteSwap(ctx context.Context, requestID string) (*types.SwapExecution, error) {
	if err := uuid.Validate(requestID); err != nil {
		return nil, types.InvalidInput("id", "not a valid uuid: %q", requestID)
	}

	r, err := s.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Kind != types.RequestSwap {
		return nil, types.InvalidInput("id", "request %s is a %s request, not a swap", requestID, r.Kind)
	}
	if r.Status != types.StatusApproved {
		return nil, fmt.Errorf("swap %s is %s, not approved: %w", requestID, r.Status, types.ErrConflict)
	}

	// Both records must exist before anything is claimed or mutated.
	if _, err := s.store.GetShift(ctx, r.RequesterID, r.RequesterDate); err != nil {
		return nil, s.swapLookupError(requestID, r.RequesterID, r.RequesterDate, err)
	}
	if _, err := s.store.GetShift(ctx, r.TargetID, r.TargetDate); err != nil {
		return nil, s.swapLookupError(requestID, r.TargetID, r.TargetDate, err)
	}

	now := time.Now().UTC()
	if _, err := s.store.TransitionRequest(ctx, requestID,
		types.StatusApproved, types.StatusExecuted, types.TransitionFields{ExecutedAt: &now}); err != nil {
		if errors.Is(err, types.ErrConflict) {
			metrics.TransitionConflicts.Inc()
		}
		return nil, err
	}

	newA, newB, err := s.store.ExchangeShifts(ctx, r.RequesterID, r.RequesterDate, r.TargetID, r.TargetDate)
	if err != nil {
		if _, rbErr := s.store.TransitionRequest(ctx, requestID,
			types.StatusExecuted, types.StatusApproved, types.TransitionFields{}); rbErr != nil {
			s.logger.Error().
				Err(rbErr).
				Str("request_id", requestID).
				Msg("failed to roll back execution claim after exchange error")
		}
		metrics.SwapExecutions.WithLabelValues("failed").Inc()
		return nil, &types.SwapExecutionError{RequestID: requestID, Err: err}
	}
	metrics.SwapExecutions.WithLabelValues("executed").Inc()

	s.logger.Info().
		Str("request_id", requestID).
		Str("agent_a", r.RequesterID).
		Str("agent_b", r.TargetID).
		Str("new_shift_a", string(newA)).
		Str("new_shift_b", string(newB)).
		Msg("swap executed")

	s.afterSwap(ctx, r, newA, newB)

	return &types.SwapExecution{
		RequestID:  requestID,
		AgentA:     r.RequesterID,
		AgentB:     r.TargetID,
		DateA:      r.RequesterDate,
		DateB:      r.TargetDate,
		NewShiftA:  newA,
		NewShiftB:  newB,
		ExecutedAt: now,
	}, nil
}

func (s *Service) swapLookupError(requestID, agentID, date string, err error) error {
	if errors.Is(err, types.ErrNotFound) {
		return &types.SwapExecutionError{RequestID: requestID, Missing: agentID + "/" + date, Err: err}
	}
	return fmt.Errorf("swap %s: %w", requestID, err)
}

// afterSwap closes out the pending-swap advisories and flags break
// assignments invalidated by the new shift types. Best effort.
func (s *Service) afterSwap(ctx context.Context, r *types.Request, newA, newB types.ShiftType) {
	pairs := []struct {
		agentID string
		date    string
		current types.ShiftType
	}{
		{r.RequesterID, r.RequesterDate, newA},
		{r.TargetID, r.TargetDate, newB},
	}
	for _, p := range pairs {
		if w, err := s.store.UnresolvedWarning(ctx, p.agentID, p.date, types.WarningSwapPending); err == nil {
			if _, err := s.store.ResolveWarning(ctx, w.ID); err != nil {
				s.logger.Warn().
					Err(err).
					Str("warning_id", w.ID).
					Msg("failed to resolve swap-pending warning")
			}
		}
		if s.invalidate == nil {
			continue
		}
		if _, err := s.invalidate.CheckForInvalidation(ctx, p.agentID, p.date, p.current); err != nil {
			s.logger.Warn().
				Err(err).
				Str("agent_id", p.agentID).
				Str("date", p.date).
				Msg("post-swap invalidation check failed")
		}
	}
}
