package workflow

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

// Store is the storage surface the workflow needs. The full storage.Store
// satisfies it.
type Store interface {
	CreateRequest(ctx context.Context, r *types.Request) error
	GetRequest(ctx context.Context, id string) (*types.Request, error)
	ListRequests(ctx context.Context, f storage.RequestFilter) ([]*types.Request, error)
	TransitionRequest(ctx context.Context, id string, from, to types.RequestStatus, fields types.TransitionFields) (*types.Request, error)

	DeductBalance(ctx context.Context, agentID string, days int) (int, error)
	AddBalance(ctx context.Context, agentID string, days int) (int, error)

	GetShift(ctx context.Context, agentID, date string) (types.ShiftRecord, error)
	ExchangeShifts(ctx context.Context, agentA, dateA, agentB, dateB string) (types.ShiftType, types.ShiftType, error)
	GetBreaks(ctx context.Context, agentID, date string) (*types.BreakAssignment, error)

	CreateWarning(ctx context.Context, w *types.Warning) error
	UnresolvedWarning(ctx context.Context, agentID, date string, kind types.WarningKind) (*types.Warning, error)
	ResolveWarning(ctx context.Context, id string) (*types.Warning, error)
}

// Invalidator flags break assignments that no longer match an agent's
// shift. The warnings tracker implements it; a nil invalidator disables
// the post-swap check.
type Invalidator interface {
	CheckForInvalidation(ctx context.Context, agentID, date string, current types.ShiftType) (*types.Warning, error)
}

// Service owns request submission and status transitions
type Service struct {
	store      Store
	machine    *Machine
	invalidate Invalidator
	logger     zerolog.Logger
}

// NewService creates the workflow service. invalidate may be nil.
func NewService(store Store, invalidate Invalidator, logger zerolog.Logger) *Service {
	return &Service{
		store:      store,
		machine:    NewMachine(),
		invalidate: invalidate,
		logger:     logger.With().Str("component", "workflow").Logger(),
	}
}

// Machine exposes the transition tables, for handlers that render the
// available actions of a request.
func (s *Service) Machine() *Machine { return s.machine }

// SubmitInput carries a new request; kind-specific fields are validated
// per kind and ignored otherwise.
type SubmitInput struct {
	Kind        types.RequestKind `json:"kind"`
	RequesterID string            `json:"requesterId"`
	Reason      string            `json:"reason"`

	TargetID      string `json:"targetId"`
	RequesterDate string `json:"requesterDate"`
	TargetDate    string `json:"targetDate"`

	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Days      int    `json:"days"`

	OvertimeDate    string `json:"overtimeDate"`
	OvertimeMinutes int    `json:"overtimeMinutes"`
}

// Submit validates the input and persists a new request in its initial
// status.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*types.Request, error) {
	if err := validateSubmit(in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	r := &types.Request{
		ID:          uuid.NewString(),
		Kind:        in.Kind,
		RequesterID: in.RequesterID,
		Status:      s.machine.Initial(in.Kind),
		Reason:      in.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	switch in.Kind {
	case types.RequestSwap:
		r.TargetID = in.TargetID
		r.RequesterDate = in.RequesterDate
		r.TargetDate = in.TargetDate
	case types.RequestLeave:
		r.StartDate = in.StartDate
		r.EndDate = in.EndDate
		r.Days = in.Days
	case types.RequestOvertime:
		r.OvertimeDate = in.OvertimeDate
		r.OvertimeMinutes = in.OvertimeMinutes
	}

	if err := s.store.CreateRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.logger.Info().
		Str("request_id", r.ID).
		Str("kind", string(r.Kind)).
		Str("requester", r.RequesterID).
		Str("status", string(r.Status)).
		Msg("request submitted")
	return r, nil
}

func validateSubmit(in SubmitInput) error {
	if !in.Kind.Valid() {
		return types.InvalidInput("kind", "unknown request kind %q", in.Kind)
	}
	if in.RequesterID == "" {
		return types.InvalidInput("requesterId", "must not be empty")
	}

	switch in.Kind {
	case types.RequestSwap:
		if in.TargetID == "" {
			return types.InvalidInput("targetId", "must not be empty")
		}
		if in.TargetID == in.RequesterID {
			return types.InvalidInput("targetId", "cannot swap with yourself")
		}
		if !types.ValidDate(in.RequesterDate) {
			return types.InvalidInput("requesterDate", "want YYYY-MM-DD, got %q", in.RequesterDate)
		}
		if !types.ValidDate(in.TargetDate) {
			return types.InvalidInput("targetDate", "want YYYY-MM-DD, got %q", in.TargetDate)
		}
	case types.RequestLeave:
		if !types.ValidDate(in.StartDate) {
			return types.InvalidInput("startDate", "want YYYY-MM-DD, got %q", in.StartDate)
		}
		if !types.ValidDate(in.EndDate) {
			return types.InvalidInput("endDate", "want YYYY-MM-DD, got %q", in.EndDate)
		}
		if in.EndDate < in.StartDate {
			return types.InvalidInput("endDate", "%s is before start date %s", in.EndDate, in.StartDate)
		}
		if in.Days <= 0 {
			return types.InvalidInput("days", "must be positive, got %d", in.Days)
		}
	case types.RequestOvertime:
		if !types.ValidDate(in.OvertimeDate) {
			return types.InvalidInput("overtimeDate", "want YYYY-MM-DD, got %q", in.OvertimeDate)
		}
		if in.OvertimeMinutes <= 0 {
			return types.InvalidInput("overtimeMinutes", "must be positive, got %d", in.OvertimeMinutes)
		}
	}
	return nil
}

// Get returns one request by id
func (s *Service) Get(ctx context.Context, id string) (*types.Request, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, types.InvalidInput("id", "not a valid uuid: %q", id)
	}
	return s.store.GetRequest(ctx, id)
}

// List returns requests matching the filter, oldest first
func (s *Service) List(ctx context.Context, f storage.RequestFilter) ([]*types.Request, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, types.InvalidInput("status", "unknown status %q", f.Status)
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return nil, types.InvalidInput("kind", "unknown request kind %q", f.Kind)
	}
	return s.store.ListRequests(ctx, f)
}

// Transition moves a request from the status the caller last read to the
// target status. The store applies the move only while the persisted status
// still matches, so a concurrent transition surfaces as types.ErrConflict
// and nothing is written. Approving a leave request deducts the agent's
// balance first and re-credits it if the status write loses.
func (s *Service) Transition(ctx context.Context, id string, from, to types.RequestStatus, actorID, reason string) (*types.Request, error) {
	if err := uuid.Validate(id); err != nil {
		return nil, types.InvalidInput("id", "not a valid uuid: %q", id)
	}
	if !from.Valid() {
		return nil, types.InvalidInput("from", "unknown status %q", from)
	}
	if !to.Valid() {
		return nil, types.InvalidInput("to", "unknown status %q", to)
	}
	if to == types.StatusExecuted {
		return nil, types.InvalidInput("to", "swaps are executed through ExecuteSwap, not a plain transition")
	}

	r, err := s.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.machine.CanTransition(r.Kind, from, to) {
		return nil, &types.TransitionError{RequestID: id, Kind: r.Kind, From: from, To: to}
	}

	fields := s.stampFields(from, to, actorID, reason)

	if r.Kind == types.RequestLeave && to == types.StatusApproved {
		return s.approveLeave(ctx, r, from, fields)
	}

	updated, err := s.store.TransitionRequest(ctx, id, from, to, fields)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			metrics.TransitionConflicts.Inc()
		}
		return nil, err
	}
	metrics.Transitions.WithLabelValues(string(updated.Kind), string(to)).Inc()

	s.logger.Info().
		Str("request_id", id).
		Str("kind", string(updated.Kind)).
		Str("from", string(from)).
		Str("to", string(to)).
		Str("actor", actorID).
		Msg("request transitioned")

	if updated.Kind == types.RequestSwap && updated.Status == types.StatusApproved {
		s.flagPendingSwap(ctx, updated)
	}
	return updated, nil
}

// stampFields writes the per-stage bookkeeping for the edge being taken.
// The fast-track edge stamps both stages in one move.
func (s *Service) stampFields(from, to types.RequestStatus, actorID, reason string) types.TransitionFields {
	now := time.Now().UTC()
	var f types.TransitionFields
	switch to {
	case types.StatusPendingTL:
		f.TargetAcceptedAt = &now
	case types.StatusPendingWFM:
		f.TLApprovedAt = &now
		f.TLApproverID = actorID
	case types.StatusApproved:
		if s.machine.FastTrack(from, to) {
			f.TLApprovedAt = &now
			f.TLApproverID = actorID
		}
		f.WFMApprovedAt = &now
		f.WFMApproverID = actorID
	case types.StatusRejected:
		f.RejectedBy = actorID
		f.RejectReason = reason
	}
	return f
}

// approveLeave deducts the balance before flipping the status. The
// deduction is a conditional atomic decrement at the store; if the status
// write then loses to a concurrent transition the days are re-credited.
func (s *Service) approveLeave(ctx context.Context, r *types.Request, from types.RequestStatus, fields types.TransitionFields) (*types.Request, error) {
	if _, err := s.store.DeductBalance(ctx, r.RequesterID, r.Days); err != nil {
		return nil, fmt.Errorf("approve leave %s: %w", r.ID, err)
	}

	updated, err := s.store.TransitionRequest(ctx, r.ID, from, types.StatusApproved, fields)
	if err != nil {
		if errors.Is(err, types.ErrConflict) {
			metrics.TransitionConflicts.Inc()
		}
		if _, creditErr := s.store.AddBalance(ctx, r.RequesterID, r.Days); creditErr != nil {
			s.logger.Error().
				Err(creditErr).
				Str("request_id", r.ID).
				Str("agent_id", r.RequesterID).
				Int("days", r.Days).
				Msg("failed to re-credit balance after lost transition")
		}
		return nil, err
	}
	metrics.Transitions.WithLabelValues(string(types.RequestLeave), string(types.StatusApproved)).Inc()

	s.logger.Info().
		Str("request_id", r.ID).
		Str("agent_id", r.RequesterID).
		Int("days", r.Days).
		Msg("leave approved, balance deducted")
	return updated, nil
}

// flagPendingSwap records an advisory for each swap participant who already
// has breaks on an affected date. Best effort; the approval stands either
// way.
func (s *Service) flagPendingSwap(ctx context.Context, r *types.Request) {
	reqShift, err := s.store.GetShift(ctx, r.RequesterID, r.RequesterDate)
	if err != nil {
		return
	}
	tgtShift, err := s.store.GetShift(ctx, r.TargetID, r.TargetDate)
	if err != nil {
		return
	}

	pairs := []struct {
		agentID  string
		date     string
		old, new types.ShiftType
	}{
		{r.RequesterID, r.RequesterDate, reqShift.ShiftType, tgtShift.ShiftType},
		{r.TargetID, r.TargetDate, tgtShift.ShiftType, reqShift.ShiftType},
	}
	for _, p := range pairs {
		if _, err := s.store.GetBreaks(ctx, p.agentID, p.date); err != nil {
			continue
		}
		if _, err := s.store.UnresolvedWarning(ctx, p.agentID, p.date, types.WarningSwapPending); err == nil {
			continue
		}
		w := &types.Warning{
			ID:           uuid.NewString(),
			AgentID:      p.agentID,
			Date:         p.date,
			Kind:         types.WarningSwapPending,
			OldShiftType: p.old,
			NewShiftType: p.new,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.store.CreateWarning(ctx, w); err != nil {
			s.logger.Warn().
				Err(err).
				Str("agent_id", p.agentID).
				Str("date", p.date).
				Msg("failed to record swap-pending warning")
			continue
		}
		metrics.WarningsRaised.WithLabelValues(string(types.WarningSwapPending)).Inc()
	}
}
