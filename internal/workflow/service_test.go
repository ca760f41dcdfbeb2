package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dennisdiepolder/breakroster/internal/storage"
	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	dateA = "2026-03-02"
	dateB = "2026-03-03"
)

func newTestService(t *testing.T) (*Service, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	return NewService(store, nil, zerolog.Nop()), store
}

func seedSwapShifts(t *testing.T, store *storage.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	for _, rec := range []types.ShiftRecord{
		{AgentID: "a01", AgentName: "Agent 01", Date: dateA, Department: types.DeptSupport, ShiftType: types.ShiftAM},
		{AgentID: "a02", AgentName: "Agent 02", Date: dateB, Department: types.DeptSupport, ShiftType: types.ShiftPM},
	} {
		if _, err := store.PutShift(ctx, rec); err != nil {
			t.Fatalf("seed shift %s: %v", rec.AgentID, err)
		}
	}
}

func submitSwap(t *testing.T, svc *Service) *types.Request {
	t.Helper()
	r, err := svc.Submit(context.Background(), SubmitInput{
		Kind:          types.RequestSwap,
		RequesterID:   "a01",
		TargetID:      "a02",
		RequesterDate: dateA,
		TargetDate:    dateB,
	})
	if err != nil {
		t.Fatalf("submit swap: %v", err)
	}
	return r
}

func TestSubmitValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		in    SubmitInput
		field string
	}{
		{"UnknownKind", SubmitInput{Kind: "holiday", RequesterID: "a01"}, "kind"},
		{"MissingRequester", SubmitInput{Kind: types.RequestLeave}, "requesterId"},
		{"SwapMissingTarget", SubmitInput{Kind: types.RequestSwap, RequesterID: "a01", RequesterDate: dateA, TargetDate: dateB}, "targetId"},
		{"SwapWithSelf", SubmitInput{Kind: types.RequestSwap, RequesterID: "a01", TargetID: "a01", RequesterDate: dateA, TargetDate: dateB}, "targetId"},
		{"SwapBadDate", SubmitInput{Kind: types.RequestSwap, RequesterID: "a01", TargetID: "a02", RequesterDate: "02.03.2026", TargetDate: dateB}, "requesterDate"},
		{"LeaveEndBeforeStart", SubmitInput{Kind: types.RequestLeave, RequesterID: "a01", StartDate: "2026-03-11", EndDate: "2026-03-09", Days: 3}, "endDate"},
		{"LeaveZeroDays", SubmitInput{Kind: types.RequestLeave, RequesterID: "a01", StartDate: "2026-03-09", EndDate: "2026-03-11", Days: 0}, "days"},
		{"OvertimeZeroMinutes", SubmitInput{Kind: types.RequestOvertime, RequesterID: "a01", OvertimeDate: dateA, OvertimeMinutes: 0}, "overtimeMinutes"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Submit(ctx, tc.in)
			var verr *types.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, verr.Field)
			}
		})
	}

	r, err := svc.Submit(ctx, SubmitInput{
		Kind:            types.RequestOvertime,
		RequesterID:     "a01",
		OvertimeDate:    dateA,
		OvertimeMinutes: 60,
	})
	if err != nil {
		t.Fatalf("submit overtime: %v", err)
	}
	if r.Status != types.StatusPendingTL {
		t.Fatalf("expected overtime to start pending_tl, got %s", r.Status)
	}
	if err := uuid.Validate(r.ID); err != nil {
		t.Fatalf("expected a uuid request id, got %q", r.ID)
	}
}

func TestSwapLifecycle(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	seedSwapShifts(t, store)

	r := submitSwap(t, svc)
	if r.Status != types.StatusPendingAcceptance {
		t.Fatalf("expected pending_acceptance, got %s", r.Status)
	}

	r, err := svc.Transition(ctx, r.ID, types.StatusPendingAcceptance, types.StatusPendingTL, "a02", "")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if r.TargetAcceptedAt == nil {
		t.Fatal("expected acceptance timestamp")
	}

	r, err = svc.Transition(ctx, r.ID, types.StatusPendingTL, types.StatusPendingWFM, "tl-1", "")
	if err != nil {
		t.Fatalf("stage one: %v", err)
	}
	if r.TLApprovedAt == nil || r.TLApproverID != "tl-1" {
		t.Fatalf("expected stage-one stamps, got %+v", r)
	}

	r, err = svc.Transition(ctx, r.ID, types.StatusPendingWFM, types.StatusApproved, "wfm-1", "")
	if err != nil {
		t.Fatalf("stage two: %v", err)
	}
	if r.WFMApprovedAt == nil || r.WFMApproverID != "wfm-1" {
		t.Fatalf("expected stage-two stamps, got %+v", r)
	}

	exec, err := svc.ExecuteSwap(ctx, r.ID)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if exec.NewShiftA != types.ShiftPM || exec.NewShiftB != types.ShiftAM {
		t.Fatalf("expected PM/AM after swap, got %s/%s", exec.NewShiftA, exec.NewShiftB)
	}

	a, err := store.GetShift(ctx, "a01", dateA)
	if err != nil {
		t.Fatalf("get shift a01: %v", err)
	}
	b, err := store.GetShift(ctx, "a02", dateB)
	if err != nil {
		t.Fatalf("get shift a02: %v", err)
	}
	if a.ShiftType != types.ShiftPM || b.ShiftType != types.ShiftAM {
		t.Fatalf("expected persisted swap, got %s/%s", a.ShiftType, b.ShiftType)
	}

	final, err := store.GetRequest(ctx, r.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if final.Status != types.StatusExecuted || final.ExecutedAt == nil {
		t.Fatalf("expected executed with timestamp, got %+v", final)
	}

	if _, err := svc.ExecuteSwap(ctx, r.ID); !errors.Is(err, types.ErrConflict) {
		t.Fatalf("expected ErrConflict on re-execution, got %v", err)
	}
	a, _ = store.GetShift(ctx, "a01", dateA)
	if a.ShiftType != types.ShiftPM {
		t.Fatalf("re-execution must not swap back, got %s", a.ShiftType)
	}
}

func TestTransitionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var verr *types.ValidationError
	if _, err := svc.Transition(ctx, "not-a-uuid", types.StatusPendingTL, types.StatusApproved, "x", ""); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for bad id, got %v", err)
	}
	if _, err := svc.Transition(ctx, uuid.NewString(), types.StatusPendingTL, types.StatusApproved, "x", ""); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}

	r := submitSwap(t, svc)
	if _, err := svc.Transition(ctx, r.ID, "weird", types.StatusApproved, "x", ""); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for unknown from-status, got %v", err)
	}
	if _, err := svc.Transition(ctx, r.ID, types.StatusApproved, types.StatusExecuted, "x", ""); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for executed target, got %v", err)
	}

	var terr *types.TransitionError
	if _, err := svc.Transition(ctx, r.ID, types.StatusPendingAcceptance, types.StatusApproved, "x", ""); !errors.As(err, &terr) {
		t.Fatalf("expected TransitionError for illegal edge, got %v", err)
	}
	if terr.Kind != types.RequestSwap || terr.To != types.StatusApproved {
		t.Fatalf("expected swap edge details, got %+v", terr)
	}
}

func TestRejectionStampsFields(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	r, err := svc.Submit(ctx, SubmitInput{
		Kind:            types.RequestOvertime,
		RequesterID:     "a01",
		OvertimeDate:    dateA,
		OvertimeMinutes: 45,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	r, err = svc.Transition(ctx, r.ID, types.StatusPendingTL, types.StatusRejected, "tl-1", "short staffed")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if r.RejectedBy != "tl-1" || r.RejectReason != "short staffed" {
		t.Fatalf("expected rejection stamps, got %+v", r)
	}
}

func TestLeaveApprovalDeductsBalance(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if err := store.PutBalance(ctx, types.LeaveBalance{AgentID: "a01", Days: 10}); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	r, err := svc.Submit(ctx, SubmitInput{
		Kind:        types.RequestLeave,
		RequesterID: "a01",
		StartDate:   "2026-03-09",
		EndDate:     "2026-03-11",
		Days:        3,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Transition(ctx, r.ID, types.StatusPendingTL, types.StatusPendingWFM, "tl-1", ""); err != nil {
		t.Fatalf("stage one: %v", err)
	}
	if _, err := svc.Transition(ctx, r.ID, types.StatusPendingWFM, types.StatusApproved, "wfm-1", ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	b, err := store.GetBalance(ctx, "a01")
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if b.Days != 7 {
		t.Fatalf("expected 7 days after approval, got %d", b.Days)
	}

	// A second request bigger than the remaining balance must be refused
	// and leave both status and balance untouched.
	r2, err := svc.Submit(ctx, SubmitInput{
		Kind:        types.RequestLeave,
		RequesterID: "a01",
		StartDate:   "2026-04-01",
		EndDate:     "2026-04-12",
		Days:        9,
	})
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}
	if _, err := svc.Transition(ctx, r2.ID, types.StatusPendingTL, types.StatusPendingWFM, "tl-1", ""); err != nil {
		t.Fatalf("stage one: %v", err)
	}
	_, err = svc.Transition(ctx, r2.ID, types.StatusPendingWFM, types.StatusApproved, "wfm-1", "")
	var insufficient *types.InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}

	got, err := store.GetRequest(ctx, r2.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != types.StatusPendingWFM {
		t.Fatalf("expected status unchanged at pending_wfm, got %s", got.Status)
	}
	b, _ = store.GetBalance(ctx, "a01")
	if b.Days != 7 {
		t.Fatalf("expected balance untouched at 7, got %d", b.Days)
	}
}

func TestFastTrackStampsBothStages(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	if err := store.PutBalance(ctx, types.LeaveBalance{AgentID: "a01", Days: 10}); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	r, err := svc.Submit(ctx, SubmitInput{
		Kind:        types.RequestLeave,
		RequesterID: "a01",
		StartDate:   "2026-03-09",
		EndDate:     "2026-03-10",
		Days:        2,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	r, err = svc.Transition(ctx, r.ID, types.StatusPendingTL, types.StatusApproved, "mgr-1", "")
	if err != nil {
		t.Fatalf("fast-track: %v", err)
	}
	if r.TLApprovedAt == nil || r.WFMApprovedAt == nil {
		t.Fatalf("expected both stage timestamps, got %+v", r)
	}
	if r.TLApproverID != "mgr-1" || r.WFMApproverID != "mgr-1" {
		t.Fatalf("expected manager on both stages, got %q/%q", r.TLApproverID, r.WFMApproverID)
	}

	b, _ := store.GetBalance(ctx, "a01")
	if b.Days != 8 {
		t.Fatalf("expected 8 days after fast-track approval, got %d", b.Days)
	}
}

// conflictOnceStore fails the first status write so the compensation path
// is observable.
type conflictOnceStore struct {
	*storage.MemoryStore
	fired bool
}

func (s *conflictOnceStore) TransitionRequest(ctx context.Context, id string, from, to types.RequestStatus, fields types.TransitionFields) (*types.Request, error) {
	if !s.fired {
		s.fired = true
		return nil, fmt.Errorf("request %s is %s, expected %s: %w", id, types.StatusRejected, from, types.ErrConflict)
	}
	return s.MemoryStore.TransitionRequest(ctx, id, from, to, fields)
}

func TestLeaveRecreditsBalanceOnLostTransition(t *testing.T) {
	store := &conflictOnceStore{MemoryStore: storage.NewMemoryStore()}
	svc := NewService(store, nil, zerolog.Nop())
	ctx := context.Background()

	if err := store.PutBalance(ctx, types.LeaveBalance{AgentID: "a01", Days: 10}); err != nil {
		t.Fatalf("seed balance: %v", err)
	}
	r, err := svc.Submit(ctx, SubmitInput{
		Kind:        types.RequestLeave,
		RequesterID: "a01",
		StartDate:   "2026-03-09",
		EndDate:     "2026-03-11",
		Days:        3,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err = svc.Transition(ctx, r.ID, types.StatusPendingTL, types.StatusApproved, "mgr-1", "")
	if !errors.Is(err, types.ErrConflict) {
		t.Fatalf("expected ErrConflict from lost status write, got %v", err)
	}
	b, _ := store.GetBalance(ctx, "a01")
	if b.Days != 10 {
		t.Fatalf("expected balance re-credited to 10, got %d", b.Days)
	}

	// The retry goes through and deducts exactly once.
	if _, err := svc.Transition(ctx, r.ID, types.StatusPendingTL, types.StatusApproved, "mgr-1", ""); err != nil {
		t.Fatalf("retry: %v", err)
	}
	b, _ = store.GetBalance(ctx, "a01")
	if b.Days != 7 {
		t.Fatalf("expected 7 days after retry, got %d", b.Days)
	}
}

func TestConcurrentApproveRejectOneWins(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	r, err := svc.Submit(ctx, SubmitInput{
		Kind:            types.RequestOvertime,
		RequesterID:     "a01",
		OvertimeDate:    dateA,
		OvertimeMinutes: 60,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.Transition(ctx, r.ID, types.StatusPendingTL, types.StatusPendingWFM, "tl-1", ""); err != nil {
		t.Fatalf("stage one: %v", err)
	}

	var wg sync.WaitGroup
	var approveErr, rejectErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, approveErr = svc.Transition(ctx, r.ID, types.StatusPendingWFM, types.StatusApproved, "wfm-1", "")
	}()
	go func() {
		defer wg.Done()
		_, rejectErr = svc.Transition(ctx, r.ID, types.StatusPendingWFM, types.StatusRejected, "wfm-2", "coverage")
	}()
	wg.Wait()

	if (approveErr == nil) == (rejectErr == nil) {
		t.Fatalf("expected exactly one winner, got approve=%v reject=%v", approveErr, rejectErr)
	}

	final, err := store.GetRequest(ctx, r.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	switch {
	case approveErr == nil:
		if !errors.Is(rejectErr, types.ErrConflict) {
			t.Fatalf("expected reject to lose with ErrConflict, got %v", rejectErr)
		}
		if final.Status != types.StatusApproved {
			t.Fatalf("expected approved, got %s", final.Status)
		}
	default:
		if !errors.Is(approveErr, types.ErrConflict) {
			t.Fatalf("expected approve to lose with ErrConflict, got %v", approveErr)
		}
		if final.Status != types.StatusRejected {
			t.Fatalf("expected rejected, got %s", final.Status)
		}
	}
}

func TestExecuteSwapAbortsOnMissingShift(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	// Only the requester's shift exists.
	if _, err := store.PutShift(ctx, types.ShiftRecord{
		AgentID: "a01", AgentName: "Agent 01", Date: dateA,
		Department: types.DeptSupport, ShiftType: types.ShiftAM,
	}); err != nil {
		t.Fatalf("seed shift: %v", err)
	}

	r := submitSwap(t, svc)
	for _, step := range []struct {
		from, to types.RequestStatus
		actor    string
	}{
		{types.StatusPendingAcceptance, types.StatusPendingTL, "a02"},
		{types.StatusPendingTL, types.StatusPendingWFM, "tl-1"},
		{types.StatusPendingWFM, types.StatusApproved, "wfm-1"},
	} {
		if _, err := svc.Transition(ctx, r.ID, step.from, step.to, step.actor, ""); err != nil {
			t.Fatalf("transition to %s: %v", step.to, err)
		}
	}

	_, err := svc.ExecuteSwap(ctx, r.ID)
	var execErr *types.SwapExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected SwapExecutionError, got %v", err)
	}
	if execErr.Missing != "a02/"+dateB {
		t.Fatalf("expected missing a02/%s, got %q", dateB, execErr.Missing)
	}

	// The abort happens before the status claim, so the request stays
	// approved and a later execution can still succeed.
	got, err := store.GetRequest(ctx, r.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != types.StatusApproved {
		t.Fatalf("expected status still approved, got %s", got.Status)
	}
	a, err := store.GetShift(ctx, "a01", dateA)
	if err != nil {
		t.Fatalf("get shift: %v", err)
	}
	if a.ShiftType != types.ShiftAM {
		t.Fatalf("expected untouched shift AM, got %s", a.ShiftType)
	}

	if _, err := store.PutShift(ctx, types.ShiftRecord{
		AgentID: "a02", AgentName: "Agent 02", Date: dateB,
		Department: types.DeptSupport, ShiftType: types.ShiftPM,
	}); err != nil {
		t.Fatalf("seed missing shift: %v", err)
	}
	if _, err := svc.ExecuteSwap(ctx, r.ID); err != nil {
		t.Fatalf("execute after repair: %v", err)
	}
}

type invalidationCall struct {
	agentID string
	date    string
	shift   types.ShiftType
}

type recordingInvalidator struct {
	calls []invalidationCall
}

func (r *recordingInvalidator) CheckForInvalidation(_ context.Context, agentID, date string, current types.ShiftType) (*types.Warning, error) {
	r.calls = append(r.calls, invalidationCall{agentID, date, current})
	return nil, nil
}

func TestSwapApprovalFlagsPendingBreaks(t *testing.T) {
	store := storage.NewMemoryStore()
	inv := &recordingInvalidator{}
	svc := NewService(store, inv, zerolog.Nop())
	ctx := context.Background()
	seedSwapShifts(t, store)

	if _, err := store.WriteBreaks(ctx, &types.BreakAssignment{
		AgentID:   "a01",
		Date:      dateA,
		ShiftType: types.ShiftAM,
		Slots: map[int]types.BreakKind{
			4: types.BreakHalf1, 14: types.BreakFull, 15: types.BreakFull, 26: types.BreakHalf2,
		},
	}, 0); err != nil {
		t.Fatalf("seed breaks: %v", err)
	}

	r := submitSwap(t, svc)
	for _, step := range []struct {
		from, to types.RequestStatus
		actor    string
	}{
		{types.StatusPendingAcceptance, types.StatusPendingTL, "a02"},
		{types.StatusPendingTL, types.StatusPendingWFM, "tl-1"},
		{types.StatusPendingWFM, types.StatusApproved, "wfm-1"},
	} {
		if _, err := svc.Transition(ctx, r.ID, step.from, step.to, step.actor, ""); err != nil {
			t.Fatalf("transition to %s: %v", step.to, err)
		}
	}

	w, err := store.UnresolvedWarning(ctx, "a01", dateA, types.WarningSwapPending)
	if err != nil {
		t.Fatalf("expected swap-pending warning for a01: %v", err)
	}
	if w.OldShiftType != types.ShiftAM || w.NewShiftType != types.ShiftPM {
		t.Fatalf("expected AM -> PM advisory, got %s -> %s", w.OldShiftType, w.NewShiftType)
	}
	// The counterpart has no breaks, so no advisory.
	if _, err := store.UnresolvedWarning(ctx, "a02", dateB, types.WarningSwapPending); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected no warning for a02, got %v", err)
	}

	if _, err := svc.ExecuteSwap(ctx, r.ID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	// Execution closes the pending advisory and re-checks both schedules.
	if _, err := store.UnresolvedWarning(ctx, "a01", dateA, types.WarningSwapPending); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected swap-pending warning resolved, got %v", err)
	}
	want := []invalidationCall{
		{"a01", dateA, types.ShiftPM},
		{"a02", dateB, types.ShiftAM},
	}
	if len(inv.calls) != len(want) {
		t.Fatalf("expected %d invalidation checks, got %d", len(want), len(inv.calls))
	}
	for i := range want {
		if inv.calls[i] != want[i] {
			t.Fatalf("expected check %+v at %d, got %+v", want[i], i, inv.calls[i])
		}
	}
}

func TestListFiltersRequests(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	submitSwap(t, svc)
	if _, err := svc.Submit(ctx, SubmitInput{
		Kind: types.RequestLeave, RequesterID: "a03",
		StartDate: "2026-03-09", EndDate: "2026-03-10", Days: 2,
	}); err != nil {
		t.Fatalf("submit leave: %v", err)
	}

	pending, err := svc.List(ctx, storage.RequestFilter{Status: types.StatusPendingTL})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].Kind != types.RequestLeave {
		t.Fatalf("expected only the leave request pending_tl, got %d", len(pending))
	}

	if _, err := svc.List(ctx, storage.RequestFilter{Status: "weird"}); err == nil {
		t.Fatal("expected validation error for unknown status filter")
	}
}
