package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/rs/zerolog"
)

const testDate = "2026-03-02"

// eachStore runs fn against every driver that needs no external services.
// The DynamoDB driver implements the same contract but only runs against
// dynamodb-local.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "breakroster.db"), zerolog.Nop())
		if err != nil {
			t.Fatalf("open sqlite store: %v", err)
		}
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

func testShift(agentID string, st types.ShiftType) types.ShiftRecord {
	return types.ShiftRecord{
		AgentID:    agentID,
		AgentName:  "Agent " + agentID,
		Date:       testDate,
		Department: types.DeptSupport,
		ShiftType:  st,
	}
}

func testBreaks(agentID string) *types.BreakAssignment {
	return &types.BreakAssignment{
		AgentID:   agentID,
		Date:      testDate,
		ShiftType: types.ShiftAM,
		Slots: map[int]types.BreakKind{
			4:  types.BreakHalf1,
			14: types.BreakFull,
			15: types.BreakFull,
			26: types.BreakHalf2,
		},
	}
}

func TestPutShiftBumpsRevision(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		rev, err := s.PutShift(ctx, testShift("a01", types.ShiftAM))
		if err != nil {
			t.Fatalf("put shift: %v", err)
		}
		if rev != 1 {
			t.Fatalf("expected revision 1, got %d", rev)
		}

		rev, err = s.PutShift(ctx, testShift("a01", types.ShiftPM))
		if err != nil {
			t.Fatalf("put shift again: %v", err)
		}
		if rev != 2 {
			t.Fatalf("expected revision 2, got %d", rev)
		}

		got, err := s.GetShift(ctx, "a01", testDate)
		if err != nil {
			t.Fatalf("get shift: %v", err)
		}
		if got.ShiftType != types.ShiftPM {
			t.Fatalf("expected shift PM, got %s", got.ShiftType)
		}
		if got.Revision != 2 {
			t.Fatalf("expected stored revision 2, got %d", got.Revision)
		}
		if got.AgentName != "Agent a01" {
			t.Fatalf("expected agent name to round-trip, got %q", got.AgentName)
		}

		if _, err := s.GetShift(ctx, "ghost", testDate); !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for unknown agent, got %v", err)
		}
	})
}

func TestListShiftsSortedByAgent(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		for _, id := range []string{"a03", "a01", "a02"} {
			if _, err := s.PutShift(ctx, testShift(id, types.ShiftAM)); err != nil {
				t.Fatalf("put shift %s: %v", id, err)
			}
		}
		other := testShift("a09", types.ShiftPM)
		other.Date = "2026-03-03"
		if _, err := s.PutShift(ctx, other); err != nil {
			t.Fatalf("put shift on other day: %v", err)
		}

		recs, err := s.ListShifts(ctx, testDate)
		if err != nil {
			t.Fatalf("list shifts: %v", err)
		}
		if len(recs) != 3 {
			t.Fatalf("expected 3 shifts, got %d", len(recs))
		}
		for i, want := range []string{"a01", "a02", "a03"} {
			if recs[i].AgentID != want {
				t.Fatalf("expected %s at position %d, got %s", want, i, recs[i].AgentID)
			}
		}
	})
}

func TestWriteBreaksRevisionGuard(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		rev, err := s.WriteBreaks(ctx, testBreaks("a01"), 0)
		if err != nil {
			t.Fatalf("initial write: %v", err)
		}
		if rev != 1 {
			t.Fatalf("expected revision 1, got %d", rev)
		}

		if _, err := s.WriteBreaks(ctx, testBreaks("a01"), 0); !errors.Is(err, types.ErrConflict) {
			t.Fatalf("expected ErrConflict for second create, got %v", err)
		}

		next := testBreaks("a01")
		next.Slots = map[int]types.BreakKind{
			6:  types.BreakHalf1,
			16: types.BreakFull,
			17: types.BreakFull,
			28: types.BreakHalf2,
		}
		rev, err = s.WriteBreaks(ctx, next, 1)
		if err != nil {
			t.Fatalf("guarded update: %v", err)
		}
		if rev != 2 {
			t.Fatalf("expected revision 2, got %d", rev)
		}

		if _, err := s.WriteBreaks(ctx, next, 1); !errors.Is(err, types.ErrConflict) {
			t.Fatalf("expected ErrConflict on stale revision, got %v", err)
		}

		got, err := s.GetBreaks(ctx, "a01", testDate)
		if err != nil {
			t.Fatalf("get breaks: %v", err)
		}
		if got.Revision != 2 {
			t.Fatalf("expected stored revision 2, got %d", got.Revision)
		}
		if len(got.Slots) != 4 {
			t.Fatalf("expected 4 slots, got %d", len(got.Slots))
		}
		if got.Slots[6] != types.BreakHalf1 || got.Slots[16] != types.BreakFull ||
			got.Slots[17] != types.BreakFull || got.Slots[28] != types.BreakHalf2 {
			t.Fatalf("slots did not round-trip: %v", got.Slots)
		}

		if err := s.DeleteBreaks(ctx, "a01", testDate); err != nil {
			t.Fatalf("delete breaks: %v", err)
		}
		if _, err := s.GetBreaks(ctx, "a01", testDate); !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if err := s.DeleteBreaks(ctx, "a01", testDate); !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for double delete, got %v", err)
		}
	})
}

func TestConcurrentBreakWritersOneWins(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, err := s.WriteBreaks(ctx, testBreaks("a01"), 0); err != nil {
			t.Fatalf("seed write: %v", err)
		}

		const writers = 8
		errs := make([]error, writers)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.WriteBreaks(ctx, testBreaks("a01"), 1)
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			if !errors.Is(err, types.ErrConflict) {
				t.Fatalf("expected ErrConflict for losing writer, got %v", err)
			}
		}
		if wins != 1 {
			t.Fatalf("expected exactly one winning writer, got %d", wins)
		}

		got, err := s.GetBreaks(ctx, "a01", testDate)
		if err != nil {
			t.Fatalf("get breaks: %v", err)
		}
		if got.Revision != 2 {
			t.Fatalf("expected revision 2 after one win, got %d", got.Revision)
		}
	})
}

func TestTransitionRequestGuard(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now().UTC()

		r := &types.Request{
			ID:          "r-1",
			Kind:        types.RequestLeave,
			RequesterID: "a01",
			Status:      types.StatusPendingTL,
			StartDate:   "2026-03-09",
			EndDate:     "2026-03-11",
			Days:        3,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.CreateRequest(ctx, r); err != nil {
			t.Fatalf("create request: %v", err)
		}
		if err := s.CreateRequest(ctx, r); !errors.Is(err, types.ErrConflict) {
			t.Fatalf("expected ErrConflict for duplicate id, got %v", err)
		}

		if _, err := s.TransitionRequest(ctx, "r-1", types.StatusPendingWFM, types.StatusApproved, types.TransitionFields{}); !errors.Is(err, types.ErrConflict) {
			t.Fatalf("expected ErrConflict for wrong from-status, got %v", err)
		}

		ts := time.Now().UTC()
		got, err := s.TransitionRequest(ctx, "r-1", types.StatusPendingTL, types.StatusPendingWFM,
			types.TransitionFields{TLApprovedAt: &ts, TLApproverID: "tl-1"})
		if err != nil {
			t.Fatalf("transition: %v", err)
		}
		if got.Status != types.StatusPendingWFM {
			t.Fatalf("expected status pending_wfm, got %s", got.Status)
		}
		if got.TLApproverID != "tl-1" || got.TLApprovedAt == nil {
			t.Fatalf("expected TL approval fields to be written, got %+v", got)
		}

		reload, err := s.GetRequest(ctx, "r-1")
		if err != nil {
			t.Fatalf("get request: %v", err)
		}
		if reload.Status != types.StatusPendingWFM {
			t.Fatalf("expected persisted status pending_wfm, got %s", reload.Status)
		}
		if reload.WFMApprovedAt != nil {
			t.Fatalf("expected WFM timestamp untouched, got %v", reload.WFMApprovedAt)
		}

		if _, err := s.TransitionRequest(ctx, "ghost", types.StatusPendingTL, types.StatusApproved, types.TransitionFields{}); !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for unknown request, got %v", err)
		}
	})
}

func TestConcurrentTransitionsOneWins(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		now := time.Now().UTC()

		r := &types.Request{
			ID:          "r-race",
			Kind:        types.RequestOvertime,
			RequesterID: "a01",
			Status:      types.StatusPendingTL,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.CreateRequest(ctx, r); err != nil {
			t.Fatalf("create request: %v", err)
		}

		const approvers = 6
		errs := make([]error, approvers)
		var wg sync.WaitGroup
		for i := 0; i < approvers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = s.TransitionRequest(ctx, "r-race",
					types.StatusPendingTL, types.StatusPendingWFM, types.TransitionFields{TLApproverID: "tl-1"})
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
				continue
			}
			if !errors.Is(err, types.ErrConflict) {
				t.Fatalf("expected ErrConflict for losing approver, got %v", err)
			}
		}
		if wins != 1 {
			t.Fatalf("expected exactly one winning approver, got %d", wins)
		}

		got, err := s.GetRequest(ctx, "r-race")
		if err != nil {
			t.Fatalf("get request: %v", err)
		}
		if got.Status != types.StatusPendingWFM {
			t.Fatalf("expected status pending_wfm, got %s", got.Status)
		}
	})
}

func TestBalanceDeduction(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if err := s.PutBalance(ctx, types.LeaveBalance{AgentID: "a01", Days: 10}); err != nil {
			t.Fatalf("put balance: %v", err)
		}

		remaining, err := s.DeductBalance(ctx, "a01", 4)
		if err != nil {
			t.Fatalf("deduct: %v", err)
		}
		if remaining != 6 {
			t.Fatalf("expected 6 days remaining, got %d", remaining)
		}

		_, err = s.DeductBalance(ctx, "a01", 7)
		var insufficient *types.InsufficientBalanceError
		if !errors.As(err, &insufficient) {
			t.Fatalf("expected InsufficientBalanceError, got %v", err)
		}
		if insufficient.Available != 6 || insufficient.Requested != 7 {
			t.Fatalf("expected available 6 requested 7, got %+v", insufficient)
		}

		if _, err := s.DeductBalance(ctx, "ghost", 1); !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for unknown agent, got %v", err)
		}

		remaining, err = s.AddBalance(ctx, "a01", 2)
		if err != nil {
			t.Fatalf("add balance: %v", err)
		}
		if remaining != 8 {
			t.Fatalf("expected 8 days after refund, got %d", remaining)
		}

		remaining, err = s.AddBalance(ctx, "a02", 5)
		if err != nil {
			t.Fatalf("add balance for new agent: %v", err)
		}
		if remaining != 5 {
			t.Fatalf("expected 5 days for new agent, got %d", remaining)
		}
	})
}

func TestConcurrentDeductionsNeverOversell(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if err := s.PutBalance(ctx, types.LeaveBalance{AgentID: "a01", Days: 10}); err != nil {
			t.Fatalf("put balance: %v", err)
		}

		// Two overlapping deductions must both land; a lost update would
		// leave 7 or 8.
		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, amount := range []int{3, 2} {
			wg.Add(1)
			go func(i, amount int) {
				defer wg.Done()
				_, errs[i] = s.DeductBalance(ctx, "a01", amount)
			}(i, amount)
		}
		wg.Wait()
		for _, err := range errs {
			if err != nil {
				t.Fatalf("deduct: %v", err)
			}
		}

		b, err := s.GetBalance(ctx, "a01")
		if err != nil {
			t.Fatalf("get balance: %v", err)
		}
		if b.Days != 5 {
			t.Fatalf("expected 5 days after 3+2, got %d", b.Days)
		}

		// 4 writers each want 2 of the remaining 5; only two can fit.
		const writers = 4
		raceErrs := make([]error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, raceErrs[i] = s.DeductBalance(ctx, "a01", 2)
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range raceErrs {
			if err == nil {
				wins++
				continue
			}
			var insufficient *types.InsufficientBalanceError
			if !errors.As(err, &insufficient) {
				t.Fatalf("expected InsufficientBalanceError for loser, got %v", err)
			}
		}
		if wins != 2 {
			t.Fatalf("expected exactly 2 winning deductions, got %d", wins)
		}

		b, err = s.GetBalance(ctx, "a01")
		if err != nil {
			t.Fatalf("get balance: %v", err)
		}
		if b.Days != 1 {
			t.Fatalf("expected 1 day left, got %d", b.Days)
		}
	})
}

func TestExchangeShiftsSwapsBoth(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, err := s.PutShift(ctx, testShift("a01", types.ShiftAM)); err != nil {
			t.Fatalf("put shift a01: %v", err)
		}
		if _, err := s.PutShift(ctx, testShift("a02", types.ShiftPM)); err != nil {
			t.Fatalf("put shift a02: %v", err)
		}

		newA, newB, err := s.ExchangeShifts(ctx, "a01", testDate, "a02", testDate)
		if err != nil {
			t.Fatalf("exchange: %v", err)
		}
		if newA != types.ShiftPM || newB != types.ShiftAM {
			t.Fatalf("expected swap to PM/AM, got %s/%s", newA, newB)
		}

		a, err := s.GetShift(ctx, "a01", testDate)
		if err != nil {
			t.Fatalf("get a01: %v", err)
		}
		b, err := s.GetShift(ctx, "a02", testDate)
		if err != nil {
			t.Fatalf("get a02: %v", err)
		}
		if a.ShiftType != types.ShiftPM || b.ShiftType != types.ShiftAM {
			t.Fatalf("expected persisted swap, got %s/%s", a.ShiftType, b.ShiftType)
		}
		if a.Revision != 2 || b.Revision != 2 {
			t.Fatalf("expected both revisions bumped to 2, got %d/%d", a.Revision, b.Revision)
		}

		if _, _, err := s.ExchangeShifts(ctx, "a01", testDate, "ghost", testDate); !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for missing counterpart, got %v", err)
		}
		a, err = s.GetShift(ctx, "a01", testDate)
		if err != nil {
			t.Fatalf("get a01 after failed exchange: %v", err)
		}
		if a.ShiftType != types.ShiftPM || a.Revision != 2 {
			t.Fatalf("failed exchange must not touch existing shift, got %s rev %d", a.ShiftType, a.Revision)
		}
	})
}

func TestSettingsRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		if _, err := s.GetSettings(ctx, types.ShiftAM); !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound before put, got %v", err)
		}

		st := types.DistributionSettings{
			ShiftType:     types.ShiftAM,
			HB1StartSlot:  4,
			BGapMinutes:   150,
			HB2GapMinutes: 150,
			Increment:     1,
		}
		if err := s.PutSettings(ctx, st); err != nil {
			t.Fatalf("put settings: %v", err)
		}

		got, err := s.GetSettings(ctx, types.ShiftAM)
		if err != nil {
			t.Fatalf("get settings: %v", err)
		}
		if got != st {
			t.Fatalf("expected %+v, got %+v", st, got)
		}

		st.Increment = 3
		if err := s.PutSettings(ctx, st); err != nil {
			t.Fatalf("overwrite settings: %v", err)
		}
		got, err = s.GetSettings(ctx, types.ShiftAM)
		if err != nil {
			t.Fatalf("get settings after overwrite: %v", err)
		}
		if got.Increment != 3 {
			t.Fatalf("expected increment 3 after overwrite, got %d", got.Increment)
		}
	})
}

func TestWarningLifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		w := &types.Warning{
			ID:           "w-1",
			AgentID:      "a01",
			Date:         testDate,
			Kind:         types.WarningShiftChanged,
			OldShiftType: types.ShiftAM,
			NewShiftType: types.ShiftPM,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.CreateWarning(ctx, w); err != nil {
			t.Fatalf("create warning: %v", err)
		}
		if err := s.CreateWarning(ctx, w); !errors.Is(err, types.ErrConflict) {
			t.Fatalf("expected ErrConflict for duplicate id, got %v", err)
		}

		got, err := s.UnresolvedWarning(ctx, "a01", testDate, types.WarningShiftChanged)
		if err != nil {
			t.Fatalf("unresolved warning: %v", err)
		}
		if got.ID != "w-1" || got.Resolved {
			t.Fatalf("expected open warning w-1, got %+v", got)
		}

		resolved, err := s.ResolveWarning(ctx, "w-1")
		if err != nil {
			t.Fatalf("resolve warning: %v", err)
		}
		if !resolved.Resolved {
			t.Fatalf("expected resolved flag set, got %+v", resolved)
		}

		if _, err := s.UnresolvedWarning(ctx, "a01", testDate, types.WarningShiftChanged); !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after resolve, got %v", err)
		}

		open, err := s.ListWarnings(ctx, WarningFilter{AgentID: "a01", Unresolved: true})
		if err != nil {
			t.Fatalf("list unresolved: %v", err)
		}
		if len(open) != 0 {
			t.Fatalf("expected no open warnings, got %d", len(open))
		}
		all, err := s.ListWarnings(ctx, WarningFilter{AgentID: "a01"})
		if err != nil {
			t.Fatalf("list all: %v", err)
		}
		if len(all) != 1 {
			t.Fatalf("expected 1 warning overall, got %d", len(all))
		}

		if _, err := s.ResolveWarning(ctx, "ghost"); !errors.Is(err, types.ErrNotFound) {
			t.Fatalf("expected ErrNotFound for unknown warning, got %v", err)
		}
	})
}

func TestListRequestsFilters(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

		requests := []*types.Request{
			{ID: "r-1", Kind: types.RequestLeave, RequesterID: "a01", Status: types.StatusPendingTL, CreatedAt: base},
			{ID: "r-2", Kind: types.RequestSwap, RequesterID: "a01", Status: types.StatusPendingAcceptance, CreatedAt: base.Add(time.Second)},
			{ID: "r-3", Kind: types.RequestOvertime, RequesterID: "a02", Status: types.StatusPendingTL, CreatedAt: base.Add(2 * time.Second)},
		}
		for _, r := range requests {
			r.UpdatedAt = r.CreatedAt
			if err := s.CreateRequest(ctx, r); err != nil {
				t.Fatalf("create %s: %v", r.ID, err)
			}
		}

		all, err := s.ListRequests(ctx, RequestFilter{})
		if err != nil {
			t.Fatalf("list all: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 requests, got %d", len(all))
		}
		for i, want := range []string{"r-1", "r-2", "r-3"} {
			if all[i].ID != want {
				t.Fatalf("expected %s at position %d, got %s", want, i, all[i].ID)
			}
		}

		pending, err := s.ListRequests(ctx, RequestFilter{Status: types.StatusPendingTL})
		if err != nil {
			t.Fatalf("list pending_tl: %v", err)
		}
		if len(pending) != 2 {
			t.Fatalf("expected 2 pending_tl requests, got %d", len(pending))
		}

		swaps, err := s.ListRequests(ctx, RequestFilter{Kind: types.RequestSwap})
		if err != nil {
			t.Fatalf("list swaps: %v", err)
		}
		if len(swaps) != 1 || swaps[0].ID != "r-2" {
			t.Fatalf("expected only r-2, got %d", len(swaps))
		}

		mine, err := s.ListRequests(ctx, RequestFilter{RequesterID: "a01"})
		if err != nil {
			t.Fatalf("list by requester: %v", err)
		}
		if len(mine) != 2 {
			t.Fatalf("expected 2 requests for a01, got %d", len(mine))
		}

		both, err := s.ListRequests(ctx, RequestFilter{Status: types.StatusPendingTL, RequesterID: "a02"})
		if err != nil {
			t.Fatalf("list combined filter: %v", err)
		}
		if len(both) != 1 || both[0].ID != "r-3" {
			t.Fatalf("expected only r-3, got %d", len(both))
		}
	})
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "breakroster.db")

	s, err := NewSQLiteStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	if _, err := s.PutShift(ctx, testShift("a01", types.ShiftAM)); err != nil {
		t.Fatalf("put shift: %v", err)
	}
	if _, err := s.WriteBreaks(ctx, testBreaks("a01"), 0); err != nil {
		t.Fatalf("write breaks: %v", err)
	}
	if err := s.PutBalance(ctx, types.LeaveBalance{AgentID: "a01", Days: 10}); err != nil {
		t.Fatalf("put balance: %v", err)
	}
	ts := time.Now().UTC()
	r := &types.Request{
		ID:           "r-1",
		Kind:         types.RequestLeave,
		RequesterID:  "a01",
		Status:       types.StatusPendingWFM,
		Days:         3,
		TLApprovedAt: &ts,
		TLApproverID: "tl-1",
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := s.CreateRequest(ctx, r); err != nil {
		t.Fatalf("create request: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, err := NewSQLiteStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen sqlite store: %v", err)
	}
	defer s2.Close()

	shift, err := s2.GetShift(ctx, "a01", testDate)
	if err != nil {
		t.Fatalf("get shift after reopen: %v", err)
	}
	if shift.ShiftType != types.ShiftAM || shift.Revision != 1 {
		t.Fatalf("expected AM rev 1, got %s rev %d", shift.ShiftType, shift.Revision)
	}

	breaks, err := s2.GetBreaks(ctx, "a01", testDate)
	if err != nil {
		t.Fatalf("get breaks after reopen: %v", err)
	}
	if breaks.Slots[14] != types.BreakFull {
		t.Fatalf("expected slot 14 to hold the full break, got %v", breaks.Slots)
	}

	got, err := s2.GetRequest(ctx, "r-1")
	if err != nil {
		t.Fatalf("get request after reopen: %v", err)
	}
	if got.TLApprovedAt == nil || got.TLApproverID != "tl-1" {
		t.Fatalf("expected TL approval to survive reopen, got %+v", got)
	}
	if got.WFMApprovedAt != nil {
		t.Fatalf("expected nil WFM timestamp to survive reopen, got %v", got.WFMApprovedAt)
	}

	b, err := s2.GetBalance(ctx, "a01")
	if err != nil {
		t.Fatalf("get balance after reopen: %v", err)
	}
	if b.Days != 10 {
		t.Fatalf("expected 10 days after reopen, got %d", b.Days)
	}
}
