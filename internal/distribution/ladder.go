package distribution

import (
	"fmt"

	"github.com/dennisdiepolder/breakroster/internal/grid"
	"github.com/dennisdiepolder/breakroster/internal/types"
)

// Ladder places the i-th recomputed agent of a shift group at the
// configured start slot plus i times the configured increment. Failures
// are per agent; the run never aborts as a whole.
type Ladder struct{}

// Name returns the registry key
func (l *Ladder) Name() string { return StrategyLadder }

// Propose computes ladder frames for every shift group of the roster
func (l *Ladder) Propose(roster []types.ShiftRecord, settings SettingsMap, existing types.Schedule, mode ApplyMode) Outcome {
	var out Outcome
	groups := groupByShift(roster)
	for _, shift := range shiftOrder {
		group := groups[shift]
		if len(group) == 0 {
			continue
		}
		w, _ := shift.Window()
		placeGroup(group, settingsOrDefault(settings, shift), w, existing, mode, &out)
	}
	sortOutcome(&out)
	return out
}

// Staggered runs the same ladder math with a per-run increment that
// spreads the group across every start position able to host a full
// frame. Used when no settings row exists or on explicit request.
type Staggered struct{}

// Name returns the registry key
func (s *Staggered) Name() string { return StrategyStaggered }

// Propose derives the spread increment per shift group, then places like
// the ladder
func (s *Staggered) Propose(roster []types.ShiftRecord, settings SettingsMap, existing types.Schedule, mode ApplyMode) Outcome {
	var out Outcome
	groups := groupByShift(roster)
	for _, shift := range shiftOrder {
		group := groups[shift]
		if len(group) == 0 {
			continue
		}
		st := settingsOrDefault(settings, shift)
		w, _ := shift.Window()
		st.Increment = staggeredIncrement(st, w, agentsToPlace(group, existing, mode))
		placeGroup(group, st, w, existing, mode, &out)
	}
	sortOutcome(&out)
	return out
}

// staggeredIncrement spreads n agents evenly over the usable start
// positions: every slot from the configured start whose full frame still
// fits the window. A single agent needs no spread.
func staggeredIncrement(st types.DistributionSettings, w grid.Window, n int) int {
	if n <= 1 {
		return 0
	}
	span := frameFor(st, 0).span()
	usable := (w.Last - span + 1) - st.HB1StartSlot + 1
	if usable < 1 {
		usable = 1
	}
	inc := (usable - 1) / (n - 1)
	if inc < 1 {
		inc = 1
	}
	return inc
}

// agentsToPlace counts the group members the mode lets us recompute
func agentsToPlace(group []types.ShiftRecord, existing types.Schedule, mode ApplyMode) int {
	if mode == ApplyAllAgents {
		return len(group)
	}
	n := 0
	for _, rec := range group {
		if ex := existing.AssignmentFor(rec.AgentID); ex != nil && len(ex.Slots) > 0 {
			continue
		}
		n++
	}
	return n
}

// placeGroup walks one shift group in its given order. The i-th agent
// being recomputed gets frame i; agents kept because of the apply mode
// consume no ladder position. A frame that leaves the grid or the shift
// window fails that agent and the walk continues.
func placeGroup(group []types.ShiftRecord, st types.DistributionSettings, w grid.Window, existing types.Schedule, mode ApplyMode, out *Outcome) {
	i := 0
	for _, rec := range group {
		var expected int64
		if ex := existing.AssignmentFor(rec.AgentID); ex != nil {
			if mode == ApplyOnlyUnscheduled && len(ex.Slots) > 0 {
				continue
			}
			expected = ex.Revision
		}

		f := frameFor(st, i)
		i++
		if !f.onGrid() {
			out.Failed = append(out.Failed, placementFailure(rec,
				fmt.Sprintf("break frame runs off the grid (second half-break at slot %d)", f.hb2)))
			continue
		}
		if !f.inWindow(w) {
			out.Failed = append(out.Failed, placementFailure(rec,
				fmt.Sprintf("breaks fall outside the %s working window", rec.ShiftType)))
			continue
		}

		out.Assignments = append(out.Assignments, &types.BreakAssignment{
			AgentID:   rec.AgentID,
			Date:      rec.Date,
			ShiftType: rec.ShiftType,
			Slots:     f.slots(),
			Revision:  expected,
		})
	}
}

// overlay builds the full schedule a proposal implies: each roster agent's
// new assignment when one was computed, their stored one otherwise.
func overlay(date string, roster []types.ShiftRecord, existing types.Schedule, proposed []*types.BreakAssignment) types.Schedule {
	newByAgent := make(map[string]*types.BreakAssignment, len(proposed))
	for _, a := range proposed {
		newByAgent[a.AgentID] = a
	}
	s := types.Schedule{Date: date, Roster: roster}
	for _, rec := range roster {
		if a, ok := newByAgent[rec.AgentID]; ok {
			s.Assignments = append(s.Assignments, a)
			continue
		}
		if ex := existing.AssignmentFor(rec.AgentID); ex != nil {
			s.Assignments = append(s.Assignments, ex)
		}
	}
	return s
}
