package distribution

import (
	"sort"

	"github.com/dennisdiepolder/breakroster/internal/coverage"
	"github.com/dennisdiepolder/breakroster/internal/grid"
	"github.com/dennisdiepolder/breakroster/internal/types"
)

// BalancedCoverage starts from a ladder placement and then walks break
// frames around to flatten the net coverage curve. It is a bounded local
// search, not an optimizer; every tie-break is a total order so identical
// input yields identical output.
type BalancedCoverage struct{}

// Name returns the registry key
func (b *BalancedCoverage) Name() string { return StrategyBalanced }

// balancedRounds bounds the search; each round applies at most one move
const balancedRounds = 64

// balancedMoves is the candidate retiming order: smallest move first,
// earlier direction first on ties. Moving a whole frame preserves its
// internal gaps, so ordering rules survive every move.
var balancedMoves = []int{-1, 1, -2, 2, -3, 3}

// Propose places via the ladder, then improves the worst-staffed slots
func (b *BalancedCoverage) Propose(roster []types.ShiftRecord, settings SettingsMap, existing types.Schedule, mode ApplyMode) Outcome {
	out := (&Ladder{}).Propose(roster, settings, existing, mode)
	if len(out.Assignments) == 0 {
		return out
	}

	date := existing.Date
	if date == "" && len(roster) > 0 {
		date = roster[0].Date
	}
	sched := overlay(date, roster, existing, out.Assignments)
	scheduled := coverage.ScheduledCounts(sched)
	target := meanOverOccupied(coverage.Counts(sched), scheduled)

	windows := make(map[string]grid.Window, len(roster))
	for _, rec := range roster {
		if w, ok := rec.ShiftType.Window(); ok {
			windows[rec.AgentID] = w
		}
	}

	// Only the assignments this run created may move; kept ones are fixed.
	movable := make([]*types.BreakAssignment, len(out.Assignments))
	copy(movable, out.Assignments)
	sort.Slice(movable, func(i, j int) bool { return movable[i].AgentID < movable[j].AgentID })

	for round := 0; round < balancedRounds; round++ {
		net := coverage.Counts(sched)
		if !anyBelowTarget(net, scheduled, target) {
			break
		}
		current := maxAbsDeviation(net, scheduled, target)

		improved := false
		for _, asn := range movable {
			f, ok := frameOf(asn)
			if !ok {
				continue
			}
			w, ok := windows[asn.AgentID]
			if !ok {
				continue
			}
			for _, k := range balancedMoves {
				nf := f.shift(k)
				if !nf.onGrid() || !nf.inWindow(w) {
					continue
				}
				asn.Slots = nf.slots()
				if maxAbsDeviation(coverage.Counts(sched), scheduled, target) < current {
					improved = true
					break
				}
				asn.Slots = f.slots()
			}
			if improved {
				break
			}
		}
		if !improved {
			break
		}
	}

	sortOutcome(&out)
	return out
}

// meanOverOccupied is the average net staffing across slots where at least
// one agent is scheduled. Moving breaks never changes it, so it serves as
// the fixed target of the search.
func meanOverOccupied(net, scheduled []int) float64 {
	sum, n := 0, 0
	for slot, sc := range scheduled {
		if sc == 0 {
			continue
		}
		sum += net[slot]
		n++
	}
	if n == 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func anyBelowTarget(net, scheduled []int, target float64) bool {
	for slot, sc := range scheduled {
		if sc > 0 && float64(net[slot]) < target {
			return true
		}
	}
	return false
}

// maxAbsDeviation measures how far the worst slot sits from the target,
// over occupied slots only
func maxAbsDeviation(net, scheduled []int, target float64) float64 {
	worst := 0.0
	for slot, sc := range scheduled {
		if sc == 0 {
			continue
		}
		d := float64(net[slot]) - target
		if d < 0 {
			d = -d
		}
		if d > worst {
			worst = d
		}
	}
	return worst
}
