// Package distribution computes break placements for a day's roster and
// carries them from preview to committed storage. Strategies are pure and
// deterministic; all persistence goes through conditional writes.
package distribution

import (
	"sort"

	"github.com/dennisdiepolder/breakroster/internal/grid"
	"github.com/dennisdiepolder/breakroster/internal/rules"
	"github.com/dennisdiepolder/breakroster/internal/types"
)

// ApplyMode controls which agents a run recomputes
type ApplyMode string

const (
	// ApplyOnlyUnscheduled leaves agents with an existing assignment untouched
	ApplyOnlyUnscheduled ApplyMode = "only_unscheduled"
	// ApplyAllAgents recomputes every eligible agent, discarding prior breaks
	ApplyAllAgents ApplyMode = "all_agents"
)

// Valid reports whether m is a defined apply mode
func (m ApplyMode) Valid() bool {
	return m == ApplyOnlyUnscheduled || m == ApplyAllAgents
}

// FailedAgent is one agent a strategy could not place
type FailedAgent struct {
	AgentID string `json:"agentId"`
	Name    string `json:"name"`
	Reason  string `json:"reason"`
	Rule    string `json:"rule"`
}

// Outcome is a strategy's placement result: the newly computed assignments
// plus the agents that could not be placed. Assignments untouched because
// of the apply mode appear in neither list.
type Outcome struct {
	Assignments []*types.BreakAssignment
	Failed      []FailedAgent
}

// SettingsMap holds the effective placement settings per shift type
type SettingsMap map[types.ShiftType]types.DistributionSettings

// Strategy places breaks for the eligible agents of a roster
type Strategy interface {
	Name() string
	Propose(roster []types.ShiftRecord, settings SettingsMap, existing types.Schedule, mode ApplyMode) Outcome
}

// Strategy names accepted by propose calls
const (
	StrategyLadder    = "ladder"
	StrategyStaggered = "staggered"
	StrategyBalanced  = "balanced"
)

// Strategies returns the registry of built-in strategies keyed by name
func Strategies() map[string]Strategy {
	return map[string]Strategy{
		StrategyLadder:    &Ladder{},
		StrategyStaggered: &Staggered{},
		StrategyBalanced:  &BalancedCoverage{},
	}
}

// frame is the slot quadruple of one agent's breaks: HB1, the two slots of
// B, and HB2. All placement math moves frames as a whole so the internal
// gaps survive every operation.
type frame struct {
	hb1 int
	b   int // first slot of the full break; second is b+1
	hb2 int
}

// frameFor computes the ladder frame for position i under the settings.
// Only the HB1 start is clamped to the grid; later checks decide whether
// the frame actually fits.
func frameFor(st types.DistributionSettings, i int) frame {
	hb1 := grid.Clamp(st.HB1StartSlot + i*st.Increment)
	b := hb1 + slotsFromMinutes(st.BGapMinutes)
	hb2 := b + 2 + slotsFromMinutes(st.HB2GapMinutes)
	return frame{hb1: hb1, b: b, hb2: hb2}
}

// slotsFromMinutes converts a gap in minutes to whole grid slots, rounding up
func slotsFromMinutes(min int) int {
	return (min + grid.SlotMinutes - 1) / grid.SlotMinutes
}

// span is the total slot count from HB1 through HB2 inclusive
func (f frame) span() int { return f.hb2 - f.hb1 + 1 }

// shift returns the frame moved k slots (negative moves earlier)
func (f frame) shift(k int) frame {
	return frame{hb1: f.hb1 + k, b: f.b + k, hb2: f.hb2 + k}
}

// onGrid reports whether every occupied slot is on the day axis
func (f frame) onGrid() bool {
	return grid.Valid(f.hb1) && grid.Valid(f.b) && grid.Valid(f.b+1) && grid.Valid(f.hb2)
}

// inWindow reports whether every occupied slot falls inside w
func (f frame) inWindow(w grid.Window) bool {
	return w.Contains(f.hb1) && w.Contains(f.b) && w.Contains(f.b+1) && w.Contains(f.hb2)
}

// slots materializes the frame as an assignment slot map
func (f frame) slots() map[int]types.BreakKind {
	return map[int]types.BreakKind{
		f.hb1:   types.BreakHalf1,
		f.b:     types.BreakFull,
		f.b + 1: types.BreakFull,
		f.hb2:   types.BreakHalf2,
	}
}

// frameOf reads an assignment back into a frame. ok is false when the
// assignment is not a well-formed single frame.
func frameOf(a *types.BreakAssignment) (frame, bool) {
	hb1, ok1 := a.StartOf(types.BreakHalf1)
	b, ok2 := a.StartOf(types.BreakFull)
	hb2, ok3 := a.StartOf(types.BreakHalf2)
	if !ok1 || !ok2 || !ok3 {
		return frame{}, false
	}
	if a.SlotsOf(types.BreakHalf1) != 1 || a.SlotsOf(types.BreakFull) != 2 || a.SlotsOf(types.BreakHalf2) != 1 {
		return frame{}, false
	}
	if !a.OnBreak(b + 1) {
		return frame{}, false
	}
	return frame{hb1: hb1, b: b, hb2: hb2}, true
}

// groupByShift splits a roster into its scheduled shift groups, preserving
// the incoming order inside each group. OFF agents are not eligible and
// are dropped here.
func groupByShift(roster []types.ShiftRecord) map[types.ShiftType][]types.ShiftRecord {
	groups := make(map[types.ShiftType][]types.ShiftRecord)
	for _, rec := range roster {
		if !rec.ShiftType.Scheduled() {
			continue
		}
		groups[rec.ShiftType] = append(groups[rec.ShiftType], rec)
	}
	return groups
}

// shiftOrder iterates groups deterministically: AM, BET, PM
var shiftOrder = []types.ShiftType{types.ShiftAM, types.ShiftBET, types.ShiftPM}

// settingsOrDefault resolves the effective settings for a shift type
func settingsOrDefault(settings SettingsMap, shift types.ShiftType) types.DistributionSettings {
	if st, ok := settings[shift]; ok {
		return st
	}
	st, _ := types.DefaultSettings(shift)
	return st
}

// sortOutcome fixes the output order: assignments by agent ID, failures by
// agent ID. Strategies are deterministic end to end.
func sortOutcome(o *Outcome) {
	sort.Slice(o.Assignments, func(i, j int) bool { return o.Assignments[i].AgentID < o.Assignments[j].AgentID })
	sort.Slice(o.Failed, func(i, j int) bool { return o.Failed[i].AgentID < o.Failed[j].AgentID })
}

// placementFailure labels the blocking rule for a frame that does not fit
func placementFailure(rec types.ShiftRecord, reason string) FailedAgent {
	return FailedAgent{
		AgentID: rec.AgentID,
		Name:    rec.AgentName,
		Reason:  reason,
		Rule:    rules.RuleBreakOrder,
	}
}
