package rules

import (
	"fmt"
	"sort"

	"github.com/dennisdiepolder/breakroster/internal/coverage"
	"github.com/dennisdiepolder/breakroster/internal/grid"
	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/rs/zerolog"
)

// Engine evaluates validation rules against a day's schedule
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a rule engine
func NewEngine(logger zerolog.Logger) *Engine {
	return &Engine{log: logger.With().Str("component", "rules").Logger()}
}

// Evaluate runs the two always-on ordering checks, then every active rule
// in ascending priority order. It never short-circuits: the caller always
// receives the complete violation set. settings supplies the per-shift
// minimum gaps; shifts without a row fall back to the domain floor.
func (e *Engine) Evaluate(s types.Schedule, active []Rule, settings map[types.ShiftType]types.DistributionSettings) []types.Violation {
	violations := e.checkOrdering(s, settings)

	rs := make([]Rule, 0, len(active))
	for _, r := range active {
		if r.Active {
			rs = append(rs, r)
		}
	}
	SortRules(rs)

	for _, r := range rs {
		var vs []types.Violation
		var skip string
		switch r.Type {
		case TypeOrdering:
			// ordering is enforced unconditionally above; a configured
			// ordering rule adds nothing
			continue
		case TypeCoverage:
			vs, skip = e.evalCoverage(r, s)
		case TypeTiming:
			vs, skip = e.evalTiming(r, s)
		case TypeDistribution:
			vs, skip = e.evalDistribution(r, s)
		default:
			skip = fmt.Sprintf("unknown rule type %q", r.Type)
		}
		if skip != "" {
			e.log.Warn().Str("rule", r.Name).Str("reason", skip).Msg("rule skipped")
			violations = append(violations, types.Violation{
				Rule:     r.Name,
				Severity: types.SeverityWarning,
				Message:  "rule skipped: " + skip,
			})
			continue
		}
		violations = append(violations, vs...)
	}
	return violations
}

// checkOrdering enforces the physical break invariants per assignment:
// well-formed shapes, HB1 before B before HB2, and the minimum gaps.
// These violations are always error severity.
func (e *Engine) checkOrdering(s types.Schedule, settings map[types.ShiftType]types.DistributionSettings) []types.Violation {
	var out []types.Violation
	for _, asn := range s.Assignments {
		if asn == nil || len(asn.Slots) == 0 {
			continue
		}
		hb1 := asn.KindSlots(types.BreakHalf1)
		b := asn.KindSlots(types.BreakFull)
		hb2 := asn.KindSlots(types.BreakHalf2)
		bWellFormed := len(b) == 2 && b[1] == b[0]+1

		if len(hb1) > 1 {
			out = append(out, orderViolation(asn.AgentID, hb1, "first half-break occupies more than one slot"))
		}
		if len(hb2) > 1 {
			out = append(out, orderViolation(asn.AgentID, hb2, "second half-break occupies more than one slot"))
		}
		if len(b) > 0 && !bWellFormed {
			out = append(out, orderViolation(asn.AgentID, b, "full break must occupy exactly two consecutive slots"))
		}

		if len(hb1) > 0 && len(b) > 0 && hb1[len(hb1)-1] >= b[0] {
			out = append(out, orderViolation(asn.AgentID, append(hb1, b...), "first half-break must end before the full break starts"))
		}
		if len(b) > 0 && len(hb2) > 0 && b[len(b)-1] >= hb2[0] {
			out = append(out, orderViolation(asn.AgentID, append(b, hb2...), "full break must end before the second half-break starts"))
		}
		if len(b) == 0 && len(hb1) > 0 && len(hb2) > 0 && hb1[len(hb1)-1] >= hb2[0] {
			out = append(out, orderViolation(asn.AgentID, append(hb1, hb2...), "first half-break must precede the second"))
		}

		// Gaps are only meaningful on well-formed, correctly ordered pairs;
		// malformed frames are already flagged above.
		bGap, hb2Gap := gapFloor(asn.ShiftType, settings)
		if len(hb1) == 1 && bWellFormed && hb1[0] < b[0] {
			if got := (b[0] - hb1[0]) * grid.SlotMinutes; got < bGap {
				out = append(out, types.Violation{
					Rule:     RuleBreakGap,
					Severity: types.SeverityError,
					AgentID:  asn.AgentID,
					Slots:    grid.Labels([]int{hb1[0], b[0]}),
					Message:  fmt.Sprintf("%d minutes between first half-break and full break, minimum is %d", got, bGap),
				})
			}
		}
		if bWellFormed && len(hb2) == 1 && b[1] < hb2[0] {
			if got := (hb2[0] - (b[1] + 1)) * grid.SlotMinutes; got < hb2Gap {
				out = append(out, types.Violation{
					Rule:     RuleBreakGap,
					Severity: types.SeverityError,
					AgentID:  asn.AgentID,
					Slots:    grid.Labels([]int{b[0], hb2[0]}),
					Message:  fmt.Sprintf("%d minutes between full break and second half-break, minimum is %d", got, hb2Gap),
				})
			}
		}
	}
	return out
}

func orderViolation(agentID string, slots []int, msg string) types.Violation {
	return types.Violation{
		Rule:     RuleBreakOrder,
		Severity: types.SeverityError,
		AgentID:  agentID,
		Slots:    grid.Labels(slots),
		Message:  msg,
	}
}

// gapFloor returns the minimum gap minutes for a shift type: the settings
// row when present, the domain floor otherwise.
func gapFloor(shift types.ShiftType, settings map[types.ShiftType]types.DistributionSettings) (int, int) {
	if st, ok := settings[shift]; ok {
		return st.BGapMinutes, st.HB2GapMinutes
	}
	return types.MinGapMinutes, types.MinGapMinutes
}

// evalCoverage flags slots whose net staffing falls below min_in
func (e *Engine) evalCoverage(r Rule, s types.Schedule) ([]types.Violation, string) {
	minIn, ok := intParam(r.Params, "min_in")
	if !ok || minIn < 0 {
		return nil, "missing or invalid min_in"
	}
	var low []int
	for slot, c := range coverage.Counts(s) {
		if c < minIn {
			low = append(low, slot)
		}
	}
	if len(low) == 0 {
		return nil, ""
	}
	return []types.Violation{{
		Rule:     r.Name,
		Severity: severityFor(r),
		Slots:    grid.Labels(low),
		Message:  fmt.Sprintf("%d slots staffed below %d agents", len(low), minIn),
	}}, ""
}

// evalTiming flags break slots outside the allowed earliest/latest window
func (e *Engine) evalTiming(r Rule, s types.Schedule) ([]types.Violation, string) {
	earliestLabel, ok1 := stringParam(r.Params, "earliest")
	latestLabel, ok2 := stringParam(r.Params, "latest")
	if !ok1 || !ok2 {
		return nil, "missing earliest or latest"
	}
	earliest, err := grid.Parse(earliestLabel)
	if err != nil {
		return nil, fmt.Sprintf("bad earliest %q", earliestLabel)
	}
	latest, err := grid.Parse(latestLabel)
	if err != nil {
		return nil, fmt.Sprintf("bad latest %q", latestLabel)
	}
	if latest < earliest {
		return nil, "latest before earliest"
	}

	var out []types.Violation
	for _, asn := range s.Assignments {
		if asn == nil {
			continue
		}
		var outside []int
		for slot := range asn.Slots {
			if slot < earliest || slot > latest {
				outside = append(outside, slot)
			}
		}
		if len(outside) == 0 {
			continue
		}
		sort.Ints(outside)
		out = append(out, types.Violation{
			Rule:     r.Name,
			Severity: severityFor(r),
			AgentID:  asn.AgentID,
			Slots:    grid.Labels(outside),
			Message:  fmt.Sprintf("breaks outside allowed window %s-%s", earliestLabel, latestLabel),
		})
	}
	return out, ""
}

// evalDistribution flags slots where too many breaks start at once
func (e *Engine) evalDistribution(r Rule, s types.Schedule) ([]types.Violation, string) {
	maxStarts, ok := intParam(r.Params, "max_starts_per_slot")
	if !ok || maxStarts < 1 {
		return nil, "missing or invalid max_starts_per_slot"
	}
	starts := make(map[int]int)
	for _, asn := range s.Assignments {
		if asn == nil {
			continue
		}
		for _, kind := range []types.BreakKind{types.BreakHalf1, types.BreakFull, types.BreakHalf2} {
			if start, found := asn.StartOf(kind); found {
				starts[start]++
			}
		}
	}
	var clustered []int
	for slot, n := range starts {
		if n > maxStarts {
			clustered = append(clustered, slot)
		}
	}
	if len(clustered) == 0 {
		return nil, ""
	}
	sort.Ints(clustered)
	return []types.Violation{{
		Rule:     r.Name,
		Severity: severityFor(r),
		Slots:    grid.Labels(clustered),
		Message:  fmt.Sprintf("%d slots exceed %d simultaneous break starts", len(clustered), maxStarts),
	}}, ""
}

func severityFor(r Rule) types.Severity {
	if r.Blocking {
		return types.SeverityError
	}
	return types.SeverityWarning
}
