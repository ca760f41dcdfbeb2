package distribution

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dennisdiepolder/breakroster/internal/coverage"
	"github.com/dennisdiepolder/breakroster/internal/metrics"
	"github.com/dennisdiepolder/breakroster/internal/rules"
	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ScheduleStore is the subset of storage.Store the service needs
type ScheduleStore interface {
	ListShifts(ctx context.Context, date string) ([]types.ShiftRecord, error)
	ListBreaks(ctx context.Context, date string) ([]*types.BreakAssignment, error)
	WriteBreaks(ctx context.Context, asn *types.BreakAssignment, expectedRevision int64) (int64, error)
	GetSettings(ctx context.Context, shift types.ShiftType) (types.DistributionSettings, error)
}

// RuleSource yields the active rule set
type RuleSource interface {
	Rules() []rules.Rule
}

// Proposal is the preview a distribution run produces. Commit applies it
// through conditional writes; each assignment's Revision records the
// stored state it was computed against, so stale previews are detected.
type Proposal struct {
	ID          string                   `json:"id"`
	Date        string                   `json:"date"`
	Strategy    string                   `json:"strategy"`
	Mode        ApplyMode                `json:"mode"`
	Assignments []*types.BreakAssignment `json:"assignments"`
	Failed      []FailedAgent            `json:"failed,omitempty"`
	Stats       coverage.Stats           `json:"stats"`
	Slots       []coverage.SlotStat      `json:"slots"`
	Violations  []types.Violation        `json:"violations,omitempty"`
	// RosterRevisions pins the shift records of the agents being written,
	// so a shift change between preview and commit is drift too.
	RosterRevisions map[string]int64 `json:"rosterRevisions,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// ProposeParams shapes one preview run. ShiftType and Department filter
// the roster when set; an empty Strategy picks the ladder when every
// shift group has a settings row and the staggered spread otherwise.
type ProposeParams struct {
	Date       string           `json:"date"`
	ShiftType  types.ShiftType  `json:"shiftType,omitempty"`
	Department types.Department `json:"department,omitempty"`
	Strategy   string           `json:"strategy,omitempty"`
	Mode       ApplyMode        `json:"mode,omitempty"`
}

// WriteResult is one agent's outcome of a commit
type WriteResult struct {
	AgentID  string `json:"agentId"`
	Revision int64  `json:"revision,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CommitResult reports what a commit wrote. Writes are per agent; a
// conflict on one agent does not roll back the others.
type CommitResult struct {
	ProposalID   string            `json:"proposalId"`
	Date         string            `json:"date"`
	Written      int               `json:"written"`
	Results      []WriteResult     `json:"results"`
	Acknowledged []types.Violation `json:"acknowledged,omitempty"`
}

// EffectiveSetting is one shift type's active placement settings and
// where they came from
type EffectiveSetting struct {
	types.DistributionSettings
	Source string `json:"source"` // "store" or "default"
}

// Service runs distribution previews, validations and commits
type Service struct {
	store      ScheduleStore
	ruleSource RuleSource
	engine     *rules.Engine
	strategies map[string]Strategy
	logger     zerolog.Logger
}

// NewService creates the distribution service
func NewService(store ScheduleStore, ruleSource RuleSource, engine *rules.Engine, logger zerolog.Logger) *Service {
	return &Service{
		store:      store,
		ruleSource: ruleSource,
		engine:     engine,
		strategies: Strategies(),
		logger:     logger.With().Str("component", "distribution").Logger(),
	}
}

// Propose runs a strategy over the date's roster and returns the preview.
// Nothing is persisted; violations are attached, never fatal here.
func (s *Service) Propose(ctx context.Context, p ProposeParams) (*Proposal, error) {
	if !types.ValidDate(p.Date) {
		return nil, types.InvalidInput("date", "%q is not a valid date", p.Date)
	}
	if p.Mode == "" {
		p.Mode = ApplyOnlyUnscheduled
	}
	if !p.Mode.Valid() {
		return nil, types.InvalidInput("mode", "unknown apply mode %q", p.Mode)
	}
	if p.ShiftType != "" && !p.ShiftType.Valid() {
		return nil, types.InvalidInput("shiftType", "unknown shift type %q", p.ShiftType)
	}

	roster, existing, err := s.loadDay(ctx, p.Date)
	if err != nil {
		return nil, err
	}
	roster = filterRoster(roster, p.ShiftType, p.Department)

	settings, missing, err := s.settingsFor(ctx, roster)
	if err != nil {
		return nil, err
	}

	name := p.Strategy
	if name == "" {
		name = StrategyLadder
		if missing {
			name = StrategyStaggered
		}
	}
	strategy, ok := s.strategies[name]
	if !ok {
		return nil, types.InvalidInput("strategy", "unknown strategy %q", name)
	}

	out := strategy.Propose(roster, settings, existing, p.Mode)
	proposed := overlay(p.Date, roster, existing, out.Assignments)
	counts := coverage.Counts(proposed)

	shiftRevs := make(map[string]int64, len(out.Assignments))
	byAgent := make(map[string]types.ShiftRecord, len(roster))
	for _, rec := range roster {
		byAgent[rec.AgentID] = rec
	}
	for _, asn := range out.Assignments {
		shiftRevs[asn.AgentID] = byAgent[asn.AgentID].Revision
	}

	proposal := &Proposal{
		ID:              uuid.New().String(),
		Date:            p.Date,
		Strategy:        name,
		Mode:            p.Mode,
		Assignments:     out.Assignments,
		Failed:          out.Failed,
		Stats:           coverage.Summarize(counts),
		Slots:           coverage.Report(proposed),
		Violations:      s.engine.Evaluate(proposed, s.ruleSource.Rules(), settings),
		RosterRevisions: shiftRevs,
		CreatedAt:       time.Now().UTC(),
	}

	metrics.DistributionRuns.WithLabelValues(name).Inc()
	metrics.DistributionAgents.WithLabelValues("placed").Add(float64(len(out.Assignments)))
	metrics.DistributionAgents.WithLabelValues("failed").Add(float64(len(out.Failed)))
	for _, v := range proposal.Violations {
		metrics.DistributionViolations.WithLabelValues(string(v.Severity)).Inc()
	}

	s.logger.Info().
		Str("date", p.Date).
		Str("strategy", name).
		Str("mode", string(p.Mode)).
		Int("placed", len(out.Assignments)).
		Int("failed", len(out.Failed)).
		Int("violations", len(proposal.Violations)).
		Msg("distribution proposed")

	return proposal, nil
}

// Commit persists a proposal through conditional writes. The stored state
// must still match what the proposal was computed against; drift rejects
// the whole commit as a conflict before anything is written. Blocking
// violations abort unless ackWarnings downgrades them; the physical
// ordering rules can never be acknowledged away.
func (s *Service) Commit(ctx context.Context, p *Proposal, ackWarnings bool) (*CommitResult, error) {
	if p == nil || !types.ValidDate(p.Date) {
		return nil, types.InvalidInput("proposal", "missing or invalid proposal date")
	}
	if len(p.Assignments) == 0 {
		return nil, types.InvalidInput("proposal", "nothing to commit")
	}

	roster, existing, err := s.loadDay(ctx, p.Date)
	if err != nil {
		return nil, err
	}

	// Stale-preview check: every assignment must still see the break
	// revision it was computed against, and the agent's shift record must
	// not have moved since the preview.
	currentShift := make(map[string]types.ShiftRecord, len(roster))
	for _, rec := range roster {
		currentShift[rec.AgentID] = rec
	}
	for _, asn := range p.Assignments {
		var current int64
		if ex := existing.AssignmentFor(asn.AgentID); ex != nil {
			current = ex.Revision
		}
		if current != asn.Revision {
			metrics.CommitWrites.WithLabelValues("stale").Inc()
			return nil, fmt.Errorf("stale preview: breaks for agent %s changed since proposal: %w",
				asn.AgentID, types.ErrConflict)
		}
		if want, pinned := p.RosterRevisions[asn.AgentID]; pinned {
			rec, onRoster := currentShift[asn.AgentID]
			if !onRoster || rec.Revision != want {
				metrics.CommitWrites.WithLabelValues("stale").Inc()
				return nil, fmt.Errorf("stale preview: shift for agent %s changed since proposal: %w",
					asn.AgentID, types.ErrConflict)
			}
		}
	}

	settings, _, err := s.settingsFor(ctx, roster)
	if err != nil {
		return nil, err
	}

	proposed := overlay(p.Date, roster, existing, p.Assignments)
	violations := s.engine.Evaluate(proposed, s.ruleSource.Rules(), settings)

	var blocking, acknowledged []types.Violation
	for _, v := range violations {
		if v.Severity != types.SeverityError {
			continue
		}
		if ackWarnings && v.Rule != rules.RuleBreakOrder && v.Rule != rules.RuleBreakGap {
			acknowledged = append(acknowledged, v)
			continue
		}
		blocking = append(blocking, v)
	}
	if len(blocking) > 0 {
		return nil, &types.ValidationError{Violations: blocking}
	}

	result := &CommitResult{
		ProposalID:   p.ID,
		Date:         p.Date,
		Results:      make([]WriteResult, 0, len(p.Assignments)),
		Acknowledged: acknowledged,
	}
	for _, asn := range p.Assignments {
		rev, err := s.store.WriteBreaks(ctx, asn, asn.Revision)
		if err != nil {
			outcome := "error"
			if errors.Is(err, types.ErrConflict) {
				outcome = "conflict"
			}
			metrics.CommitWrites.WithLabelValues(outcome).Inc()
			result.Results = append(result.Results, WriteResult{AgentID: asn.AgentID, Error: err.Error()})
			s.logger.Warn().Err(err).Str("agent_id", asn.AgentID).Str("date", p.Date).Msg("break write failed")
			continue
		}
		metrics.CommitWrites.WithLabelValues("written").Inc()
		result.Written++
		result.Results = append(result.Results, WriteResult{AgentID: asn.AgentID, Revision: rev})
	}

	s.logger.Info().
		Str("date", p.Date).
		Str("proposal_id", p.ID).
		Int("written", result.Written).
		Int("agents", len(p.Assignments)).
		Bool("ack_warnings", ackWarnings).
		Msg("distribution committed")

	return result, nil
}

// Validate evaluates an arbitrary schedule against the active rule set
func (s *Service) Validate(ctx context.Context, sched types.Schedule) ([]types.Violation, error) {
	if !types.ValidDate(sched.Date) {
		return nil, types.InvalidInput("date", "%q is not a valid date", sched.Date)
	}
	settings, _, err := s.settingsFor(ctx, sched.Roster)
	if err != nil {
		return nil, err
	}
	return s.engine.Evaluate(sched, s.ruleSource.Rules(), settings), nil
}

// EffectiveSettings resolves the active settings for every scheduled
// shift type, falling back to the built-in defaults
func (s *Service) EffectiveSettings(ctx context.Context) ([]EffectiveSetting, error) {
	out := make([]EffectiveSetting, 0, len(shiftOrder))
	for _, shift := range shiftOrder {
		st, err := s.store.GetSettings(ctx, shift)
		switch {
		case err == nil:
			out = append(out, EffectiveSetting{DistributionSettings: st, Source: "store"})
		case errors.Is(err, types.ErrNotFound):
			def, _ := types.DefaultSettings(shift)
			out = append(out, EffectiveSetting{DistributionSettings: def, Source: "default"})
		default:
			return nil, fmt.Errorf("load settings for %s: %w", shift, err)
		}
	}
	return out, nil
}

// loadDay reads the roster and stored assignments for a date, sorted into
// the stable name order the strategies expect
func (s *Service) loadDay(ctx context.Context, date string) ([]types.ShiftRecord, types.Schedule, error) {
	roster, err := s.store.ListShifts(ctx, date)
	if err != nil {
		return nil, types.Schedule{}, fmt.Errorf("load roster for %s: %w", date, err)
	}
	sort.SliceStable(roster, func(i, j int) bool {
		if roster[i].AgentName != roster[j].AgentName {
			return roster[i].AgentName < roster[j].AgentName
		}
		return roster[i].AgentID < roster[j].AgentID
	})

	breaks, err := s.store.ListBreaks(ctx, date)
	if err != nil {
		return nil, types.Schedule{}, fmt.Errorf("load breaks for %s: %w", date, err)
	}
	return roster, types.Schedule{Date: date, Roster: roster, Assignments: breaks}, nil
}

// settingsFor loads the settings rows for the shift types present in the
// roster. missing reports whether any scheduled group had no row.
func (s *Service) settingsFor(ctx context.Context, roster []types.ShiftRecord) (SettingsMap, bool, error) {
	settings := make(SettingsMap)
	missing := false
	seen := make(map[types.ShiftType]bool)
	for _, rec := range roster {
		if !rec.ShiftType.Scheduled() || seen[rec.ShiftType] {
			continue
		}
		seen[rec.ShiftType] = true
		st, err := s.store.GetSettings(ctx, rec.ShiftType)
		if errors.Is(err, types.ErrNotFound) {
			missing = true
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("load settings for %s: %w", rec.ShiftType, err)
		}
		settings[rec.ShiftType] = st
	}
	return settings, missing, nil
}

// filterRoster narrows a roster to the requested shift type and department
func filterRoster(roster []types.ShiftRecord, shift types.ShiftType, dept types.Department) []types.ShiftRecord {
	if shift == "" && dept == "" {
		return roster
	}
	out := make([]types.ShiftRecord, 0, len(roster))
	for _, rec := range roster {
		if shift != "" && rec.ShiftType != shift {
			continue
		}
		if dept != "" && rec.Department != dept {
			continue
		}
		out = append(out, rec)
	}
	return out
}
