// Package sweep re-checks stored break assignments against the roster on a
// cron schedule. It walks a window of upcoming dates and runs the
// invalidation check for every shift record, so shift changes that arrived
// outside the API (roster imports, manual fixes) still surface as warnings.
package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/dennisdiepolder/breakroster/internal/metrics"
	"github.com/dennisdiepolder/breakroster/internal/types"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Store is the subset of storage.Store the sweeper reads
type Store interface {
	ListShifts(ctx context.Context, date string) ([]types.ShiftRecord, error)
}

// Checker flags break assignments that no longer match a shift record
type Checker interface {
	CheckForInvalidation(ctx context.Context, agentID, date string, current types.ShiftType) (*types.Warning, error)
}

// Config controls the sweep cadence. An empty Schedule disables the sweep;
// Horizon is the number of days covered per pass, today inclusive.
type Config struct {
	Schedule string
	Horizon  int
}

// Summary reports one sweep pass
type Summary struct {
	Dates   int `json:"dates"`
	Checked int `json:"checked"`
	Flagged int `json:"flagged"`
}

// Sweeper schedules and runs invalidation passes
type Sweeper struct {
	store   Store
	checker Checker
	cfg     Config
	cron    *cron.Cron
	logger  zerolog.Logger
	now     func() time.Time
}

// NewSweeper creates a sweeper; call Start to schedule it.
func NewSweeper(store Store, checker Checker, cfg Config, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		store:   store,
		checker: checker,
		cfg:     cfg,
		cron:    cron.New(),
		logger:  logger.With().Str("component", "sweep").Logger(),
		now:     time.Now,
	}
}

// Start registers the sweep on its cron schedule. With no schedule
// configured the sweeper stays idle and Start is a no-op.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.cfg.Schedule == "" {
		s.logger.Info().Msg("invalidation sweep disabled")
		return nil
	}
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Run(ctx); err != nil {
			s.logger.Error().Err(err).Msg("invalidation sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.cfg.Schedule).
		Int("horizon_days", s.cfg.Horizon).
		Msg("invalidation sweep scheduled")
	return nil
}

// Stop halts the schedule and waits for a running pass to finish
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Run executes one pass over the configured date window and reports what
// it checked. Individual check failures are logged and skipped so one bad
// record cannot stall the rest of the pass.
func (s *Sweeper) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	start := s.now().UTC()
	began := time.Now()

	horizon := s.cfg.Horizon
	if horizon <= 0 {
		horizon = 1
	}
	for i := 0; i < horizon; i++ {
		date := start.AddDate(0, 0, i).Format(types.DateFormat)
		recs, err := s.store.ListShifts(ctx, date)
		if err != nil {
			return sum, fmt.Errorf("sweep %s: %w", date, err)
		}
		sum.Dates++
		for _, rec := range recs {
			w, err := s.checker.CheckForInvalidation(ctx, rec.AgentID, date, rec.ShiftType)
			if err != nil {
				s.logger.Warn().
					Err(err).
					Str("agent_id", rec.AgentID).
					Str("date", date).
					Msg("invalidation check failed")
				continue
			}
			sum.Checked++
			if w != nil {
				sum.Flagged++
			}
		}
	}

	metrics.SweepDuration.Observe(time.Since(began).Seconds())
	s.logger.Info().
		Int("dates", sum.Dates).
		Int("checked", sum.Checked).
		Int("flagged", sum.Flagged).
		Dur("took", time.Since(began)).
		Msg("invalidation sweep complete")
	return sum, nil
}
