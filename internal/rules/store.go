package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	yaml "go.yaml.in/yaml/v3"
)

// ruleFile is the on-disk document shape:
//
//	rules:
//	  - name: min-coverage
//	    type: coverage
//	    active: true
//	    blocking: true
//	    priority: 10
//	    params:
//	      min_in: 8
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Store holds the active rule set, loaded from a YAML file and hot
// reloaded on change. A failed reload keeps the last good set active.
type Store struct {
	path string
	log  zerolog.Logger

	mu    sync.RWMutex
	rules []Rule
}

// NewStore creates a store seeded with the built-in default rules. Call
// Load to replace them from the configured file.
func NewStore(path string, logger zerolog.Logger) *Store {
	return &Store{
		path:  path,
		log:   logger.With().Str("component", "rules-store").Logger(),
		rules: DefaultRules(),
	}
}

// DefaultRules is the rule set used when no rules file is configured
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "min-coverage",
			Type:     TypeCoverage,
			Active:   true,
			Blocking: true,
			Priority: 10,
			Params:   map[string]any{"min_in": 8},
		},
		{
			Name:     "break-window",
			Type:     TypeTiming,
			Active:   true,
			Blocking: false,
			Priority: 20,
			Params:   map[string]any{"earliest": "10:00", "latest": "19:30"},
		},
		{
			Name:     "start-clustering",
			Type:     TypeDistribution,
			Active:   true,
			Blocking: false,
			Priority: 30,
			Params:   map[string]any{"max_starts_per_slot": 4},
		},
	}
}

// Load reads and validates the rule file, replacing the active set
func (s *Store) Load() error {
	rs, err := parseRuleFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.rules = rs
	s.mu.Unlock()
	s.log.Info().Int("rules", len(rs)).Str("path", s.path).Msg("rule set loaded")
	return nil
}

func parseRuleFile(path string) ([]Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var doc ruleFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	seen := make(map[string]bool, len(doc.Rules))
	for _, r := range doc.Rules {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("duplicate rule %q", r.Name)
		}
		seen[r.Name] = true
	}
	return doc.Rules, nil
}

// Rules returns a copy of the active rule set
func (s *Store) Rules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Watch reloads the rule set when the file changes, until ctx is
// cancelled. The directory is watched rather than the file so editors
// that write-and-rename are still seen. Reload failures are logged and
// the previous set stays active.
func (s *Store) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("rules watcher: %w", err)
	}
	base := filepath.Base(s.path)

	// debounce so partial writes settle before parsing
	var timerMu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(200*time.Millisecond, func() {
			if err := s.Load(); err != nil {
				s.log.Warn().Err(err).Msg("rule reload failed, keeping previous set")
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Base(ev.Name), base) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn().Err(werr).Msg("rules watcher error")
		}
	}
}
