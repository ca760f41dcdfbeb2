// Package rules evaluates configurable validation rules against a day's
// break schedule. Two ordering invariants run on every evaluation and
// cannot be configured away; everything else is data-driven from the rule
// set owned by workforce management.
package rules

import (
	"fmt"
	"sort"
)

// Type selects the evaluation behavior of a rule
type Type string

const (
	TypeOrdering     Type = "ordering"
	TypeCoverage     Type = "coverage"
	TypeTiming       Type = "timing"
	TypeDistribution Type = "distribution"
)

// Names of the two always-on rules. Strategies reference these when they
// reject an agent during placement.
const (
	RuleBreakOrder = "break_order"
	RuleBreakGap   = "break_gap"
)

// Rule is one configurable predicate. Params is free-form per type; each
// evaluator reads the keys it knows and skips the rule with a warning
// violation when they are missing or malformed.
type Rule struct {
	Name     string         `yaml:"name" json:"name"`
	Type     Type           `yaml:"type" json:"type"`
	Params   map[string]any `yaml:"params" json:"params,omitempty"`
	Active   bool           `yaml:"active" json:"active"`
	Blocking bool           `yaml:"blocking" json:"blocking"`
	Priority int            `yaml:"priority" json:"priority"`
}

// Validate checks the structural fields. Param contents are deliberately
// not checked here; bad params degrade to a warning at evaluation time.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule without name")
	}
	switch r.Type {
	case TypeOrdering, TypeCoverage, TypeTiming, TypeDistribution:
	default:
		return fmt.Errorf("rule %s: unknown type %q", r.Name, r.Type)
	}
	return nil
}

// SortRules orders rules by ascending priority, name breaking ties, so
// evaluation order is deterministic.
func SortRules(rs []Rule) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Priority != rs[j].Priority {
			return rs[i].Priority < rs[j].Priority
		}
		return rs[i].Name < rs[j].Name
	})
}

// intParam reads an integer param, tolerating the numeric types YAML and
// JSON decoders produce.
func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		if n == float64(int(n)) {
			return int(n), true
		}
	}
	return 0, false
}

func stringParam(params map[string]any, key string) (string, bool) {
	v, ok := params[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
