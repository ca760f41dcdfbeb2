package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func writeRules(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules file: %v", err)
	}
	return path
}

func TestStoreLoad(t *testing.T) {
	path := writeRules(t, t.TempDir(), `
rules:
  - name: min-coverage
    type: coverage
    active: true
    blocking: true
    priority: 10
    params:
      min_in: 6
  - name: break-window
    type: timing
    active: false
    blocking: false
    priority: 20
    params:
      earliest: "10:00"
      latest: "19:00"
`)

	s := NewStore(path, zerolog.Nop())
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	rs := s.Rules()
	if len(rs) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rs))
	}
	if rs[0].Name != "min-coverage" || rs[0].Type != TypeCoverage {
		t.Errorf("unexpected first rule: %+v", rs[0])
	}
	if got, ok := intParam(rs[0].Params, "min_in"); !ok || got != 6 {
		t.Errorf("expected min_in 6, got %d (ok=%v)", got, ok)
	}
	if rs[1].Active {
		t.Error("expected break-window to be inactive")
	}
}

func TestStoreKeepsLastGoodSetOnBadReload(t *testing.T) {
	dir := t.TempDir()
	path := writeRules(t, dir, `
rules:
  - name: min-coverage
    type: coverage
    active: true
    blocking: true
    priority: 10
`)

	s := NewStore(path, zerolog.Nop())
	if err := s.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	writeRules(t, dir, `
rules:
  - name: ""
    type: coverage
`)
	if err := s.Load(); err == nil {
		t.Fatal("expected error for rule without name")
	}

	rs := s.Rules()
	if len(rs) != 1 || rs[0].Name != "min-coverage" {
		t.Errorf("expected previous set to survive failed reload, got %+v", rs)
	}
}

func TestStoreRejectsUnknownTypeAndDuplicates(t *testing.T) {
	dir := t.TempDir()

	s := NewStore(writeRules(t, dir, `
rules:
  - name: weird
    type: astrology
`), zerolog.Nop())
	if err := s.Load(); err == nil {
		t.Error("expected error for unknown rule type")
	}

	s = NewStore(writeRules(t, dir, `
rules:
  - name: twice
    type: coverage
  - name: twice
    type: timing
`), zerolog.Nop())
	if err := s.Load(); err == nil {
		t.Error("expected error for duplicate rule name")
	}
}

func TestDefaultRulesAreValid(t *testing.T) {
	s := NewStore("", zerolog.Nop())
	rs := s.Rules()
	if len(rs) == 0 {
		t.Fatal("expected built-in defaults")
	}
	for _, r := range rs {
		if err := r.Validate(); err != nil {
			t.Errorf("default rule invalid: %v", err)
		}
	}
}
