package types

import (
	"sort"
	"time"

	"github.com/dennisdiepolder/breakroster/internal/grid"
)

// ShiftType represents the shift an agent is scheduled on for a date
type ShiftType string

const (
	ShiftAM  ShiftType = "AM"
	ShiftPM  ShiftType = "PM"
	ShiftBET ShiftType = "BET"
	ShiftOff ShiftType = "OFF"
)

// AllShiftTypes returns the defined shift types, scheduled ones first
var AllShiftTypes = []ShiftType{ShiftAM, ShiftBET, ShiftPM, ShiftOff}

// Scheduled reports whether the shift type puts the agent on the floor
func (s ShiftType) Scheduled() bool {
	return s == ShiftAM || s == ShiftPM || s == ShiftBET
}

// Valid reports whether s is one of the defined shift types
func (s ShiftType) Valid() bool {
	switch s {
	case ShiftAM, ShiftPM, ShiftBET, ShiftOff:
		return true
	}
	return false
}

// Window returns the inclusive slot range the shift occupies on the day
// grid (AM 09:00-17:00, BET 11:00-19:00, PM 13:00-21:00). ok is false for
// OFF and unknown shift types.
func (s ShiftType) Window() (grid.Window, bool) {
	switch s {
	case ShiftAM:
		return grid.Window{First: 0, Last: 31}, true
	case ShiftBET:
		return grid.Window{First: 8, Last: 39}, true
	case ShiftPM:
		return grid.Window{First: 16, Last: 47}, true
	}
	return grid.Window{}, false
}

// Department represents different call center departments
type Department string

const (
	DeptSales     Department = "sales"
	DeptSupport   Department = "support"
	DeptTechnical Department = "technical"
	DeptRetention Department = "retention"
)

// BreakKind identifies one of the three break slots of a shift
type BreakKind string

const (
	BreakHalf1 BreakKind = "HB1" // first half-break, one slot
	BreakFull  BreakKind = "B"   // full break, two consecutive slots
	BreakHalf2 BreakKind = "HB2" // second half-break, one slot
)

// SlotsFor returns how many grid slots the break kind occupies
func (k BreakKind) SlotsFor() int {
	if k == BreakFull {
		return 2
	}
	return 1
}

// DateFormat is the canonical date key layout used across the store
const DateFormat = "2006-01-02"

// ValidDate reports whether s is a well-formed YYYY-MM-DD date
func ValidDate(s string) bool {
	_, err := time.Parse(DateFormat, s)
	return err == nil
}

// Agent is a scheduled employee, immutable for the duration of one
// distribution run
type Agent struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Department Department `json:"department"`
	ShiftType  ShiftType  `json:"shiftType"`
}

// ShiftRecord is one agent's shift assignment for a date. Revision is the
// store's conditional-write token for the record.
type ShiftRecord struct {
	AgentID    string     `json:"agentId"`
	AgentName  string     `json:"agentName"`
	Date       string     `json:"date"`
	Department Department `json:"department"`
	ShiftType  ShiftType  `json:"shiftType"`
	Revision   int64      `json:"revision"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// BreakAssignment maps occupied grid slots to break kinds for one
// (agent, date). Slots not present are implicitly working. ShiftType records
// the shift the breaks were computed for, so later shift changes can be
// detected. Revision guards conditional writes; 0 means "not yet stored".
type BreakAssignment struct {
	AgentID   string            `json:"agentId"`
	Date      string            `json:"date"`
	ShiftType ShiftType         `json:"shiftType"`
	Slots     map[int]BreakKind `json:"slots"`
	Revision  int64             `json:"revision"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// StartOf returns the lowest slot occupied by the given break kind
func (a *BreakAssignment) StartOf(kind BreakKind) (int, bool) {
	start, found := 0, false
	for slot, k := range a.Slots {
		if k != kind {
			continue
		}
		if !found || slot < start {
			start = slot
			found = true
		}
	}
	return start, found
}

// SlotsOf returns how many slots the given kind occupies in the assignment
func (a *BreakAssignment) SlotsOf(kind BreakKind) int {
	n := 0
	for _, k := range a.Slots {
		if k == kind {
			n++
		}
	}
	return n
}

// KindSlots returns the slots the given kind occupies, in ascending order
func (a *BreakAssignment) KindSlots(kind BreakKind) []int {
	var out []int
	for slot, k := range a.Slots {
		if k == kind {
			out = append(out, slot)
		}
	}
	sort.Ints(out)
	return out
}

// OnBreak reports whether the agent is away from the floor at the slot
func (a *BreakAssignment) OnBreak(slot int) bool {
	if a == nil {
		return false
	}
	_, ok := a.Slots[slot]
	return ok
}

// Clone returns a deep copy so previews can be mutated freely
func (a *BreakAssignment) Clone() *BreakAssignment {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Slots = make(map[int]BreakKind, len(a.Slots))
	for s, k := range a.Slots {
		cp.Slots[s] = k
	}
	return &cp
}

// Schedule is the evaluation input shared by the rule engine and the
// distribution strategies: the roster for a date plus the break assignments
// laid over it.
type Schedule struct {
	Date        string             `json:"date"`
	Roster      []ShiftRecord      `json:"roster"`
	Assignments []*BreakAssignment `json:"assignments"`
}

// AssignmentFor returns the assignment for an agent, or nil
func (s *Schedule) AssignmentFor(agentID string) *BreakAssignment {
	for _, a := range s.Assignments {
		if a != nil && a.AgentID == agentID {
			return a
		}
	}
	return nil
}

// ShiftOf returns the rostered shift type for an agent, or OFF when the
// agent is not on the roster
func (s *Schedule) ShiftOf(agentID string) ShiftType {
	for _, r := range s.Roster {
		if r.AgentID == agentID {
			return r.ShiftType
		}
	}
	return ShiftOff
}

// Severity classifies a rule violation
type Severity string

const (
	SeverityError   Severity = "error"   // blocks a commit
	SeverityWarning Severity = "warning" // attached to results, never blocks
)

// Violation is one rule finding against a schedule. Ephemeral: produced per
// evaluation call and never persisted.
type Violation struct {
	Rule     string   `json:"rule"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	AgentID  string   `json:"agentId,omitempty"`
	Slots    []string `json:"slots,omitempty"`
}

// HasBlocking reports whether any violation in the set is error severity
func HasBlocking(vs []Violation) bool {
	for _, v := range vs {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

// WarningKind classifies a persisted scheduling advisory
type WarningKind string

const (
	WarningShiftChanged  WarningKind = "shift_changed"
	WarningBreaksCleared WarningKind = "breaks_cleared"
	WarningSwapPending   WarningKind = "swap_pending"
)

// Warning is a persisted, dismissible advisory that an agent's breaks no
// longer match the shift they were computed for.
type Warning struct {
	ID           string      `json:"id"`
	AgentID      string      `json:"agentId"`
	Date         string      `json:"date"`
	Kind         WarningKind `json:"kind"`
	OldShiftType ShiftType   `json:"oldShiftType"`
	NewShiftType ShiftType   `json:"newShiftType"`
	Resolved     bool        `json:"resolved"`
	CreatedAt    time.Time   `json:"createdAt"`
}

// LeaveBalance is an agent's remaining leave allowance in days
type LeaveBalance struct {
	AgentID   string    `json:"agentId"`
	Days      int       `json:"days"`
	UpdatedAt time.Time `json:"updatedAt"`
}
