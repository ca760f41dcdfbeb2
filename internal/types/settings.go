package types

import (
	"fmt"

	"github.com/dennisdiepolder/breakroster/internal/grid"
)

// MinGapMinutes is the domain floor for the rest between two breaks. No
// settings row may configure a smaller gap and no committed schedule may
// go below it.
const MinGapMinutes = 90

// DistributionSettings drives break placement for one shift type. The two
// gap fields are minimum rest minutes (HB1 start to B start, and B end to
// HB2 start); the ladder uses them as exact offsets, validation as floors.
type DistributionSettings struct {
	ShiftType     ShiftType `json:"shiftType"`
	HB1StartSlot  int       `json:"hb1StartSlot"`
	BGapMinutes   int       `json:"bGapMinutes"`
	HB2GapMinutes int       `json:"hb2GapMinutes"`
	Increment     int       `json:"increment"`
}

// Validate enforces the settings invariants
func (d DistributionSettings) Validate() error {
	if !d.ShiftType.Scheduled() {
		return fmt.Errorf("settings for %q: shift type has no breaks", d.ShiftType)
	}
	if !grid.Valid(d.HB1StartSlot) {
		return fmt.Errorf("settings for %s: hb1 start slot %d off grid", d.ShiftType, d.HB1StartSlot)
	}
	if d.BGapMinutes < MinGapMinutes || d.HB2GapMinutes < MinGapMinutes {
		return fmt.Errorf("settings for %s: gaps %d/%d below %d minute minimum",
			d.ShiftType, d.BGapMinutes, d.HB2GapMinutes, MinGapMinutes)
	}
	if d.Increment < 0 {
		return fmt.Errorf("settings for %s: negative increment %d", d.ShiftType, d.Increment)
	}
	return nil
}

// DefaultSettings returns the built-in placement settings for a scheduled
// shift type: first HB1 one hour into the window, 150 minute gaps, ladder
// increment of one slot.
func DefaultSettings(s ShiftType) (DistributionSettings, bool) {
	w, ok := s.Window()
	if !ok {
		return DistributionSettings{}, false
	}
	return DistributionSettings{
		ShiftType:     s,
		HB1StartSlot:  w.First + 4,
		BGapMinutes:   150,
		HB2GapMinutes: 150,
		Increment:     1,
	}, true
}
