// Package grid defines the interval axis every break schedule shares: one
// day split into 48 slots of 15 minutes, 09:00 through 20:45. Slot indices
// are the contract throughout the service; wall-clock labels are derived.
package grid

import (
	"errors"
	"fmt"
	"time"
)

const (
	// SlotCount is the number of 15-minute columns in a day.
	SlotCount = 48

	// SlotMinutes is the width of one column.
	SlotMinutes = 15

	startHour = 9
)

// ErrOffGrid is returned for slot indices or labels outside the day axis.
var ErrOffGrid = errors.New("off grid")

// Valid reports whether slot lies on the grid.
func Valid(slot int) bool { return slot >= 0 && slot < SlotCount }

// Clamp pins slot into [0, SlotCount-1].
func Clamp(slot int) int {
	if slot < 0 {
		return 0
	}
	if slot >= SlotCount {
		return SlotCount - 1
	}
	return slot
}

// Label formats a slot index as the wall-clock start of its column,
// e.g. Label(0) == "09:00", Label(4) == "10:00".
func Label(slot int) string {
	mins := slot * SlotMinutes
	return fmt.Sprintf("%02d:%02d", startHour+mins/60, mins%60)
}

// Labels maps slots through Label, preserving order.
func Labels(slots []int) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = Label(s)
	}
	return out
}

// Parse maps a wall-clock label back to its slot index. The label must sit
// exactly on a column boundary inside the day.
func Parse(label string) (int, error) {
	t, err := time.Parse("15:04", label)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", label, err)
	}
	mins := (t.Hour()-startHour)*60 + t.Minute()
	if mins < 0 || mins%SlotMinutes != 0 {
		return 0, fmt.Errorf("%q: %w", label, ErrOffGrid)
	}
	slot := mins / SlotMinutes
	if slot >= SlotCount {
		return 0, fmt.Errorf("%q: %w", label, ErrOffGrid)
	}
	return slot, nil
}

// Span returns the n consecutive slots starting at start, or ErrOffGrid if
// any of them leaves the grid.
func Span(start, n int) ([]int, error) {
	if n < 0 || !Valid(start) || !Valid(start+n-1) {
		return nil, fmt.Errorf("span %d+%d: %w", start, n, ErrOffGrid)
	}
	slots := make([]int, n)
	for i := range slots {
		slots[i] = start + i
	}
	return slots, nil
}

// Window is an inclusive slot range, typically an agent's working hours.
type Window struct {
	First int
	Last  int
}

// Contains reports whether slot falls inside the window.
func (w Window) Contains(slot int) bool { return slot >= w.First && slot <= w.Last }

// Fits reports whether the n-slot span starting at start stays inside the
// window.
func (w Window) Fits(start, n int) bool {
	return start >= w.First && start+n-1 <= w.Last
}

// Len is the number of slots in the window.
func (w Window) Len() int { return w.Last - w.First + 1 }
