// Package coverage aggregates per-slot staffing from a day's schedule. An
// agent counts toward a slot when the slot lies in their shift window and
// no break of theirs occupies it.
package coverage

import (
	"github.com/dennisdiepolder/breakroster/internal/grid"
	"github.com/dennisdiepolder/breakroster/internal/types"
)

// Level classifies a slot's net staffing
type Level string

const (
	LevelAdequate Level = "adequate"
	LevelLow      Level = "low"
	LevelCritical Level = "critical"
)

// Classification boundaries: net above 12 is adequate, 8 through 12 is
// low, below 8 is critical.
const (
	adequateAbove = 12
	criticalBelow = 8
)

// Classify maps a net staffing count to its level
func Classify(net int) Level {
	switch {
	case net > adequateAbove:
		return LevelAdequate
	case net >= criticalBelow:
		return LevelLow
	default:
		return LevelCritical
	}
}

// Counts returns the net per-slot staffing: agents inside their shift
// window minus those on a break in that slot.
func Counts(s types.Schedule) []int {
	counts := make([]int, grid.SlotCount)
	for _, rec := range s.Roster {
		w, ok := rec.ShiftType.Window()
		if !ok {
			continue
		}
		asn := s.AssignmentFor(rec.AgentID)
		for slot := w.First; slot <= w.Last; slot++ {
			if asn != nil && asn.OnBreak(slot) {
				continue
			}
			counts[slot]++
		}
	}
	return counts
}

// ScheduledCounts returns per-slot staffing ignoring breaks, i.e. how many
// agents' shift windows cover each slot.
func ScheduledCounts(s types.Schedule) []int {
	counts := make([]int, grid.SlotCount)
	for _, rec := range s.Roster {
		w, ok := rec.ShiftType.Window()
		if !ok {
			continue
		}
		for slot := w.First; slot <= w.Last; slot++ {
			counts[slot]++
		}
	}
	return counts
}

// Stats summarizes a count vector across the whole grid
type Stats struct {
	Min      int     `json:"min"`
	Max      int     `json:"max"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
}

// Summarize computes min, max, mean and population variance of counts
func Summarize(counts []int) Stats {
	if len(counts) == 0 {
		return Stats{}
	}
	st := Stats{Min: counts[0], Max: counts[0]}
	sum := 0
	for _, c := range counts {
		if c < st.Min {
			st.Min = c
		}
		if c > st.Max {
			st.Max = c
		}
		sum += c
	}
	st.Mean = float64(sum) / float64(len(counts))
	var sq float64
	for _, c := range counts {
		d := float64(c) - st.Mean
		sq += d * d
	}
	st.Variance = sq / float64(len(counts))
	return st
}

// SlotStat is one slot's net staffing with its classification
type SlotStat struct {
	Slot  int    `json:"slot"`
	Label string `json:"label"`
	Count int    `json:"count"`
	Level Level  `json:"level"`
}

// Report classifies every slot of the schedule
func Report(s types.Schedule) []SlotStat {
	counts := Counts(s)
	out := make([]SlotStat, len(counts))
	for slot, c := range counts {
		out[slot] = SlotStat{
			Slot:  slot,
			Label: grid.Label(slot),
			Count: c,
			Level: Classify(c),
		}
	}
	return out
}
