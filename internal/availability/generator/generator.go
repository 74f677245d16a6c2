// Package generator holds the pure slot arithmetic: candidate generation
// from an availability rule and subtractive conflict filtering. Neither
// function touches a store or a clock; callers supply every input.
package generator

import (
	"time"

	"lessonbook/pkg/model"
)

// Generate produces the ordered candidate slots for one day. The day
// window comes from the rule's weekday entry resolved in loc; a missing
// or disabled weekday yields nil. stepMin defaults to the rule's slot
// interval and durationMin defaults to stepMin, so a 90-minute lesson
// can ride a 30-minute grid.
func Generate(rule *model.AvailabilityRule, date time.Time, durationMin, stepMin int, loc *time.Location) []model.Slot {
	if rule == nil {
		return nil
	}

	window, ok := rule.Window(date.In(loc).Weekday())
	if !ok || !window.Enabled {
		return nil
	}

	if stepMin <= 0 {
		stepMin = rule.SlotIntervalMinutes
	}
	if stepMin <= 0 {
		return nil
	}
	if durationMin <= 0 {
		durationMin = stepMin
	}

	dayStart, dayEnd, err := window.Resolve(date, loc)
	if err != nil {
		return nil
	}

	step := time.Duration(stepMin) * time.Minute
	duration := time.Duration(durationMin) * time.Minute

	var slots []model.Slot
	for start := dayStart; !start.Add(duration).After(dayEnd); start = start.Add(step) {
		slots = append(slots, model.Slot{Start: start, End: start.Add(duration)})
	}
	return slots
}

// Filter removes candidates that overlap any busy interval or start
// before the notice cutoff. Intervals are half-open, so a candidate
// ending exactly when a busy interval starts survives. Busy intervals
// may overlap or repeat; order of candidates is preserved.
func Filter(candidates, busy []model.Slot, cutoff time.Time) []model.Slot {
	free := make([]model.Slot, 0, len(candidates))

	for _, c := range candidates {
		if c.Start.Before(cutoff) {
			continue
		}

		conflicted := false
		for _, b := range busy {
			if c.Overlaps(b) {
				conflicted = true
				break
			}
		}
		if !conflicted {
			free = append(free, c)
		}
	}
	return free
}

// Clip drops candidates that are not fully inside the query window.
func Clip(candidates []model.Slot, window model.Slot) []model.Slot {
	kept := make([]model.Slot, 0, len(candidates))
	for _, c := range candidates {
		if !c.Start.Before(window.Start) && !c.End.After(window.End) {
			kept = append(kept, c)
		}
	}
	return kept
}
