package model

import (
	"fmt"
	"strconv"
	"time"
)

// DayWindow is the opening window for one weekday, in the operating
// timezone. Times are "HH:MM" 24h strings; Start must precede End when
// the day is enabled.
type DayWindow struct {
	Enabled bool   `json:"enabled" bson:"enabled"`
	Start   string `json:"start" bson:"start" validate:"omitempty,day_time"`
	End     string `json:"end" bson:"end" validate:"omitempty,day_time"`
}

// AvailabilityRule is per-location opening configuration, administered
// outside this service and read-only here. Days is keyed by weekday
// number ("0" = Sunday .. "6" = Saturday); absent or disabled days yield
// no candidate slots.
type AvailabilityRule struct {
	LocationID          string               `json:"location_id" bson:"_id" validate:"required,min=1,max=100"`
	SlotIntervalMinutes int                  `json:"slot_interval_minutes" bson:"slot_interval_minutes" validate:"required,min=5,max=480"`
	Days                map[string]DayWindow `json:"days" bson:"days" validate:"required"`
	UpdatedAt           time.Time            `json:"updated_at,omitempty" bson:"updated_at,omitempty"`
}

// Window returns the opening window for a weekday, if one is configured.
func (r *AvailabilityRule) Window(d time.Weekday) (DayWindow, bool) {
	w, ok := r.Days[strconv.Itoa(int(d))]
	return w, ok
}

// Resolve anchors the window onto a concrete date in the given location.
// Returns an error when the day is disabled or the HH:MM bounds are
// malformed or inverted.
func (w DayWindow) Resolve(date time.Time, loc *time.Location) (start, end time.Time, err error) {
	if !w.Enabled {
		return time.Time{}, time.Time{}, fmt.Errorf("day window is disabled")
	}

	start, err = atClock(date, w.Start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window start %q: %w", w.Start, err)
	}
	end, err = atClock(date, w.End, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid window end %q: %w", w.End, err)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("window start %s must precede end %s", w.Start, w.End)
	}
	return start, end, nil
}

func atClock(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc), nil
}
