package service

import (
	"context"
	"errors"
	"time"

	availabilityerrors "lessonbook/internal/availability/errors"
	"lessonbook/internal/availability/generator"
	"lessonbook/internal/availability/repository"
	"lessonbook/internal/calendar"
	"lessonbook/pkg/config"
	apperrors "lessonbook/pkg/errors"
	"lessonbook/pkg/model"
)

// maxQueryDays bounds the per-request day walk; a listing UI never asks
// for more than a few weeks at a time.
const maxQueryDays = 92

type SlotQuery struct {
	LocationID      string
	TimeMin         time.Time
	TimeMax         time.Time
	DurationMinutes int
	StepMinutes     int
}

// FreeSlotsResult carries the offered slots. Approximate marks the
// degraded rule-only mode that never consulted busy intervals; callers
// must surface that flag, not hide it.
type FreeSlotsResult struct {
	Slots       []model.Slot
	Approximate bool
}

type AvailabilityService interface {
	FreeSlots(ctx context.Context, q SlotQuery) (*FreeSlotsResult, error)
	ApproximateSlots(ctx context.Context, q SlotQuery) (*FreeSlotsResult, error)
}

type availabilityService struct {
	rules repository.RuleRepository
	busy  calendar.Source
	cfg   *config.Config
	now   func() time.Time
}

func NewAvailabilityService(rules repository.RuleRepository, busy calendar.Source, cfg *config.Config) AvailabilityService {
	return &availabilityService{
		rules: rules,
		busy:  busy,
		cfg:   cfg,
		now:   time.Now,
	}
}

// FreeSlots runs the full pipeline: generate candidates per day, fetch
// busy intervals once for the whole window, subtract conflicts and the
// minimum-notice cutoff.
func (s *availabilityService) FreeSlots(ctx context.Context, q SlotQuery) (*FreeSlotsResult, error) {
	candidates, err := s.candidates(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &FreeSlotsResult{Slots: []model.Slot{}}, nil
	}

	busy, err := s.busy.FetchBusy(ctx, q.LocationID, model.Slot{Start: q.TimeMin, End: q.TimeMax})
	if err != nil {
		s.cfg.Log.Error("Failed to fetch busy intervals",
			"location_id", q.LocationID,
			"error", err,
		)
		return nil, apperrors.Internal("Failed to fetch busy intervals", err)
	}

	free := generator.Filter(candidates, busy, s.noticeCutoff())
	s.cfg.Log.Debug("Free slots computed",
		"location_id", q.LocationID,
		"candidates", len(candidates),
		"busy", len(busy),
		"free", len(free),
	)
	return &FreeSlotsResult{Slots: free}, nil
}

// ApproximateSlots is the explicitly degraded mode: candidates filtered
// only by the notice cutoff, with no busy-interval knowledge. The result
// is marked approximate so callers cannot mistake it for the validated
// pipeline.
func (s *availabilityService) ApproximateSlots(ctx context.Context, q SlotQuery) (*FreeSlotsResult, error) {
	candidates, err := s.candidates(ctx, q)
	if err != nil {
		return nil, err
	}

	free := generator.Filter(candidates, nil, s.noticeCutoff())
	return &FreeSlotsResult{Slots: free, Approximate: true}, nil
}

func (s *availabilityService) candidates(ctx context.Context, q SlotQuery) ([]model.Slot, error) {
	if err := s.validateQuery(q); err != nil {
		return nil, err
	}

	rule, err := s.rules.FindByLocation(ctx, q.LocationID)
	if err != nil {
		if errors.Is(err, availabilityerrors.ErrRuleNotFound) {
			// No rule configured means nothing bookable, not a failure.
			return nil, nil
		}
		return nil, apperrors.Internal("Failed to load availability rule", err)
	}

	loc := s.cfg.Location
	window := model.Slot{Start: q.TimeMin, End: q.TimeMax}

	var candidates []model.Slot
	day := q.TimeMin.In(loc)
	lastDay := q.TimeMax.In(loc)
	for !truncateToDay(day, loc).After(truncateToDay(lastDay, loc)) {
		generated := generator.Generate(rule, day, q.DurationMinutes, q.StepMinutes, loc)
		candidates = append(candidates, generator.Clip(generated, window)...)
		day = day.AddDate(0, 0, 1)
	}
	return candidates, nil
}

func (s *availabilityService) validateQuery(q SlotQuery) error {
	if q.LocationID == "" {
		return apperrors.InvalidInput("locationId is required")
	}
	if q.TimeMin.IsZero() || q.TimeMax.IsZero() {
		return apperrors.InvalidInput("timeMin and timeMax are required")
	}
	if !q.TimeMin.Before(q.TimeMax) {
		return apperrors.InvalidInput("timeMin must be before timeMax")
	}
	if q.TimeMax.Sub(q.TimeMin) > maxQueryDays*24*time.Hour {
		return apperrors.InvalidInput("requested range is too large")
	}
	if q.DurationMinutes < 0 || q.StepMinutes < 0 {
		return apperrors.InvalidInput("durations must not be negative")
	}
	return nil
}

func (s *availabilityService) noticeCutoff() time.Time {
	return s.now().Add(time.Duration(s.cfg.NoticeHours) * time.Hour)
}

func truncateToDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
