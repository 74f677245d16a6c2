package calendar

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"lessonbook/pkg/logger"
	"lessonbook/pkg/model"
)

type sourceFunc func(ctx context.Context, locationID string, window model.Slot) ([]model.Slot, error)

func (f sourceFunc) FetchBusy(ctx context.Context, locationID string, window model.Slot) ([]model.Slot, error) {
	return f(ctx, locationID, window)
}

func slotAt(hour int) model.Slot {
	return model.Slot{
		Start: time.Date(2024, 6, 10, hour, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 6, 10, hour+1, 0, 0, 0, time.UTC),
	}
}

func TestMulti_ConcatenatesAllSources(t *testing.T) {
	multi := Multi{
		sourceFunc(func(context.Context, string, model.Slot) ([]model.Slot, error) {
			return []model.Slot{slotAt(9), slotAt(10)}, nil
		}),
		sourceFunc(func(context.Context, string, model.Slot) ([]model.Slot, error) {
			return []model.Slot{slotAt(10)}, nil
		}),
	}

	busy, err := multi.FetchBusy(context.Background(), "salo", slotAt(0))
	if err != nil {
		t.Fatalf("FetchBusy() error = %v", err)
	}
	// Duplicates are kept; the conflict filter tolerates them.
	if len(busy) != 3 {
		t.Errorf("expected 3 busy intervals, got %d", len(busy))
	}
}

func TestMulti_PropagatesSourceError(t *testing.T) {
	sourceErr := errors.New("store unavailable")
	multi := Multi{
		sourceFunc(func(context.Context, string, model.Slot) ([]model.Slot, error) {
			return []model.Slot{slotAt(9)}, nil
		}),
		sourceFunc(func(context.Context, string, model.Slot) ([]model.Slot, error) {
			return nil, sourceErr
		}),
	}

	_, err := multi.FetchBusy(context.Background(), "salo", slotAt(0))
	if !errors.Is(err, sourceErr) {
		t.Errorf("expected the source error to propagate, got %v", err)
	}
}

func TestMulti_Empty(t *testing.T) {
	busy, err := Multi{}.FetchBusy(context.Background(), "salo", slotAt(0))
	if err != nil {
		t.Fatalf("FetchBusy() error = %v", err)
	}
	if len(busy) != 0 {
		t.Errorf("expected no busy intervals, got %d", len(busy))
	}
}

type mockOverlapFinder struct {
	findOverlappingFn func(ctx context.Context, locationID string, window model.Slot) ([]*model.Booking, error)
}

func (m *mockOverlapFinder) FindOverlapping(ctx context.Context, locationID string, window model.Slot) ([]*model.Booking, error) {
	return m.findOverlappingFn(ctx, locationID, window)
}

func TestStoreSource_MapsBookingsToBusyIntervals(t *testing.T) {
	src := NewStoreSource(&mockOverlapFinder{
		findOverlappingFn: func(_ context.Context, locationID string, _ model.Slot) ([]*model.Booking, error) {
			if locationID != "salo" {
				t.Errorf("expected location 'salo', got %s", locationID)
			}
			return []*model.Booking{
				{StartTime: slotAt(9).Start, EndTime: slotAt(9).End},
				{StartTime: slotAt(14).Start, EndTime: slotAt(14).End},
			}, nil
		},
	})

	busy, err := src.FetchBusy(context.Background(), "salo", slotAt(0))
	if err != nil {
		t.Fatalf("FetchBusy() error = %v", err)
	}
	if len(busy) != 2 {
		t.Fatalf("expected 2 busy intervals, got %d", len(busy))
	}
	if !busy[0].Start.Equal(slotAt(9).Start) || !busy[0].End.Equal(slotAt(9).End) {
		t.Errorf("unexpected first interval: %+v", busy[0])
	}
}

func TestStoreSource_ErrorsPropagate(t *testing.T) {
	src := NewStoreSource(&mockOverlapFinder{
		findOverlappingFn: func(context.Context, string, model.Slot) ([]*model.Booking, error) {
			return nil, errors.New("connection reset")
		},
	})

	if _, err := src.FetchBusy(context.Background(), "salo", slotAt(0)); err == nil {
		t.Fatal("expected store failures to propagate")
	}
}

type mockFreeBusyAPI struct {
	freeBusyFn func(ctx context.Context, window model.Slot, calendarIDs []string) (map[string][]model.Slot, error)
}

func (m *mockFreeBusyAPI) FreeBusy(ctx context.Context, window model.Slot, calendarIDs []string) (map[string][]model.Slot, error) {
	return m.freeBusyFn(ctx, window, calendarIDs)
}

func testLog() *logger.Logger {
	return logger.New(logger.Config{Output: io.Discard})
}

func TestGoogleSource_MergesCalendars(t *testing.T) {
	src := &GoogleSource{
		api: &mockFreeBusyAPI{
			freeBusyFn: func(_ context.Context, _ model.Slot, calendarIDs []string) (map[string][]model.Slot, error) {
				if len(calendarIDs) != 2 {
					t.Errorf("expected 2 calendar ids, got %d", len(calendarIDs))
				}
				return map[string][]model.Slot{
					"admin@example.com": {slotAt(9)},
					"coach@example.com": {slotAt(15)},
				}, nil
			},
		},
		calendarIDs: []string{"admin@example.com", "coach@example.com"},
		log:         testLog(),
	}

	busy, err := src.FetchBusy(context.Background(), "salo", slotAt(0))
	if err != nil {
		t.Fatalf("FetchBusy() error = %v", err)
	}
	if len(busy) != 2 {
		t.Errorf("expected 2 busy intervals, got %d", len(busy))
	}
}

func TestGoogleSource_FailsOpenOnQueryError(t *testing.T) {
	src := &GoogleSource{
		api: &mockFreeBusyAPI{
			freeBusyFn: func(context.Context, model.Slot, []string) (map[string][]model.Slot, error) {
				return nil, errors.New("googleapi: 503")
			},
		},
		calendarIDs: []string{"admin@example.com"},
		log:         testLog(),
	}

	busy, err := src.FetchBusy(context.Background(), "salo", slotAt(0))
	if err != nil {
		t.Fatalf("expected the calendar outage to be swallowed, got %v", err)
	}
	if len(busy) != 0 {
		t.Errorf("expected no busy intervals on outage, got %d", len(busy))
	}
}

func TestGoogleSource_SkipsMissingCalendar(t *testing.T) {
	src := &GoogleSource{
		api: &mockFreeBusyAPI{
			freeBusyFn: func(context.Context, model.Slot, []string) (map[string][]model.Slot, error) {
				return map[string][]model.Slot{
					"admin@example.com": {slotAt(9)},
				}, nil
			},
		},
		calendarIDs: []string{"admin@example.com", "gone@example.com"},
		log:         testLog(),
	}

	busy, err := src.FetchBusy(context.Background(), "salo", slotAt(0))
	if err != nil {
		t.Fatalf("FetchBusy() error = %v", err)
	}
	if len(busy) != 1 {
		t.Errorf("expected the reachable calendar only, got %d intervals", len(busy))
	}
}

func TestGoogleSource_NoCalendarsConfigured(t *testing.T) {
	src := &GoogleSource{
		api: &mockFreeBusyAPI{
			freeBusyFn: func(context.Context, model.Slot, []string) (map[string][]model.Slot, error) {
				t.Fatal("no query expected without configured calendars")
				return nil, nil
			},
		},
		log: testLog(),
	}

	busy, err := src.FetchBusy(context.Background(), "salo", slotAt(0))
	if err != nil || len(busy) != 0 {
		t.Errorf("expected empty result, got %v, %v", busy, err)
	}
}
