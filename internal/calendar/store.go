package calendar

import (
	"context"
	"fmt"

	"lessonbook/pkg/model"
)

// OverlapFinder is the slice of the booking repository the store-backed
// busy source needs: non-cancelled bookings overlapping a window.
type OverlapFinder interface {
	FindOverlapping(ctx context.Context, locationID string, window model.Slot) ([]*model.Booking, error)
}

// StoreSource turns previously stored bookings into busy intervals.
// Unlike the external calendar source, its errors propagate: without the
// internal store there is no safe answer to give.
type StoreSource struct {
	finder OverlapFinder
}

func NewStoreSource(finder OverlapFinder) *StoreSource {
	return &StoreSource{finder: finder}
}

func (s *StoreSource) FetchBusy(ctx context.Context, locationID string, window model.Slot) ([]model.Slot, error) {
	bookings, err := s.finder.FindOverlapping(ctx, locationID, window)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stored bookings: %w", err)
	}

	busy := make([]model.Slot, 0, len(bookings))
	for _, b := range bookings {
		busy = append(busy, model.Slot{Start: b.StartTime, End: b.EndTime})
	}
	return busy, nil
}
