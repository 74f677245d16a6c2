// Package calendar supplies busy intervals for the conflict filter and
// the best-effort external mirror used by the reservation transaction.
package calendar

import (
	"context"
	"sync"

	"lessonbook/pkg/model"
)

// Source reports occupied intervals overlapping a window for one
// location. Implementations give no ordering or non-overlap guarantee;
// the conflict filter copes with duplicates.
type Source interface {
	FetchBusy(ctx context.Context, locationID string, window model.Slot) ([]model.Slot, error)
}

// Multi concatenates several sources. Sources run concurrently and their
// results are appended, never intersected. An error from any source
// fails the fetch; sources that want fail-open semantics (the external
// calendar variant) swallow their own errors before returning.
type Multi []Source

func (m Multi) FetchBusy(ctx context.Context, locationID string, window model.Slot) ([]model.Slot, error) {
	results := make([][]model.Slot, len(m))
	errs := make([]error, len(m))

	var wg sync.WaitGroup
	wg.Add(len(m))
	for i, src := range m {
		go func(i int, src Source) {
			defer wg.Done()
			results[i], errs[i] = src.FetchBusy(ctx, locationID, window)
		}(i, src)
	}
	wg.Wait()

	var busy []model.Slot
	for i := range m {
		if errs[i] != nil {
			return nil, errs[i]
		}
		busy = append(busy, results[i]...)
	}
	return busy, nil
}
