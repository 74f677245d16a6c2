package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	bkerrors "lessonbook/internal/bookings/errors"
	"lessonbook/internal/calendar"
	"lessonbook/pkg/config"
	apperrors "lessonbook/pkg/errors"
	"lessonbook/pkg/logger"
	"lessonbook/pkg/model"
)

type mockBookingRepository struct {
	createFn          func(ctx context.Context, booking *model.Booking) error
	findByIDFn        func(ctx context.Context, id string) (*model.Booking, error)
	findOverlappingFn func(ctx context.Context, locationID string, window model.Slot) ([]*model.Booking, error)
}

func (m *mockBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	return m.createFn(ctx, booking)
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	return m.findByIDFn(ctx, id)
}

func (m *mockBookingRepository) FindOverlapping(ctx context.Context, locationID string, window model.Slot) ([]*model.Booking, error) {
	return m.findOverlappingFn(ctx, locationID, window)
}

type mockLockRepository struct {
	mu       sync.Mutex
	acquired []string
	released []string

	acquireFn func(ctx context.Context, lock *model.SlotLock) error
	releaseFn func(ctx context.Context, lockID, owner string) error
}

func (m *mockLockRepository) Acquire(ctx context.Context, lock *model.SlotLock) error {
	m.mu.Lock()
	m.acquired = append(m.acquired, lock.ID)
	m.mu.Unlock()
	if m.acquireFn != nil {
		return m.acquireFn(ctx, lock)
	}
	return nil
}

func (m *mockLockRepository) Release(ctx context.Context, lockID, owner string) error {
	m.mu.Lock()
	m.released = append(m.released, lockID)
	m.mu.Unlock()
	if m.releaseFn != nil {
		return m.releaseFn(ctx, lockID, owner)
	}
	return nil
}

func (m *mockLockRepository) releasedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.released)
}

type mockSource struct {
	fetchBusyFn func(ctx context.Context, locationID string, window model.Slot) ([]model.Slot, error)
}

func (m *mockSource) FetchBusy(ctx context.Context, locationID string, window model.Slot) ([]model.Slot, error) {
	if m.fetchBusyFn != nil {
		return m.fetchBusyFn(ctx, locationID, window)
	}
	return nil, nil
}

type mockMirror struct {
	mu      sync.Mutex
	deleted []string

	createEventFn func(ctx context.Context, calendarID string, ev calendar.Event) (string, error)
	deleteEventFn func(ctx context.Context, calendarID, eventID string) error
}

func (m *mockMirror) CreateEvent(ctx context.Context, calendarID string, ev calendar.Event) (string, error) {
	if m.createEventFn != nil {
		return m.createEventFn(ctx, calendarID, ev)
	}
	return "evt-1", nil
}

func (m *mockMirror) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	m.mu.Lock()
	m.deleted = append(m.deleted, eventID)
	m.mu.Unlock()
	if m.deleteEventFn != nil {
		return m.deleteEventFn(ctx, calendarID, eventID)
	}
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	statuses []string
}

func (p *recordingPublisher) BookingCreated(_ context.Context, booking *model.Booking) {
	p.mu.Lock()
	p.statuses = append(p.statuses, booking.Status)
	p.mu.Unlock()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		t.Fatalf("failed to load timezone: %v", err)
	}
	return &config.Config{
		Location:          loc,
		OperatingTimezone: "Europe/Rome",
		SlotLockTTL:       30 * time.Second,
		MirrorTimeout:     5 * time.Second,
		Log:               logger.New(logger.Config{Output: io.Discard}),
	}
}

func futureStart() time.Time {
	return time.Now().Add(48 * time.Hour).Truncate(time.Hour)
}

func validRequest() ReservationRequest {
	return ReservationRequest{
		LocationID:      "salo",
		ServiceID:       "tennis",
		Start:           futureStart(),
		DurationMinutes: 60,
		ClientName:      "Mario Rossi",
		ClientEmail:     "mario@example.com",
		ClientPhone:     "+393331234567",
	}
}

func newService(
	bookings *mockBookingRepository,
	locks *mockLockRepository,
	busy calendar.Source,
	mirror calendar.Mirror,
	publisher *recordingPublisher,
	cfg *config.Config,
) ReservationService {
	return NewReservationService(bookings, locks, busy, mirror, publisher, cfg)
}

func TestReserve_ConfirmedWithMirror(t *testing.T) {
	cfg := testConfig(t)
	var created *model.Booking
	bookings := &mockBookingRepository{
		createFn: func(_ context.Context, b *model.Booking) error {
			created = b
			return nil
		},
	}
	locks := &mockLockRepository{}
	publisher := &recordingPublisher{}

	req := validRequest()
	req.TargetCalendarID = "admin@example.com"

	svc := newService(bookings, locks, &mockSource{}, &mockMirror{}, publisher, cfg)

	res, err := svc.Reserve(context.Background(), req)
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	wantID := model.SlotID("salo", "tennis", req.Start.In(cfg.Location))
	if res.BookingID != wantID {
		t.Errorf("expected deterministic id %s, got %s", wantID, res.BookingID)
	}
	if res.Status != model.StatusConfirmed {
		t.Errorf("expected confirmed status, got %s", res.Status)
	}
	if res.ExternalEventID != "evt-1" {
		t.Errorf("expected mirrored event id, got %q", res.ExternalEventID)
	}
	if res.MirrorFailed {
		t.Errorf("mirror did not fail")
	}
	if created == nil || created.ExternalEventID != "evt-1" {
		t.Errorf("expected the stored booking to carry the event id")
	}
	if locks.releasedCount() != 1 {
		t.Errorf("expected the lock to be released once, got %d", locks.releasedCount())
	}
	if len(publisher.statuses) != 1 || publisher.statuses[0] != model.StatusConfirmed {
		t.Errorf("expected one confirmed event, got %v", publisher.statuses)
	}
}

func TestReserve_MirrorFailureDegradesToPending(t *testing.T) {
	cfg := testConfig(t)
	bookings := &mockBookingRepository{
		createFn: func(context.Context, *model.Booking) error { return nil },
	}
	locks := &mockLockRepository{}
	mirror := &mockMirror{
		createEventFn: func(context.Context, string, calendar.Event) (string, error) {
			return "", errors.New("googleapi: 503")
		},
	}
	publisher := &recordingPublisher{}

	req := validRequest()
	req.TargetCalendarID = "admin@example.com"

	svc := newService(bookings, locks, &mockSource{}, mirror, publisher, cfg)

	res, err := svc.Reserve(context.Background(), req)
	if err != nil {
		t.Fatalf("a calendar outage must not fail the reservation, got %v", err)
	}
	if res.Status != model.StatusPending {
		t.Errorf("expected pending status, got %s", res.Status)
	}
	if res.ExternalEventID != "" {
		t.Errorf("expected no event id, got %q", res.ExternalEventID)
	}
	if !res.MirrorFailed {
		t.Errorf("expected the mirror failure to be reported")
	}
	if len(publisher.statuses) != 1 || publisher.statuses[0] != model.StatusPending {
		t.Errorf("expected one pending event, got %v", publisher.statuses)
	}
}

func TestReserve_MirrorSkippedStaysPending(t *testing.T) {
	cfg := testConfig(t)
	var stored *model.Booking
	bookings := &mockBookingRepository{
		createFn: func(_ context.Context, b *model.Booking) error {
			stored = b
			return nil
		},
	}
	locks := &mockLockRepository{}
	publisher := &recordingPublisher{}

	svc := newService(bookings, locks, &mockSource{}, nil, publisher, cfg)

	res, err := svc.Reserve(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if res.Status != model.StatusPending {
		t.Errorf("expected pending status without a mirror, got %s", res.Status)
	}
	if stored == nil || stored.Status != model.StatusPending {
		t.Errorf("expected the stored booking to be pending, got %+v", stored)
	}
	if res.ExternalEventID != "" {
		t.Errorf("expected no event id, got %q", res.ExternalEventID)
	}
	if res.MirrorFailed {
		t.Errorf("a skipped mirror is not a mirror failure")
	}
	if len(publisher.statuses) != 1 || publisher.statuses[0] != model.StatusPending {
		t.Errorf("expected one pending event, got %v", publisher.statuses)
	}
}

func TestReserve_LockHeld(t *testing.T) {
	cfg := testConfig(t)
	bookings := &mockBookingRepository{
		createFn: func(context.Context, *model.Booking) error {
			t.Fatal("no booking may be created while the lock is held elsewhere")
			return nil
		},
	}
	locks := &mockLockRepository{
		acquireFn: func(context.Context, *model.SlotLock) error {
			return bkerrors.ErrLockHeld
		},
	}

	svc := newService(bookings, locks, &mockSource{}, nil, &recordingPublisher{}, cfg)

	_, err := svc.Reserve(context.Background(), validRequest())
	if apperrors.AsAppError(err).Code != apperrors.CodeSlotLocked {
		t.Fatalf("expected %s, got %v", apperrors.CodeSlotLocked, err)
	}
	if locks.releasedCount() != 0 {
		t.Errorf("a lock that was never acquired must not be released")
	}
}

func TestReserve_SlotGoneAfterRevalidation(t *testing.T) {
	cfg := testConfig(t)
	start := futureStart()

	bookings := &mockBookingRepository{
		createFn: func(context.Context, *model.Booking) error {
			t.Fatal("no booking may be created for a busy slot")
			return nil
		},
	}
	locks := &mockLockRepository{}
	busy := &mockSource{
		fetchBusyFn: func(_ context.Context, _ string, window model.Slot) ([]model.Slot, error) {
			return []model.Slot{{Start: start, End: start.Add(time.Hour)}}, nil
		},
	}

	req := validRequest()
	req.Start = start

	svc := newService(bookings, locks, busy, nil, &recordingPublisher{}, cfg)

	_, err := svc.Reserve(context.Background(), req)
	if apperrors.AsAppError(err).Code != apperrors.CodeSlotGone {
		t.Fatalf("expected %s, got %v", apperrors.CodeSlotGone, err)
	}
	if locks.releasedCount() != 1 {
		t.Errorf("the lock must be released on the slot-gone path, got %d releases", locks.releasedCount())
	}
}

func TestReserve_SlotTakenRollsBackMirror(t *testing.T) {
	cfg := testConfig(t)
	bookings := &mockBookingRepository{
		createFn: func(context.Context, *model.Booking) error {
			return bkerrors.ErrSlotTaken
		},
	}
	locks := &mockLockRepository{}
	mirror := &mockMirror{}
	publisher := &recordingPublisher{}

	req := validRequest()
	req.TargetCalendarID = "admin@example.com"

	svc := newService(bookings, locks, &mockSource{}, mirror, publisher, cfg)

	_, err := svc.Reserve(context.Background(), req)
	if apperrors.AsAppError(err).Code != apperrors.CodeSlotTaken {
		t.Fatalf("expected %s, got %v", apperrors.CodeSlotTaken, err)
	}
	if len(mirror.deleted) != 1 || mirror.deleted[0] != "evt-1" {
		t.Errorf("expected the mirrored event to be rolled back, got %v", mirror.deleted)
	}
	if locks.releasedCount() != 1 {
		t.Errorf("the lock must be released on the slot-taken path, got %d releases", locks.releasedCount())
	}
	if len(publisher.statuses) != 0 {
		t.Errorf("no event may be published for a failed reservation, got %v", publisher.statuses)
	}
}

func TestReserve_BusyFetchFailureReleasesLock(t *testing.T) {
	cfg := testConfig(t)
	bookings := &mockBookingRepository{}
	locks := &mockLockRepository{}
	busy := &mockSource{
		fetchBusyFn: func(context.Context, string, model.Slot) ([]model.Slot, error) {
			return nil, errors.New("store timeout")
		},
	}

	svc := newService(bookings, locks, busy, nil, &recordingPublisher{}, cfg)

	_, err := svc.Reserve(context.Background(), validRequest())
	if apperrors.AsAppError(err).Code != apperrors.CodeInternal {
		t.Fatalf("expected %s, got %v", apperrors.CodeInternal, err)
	}
	if locks.releasedCount() != 1 {
		t.Errorf("the lock must be released when re-validation fails, got %d releases", locks.releasedCount())
	}
}

func TestReserve_InvalidRequests(t *testing.T) {
	cfg := testConfig(t)
	svc := newService(&mockBookingRepository{}, &mockLockRepository{}, &mockSource{}, nil, &recordingPublisher{}, cfg)

	tests := []struct {
		name   string
		mutate func(*ReservationRequest)
		code   string
	}{
		{
			name:   "zero duration",
			mutate: func(r *ReservationRequest) { r.DurationMinutes = 0 },
			code:   apperrors.CodeInvalidInput,
		},
		{
			name:   "missing client name",
			mutate: func(r *ReservationRequest) { r.ClientName = "" },
			code:   apperrors.CodeValidation,
		},
		{
			name:   "start in the past",
			mutate: func(r *ReservationRequest) { r.Start = time.Now().Add(-time.Hour) },
			code:   apperrors.CodeValidation,
		},
		{
			name:   "bad email",
			mutate: func(r *ReservationRequest) { r.ClientEmail = "not-an-email" },
			code:   apperrors.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)

			_, err := svc.Reserve(context.Background(), req)
			if apperrors.AsAppError(err).Code != tt.code {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestReserve_ConcurrentSamePayload(t *testing.T) {
	cfg := testConfig(t)

	// An in-memory lock repository with real contention semantics.
	held := sync.Map{}
	locks := &mockLockRepository{
		acquireFn: func(_ context.Context, lock *model.SlotLock) error {
			if _, loaded := held.LoadOrStore(lock.ID, lock.Owner); loaded {
				return bkerrors.ErrLockHeld
			}
			return nil
		},
		releaseFn: func(_ context.Context, lockID, _ string) error {
			held.Delete(lockID)
			return nil
		},
	}

	var mu sync.Mutex
	stored := map[string]bool{}
	bookings := &mockBookingRepository{
		createFn: func(_ context.Context, b *model.Booking) error {
			mu.Lock()
			defer mu.Unlock()
			if stored[b.ID] {
				return bkerrors.ErrSlotTaken
			}
			stored[b.ID] = true
			return nil
		},
	}

	svc := newService(bookings, locks, &mockSource{}, nil, &recordingPublisher{}, cfg)

	req := validRequest()
	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), req)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case apperrors.AsAppError(err).HTTPStatus == 409:
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	if successes != 1 || conflicts != 1 {
		t.Errorf("expected exactly one success and one conflict, got %d successes and %d conflicts", successes, conflicts)
	}
	mu.Lock()
	if len(stored) != 1 {
		t.Errorf("expected exactly one stored booking, got %d", len(stored))
	}
	mu.Unlock()
}

func TestGetBooking_NotFound(t *testing.T) {
	cfg := testConfig(t)
	bookings := &mockBookingRepository{
		findByIDFn: func(context.Context, string) (*model.Booking, error) {
			return nil, bkerrors.ErrNotFound
		},
	}

	svc := newService(bookings, &mockLockRepository{}, &mockSource{}, nil, &recordingPublisher{}, cfg)

	_, err := svc.GetBooking(context.Background(), "0000")
	if apperrors.AsAppError(err).Code != apperrors.CodeNotFound {
		t.Errorf("expected %s, got %v", apperrors.CodeNotFound, err)
	}
}
