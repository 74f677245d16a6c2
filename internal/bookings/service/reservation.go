package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	bkerrors "lessonbook/internal/bookings/errors"
	"lessonbook/internal/bookings/repository"
	bkvalidator "lessonbook/internal/bookings/validator"
	"lessonbook/internal/calendar"
	"lessonbook/internal/events"
	"lessonbook/pkg/config"
	apperrors "lessonbook/pkg/errors"
	"lessonbook/pkg/model"
	"lessonbook/pkg/sanitizer"
)

// ReservationRequest is a fully resolved reservation attempt. The
// handler has already mapped the wire payload onto it (service id
// fallback, parsed start time), so every field here is in its final
// form except for client text, which Reserve sanitizes itself.
type ReservationRequest struct {
	LocationID       string
	ServiceID        string
	Start            time.Time
	DurationMinutes  int
	ClientName       string
	ClientEmail      string
	ClientPhone      string
	Notes            string
	TargetCalendarID string
}

// Reservation is the outcome of a successful Reserve call.
type Reservation struct {
	BookingID       string
	Status          string
	ExternalEventID string
	MirrorFailed    bool
}

type ReservationService interface {
	Reserve(ctx context.Context, req ReservationRequest) (*Reservation, error)
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
}

type reservationService struct {
	bookings  repository.BookingRepository
	locks     repository.LockRepository
	busy      calendar.Source
	mirror    calendar.Mirror
	events    events.Publisher
	validator *bkvalidator.BookingValidator
	cfg       *config.Config
	now       func() time.Time
}

// NewReservationService wires the reservation transaction. mirror may be
// nil when no external calendar is configured; mirroring is then skipped
// and bookings are created as confirmed directly.
func NewReservationService(
	bookings repository.BookingRepository,
	locks repository.LockRepository,
	busy calendar.Source,
	mirror calendar.Mirror,
	publisher events.Publisher,
	cfg *config.Config,
) ReservationService {
	return &reservationService{
		bookings:  bookings,
		locks:     locks,
		busy:      busy,
		mirror:    mirror,
		events:    publisher,
		validator: bkvalidator.NewBookingValidator(cfg.Log),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Reserve runs the conflict-safe reservation sequence: build and
// validate the booking, take the slot lock, re-check busy intervals for
// exactly the requested window, mirror to the external calendar, then
// persist. The unique index on the booking id is the final arbiter;
// everything before it only narrows the race window.
func (s *reservationService) Reserve(ctx context.Context, req ReservationRequest) (*Reservation, error) {
	if req.DurationMinutes <= 0 {
		return nil, apperrors.InvalidInput("durationMinutes must be positive")
	}

	start := req.Start.In(s.cfg.Location)
	booking := &model.Booking{
		ID:          model.SlotID(req.LocationID, req.ServiceID, start),
		LocationID:  req.LocationID,
		ServiceID:   req.ServiceID,
		StartTime:   start,
		EndTime:     start.Add(time.Duration(req.DurationMinutes) * time.Minute),
		ClientName:  sanitizer.NormalizeName(req.ClientName),
		ClientEmail: sanitizer.NormalizeEmail(req.ClientEmail),
		ClientPhone: sanitizer.NormalizePhone(req.ClientPhone),
		Notes:       sanitizer.NormalizeNotes(req.Notes),
		Status:      model.StatusPending,
	}

	if err := s.validator.Validate(booking); err != nil {
		return nil, apperrors.Validation(err.Error(), nil)
	}

	lock := &model.SlotLock{
		ID:        booking.ID,
		Owner:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.cfg.SlotLockTTL),
	}
	if err := s.locks.Acquire(ctx, lock); err != nil {
		if errors.Is(err, bkerrors.ErrLockHeld) {
			return nil, apperrors.SlotLocked()
		}
		return nil, apperrors.Internal("Failed to acquire slot lock", err)
	}
	defer func() {
		// The lock must come off even when the client went away.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.locks.Release(releaseCtx, lock.ID, lock.Owner); err != nil {
			s.cfg.Log.Warn("Failed to release slot lock",
				"slot_id", lock.ID,
				"error", err,
			)
		}
	}()

	window := model.Slot{Start: booking.StartTime, End: booking.EndTime}
	busy, err := s.busy.FetchBusy(ctx, booking.LocationID, window)
	if err != nil {
		return nil, apperrors.Internal("Failed to verify slot availability", err)
	}
	for _, b := range busy {
		if window.Overlaps(b) {
			return nil, apperrors.SlotGone()
		}
	}

	// Only a successful mirror confirms the booking. When mirroring is
	// skipped or fails, the booking stays pending.
	mirrorFailed := false
	if s.mirror != nil && req.TargetCalendarID != "" {
		eventID, err := s.mirrorBooking(ctx, req.TargetCalendarID, booking)
		if err != nil {
			// The booking still goes through; it stays pending so an
			// operator can reconcile the calendar by hand.
			mirrorFailed = true
			s.cfg.Log.Warn("Failed to mirror booking to external calendar",
				"booking_id", booking.ID,
				"calendar_id", req.TargetCalendarID,
				"error", err,
			)
		} else {
			booking.ExternalEventID = eventID
			booking.Status = model.StatusConfirmed
		}
	}

	if err := s.bookings.Create(ctx, booking); err != nil {
		s.rollbackMirror(ctx, req.TargetCalendarID, booking)
		if errors.Is(err, bkerrors.ErrSlotTaken) {
			return nil, apperrors.SlotTaken()
		}
		return nil, apperrors.Internal("Failed to create booking", err)
	}

	s.events.BookingCreated(ctx, booking)

	s.cfg.Log.Info("Booking created",
		"booking_id", booking.ID,
		"location_id", booking.LocationID,
		"service_id", booking.ServiceID,
		"start_time", booking.StartTime,
		"status", booking.Status,
	)

	return &Reservation{
		BookingID:       booking.ID,
		Status:          booking.Status,
		ExternalEventID: booking.ExternalEventID,
		MirrorFailed:    mirrorFailed,
	}, nil
}

func (s *reservationService) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	booking, err := s.bookings.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, bkerrors.ErrNotFound) {
			return nil, apperrors.NotFound("Booking")
		}
		return nil, apperrors.Internal("Failed to fetch booking", err)
	}
	return booking, nil
}

func (s *reservationService) mirrorBooking(ctx context.Context, calendarID string, booking *model.Booking) (string, error) {
	mirrorCtx, cancel := context.WithTimeout(ctx, s.cfg.MirrorTimeout)
	defer cancel()

	var summary strings.Builder
	summary.WriteString(booking.ServiceID)
	if booking.ClientName != "" {
		summary.WriteString(" - ")
		summary.WriteString(booking.ClientName)
	}

	description := fmt.Sprintf("Booking %s", booking.ID)
	if booking.ClientEmail != "" {
		description += "\nEmail: " + booking.ClientEmail
	}
	if booking.ClientPhone != "" {
		description += "\nPhone: " + booking.ClientPhone
	}
	if booking.Notes != "" {
		description += "\n\n" + booking.Notes
	}

	return s.mirror.CreateEvent(mirrorCtx, calendarID, calendar.Event{
		Summary:     summary.String(),
		Description: description,
		Start:       booking.StartTime,
		End:         booking.EndTime,
		TimeZone:    s.cfg.OperatingTimezone,
	})
}

// rollbackMirror deletes a mirrored event for a booking that never made
// it into storage. Best effort: a leftover event is visible and easy to
// clean up, the reverse (a stored booking with no event) is not handled
// here.
func (s *reservationService) rollbackMirror(ctx context.Context, calendarID string, booking *model.Booking) {
	if s.mirror == nil || booking.ExternalEventID == "" {
		return
	}
	rollbackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.MirrorTimeout)
	defer cancel()
	if err := s.mirror.DeleteEvent(rollbackCtx, calendarID, booking.ExternalEventID); err != nil {
		s.cfg.Log.Warn("Failed to roll back mirrored calendar event",
			"booking_id", booking.ID,
			"calendar_id", calendarID,
			"event_id", booking.ExternalEventID,
			"error", err,
		)
	}
}
