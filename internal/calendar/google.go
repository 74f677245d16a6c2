package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"lessonbook/pkg/logger"
	"lessonbook/pkg/model"
)

// Event is the mirrored external-calendar event description.
type Event struct {
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	TimeZone    string
}

// Mirror creates and deletes mirrored events on an external calendar.
// Creation happens before the booking is persisted as confirmed;
// deletion is the rollback for a booking insert that lost the race.
type Mirror interface {
	CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}

// freeBusyAPI is the slice of the Google Calendar client the busy source
// uses, separated so the fail-open logic can be tested without HTTP.
type freeBusyAPI interface {
	FreeBusy(ctx context.Context, window model.Slot, calendarIDs []string) (map[string][]model.Slot, error)
}

// GoogleClient wraps the Calendar v3 service for free/busy queries and
// event mirroring.
type GoogleClient struct {
	svc *gcal.Service
}

func NewGoogleClient(ctx context.Context, credentialsFile string) (*GoogleClient, error) {
	svc, err := gcal.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gcal.CalendarScope),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &GoogleClient{svc: svc}, nil
}

// FreeBusy returns busy periods per calendar id. Calendars the API marks
// as errored (unreachable, unauthorized) are simply absent from the
// result; the caller decides what that means.
func (c *GoogleClient) FreeBusy(ctx context.Context, window model.Slot, calendarIDs []string) (map[string][]model.Slot, error) {
	items := make([]*gcal.FreeBusyRequestItem, 0, len(calendarIDs))
	for _, id := range calendarIDs {
		items = append(items, &gcal.FreeBusyRequestItem{Id: id})
	}

	resp, err := c.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: window.Start.Format(time.RFC3339),
		TimeMax: window.End.Format(time.RFC3339),
		Items:   items,
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("freebusy query failed: %w", err)
	}

	busy := make(map[string][]model.Slot, len(resp.Calendars))
	for id, cal := range resp.Calendars {
		if len(cal.Errors) > 0 {
			continue
		}
		periods := make([]model.Slot, 0, len(cal.Busy))
		for _, p := range cal.Busy {
			start, startErr := time.Parse(time.RFC3339, p.Start)
			end, endErr := time.Parse(time.RFC3339, p.End)
			if startErr != nil || endErr != nil {
				continue
			}
			periods = append(periods, model.Slot{Start: start, End: end})
		}
		busy[id] = periods
	}
	return busy, nil
}

func (c *GoogleClient) CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error) {
	created, err := c.svc.Events.Insert(calendarID, &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start: &gcal.EventDateTime{
			DateTime: ev.Start.Format(time.RFC3339),
			TimeZone: ev.TimeZone,
		},
		End: &gcal.EventDateTime{
			DateTime: ev.End.Format(time.RFC3339),
			TimeZone: ev.TimeZone,
		},
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create calendar event: %w", err)
	}
	return created.Id, nil
}

func (c *GoogleClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	if err := c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("failed to delete calendar event: %w", err)
	}
	return nil
}

// GoogleSource adapts free/busy queries to the Source interface with
// deliberate fail-open semantics: a broken or misconfigured calendar
// contributes zero busy intervals and a warning log instead of blocking
// all bookings. The conflict filter may consequently offer an optimistic
// slot; the reservation transaction still re-validates before claiming.
type GoogleSource struct {
	api         freeBusyAPI
	calendarIDs []string
	log         *logger.Logger
}

func NewGoogleSource(api *GoogleClient, calendarIDs []string, log *logger.Logger) *GoogleSource {
	return &GoogleSource{api: api, calendarIDs: calendarIDs, log: log}
}

func (s *GoogleSource) FetchBusy(ctx context.Context, locationID string, window model.Slot) ([]model.Slot, error) {
	if len(s.calendarIDs) == 0 {
		return nil, nil
	}

	perCalendar, err := s.api.FreeBusy(ctx, window, s.calendarIDs)
	if err != nil {
		s.log.Warn("Free/busy query failed, treating calendars as free",
			"location_id", locationID,
			"calendars", len(s.calendarIDs),
			"error", err,
		)
		return nil, nil
	}

	var busy []model.Slot
	for _, id := range s.calendarIDs {
		periods, ok := perCalendar[id]
		if !ok {
			s.log.Warn("Calendar unavailable, treating as free",
				"location_id", locationID,
				"calendar_id", id,
			)
			continue
		}
		busy = append(busy, periods...)
	}
	return busy, nil
}
