// Package events publishes reservation outcomes for downstream
// consumers (notifications, reporting). Publishing is best-effort: a
// broker outage is logged and never affects the reservation result.
package events

import (
	"context"
	"time"

	"lessonbook/pkg/kafka"
	"lessonbook/pkg/logger"
	"lessonbook/pkg/model"
)

const (
	EventBookingCreated = "booking.created"
	EventBookingPending = "booking.pending"

	source = "lessonbook-api"
)

type Publisher interface {
	BookingCreated(ctx context.Context, booking *model.Booking)
}

type bookingEvent struct {
	BookingID       string    `json:"booking_id"`
	LocationID      string    `json:"location_id"`
	ServiceID       string    `json:"service_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Status          string    `json:"status"`
	ExternalEventID string    `json:"external_event_id,omitempty"`
}

type kafkaPublisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

func NewKafkaPublisher(producer *kafka.Producer, log *logger.Logger) Publisher {
	return &kafkaPublisher{producer: producer, log: log}
}

func (p *kafkaPublisher) BookingCreated(ctx context.Context, booking *model.Booking) {
	eventType := EventBookingCreated
	if booking.Status == model.StatusPending {
		eventType = EventBookingPending
	}

	msg := kafka.NewMessage().
		WithKey(booking.ID).
		WithEventType(eventType).
		WithSource(source).
		WithValue(bookingEvent{
			BookingID:       booking.ID,
			LocationID:      booking.LocationID,
			ServiceID:       booking.ServiceID,
			StartTime:       booking.StartTime,
			EndTime:         booking.EndTime,
			Status:          booking.Status,
			ExternalEventID: booking.ExternalEventID,
		}).
		Build()

	if err := p.producer.Publish(ctx, msg); err != nil {
		p.log.Warn("Failed to publish booking event",
			"booking_id", booking.ID,
			"event_type", eventType,
			"error", err,
		)
	}
}

// NopPublisher is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) BookingCreated(context.Context, *model.Booking) {}
