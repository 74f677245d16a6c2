package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

// Booking is the durable reservation record. Its ID is deterministic over
// (location, service, start), so duplicate reservation attempts for the
// same slot collide on the insert instead of needing a uniqueness query.
type Booking struct {
	ID              string    `json:"id" bson:"_id" validate:"required,len=64,hexadecimal"`
	LocationID      string    `json:"location_id" bson:"location_id" validate:"required,min=1,max=100"`
	ServiceID       string    `json:"service_id" bson:"service_id" validate:"required,min=1,max=100"`
	StartTime       time.Time `json:"start_time" bson:"start_time" validate:"required"`
	EndTime         time.Time `json:"end_time" bson:"end_time" validate:"required,gtfield=StartTime"`
	ClientName      string    `json:"client_name" bson:"client_name" validate:"required,min=2,max=100"`
	ClientEmail     string    `json:"client_email,omitempty" bson:"client_email,omitempty" validate:"omitempty,email"`
	ClientPhone     string    `json:"client_phone,omitempty" bson:"client_phone,omitempty" validate:"omitempty,client_phone"`
	Notes           string    `json:"notes,omitempty" bson:"notes,omitempty" validate:"omitempty,max=1000"`
	Status          string    `json:"status" bson:"status" validate:"required,oneof=pending confirmed cancelled"`
	ExternalEventID string    `json:"external_event_id,omitempty" bson:"external_event_id,omitempty"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

// SlotID derives the deterministic booking/lock id for a slot. The start
// time is normalized to UTC so the same instant always hashes identically
// regardless of the offset the caller supplied.
func SlotID(locationID, serviceID string, start time.Time) string {
	sum := sha256.Sum256([]byte(locationID + "|" + serviceID + "|" + start.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(sum[:])
}
