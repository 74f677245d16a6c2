package errors

import "errors"

var (
	ErrNotFound = errors.New("booking not found")

	// ErrSlotTaken is the duplicate-key outcome of the create-if-absent
	// booking write: a non-cancelled booking already owns this slot id.
	ErrSlotTaken = errors.New("slot already booked")

	// ErrLockHeld means an unexpired reservation lock exists for the slot.
	ErrLockHeld = errors.New("slot lock held by another attempt")
)
