package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Stable error codes returned on the wire. The three slot codes are all
// recoverable by re-fetching slots and picking another one.
const (
	CodeInvalidInput = "INVALID_INPUT"
	CodeValidation   = "VALIDATION_ERROR"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"

	CodeSlotLocked  = "SLOT_LOCKED"
	CodeSlotTaken   = "SLOT_TAKEN"
	CodeSlotGone    = "SLOT_NO_LONGER_AVAILABLE"
	CodeCalendarOut = "CALENDAR_UNAVAILABLE"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	return e.HTTPStatus
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func InvalidInput(message string) *AppError {
	return &AppError{
		Code:       CodeInvalidInput,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

func Validation(message string, details map[string]any) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    details,
	}
}

func NotFound(resource string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// SlotLocked means another reservation attempt currently holds the
// advisory lock for this slot.
func SlotLocked() *AppError {
	return &AppError{
		Code:       CodeSlotLocked,
		Message:    "This time slot is currently being booked by another request. Please try again.",
		HTTPStatus: http.StatusConflict,
	}
}

// SlotTaken means the create-if-absent booking write collided with an
// existing booking for the same slot id.
func SlotTaken() *AppError {
	return &AppError{
		Code:       CodeSlotTaken,
		Message:    "This time slot has already been booked.",
		HTTPStatus: http.StatusConflict,
	}
}

// SlotGone means the slot became busy between the client's slot listing
// and this reservation attempt.
func SlotGone() *AppError {
	return &AppError{
		Code:       CodeSlotGone,
		Message:    "This time slot is no longer available.",
		HTTPStatus: http.StatusConflict,
	}
}

// CalendarUnavailable is recorded on a booking result, never returned as
// a request error: a calendar-side outage degrades the booking to pending.
func CalendarUnavailable(err error) *AppError {
	return &AppError{
		Code:       CodeCalendarOut,
		Message:    "External calendar is temporarily unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func Unavailable(service string) *AppError {
	return &AppError{
		Code:       CodeUnavailable,
		Message:    fmt.Sprintf("%s is temporarily unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}
