package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrNotFound   = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden  = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrConflict   = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal   = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
)

// Scheduling taxonomy. Every rejection the scheduling core produces maps to
// exactly one of these codes so callers can render a specific message.
var (
	ErrInvalidRange          = New("INVALID_RANGE", http.StatusBadRequest, "invalid time range")
	ErrOutsideAvailability   = New("OUTSIDE_AVAILABILITY", http.StatusUnprocessableEntity, "time range outside teacher availability")
	ErrTeacherIneligible     = New("TEACHER_INELIGIBLE", http.StatusUnprocessableEntity, "teacher cannot teach this subject")
	ErrTeacherTimeConflict   = New("TEACHER_TIME_CONFLICT", http.StatusConflict, "teacher already occupied")
	ErrRoomTimeConflict      = New("ROOM_TIME_CONFLICT", http.StatusConflict, "room already occupied")
	ErrStudentTimeConflict   = New("STUDENT_TIME_CONFLICT", http.StatusConflict, "student already occupied")
	ErrSlotAlreadyClaimed    = New("SLOT_ALREADY_CLAIMED", http.StatusConflict, "slot was just taken")
	ErrDuplicateSession      = New("DUPLICATE_SESSION", http.StatusConflict, "session already exists at this time")
	ErrLinkUnavailable       = New("LINK_UNAVAILABLE", http.StatusNotFound, "booking link not available")
	ErrLinkExpired           = New("LINK_EXPIRED", http.StatusGone, "booking link expired")
	ErrInvalidTeacherForLink = New("INVALID_TEACHER_FOR_LINK", http.StatusUnprocessableEntity, "teacher is not offered by this link")
	ErrSlotNotOffered        = New("SLOT_NOT_OFFERED", http.StatusUnprocessableEntity, "slot is not offered by this link")
	ErrNoActivePackage       = New("NO_ACTIVE_PACKAGE", http.StatusUnprocessableEntity, "student has no active package balance")
	ErrEnrollmentConflict    = New("ENROLLMENT_CONFLICT", http.StatusConflict, "student already enrolled in this course via another class")
)

// ErrCacheMiss signals a cache lookup that found nothing. Callers treat it as
// normal control flow, not a failure.
var ErrCacheMiss = errors.New("cache miss")

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
