package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness. Details carries
// optional machine-readable context (e.g. when attendance becomes available).
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Status  int                    `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
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

// Is matches errors sharing the same code so sentinels survive Clone/WithDetails.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e != nil && other != nil && e.Code == other.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for expected, user-facing outcomes.
var (
	ErrNotFound       = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrUnauthorized   = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict       = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation     = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal       = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrPrecondition   = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrNotEventDay    = New("NOT_EVENT_DAY", http.StatusForbidden, "Attendance is currently close till the event date.")
	ErrTooEarly       = New("TOO_EARLY", http.StatusForbidden, "attendance not allowed yet")
	ErrDuplicateScan  = New("DUPLICATE_ATTENDANCE", http.StatusConflict, "Attendance already recorded")
	ErrUnknownStudent = New("UNKNOWN_STUDENT", http.StatusNotFound, "no student registered for this RFID")
	ErrUnknownSlot    = New("UNKNOWN_TIME_SLOT", http.StatusNotFound, "time slot not found")
	ErrCacheMiss      = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

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

// WithDetails returns a copy carrying additional response context.
func WithDetails(err *Error, message string, details map[string]interface{}) *Error {
	clone := Clone(err, message)
	if clone == nil {
		return nil
	}
	clone.Details = details
	return clone
}
