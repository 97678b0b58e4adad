package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status"`
	Details interface{} `json:"details,omitempty"`
	Err     error       `json:"-"`
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
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrPreconditionFailed = New("PRECONDITION_FAILED", http.StatusPreconditionFailed, "precondition failed")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Admission and grading rejections. Deterministic: the caller must change
// input or state before retrying.
var (
	ErrAlreadyEnrolled     = New("ALREADY_ENROLLED", http.StatusBadRequest, "student already enrolled in this offering")
	ErrPrerequisitesNotMet = New("PREREQUISITES_NOT_MET", http.StatusBadRequest, "prerequisites not met")
	ErrClassFull           = New("CLASS_FULL", http.StatusBadRequest, "class offering is full or not open")
	ErrScheduleConflict    = New("SCHEDULE_CONFLICT", http.StatusBadRequest, "schedule conflict with an existing enrollment")
	ErrCannotDrop          = New("CANNOT_DROP", http.StatusBadRequest, "enrollment cannot be dropped")
	ErrAlreadyFinalized    = New("ALREADY_FINALIZED", http.StatusBadRequest, "grade already finalized")
	ErrInvalidState        = New("INVALID_STATE", http.StatusBadRequest, "operation not valid for current state")
)

// ErrAdmissionFailed signals a transient transaction failure during seat
// accounting. Safe to retry.
var ErrAdmissionFailed = New("ADMISSION_FAILED", http.StatusServiceUnavailable, "enrollment could not be committed, retry")

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

// WithDetails returns a copy of the error carrying structured details,
// e.g. the missing prerequisite list or the conflicting offering.
func WithDetails(err *Error, message string, details interface{}) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	clone.Details = details
	return &clone
}
