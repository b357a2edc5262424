package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared with clients.
const (
	CodeValidation         = "VALIDATION_FAILED"
	CodeAssignmentNotFound = "ASSIGNMENT_NOT_FOUND"
	CodeAlreadyRegistered  = "ALREADY_REGISTERED"
	CodeNotRegistered      = "NOT_REGISTERED"
	CodeAlreadyCheckedIn   = "ALREADY_CHECKED_IN"
	CodeInvalidSequence    = "INVALID_SEQUENCE"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeNotFound           = "NOT_FOUND"
	CodeConflict           = "CONFLICT"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeInternal           = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	Detail     string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewAssignmentNotFound(assignmentID string) error {
	return &DomainError{
		Code:       CodeAssignmentNotFound,
		Message:    "EventStaff not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"events_staff_id": assignmentID},
	}
}

func NewAlreadyRegistered() error {
	return &DomainError{
		Code:       CodeAlreadyRegistered,
		Message:    "Staff already registered",
		Detail:     "This staff member is already registered for this event",
		HTTPStatus: http.StatusBadRequest,
	}
}

func NewNotRegistered() error {
	return &DomainError{
		Code:       CodeNotRegistered,
		Message:    "Staff not registered",
		Detail:     "Staff must complete registration before check-in/check-out",
		HTTPStatus: http.StatusBadRequest,
	}
}

func NewAlreadyCheckedIn() error {
	return &DomainError{
		Code:       CodeAlreadyCheckedIn,
		Message:    "Already checked in",
		Detail:     "Staff is already inside the venue. Must check-out first.",
		HTTPStatus: http.StatusBadRequest,
	}
}

func NewInvalidSequence() error {
	return &DomainError{
		Code:       CodeInvalidSequence,
		Message:    "Cannot check-out",
		Detail:     "Staff must be checked in before checking out",
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewStoreUnavailable marks an infrastructure fault the caller may retry.
func NewStoreUnavailable(err error) error {
	return &DomainError{
		Code:       CodeStoreUnavailable,
		Message:    "storage unavailable, retry later",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return NewInternalError(err).(*DomainError)
}

// MapError converts generic errors to DomainError.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}
