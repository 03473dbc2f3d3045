package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrRule         = errors.New("business rule violation")
	ErrConflict     = errors.New("conflict")

	// ErrDuplicate is returned by repositories when a unique index rejects a
	// write. Services translate it into a Conflict or a re-read.
	ErrDuplicate = errors.New("duplicate key")
)

// Error is the error shape returned to API callers.
type Error struct {
	Err        error             `json:"-"`
	Message    string            `json:"message"`
	Code       string            `json:"code"`
	HTTPStatus int               `json:"-"`
	Details    map[string]string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(message string, details map[string]string) *Error {
	return &Error{Err: ErrValidation, Message: message, Code: "VALIDATION_ERROR", HTTPStatus: http.StatusBadRequest, Details: details}
}

func NotFound(resource, id string) *Error {
	return &Error{
		Err:        ErrNotFound,
		Message:    resource + " not found",
		Code:       "NOT_FOUND",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]string{"resource": resource, "id": id},
	}
}

func Unauthorized(message string) *Error {
	return &Error{Err: ErrUnauthorized, Message: message, Code: "UNAUTHORIZED", HTTPStatus: http.StatusUnauthorized}
}

func Forbidden(message string) *Error {
	return &Error{Err: ErrForbidden, Message: message, Code: "FORBIDDEN", HTTPStatus: http.StatusForbidden}
}

// Rule is a request that is well formed but not allowed by clinic policy,
// e.g. booking on a day the doctor does not work.
func Rule(message string) *Error {
	return &Error{Err: ErrRule, Message: message, Code: "BUSINESS_RULE", HTTPStatus: http.StatusBadRequest}
}

// Conflict reports that the requested slot is taken.
func Conflict(message string) *Error {
	return &Error{Err: ErrConflict, Message: message, Code: "SLOT_CONFLICT", HTTPStatus: http.StatusConflict}
}

// As returns the *Error in err's chain, if any.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Status maps err to an HTTP status; unknown errors are 500.
func Status(err error) int {
	if e, ok := As(err); ok && e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return http.StatusInternalServerError
}
