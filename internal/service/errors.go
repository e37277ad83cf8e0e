// Package service holds the session manager, the booking ledger and the
// account service.  Handlers call into it with an authenticated identity and
// translate the returned *Error values into HTTP responses.
package service

import (
	"errors"
	"fmt"
)

// Kind classifies a failure independently of transport.
type Kind int

const (
	KindServer Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindConflict
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	}
	return "server"
}

// Error is a classified failure with a stable machine code and a message
// safe to show to clients.  Sentinels are compared by identity with
// errors.Is; validation errors are recognised through KindOf.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

var (
	ErrSlotTaken           = &Error{KindConflict, "SLOT_TAKEN", "slot already booked"}
	ErrEmailExists         = &Error{KindConflict, "EMAIL_EXISTS", "email already in use"}
	ErrDoctorLinked        = &Error{KindConflict, "DOCTOR_LINKED", "user is already linked to another doctor"}
	ErrInvalidState        = &Error{KindInvalidState, "INVALID_STATE", "appointment is not BOOKED"}
	ErrForbidden           = &Error{KindForbidden, "FORBIDDEN", "not permitted"}
	ErrAppointmentNotFound = &Error{KindNotFound, "NOT_FOUND", "appointment not found"}
	ErrDoctorNotFound      = &Error{KindNotFound, "NOT_FOUND", "doctor not found"}
	ErrUserNotFound        = &Error{KindNotFound, "USER_NOT_FOUND", "user not found"}
	ErrInvalidCredentials  = &Error{KindUnauthorized, "INVALID_CREDENTIALS", "invalid credentials"}
	ErrInvalidRefreshToken = &Error{KindUnauthorized, "INVALID_REFRESH", "invalid or expired refresh token"}
	ErrUnauthorized        = &Error{KindUnauthorized, "INVALID_TOKEN", "token invalid or expired"}
)

// Validation builds a field-level validation error.
func Validation(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Code: "VALIDATION", Message: field + ": " + fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, KindServer for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindServer
}
