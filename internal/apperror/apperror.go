// Package apperror defines the error kinds shared by every layer.
//
// Services return *AppError values wrapping one of the sentinel kinds below.
// The HTTP layer maps kinds to status codes with errors.Is; the Message is the
// only text that ever reaches a client. Cause carries the underlying failure
// (a driver error, a provider response) for logs.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("Validation Error")
	ErrForbidden  = errors.New("forbidden")

	ErrDuplicateIdentity  = errors.New("duplicate identity")
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrTokenMissing = errors.New("token missing")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenExpired = errors.New("token expired")

	ErrExternalProvider = errors.New("external provider error")

	ErrSelfRelation     = errors.New("self relation not allowed")
	ErrRelationConflict = errors.New("relation conflict")
)

type AppError struct {
	Err     error  // kind, one of the sentinels above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure, logged but never shown
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

// Kind returns the sentinel this error was built from.
func (e *AppError) Kind() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// DuplicateIdentity reports that a username, email or external identity is
// already bound to another account. field names which one.
func DuplicateIdentity(field string) *AppError {
	return &AppError{
		Err:     ErrDuplicateIdentity,
		Message: fmt.Sprintf("%s is already taken", field),
		Field:   field,
	}
}

// InvalidCredentials is deliberately identical for every failure reason so
// callers cannot tell an unknown account from a wrong password.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "invalid credentials",
	}
}

func TokenMissing() *AppError {
	return &AppError{Err: ErrTokenMissing, Message: "no token provided"}
}

func TokenInvalid(cause error) *AppError {
	return &AppError{Err: ErrTokenInvalid, Message: "invalid token", Cause: cause}
}

func TokenExpired() *AppError {
	return &AppError{Err: ErrTokenExpired, Message: "token expired"}
}

// ExternalProvider wraps a failure talking to the identity provider.
func ExternalProvider(message string, cause error) *AppError {
	return &AppError{
		Err:     ErrExternalProvider,
		Message: message,
		Cause:   cause,
	}
}

func SelfRelation(kind string) *AppError {
	return &AppError{
		Err:     ErrSelfRelation,
		Message: fmt.Sprintf("you cannot %s yourself", kind),
	}
}

// RelationConflict is transient: the caller may re-issue the toggle against
// the now-current state.
func RelationConflict(cause error) *AppError {
	return &AppError{
		Err:     ErrRelationConflict,
		Message: "relation was modified concurrently, retry the request",
		Cause:   cause,
	}
}

// Code returns the machine-readable name of err's kind, or "internal_error"
// when err carries none of the known kinds.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrDuplicateIdentity):
		return "duplicate_identity"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrTokenMissing):
		return "token_missing"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenInvalid):
		return "token_invalid"
	case errors.Is(err, ErrExternalProvider):
		return "external_provider_error"
	case errors.Is(err, ErrSelfRelation):
		return "self_relation_not_allowed"
	case errors.Is(err, ErrRelationConflict):
		return "relation_conflict"
	}
	return "internal_error"
}
