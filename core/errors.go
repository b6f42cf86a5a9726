package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError indicates malformed input. Always recoverable and safe to
// surface verbatim to the caller.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

func IsValidationError(err error) bool {
	_, ok := errors.Cause(err).(*ValidationError)
	return ok
}

// ConflictError indicates that a uniqueness or state precondition failed
// (handle/email/join-code taken, already a member, already verified).
type ConflictError struct {
	Err   error
	Field string
}

func NewConflictError(err error, field string) error {
	return &ConflictError{err, field}
}

func (err ConflictError) Error() string { return err.Err.Error() }

func IsConflictError(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

// AuthorizationError indicates that the acting account is not entitled to
// perform the operation on the target.
type AuthorizationError struct {
	Err error
}

func NewAuthorizationError(err error) error { return &AuthorizationError{err} }

func (err AuthorizationError) Error() string { return err.Err.Error() }

func IsAuthorizationError(err error) bool {
	_, ok := errors.Cause(err).(*AuthorizationError)
	return ok
}

// ExpiredError indicates a time-bounded artifact (verification token) past
// its window.
type ExpiredError struct {
	Err error
}

func NewExpiredError(err error) error { return &ExpiredError{err} }

func (err ExpiredError) Error() string { return err.Err.Error() }

func IsExpiredError(err error) bool {
	_, ok := errors.Cause(err).(*ExpiredError)
	return ok
}

// TransientError indicates a failure that may succeed on retry (allocator
// exhaustion, delivery collaborator down). The core only ever retries these,
// bounded; anything else propagates.
type TransientError struct {
	Err error
}

func NewTransientError(err error) error { return &TransientError{err} }

func (err TransientError) Error() string { return err.Err.Error() }

func IsTransientError(err error) bool {
	_, ok := errors.Cause(err).(*TransientError)
	return ok
}
