package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an Error for callers and HTTP mapping.
type ErrorKind string

const (
	KindValidation       ErrorKind = "validation"
	KindNotFound         ErrorKind = "not_found"
	KindAuthorization    ErrorKind = "authorization"
	KindCapacityExceeded ErrorKind = "capacity_exceeded"
	KindConflict         ErrorKind = "conflict"
	KindProvider         ErrorKind = "provider"
	KindSessionIntegrity ErrorKind = "session_integrity"
)

// Error is the kinded error used throughout the service layer. Provider
// errors carry the identity provider's original code for caller inspection.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Code    string    `json:"code,omitempty"` // provider-issued code, if any
	Cause   error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Field)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors of the same kind, so sentinel comparisons like
// errors.Is(err, domain.ErrNotFound) work across constructed instances.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrValidation       = &Error{Kind: KindValidation}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrAuthorization    = &Error{Kind: KindAuthorization}
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrProvider         = &Error{Kind: KindProvider}
	ErrSessionIntegrity = &Error{Kind: KindSessionIntegrity}
)

// IsKind reports whether err is a domain error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Kind == kind
	}
	return false
}

// IsNotFound reports whether err is a not-found domain error.
func IsNotFound(err error) bool {
	return IsKind(err, KindNotFound)
}

func NewValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func NewNotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

func NewAuthorizationError(message string) *Error {
	return &Error{Kind: KindAuthorization, Message: message}
}

func NewCapacityExceededError(message string) *Error {
	return &Error{Kind: KindCapacityExceeded, Message: message}
}

func NewConflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// NewProviderError wraps an identity-provider failure, preserving the
// provider's error code.
func NewProviderError(code, message string, cause error) *Error {
	return &Error{Kind: KindProvider, Code: code, Message: message, Cause: cause}
}

// NewSessionIntegrityError signals that the caller's own session was
// disturbed by a provisioning operation. This indicates a bug in the
// isolated-context handling, not a user error.
func NewSessionIntegrityError(message string) *Error {
	return &Error{Kind: KindSessionIntegrity, Message: message}
}
