// Package faults classifies pipeline errors and drives retry decisions.
package faults

import (
	"errors"
	"fmt"
)

// Kind is the failure category of a classified error.
type Kind string

const (
	KindTransient      Kind = "transient"
	KindThrottling     Kind = "throttling"
	KindAuthentication Kind = "authentication"
	KindValidation     Kind = "validation"
	KindPermanent      Kind = "permanent"
)

// Retryable reports whether errors of this kind are worth retrying.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindThrottling
}

// Error is a classified failure. Code carries the upstream error code
// when one was available, Err the wrapped cause.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error with an explicit kind.
func New(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: cause}
}

// Transientf builds a transient error.
func Transientf(format string, args ...any) *Error {
	return &Error{Kind: KindTransient, Message: fmt.Sprintf(format, args...)}
}

// Throttlingf builds a throttling error.
func Throttlingf(format string, args ...any) *Error {
	return &Error{Kind: KindThrottling, Message: fmt.Sprintf(format, args...)}
}

// Authenticationf builds an authentication error.
func Authenticationf(format string, args ...any) *Error {
	return &Error{Kind: KindAuthentication, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a validation error.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Permanentf builds a permanent error.
func Permanentf(format string, args ...any) *Error {
	return &Error{Kind: KindPermanent, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies cause by its error code and status, preserving the
// original error chain.
func Wrap(code string, httpStatus int, cause error) *Error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: Classify(code, httpStatus), Code: code, Message: msg, Err: cause}
}

// KindOf extracts the kind from an error chain. Unclassified errors
// report as transient, matching the classifier default.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

// Retryable reports whether err should be retried.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}
