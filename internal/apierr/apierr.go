// Package apierr defines the single error shape handed to the presentation
// layer. Every failure from the ledger, the transport or local validation is
// normalized into an *Error whose Message is safe to show to the user.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for recovery purposes
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindValidation is a local check that failed before any network call
	KindValidation
	// KindUnauthorized means the ledger rejected the credential
	KindUnauthorized
	// KindRejected is a business-rule rejection reported by the ledger
	KindRejected
	// KindTransport covers network failures and undecodable responses
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindRejected:
		return "rejected"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error is the normalized {message} shape
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s", e.Op, http.StatusText(e.Status))
	}
	return e.Op + " failed"
}

func (e *Error) Unwrap() error { return e.Err }

// Validation returns a local validation failure
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// FromStatus classifies a non-2xx response
func FromStatus(op string, status int, message string) *Error {
	kind := KindRejected
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindUnauthorized
	case status >= http.StatusInternalServerError && message == "":
		kind = KindTransport
	}
	return &Error{Kind: kind, Op: op, Status: status, Message: message}
}

// Transport wraps a failure that never produced a usable response
func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

// KindOf returns the kind of err, KindUnknown if it is not an *Error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsUnauthorized reports whether err signals an invalid or expired credential
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// Normalize converts any error into an *Error with a displayable message:
// the server-supplied message when there is one, fallback otherwise.
func Normalize(err error, fallback string) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if !errors.As(err, &e) {
		return &Error{Kind: KindTransport, Message: fallback, Err: err}
	}
	out := *e
	if out.Message == "" {
		out.Message = fallback
	}
	return &out
}
