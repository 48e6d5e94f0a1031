// Package apperr carries the structured errors reported by the engine and
// its collaborators. Nothing in this taxonomy is fatal to the process: each
// kind is meant to be surfaced to the caller for display.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind int

const (
	KindInternal Kind = iota
	// KindValidation rejects an operation before any mutation happens.
	KindValidation
	// KindNotFound reports an id that no longer exists. Callers treat it as a no-op.
	KindNotFound
	// KindParseDegraded reports a field that could not be normalized; the
	// record it belongs to is kept.
	KindParseDegraded
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFoundError"
	case KindParseDegraded:
		return "ParseDegraded"
	default:
		return "InternalError"
	}
}

// Error is the single error type used across the engine.
type Error struct {
	Kind    Kind
	Message string
	Detail  string
	Cause   error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithDetail returns a copy of e with Detail set.
func (e *Error) WithDetail(detail string) *Error {
	if e == nil {
		return nil
	}
	clone := *e
	clone.Detail = detail
	return &clone
}

func Validation(msg string) *Error { return &Error{Kind: KindValidation, Message: msg} }

func NotFound(msg string) *Error { return &Error{Kind: KindNotFound, Message: msg} }

func Degraded(msg string) *Error { return &Error{Kind: KindParseDegraded, Message: msg} }

// Wrap attaches cause to a new Error of the given kind. A nil cause yields nil.
func Wrap(cause error, kind Kind, msg string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func IsValidation(err error) bool { return err != nil && KindOf(err) == KindValidation }

func IsNotFound(err error) bool { return err != nil && KindOf(err) == KindNotFound }

func IsDegraded(err error) bool { return err != nil && KindOf(err) == KindParseDegraded }
