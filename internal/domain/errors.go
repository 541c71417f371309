package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so callers can react without parsing messages.
type ErrorKind string

const (
	KindValidation         ErrorKind = "validation"
	KindInsufficientFunds  ErrorKind = "insufficient_funds"
	KindInsufficientShares ErrorKind = "insufficient_shares"
	KindPositionNotFound   ErrorKind = "position_not_found"
	KindPriceUnavailable   ErrorKind = "price_unavailable"
	KindPersistence        ErrorKind = "persistence"
	// KindConflict marks a lost optimistic update. It is retried internally and
	// only escapes as KindPersistence.
	KindConflict ErrorKind = "conflict"
)

// Sentinel errors for errors.Is checks. Matching is by kind only.
var (
	ErrValidation         = &Error{Kind: KindValidation}
	ErrInsufficientFunds  = &Error{Kind: KindInsufficientFunds}
	ErrInsufficientShares = &Error{Kind: KindInsufficientShares}
	ErrPositionNotFound   = &Error{Kind: KindPositionNotFound}
	ErrPriceUnavailable   = &Error{Kind: KindPriceUnavailable}
	ErrPersistence        = &Error{Kind: KindPersistence}
	ErrConflict           = &Error{Kind: KindConflict}
)

// Error is a classified domain error carrying a human-readable message.
type Error struct {
	Err     error
	Kind    ErrorKind
	Message string
}

// NewError builds a classified error with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError classifies an underlying error.
func WrapError(kind ErrorKind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return e.Message
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a domain error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first domain error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsBusinessRejection reports whether err is a rule violation detected before any mutation.
func IsBusinessRejection(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindInsufficientFunds, KindInsufficientShares, KindPositionNotFound:
		return true
	}
	return false
}
