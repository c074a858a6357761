package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation            Kind = "ValidationError"
	KindConflict              Kind = "ConflictError"
	KindInvalidTransition     Kind = "InvalidTransitionError"
	KindForbidden             Kind = "ForbiddenError"
	KindExpiredOffer          Kind = "ExpiredOfferError"
	KindMissingWallet         Kind = "MissingWalletError"
	KindInvalidPrice          Kind = "InvalidPriceError"
	KindDisputeBlocking       Kind = "DisputeBlockingError"
	KindNotFound              Kind = "NotFoundError"
	KindDependencyUnavailable Kind = "DependencyUnavailableError"
	KindUnauthorized          Kind = "UnauthorizedError"
	KindInternal              Kind = "InternalError"
)

// Error is the only error type that crosses a service boundary. Message is safe
// to show to callers; Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so callers can write errors.Is(err, apperr.ErrConflict).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrValidation            = &Error{Kind: KindValidation}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrInvalidTransition     = &Error{Kind: KindInvalidTransition}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrExpiredOffer          = &Error{Kind: KindExpiredOffer}
	ErrMissingWallet         = &Error{Kind: KindMissingWallet}
	ErrInvalidPrice          = &Error{Kind: KindInvalidPrice}
	ErrDisputeBlocking       = &Error{Kind: KindDisputeBlocking}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrDependencyUnavailable = &Error{Kind: KindDependencyUnavailable}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

func InvalidTransition(format string, args ...any) *Error {
	return New(KindInvalidTransition, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return New(KindForbidden, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// KindOf classifies any error. Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Classify returns err as an *Error, wrapping unclassified errors as internal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindInternal, err, "internal error")
}
