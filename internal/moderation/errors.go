package moderation

import (
	"errors"
	"fmt"
	"time"

	"github.com/sujalbistaa/stickyboard/internal/models"
)

// Kind is the transport-agnostic failure class of a core operation.
type Kind string

const (
	KindValidationFailed  Kind = "VALIDATION_FAILED"
	KindRateLimitExceeded Kind = "RATE_LIMIT_EXCEEDED"
	KindNotFound          Kind = "NOT_FOUND"
	KindAlreadyDeleted    Kind = "ALREADY_DELETED"
	KindNotDeleted        Kind = "NOT_DELETED"
	KindIllegalTransition Kind = "ILLEGAL_TRANSITION"
	KindMissingReason     Kind = "MISSING_REASON"
)

// Error is the tagged failure returned by every public operation. Only the
// fields relevant to Kind are set.
type Error struct {
	Kind    Kind
	ID      string
	Field   string
	Reason  string
	ResetAt time.Time
	From    models.Status
	To      models.Status
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindValidationFailed:
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
	case KindRateLimitExceeded:
		return fmt.Sprintf("rate limit exceeded until %s", e.ResetAt.UTC().Format(time.RFC3339))
	case KindIllegalTransition:
		return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
	case KindMissingReason:
		return "reason is required"
	case KindNotFound:
		return "not found"
	case KindAlreadyDeleted:
		return "already deleted"
	case KindNotDeleted:
		return "not deleted"
	}
	return string(e.Kind)
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of the detail fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidationFailed  = &Error{Kind: KindValidationFailed}
	ErrRateLimitExceeded = &Error{Kind: KindRateLimitExceeded}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrAlreadyDeleted    = &Error{Kind: KindAlreadyDeleted}
	ErrNotDeleted        = &Error{Kind: KindNotDeleted}
	ErrIllegalTransition = &Error{Kind: KindIllegalTransition}
	ErrMissingReason     = &Error{Kind: KindMissingReason}
)

func ValidationFailed(field, reason string) *Error {
	return &Error{Kind: KindValidationFailed, Field: field, Reason: reason}
}

func RateLimitExceeded(resetAt time.Time) *Error {
	return &Error{Kind: KindRateLimitExceeded, ResetAt: resetAt}
}

func NotFound(id string) *Error { return &Error{Kind: KindNotFound, ID: id} }

func AlreadyDeleted(id string) *Error { return &Error{Kind: KindAlreadyDeleted, ID: id} }

func NotDeleted(id string) *Error { return &Error{Kind: KindNotDeleted, ID: id} }

func IllegalTransition(from, to models.Status) *Error {
	return &Error{Kind: KindIllegalTransition, From: from, To: to}
}

func MissingReason(field string) *Error {
	return &Error{Kind: KindMissingReason, Field: field}
}

// KindOf returns the Kind of err, or "" for errors outside the taxonomy
// (storage failures, cancelled contexts).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
