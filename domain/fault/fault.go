// Package fault classifies errors crossing component boundaries so that
// retry policy and surfacing decisions can be made without inspecting
// dependency-specific error types.
package fault

import (
	"errors"
	"fmt"
	"time"
)

// Kind enumerates the error classes the service distinguishes.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation rejects bad inputs: malformed URLs, empty titles,
	// negative ordering, duplicate unique sections.
	KindValidation
	// KindInvalidTransition rejects a forbidden state-machine edge.
	KindInvalidTransition
	// KindNotFound indicates a missing aggregate by id or key.
	KindNotFound
	// KindConflict indicates a uniqueness violation: duplicate fullName,
	// duplicate branch, duplicate entity id write.
	KindConflict
	// KindSourceAuth indicates the source host rejected the credential.
	KindSourceAuth
	// KindSourceNotFound indicates the repository does not exist on the host.
	KindSourceNotFound
	// KindSourceUnavailable indicates the source host failed transiently.
	KindSourceUnavailable
	// KindRateLimited indicates the source host throttled the caller.
	KindRateLimited
	// KindTransientDependency indicates a retryable LLM/index/graph failure.
	KindTransientDependency
	// KindPermanentDependency indicates a non-retryable dependency failure.
	KindPermanentDependency
	// KindQuotaExceeded indicates a per-minute or per-day budget was hit.
	KindQuotaExceeded
	// KindTimeout indicates a per-call time budget elapsed.
	KindTimeout
)

// String returns the kind name used in logs and event payloads.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindSourceAuth:
		return "source_auth"
	case KindSourceNotFound:
		return "source_not_found"
	case KindSourceUnavailable:
		return "source_unavailable"
	case KindRateLimited:
		return "rate_limited"
	case KindTransientDependency:
		return "transient_dependency"
	case KindPermanentDependency:
		return "permanent_dependency"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error is a classified error. It wraps an optional cause and may carry a
// retry-after hint supplied by a rate-limited dependency.
type Error struct {
	kind       Kind
	msg        string
	cause      error
	retryAfter time.Duration
}

// New creates a classified error with a message.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error. The cause remains reachable through
// errors.Is / errors.As.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{kind: kind, msg: msg, cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Kind returns the error classification.
func (e *Error) Kind() Kind { return e.kind }

// Message returns the message without the kind prefix or cause.
func (e *Error) Message() string { return e.msg }

// RetryAfter returns the dependency-supplied retry hint (zero if none).
func (e *Error) RetryAfter() time.Duration { return e.retryAfter }

// WithRetryAfter returns a copy carrying a retry-after hint.
func (e *Error) WithRetryAfter(d time.Duration) *Error {
	cp := *e
	cp.retryAfter = d
	return &cp
}

// Validation creates a KindValidation error.
func Validation(msg string) *Error { return New(KindValidation, msg) }

// Validationf creates a formatted KindValidation error.
func Validationf(format string, args ...any) *Error {
	return Newf(KindValidation, format, args...)
}

// InvalidTransition creates a KindInvalidTransition error describing the
// rejected edge.
func InvalidTransition(entity, from, to string) *Error {
	return Newf(KindInvalidTransition, "%s cannot transition from %s to %s", entity, from, to)
}

// NotFound creates a KindNotFound error.
func NotFound(msg string) *Error { return New(KindNotFound, msg) }

// NotFoundf creates a formatted KindNotFound error.
func NotFoundf(format string, args ...any) *Error {
	return Newf(KindNotFound, format, args...)
}

// Conflict creates a KindConflict error.
func Conflict(msg string) *Error { return New(KindConflict, msg) }

// KindOf extracts the classification from an error chain.
// Unclassified errors report KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.kind
	}
	return KindUnknown
}

// Is reports whether the error chain carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the error chain carries a kind that the retry
// policy is allowed to retry.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransientDependency, KindSourceUnavailable, KindRateLimited, KindTimeout:
		return true
	default:
		return false
	}
}

// RetryAfterHint extracts a retry-after hint from an error chain, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var fe *Error
	if errors.As(err, &fe) && fe.retryAfter > 0 {
		return fe.retryAfter, true
	}
	return 0, false
}
