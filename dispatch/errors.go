package dispatch

import (
	"fmt"
	"time"
)

// Kind enumerates the error taxonomy of spec.md §7.
type Kind string

const (
	KindInvalidRequest       Kind = "InvalidRequest"
	KindModelUnavailable     Kind = "ModelUnavailable"
	KindProviderRequestError Kind = "ProviderRequestError"
	KindProviderAuthError    Kind = "ProviderAuthError"
	KindProviderRateLimited  Kind = "ProviderRateLimited"
	KindProviderServerError  Kind = "ProviderServerError"
	KindTimeout              Kind = "Timeout"
	KindCancelled            Kind = "Cancelled"
	KindAllProvidersFailed   Kind = "AllProvidersFailed"
	KindPayloadTooLarge      Kind = "PayloadTooLarge"
)

// Cooldown durations per spec.md §7.
const (
	authErrorCooldown  = time.Hour
	rateLimitCooldown  = 60 * time.Second
	serverErrorCooldown = 30 * time.Second
)

// Error wraps a classified failure with the provider/candidate it came
// from, matching the teacher's errors.Is/As idiom around
// circuitbreaker.ErrCircuitOpen rather than any reflection-based status
// extraction (spec.md §9).
type Error struct {
	Kind        Kind
	ProviderKey string
	StatusCode  int
	Err         error
}

func (e *Error) Error() string {
	if e.ProviderKey != "" {
		return fmt.Sprintf("%s: provider %q: %v", e.Kind, e.ProviderKey, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is a *Error with the same Kind, enabling
// errors.Is(err, &Error{Kind: KindProviderAuthError}) style checks.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newError(kind Kind, providerKey string, status int, err error) *Error {
	return &Error{Kind: kind, ProviderKey: providerKey, StatusCode: status, Err: err}
}

// AllProvidersFailed aggregates every per-candidate failure observed during
// one dispatch loop.
type AllProvidersFailed struct {
	Failures []*Error
}

func (e *AllProvidersFailed) Error() string {
	return fmt.Sprintf("dispatch: all %d candidates failed", len(e.Failures))
}

// DominantKind converts the aggregate into the highest-severity
// caller-visible class per spec.md §7's propagation rule: authentication if
// every failure was a 401, rate-limited if every failure was a 429,
// otherwise server-error.
func (e *AllProvidersFailed) DominantKind() Kind {
	if len(e.Failures) == 0 {
		return KindProviderServerError
	}
	allAuth, allRateLimited := true, true
	for _, f := range e.Failures {
		if f.Kind != KindProviderAuthError {
			allAuth = false
		}
		if f.Kind != KindProviderRateLimited {
			allRateLimited = false
		}
	}
	switch {
	case allAuth:
		return KindProviderAuthError
	case allRateLimited:
		return KindProviderRateLimited
	default:
		return KindProviderServerError
	}
}

// TransportErrorKind tags a TransportError's nature when no HTTP status is
// available (network failure, malformed body, cancellation, timeout).
type TransportErrorKind int

const (
	TransportNone TransportErrorKind = iota
	TransportParse
	TransportCancelled
	TransportTimeout
)

// TransportError is the structured failure signal an adapter reports back
// to dispatch: an HTTP status (when the upstream responded at all) plus a
// transport-level kind. This replaces the reflection-based status-code
// extraction spec.md §9 flags, in favor of a plain sum type.
type TransportError struct {
	Status int
	Kind   TransportErrorKind
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// classification is the result of classifying one TransportError: the
// caller-facing *Error, the cooldown to apply (zero means "do not mark
// unhealthy"), and whether the dispatch loop should retry the same
// candidate once more before failing over.
type classification struct {
	err       *Error
	cooldown  time.Duration
	retryable bool
}

// classifyFailure converts a TransportError into a classification, per
// spec.md §7/§4.8.
func classifyFailure(providerKey string, te *TransportError) classification {
	switch {
	case te.Kind == TransportCancelled:
		return classification{err: newError(KindCancelled, providerKey, 0, te)}
	case te.Kind == TransportTimeout:
		return classification{err: newError(KindTimeout, providerKey, 0, te), cooldown: serverErrorCooldown, retryable: true}
	case te.Status == 400 || te.Status == 404:
		return classification{err: newError(KindProviderRequestError, providerKey, te.Status, te)}
	case te.Status == 401:
		return classification{err: newError(KindProviderAuthError, providerKey, te.Status, te), cooldown: authErrorCooldown}
	case te.Status == 429:
		return classification{err: newError(KindProviderRateLimited, providerKey, te.Status, te), cooldown: rateLimitCooldown}
	case te.Status >= 500 || te.Kind == TransportParse:
		return classification{err: newError(KindProviderServerError, providerKey, te.Status, te), cooldown: serverErrorCooldown, retryable: true}
	default:
		return classification{err: newError(KindProviderServerError, providerKey, te.Status, te), cooldown: serverErrorCooldown, retryable: true}
	}
}
