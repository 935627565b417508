package dispatch

import (
	"errors"
	"testing"
	"time"
)

func TestClassifyFailureMapsStatusToKindAndCooldown(t *testing.T) {
	cases := []struct {
		name         string
		te           *TransportError
		wantKind     Kind
		wantCooldown time.Duration
		wantRetry    bool
	}{
		{"bad request", &TransportError{Status: 400}, KindProviderRequestError, 0, false},
		{"not found", &TransportError{Status: 404}, KindProviderRequestError, 0, false},
		{"unauthorized", &TransportError{Status: 401}, KindProviderAuthError, time.Hour, false},
		{"rate limited", &TransportError{Status: 429}, KindProviderRateLimited, 60 * time.Second, false},
		{"server error", &TransportError{Status: 503}, KindProviderServerError, 30 * time.Second, true},
		{"malformed frame", &TransportError{Kind: TransportParse}, KindProviderServerError, 30 * time.Second, true},
		{"timeout", &TransportError{Kind: TransportTimeout}, KindTimeout, 30 * time.Second, true},
		{"cancelled", &TransportError{Kind: TransportCancelled}, KindCancelled, 0, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := classifyFailure("p", c.te)
			if got.err.Kind != c.wantKind {
				t.Fatalf("expected kind %s, got %s", c.wantKind, got.err.Kind)
			}
			if got.cooldown != c.wantCooldown {
				t.Fatalf("expected cooldown %v, got %v", c.wantCooldown, got.cooldown)
			}
			if got.retryable != c.wantRetry {
				t.Fatalf("expected retryable=%v, got %v", c.wantRetry, got.retryable)
			}
		})
	}
}

func TestAllProvidersFailedDominantKind(t *testing.T) {
	allAuth := &AllProvidersFailed{Failures: []*Error{
		newError(KindProviderAuthError, "a", 401, errors.New("x")),
		newError(KindProviderAuthError, "b", 401, errors.New("x")),
	}}
	if allAuth.DominantKind() != KindProviderAuthError {
		t.Fatalf("expected ProviderAuthError when every failure is 401")
	}

	mixed := &AllProvidersFailed{Failures: []*Error{
		newError(KindProviderAuthError, "a", 401, errors.New("x")),
		newError(KindProviderServerError, "b", 503, errors.New("x")),
	}}
	if mixed.DominantKind() != KindProviderServerError {
		t.Fatalf("expected ProviderServerError fallback for mixed failures")
	}
}

func TestErrorIsMatchesByKind(t *testing.T) {
	err := newError(KindProviderAuthError, "a", 401, errors.New("x"))
	if !errors.Is(err, &Error{Kind: KindProviderAuthError}) {
		t.Fatalf("expected errors.Is to match by Kind")
	}
	if errors.Is(err, &Error{Kind: KindTimeout}) {
		t.Fatalf("expected errors.Is not to match a different Kind")
	}
}
