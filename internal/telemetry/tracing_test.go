package telemetry

import (
	"context"
	"errors"
	"testing"
)

func TestNewProviderNoopWhenEndpointEmpty(t *testing.T) {
	tp, shutdown, err := NewProvider(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tp == nil {
		t.Fatalf("expected a non-nil no-op provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("expected no-op shutdown to succeed, got %v", err)
	}
}

func TestRequestAndAttemptSpansDoNotPanic(t *testing.T) {
	tp, _, err := NewProvider(context.Background(), Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, span := StartRequestSpan(context.Background(), tp, "llama-3.3-70b", true)
	if ctx == nil || span == nil {
		t.Fatalf("expected non-nil context and span")
	}

	attemptCtx, attemptSpan := StartAttemptSpan(ctx, tp, "a", 0)
	if attemptCtx == nil || attemptSpan == nil {
		t.Fatalf("expected non-nil attempt context and span")
	}
	EndAttemptSpan(attemptSpan, "success", nil)
	EndAttemptSpan(span, "success", errors.New("should still not panic when recording on an ended span"))
}
