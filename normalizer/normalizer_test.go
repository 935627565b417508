package normalizer

import (
	"strings"
	"testing"

	"github.com/ferrogate/gateway/providers"
)

func TestParseRequestValid(t *testing.T) {
	body := `{"model":"m","messages":[{"role":"user","content":"hi"}]}`
	req, err := ParseRequest(strings.NewReader(body), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Model != "m" || len(req.Messages) != 1 {
		t.Fatalf("unexpected parsed request: %+v", req)
	}
}

func TestParseRequestRejectsOversizeBody(t *testing.T) {
	body := `{"model":"m","messages":[{"role":"user","content":"` + strings.Repeat("x", 1000) + `"}]}`
	_, err := ParseRequest(strings.NewReader(body), 100)
	if err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestValidateRejectsEmptyMessages(t *testing.T) {
	err := Validate(providers.Request{Model: "m"})
	if err == nil {
		t.Fatalf("expected error for empty messages")
	}
}

func TestValidateRejectsUnknownRole(t *testing.T) {
	err := Validate(providers.Request{
		Model:    "m",
		Messages: []providers.Message{{Role: "narrator", Content: "hi"}},
	})
	if err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestValidateAcceptsKnownRoles(t *testing.T) {
	for _, role := range []string{"system", "user", "assistant", "tool"} {
		err := Validate(providers.Request{
			Model:    "m",
			Messages: []providers.Message{{Role: role, Content: "hi"}},
		})
		if err != nil {
			t.Fatalf("expected role %q to be accepted, got %v", role, err)
		}
	}
}

func TestEstimateTokensFloorsAtOne(t *testing.T) {
	if got := EstimateTokens(""); got != 1 {
		t.Fatalf("expected EstimateTokens(\"\") = 1, got %d", got)
	}
	if got := EstimateTokens("12345678"); got != 2 {
		t.Fatalf("expected EstimateTokens of 8 chars = 2, got %d", got)
	}
}

func TestEstimateUsageMarksEstimated(t *testing.T) {
	u := EstimateUsage("hello world", "hi there")
	if !u.Estimated {
		t.Fatalf("expected Estimated=true")
	}
	if u.TotalTokens != u.PromptTokens+u.CompletionTokens {
		t.Fatalf("expected total = prompt + completion")
	}
}

func TestFrameSSEFormat(t *testing.T) {
	frame, err := FrameSSE(providers.StreamChunk{ID: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := string(frame)
	if !strings.HasPrefix(s, "data: ") || !strings.HasSuffix(s, "\n\n") {
		t.Fatalf("expected SSE frame format, got %q", s)
	}
}

func TestDoneFrameIsExactSentinel(t *testing.T) {
	if DoneFrame != "data: [DONE]\n\n" {
		t.Fatalf("expected exact DONE sentinel frame, got %q", DoneFrame)
	}
}
