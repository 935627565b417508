// Package normalizer implements the Request/Response Normalizer: parsing
// and validating the OpenAI-compatible inbound body, and framing outbound
// SSE chunks.
package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/ferrogate/gateway/providers"
)

// DefaultMaxRequestBodySize is the spec.md §4.9 default of 30 MiB.
const DefaultMaxRequestBodySize = 30 * 1024 * 1024

var validRoles = map[string]bool{
	providers.RoleSystem:    true,
	providers.RoleUser:      true,
	providers.RoleAssistant: true,
	providers.RoleTool:      true,
}

// ErrPayloadTooLarge is returned when the inbound body exceeds the
// configured max size.
var ErrPayloadTooLarge = errors.New("normalizer: request body exceeds maximum size")

// ParseRequest reads and validates an OpenAI-compatible chat completion
// body from r, bounded by maxBodySize (0 uses DefaultMaxRequestBodySize).
// Grounded on the teacher's providers.Message custom JSON handling
// (string-or-array content) and on 21f19653...router.go's mwMaxBodySize
// http.MaxBytesReader guard.
func ParseRequest(r io.Reader, maxBodySize int64) (providers.Request, error) {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxRequestBodySize
	}

	limited := http.MaxBytesReader(nil, io.NopCloser(r), maxBodySize)
	body, err := io.ReadAll(limited)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return providers.Request{}, ErrPayloadTooLarge
		}
		return providers.Request{}, fmt.Errorf("normalizer: reading request body: %w", err)
	}

	var req providers.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return providers.Request{}, fmt.Errorf("normalizer: decoding request body: %w", err)
	}

	if err := Validate(req); err != nil {
		return providers.Request{}, err
	}
	return req, nil
}

// Validate checks the structural invariants spec.md §4.9 requires beyond
// providers.Request.Validate: non-empty messages, known roles, UTF-8
// content.
func Validate(req providers.Request) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("normalizer: %w", err)
	}
	for i, m := range req.Messages {
		if !validRoles[m.Role] {
			return fmt.Errorf("normalizer: message %d: unknown role %q", i, m.Role)
		}
		if !utf8.ValidString(m.Content) {
			return fmt.Errorf("normalizer: message %d: content is not valid UTF-8", i)
		}
	}
	return nil
}

// EstimateTokens implements the chars/4 fallback heuristic spec.md §9
// names for providers that omit usage, grounded on
// 073b80e3_jordanhubbard-tokenhub__internal-router-engine.go.go's
// EstimateTokens. Always returns at least 1.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// EstimateUsage fills in a Usage record from message/response text when a
// provider did not report token counts, marking Estimated so telemetry can
// distinguish it from provider-reported usage.
func EstimateUsage(promptText, completionText string) providers.Usage {
	in := EstimateTokens(promptText)
	out := EstimateTokens(completionText)
	return providers.Usage{
		PromptTokens:     in,
		CompletionTokens: out,
		TotalTokens:      in + out,
		Estimated:        true,
	}
}
