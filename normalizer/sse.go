package normalizer

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ferrogate/gateway/providers"
)

// FrameSSE encodes chunk as a single SSE data frame: "data: <json>\n\n".
// Generalized from cmd/ferrogw/main.go's writeSSE into a reusable framer
// per spec.md §4.9/§6's exact frame format.
func FrameSSE(chunk providers.StreamChunk) ([]byte, error) {
	body, err := json.Marshal(chunk)
	if err != nil {
		return nil, fmt.Errorf("normalizer: encoding stream chunk: %w", err)
	}
	return []byte("data: " + string(body) + "\n\n"), nil
}

// DoneFrame is the terminal SSE sentinel frame, emitted exactly once after
// the last ChatResponseUpdate.
const DoneFrame = "data: " + providers.SSEDone + "\n\n"

// WriteStream drains chunks to w as SSE frames, flushing after each one, and
// writes DoneFrame on a clean close. It stops early (without DoneFrame) if a
// chunk carries a non-nil Error, since the client has already observed
// output from this provider and no fallback is attempted (spec.md §4.8's
// at-most-once streaming semantics).
func WriteStream(w http.ResponseWriter, chunks <-chan providers.StreamChunk) error {
	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for chunk := range chunks {
		if chunk.Error != nil {
			return chunk.Error
		}
		frame, err := FrameSSE(chunk)
		if err != nil {
			return err
		}
		if _, err := w.Write(frame); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if _, err := w.Write([]byte(DoneFrame)); err != nil {
		return err
	}
	if flusher != nil {
		flusher.Flush()
	}
	return nil
}
