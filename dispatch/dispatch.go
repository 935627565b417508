// Package dispatch implements the Dispatch Engine: the rotation loop that
// walks an ordered candidate list, skips unhealthy/quota-exhausted
// providers, executes each attempt through the resilience pipeline, and
// classifies failures for cooldown and failover.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/ferrogate/gateway/health"
	"github.com/ferrogate/gateway/internal/metrics"
	"github.com/ferrogate/gateway/internal/resilience"
	"github.com/ferrogate/gateway/internal/telemetry"
	"github.com/ferrogate/gateway/providers"
	"github.com/ferrogate/gateway/quota"
	"github.com/ferrogate/gateway/resolver"
	"github.com/ferrogate/gateway/router"
)

// ProviderLookup resolves a candidate's provider key to the live adapter
// instance that will execute the call. Kept as an interface (rather than a
// concrete map) so the gateway root package can hand dispatch its own
// registry implementation without an import cycle.
type ProviderLookup interface {
	Get(key string) (providers.Provider, bool)
}

// Engine wires the router, health store, quota tracker, resilience
// pipeline, and provider adapters together into the unary and streaming
// dispatch loops of spec.md §4.8.
type Engine struct {
	Router    *router.Router
	Health    *health.Store
	Quota     *quota.Tracker
	Pipeline  *resilience.Pipeline
	Providers ProviderLookup
	Logger    *slog.Logger

	// StreamPipeline governs streaming initiation (spec.md §4.6's 120s
	// default, vs. the unary Pipeline's 30s). Falls back to Pipeline when
	// unset, so existing callers that only set Pipeline keep working.
	StreamPipeline *resilience.Pipeline

	// Tracer supplies the TracerProvider chat.request/chat.attempt spans
	// (spec.md §4.10) are started against. Nil falls back to whatever
	// otel.SetTracerProvider last installed (a no-op provider if telemetry
	// was never configured).
	Tracer trace.TracerProvider
}

// New builds an Engine. logger may be nil, in which case slog.Default() is
// used.
func New(r *router.Router, h *health.Store, q *quota.Tracker, p *resilience.Pipeline, providerLookup ProviderLookup, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Router: r, Health: h, Quota: q, Pipeline: p, StreamPipeline: p, Providers: providerLookup, Logger: logger}
}

// streamPipeline returns the pipeline streaming initiation should run
// through: StreamPipeline when set, otherwise Pipeline.
func (e *Engine) streamPipeline() *resilience.Pipeline {
	if e.StreamPipeline != nil {
		return e.StreamPipeline
	}
	return e.Pipeline
}

func (e *Engine) tracerOrDefault() trace.TracerProvider {
	if e.Tracer != nil {
		return e.Tracer
	}
	return otel.GetTracerProvider()
}

// stripPrefix implements spec.md §8 invariant 5: if modelID is
// "<candidateKey>/<suffix>", the provider receives exactly <suffix>;
// otherwise modelID is passed through verbatim.
func stripPrefix(modelID, candidateKey string) string {
	prefix := candidateKey + "/"
	if strings.HasPrefix(modelID, prefix) {
		return strings.TrimPrefix(modelID, prefix)
	}
	return modelID
}

// cloneRequest returns a shallow copy of req with Model replaced by
// providerSpecificID, honoring the prefix-stripping rule above. Messages
// and other slice/pointer fields are shared (read-only downstream), per
// spec.md §5's "no per-request allocations beyond the exception
// accumulator and the options clone".
func cloneRequest(req providers.Request, candidate resolver.EnrichedCandidate) providers.Request {
	clone := req
	clone.Model = stripPrefix(candidate.ProviderSpecificID, candidate.ProviderKey)
	return clone
}

// GetResponse executes the unary dispatch loop of spec.md §4.8 against
// req.Model (a canonical id or alias).
func (e *Engine) GetResponse(ctx context.Context, req providers.Request) (*providers.Response, error) {
	if req.Model == "" {
		return nil, newError(KindInvalidRequest, "", 0, errMissingModel)
	}

	candidates := e.Router.GetCandidates(req.Model, false)
	if len(candidates) == 0 {
		return nil, newError(KindModelUnavailable, "", 0, errNoCandidates)
	}

	tracer := e.tracerOrDefault()
	ctx, reqSpan := telemetry.StartRequestSpan(ctx, tracer, req.Model, false)
	defer reqSpan.End()

	var failures []*Error
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, newError(KindCancelled, candidate.ProviderKey, 0, err)
		}

		if !e.Health.IsHealthy(candidate.ProviderKey) {
			metrics.AttemptsTotal.WithLabelValues(candidate.ProviderKey, "skipped_health").Inc()
			continue
		}
		if !e.Quota.IsHealthy(candidate.ProviderKey) {
			metrics.AttemptsTotal.WithLabelValues(candidate.ProviderKey, "skipped_quota").Inc()
			continue
		}

		adapter, ok := e.Providers.Get(candidate.ProviderKey)
		if !ok {
			e.Logger.Debug("dispatch: skipping candidate", "providerKey", candidate.ProviderKey, "reason", "adapter_not_registered")
			continue
		}

		attemptReq := cloneRequest(req, candidate)
		attemptCtx, attemptSpan := telemetry.StartAttemptSpan(ctx, tracer, candidate.ProviderKey, candidate.Tier)
		attemptStart := time.Now()

		var resp *providers.Response
		execErr := e.Pipeline.Execute(attemptCtx, candidate.ProviderKey, func(ac context.Context) error {
			var err error
			resp, err = adapter.Complete(ac, attemptReq)
			return err
		})
		metrics.AttemptLatencyMs.WithLabelValues(candidate.ProviderKey).Observe(float64(time.Since(attemptStart).Milliseconds()))

		if execErr == nil {
			resp.Provider = candidate.ProviderKey
			resp.EffectiveModelID = candidate.ProviderSpecificID
			e.Health.MarkSuccess(candidate.ProviderKey)
			e.Quota.RecordUsage(candidate.ProviderKey, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			metrics.AttemptsTotal.WithLabelValues(candidate.ProviderKey, "success").Inc()
			metrics.TokensTotal.WithLabelValues(candidate.ProviderKey, "input").Add(float64(resp.Usage.PromptTokens))
			metrics.TokensTotal.WithLabelValues(candidate.ProviderKey, "output").Add(float64(resp.Usage.CompletionTokens))
			telemetry.EndAttemptSpan(attemptSpan, "success", nil)
			return resp, nil
		}

		te := toTransportError(execErr)
		cls := classifyFailure(candidate.ProviderKey, te)
		if cls.cooldown > 0 {
			e.Health.MarkFailure(candidate.ProviderKey, cls.cooldown)
		}
		metrics.AttemptsTotal.WithLabelValues(candidate.ProviderKey, string(cls.err.Kind)).Inc()
		telemetry.EndAttemptSpan(attemptSpan, string(cls.err.Kind), cls.err)

		if cls.err.Kind == KindProviderRequestError {
			// Request-side error: surfaces immediately, not penalised, no
			// failover (spec.md §4.8's tie-break rules).
			return nil, cls.err
		}

		failures = append(failures, cls.err)
		e.Logger.Debug("dispatch: candidate failed", "providerKey", candidate.ProviderKey, "kind", cls.err.Kind)
	}

	agg := &AllProvidersFailed{Failures: failures}
	return nil, newError(agg.DominantKind(), "", 0, agg)
}

// GetStreamingResponse executes the streaming dispatch loop of spec.md
// §4.8. "Success" for a candidate means the adapter's streaming call
// returned a channel that yields a first chunk within the per-attempt
// timeout; once chunks are flowing, a mid-stream failure aborts the request
// rather than failing over (at-most-once semantics).
func (e *Engine) GetStreamingResponse(ctx context.Context, req providers.Request) (<-chan providers.StreamChunk, error) {
	if req.Model == "" {
		return nil, newError(KindInvalidRequest, "", 0, errMissingModel)
	}

	candidates := e.Router.GetCandidates(req.Model, true)
	if len(candidates) == 0 {
		return nil, newError(KindModelUnavailable, "", 0, errNoCandidates)
	}

	tracer := e.tracerOrDefault()
	ctx, reqSpan := telemetry.StartRequestSpan(ctx, tracer, req.Model, true)

	var failures []*Error
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			reqSpan.End()
			return nil, newError(KindCancelled, candidate.ProviderKey, 0, err)
		}

		if !e.Health.IsHealthy(candidate.ProviderKey) {
			metrics.AttemptsTotal.WithLabelValues(candidate.ProviderKey, "skipped_health").Inc()
			continue
		}
		if !e.Quota.IsHealthy(candidate.ProviderKey) {
			metrics.AttemptsTotal.WithLabelValues(candidate.ProviderKey, "skipped_quota").Inc()
			continue
		}

		streamAdapter, ok := e.streamProvider(candidate.ProviderKey)
		if !ok {
			continue
		}

		attemptReq := cloneRequest(req, candidate)
		attemptReq.Stream = true

		attemptCtx, attemptSpan := telemetry.StartAttemptSpan(ctx, tracer, candidate.ProviderKey, candidate.Tier)
		attemptStart := time.Now()
		upstream, connectErr := e.streamPipeline().ExecuteStream(attemptCtx, candidate.ProviderKey, func(ac context.Context) (interface{}, error) {
			return streamAdapter.CompleteStream(ac, attemptReq)
		})
		metrics.AttemptLatencyMs.WithLabelValues(candidate.ProviderKey).Observe(float64(time.Since(attemptStart).Milliseconds()))

		if connectErr != nil {
			te := toTransportError(connectErr)
			cls := classifyFailure(candidate.ProviderKey, te)
			if cls.cooldown > 0 {
				e.Health.MarkFailure(candidate.ProviderKey, cls.cooldown)
			}
			metrics.AttemptsTotal.WithLabelValues(candidate.ProviderKey, string(cls.err.Kind)).Inc()
			telemetry.EndAttemptSpan(attemptSpan, string(cls.err.Kind), cls.err)
			if cls.err.Kind == KindProviderRequestError {
				reqSpan.End()
				return nil, cls.err
			}
			failures = append(failures, cls.err)
			continue
		}

		e.Health.MarkSuccess(candidate.ProviderKey)
		metrics.AttemptsTotal.WithLabelValues(candidate.ProviderKey, "success").Inc()
		telemetry.EndAttemptSpan(attemptSpan, "success", nil)
		upstreamChan := upstream.(<-chan providers.StreamChunk)
		return e.relayStream(reqSpan, candidate, upstreamChan), nil
	}

	reqSpan.End()
	agg := &AllProvidersFailed{Failures: failures}
	return nil, newError(agg.DominantKind(), "", 0, agg)
}

// relayStream re-yields every chunk from upstream, annotated with the
// candidate's provider metadata. It records no token usage in the quota
// tracker (StreamChunk carries no usage). It never switches providers
// mid-stream: on upstream error or close, the output channel closes too.
func (e *Engine) relayStream(reqSpan trace.Span, candidate resolver.EnrichedCandidate, upstream <-chan providers.StreamChunk) <-chan providers.StreamChunk {
	out := make(chan providers.StreamChunk)
	go func() {
		defer close(out)
		defer reqSpan.End()
		for chunk := range upstream {
			chunk.Provider = candidate.ProviderKey
			chunk.EffectiveModelID = candidate.ProviderSpecificID
			out <- chunk
			if chunk.Error != nil {
				return
			}
		}
	}()
	return out
}

func (e *Engine) streamProvider(key string) (providers.StreamProvider, bool) {
	adapter, ok := e.Providers.Get(key)
	if !ok {
		return nil, false
	}
	sp, ok := adapter.(providers.StreamProvider)
	return sp, ok
}

// toTransportError coerces an arbitrary adapter error into a *TransportError
// for classification. Adapters that already return a *TransportError pass
// through; a *providers.StatusError (the shape every REST adapter returns
// for a non-2xx upstream response) contributes its status code; a
// *providers.TransportError (wrapTransportErr's output, for failures below
// the HTTP-status layer) contributes its status when it carries one;
// context deadline/cancellation map onto the matching transport kind;
// anything else is treated as an opaque server-side failure.
func toTransportError(err error) *TransportError {
	var te *TransportError
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Kind: TransportTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &TransportError{Kind: TransportCancelled, Err: err}
	}
	var se *providers.StatusError
	if errors.As(err, &se) {
		return &TransportError{Status: se.StatusCode, Err: err}
	}
	var pte *providers.TransportError
	if errors.As(err, &pte) && pte.Status != 0 {
		return &TransportError{Status: pte.Status, Err: err}
	}
	return &TransportError{Kind: TransportNone, Err: err}
}

// ClassifyRetryable reports whether err, returned by a provider adapter
// attempt, is eligible for an immediate same-candidate retry inside the
// resilience pipeline: transient timeouts and 5xx/parse failures are, 4xx
// client errors are not (spec.md §7). Resilience registries wire this in
// directly as their Classify callback so the taxonomy has one definition.
func ClassifyRetryable(err error) bool {
	return classifyFailure("", toTransportError(err)).retryable
}
