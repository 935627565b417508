// Package resilience implements the Resilience Pipeline: a named registry
// of execution pipelines, each combining a per-attempt timeout, bounded
// retry with exponential backoff and jitter, and a per-candidate circuit
// breaker.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/ferrogate/gateway/internal/circuitbreaker"
)

// Classifier inspects an error returned by a pipeline body and reports
// whether it belongs to a class eligible for retry. Non-retryable errors
// (e.g. ProviderRequestError) stop the pipeline immediately.
type Classifier func(err error) (retryable bool)

// Config configures one named pipeline. Zero values fall back to
// spec.md §4.6's defaults (30s unary timeout, 2 attempts, 100ms backoff
// base).
type Config struct {
	AttemptTimeout time.Duration
	MaxAttempts    int
	BackoffBase    time.Duration
	Classify       Classifier
}

func (c Config) withDefaults() Config {
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 2
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 100 * time.Millisecond
	}
	if c.Classify == nil {
		c.Classify = func(error) bool { return true }
	}
	return c
}

// Pipeline executes a body under timeout, retry, and circuit-breaker
// control.
type Pipeline struct {
	cfg Config

	mu      sync.Mutex
	circuit map[string]*circuitbreaker.CircuitBreaker
}

// Registry is the named collection of pipelines a caller can look up by
// name, mirroring spec.md §4.6's "named registry of pipelines".
type Registry struct {
	mu        sync.Mutex
	pipelines map[string]*Pipeline
}

// NewRegistry builds an empty pipeline registry.
func NewRegistry() *Registry {
	return &Registry{pipelines: make(map[string]*Pipeline)}
}

// Register adds (or replaces) the named pipeline.
func (r *Registry) Register(name string, cfg Config) *Pipeline {
	p := &Pipeline{cfg: cfg.withDefaults(), circuit: make(map[string]*circuitbreaker.CircuitBreaker)}
	r.mu.Lock()
	r.pipelines[name] = p
	r.mu.Unlock()
	return p
}

// Get returns the named pipeline, or nil if it has not been registered.
func (r *Registry) Get(name string) *Pipeline {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pipelines[name]
}

// ErrCircuitOpen is returned when a candidate's circuit breaker rejects the
// call before any attempt is made.
var ErrCircuitOpen = circuitbreaker.ErrCircuitOpen

func (p *Pipeline) breakerFor(candidateKey string) *circuitbreaker.CircuitBreaker {
	p.mu.Lock()
	defer p.mu.Unlock()
	cb, ok := p.circuit[candidateKey]
	if !ok {
		cb = circuitbreaker.New(0, 0, 0)
		p.circuit[candidateKey] = cb
	}
	return cb
}

// Body is the unit of work a pipeline executes: one attempt against one
// candidate, given the per-attempt context.
type Body func(ctx context.Context) error

// Execute runs body through the pipeline for candidateKey: checks the
// candidate's circuit breaker, then retries up to MaxAttempts times (each
// bounded by AttemptTimeout) with exponential backoff plus jitter between
// retryable failures. Cancellation of ctx aborts immediately, skipping any
// remaining retries.
func (p *Pipeline) Execute(ctx context.Context, candidateKey string, body Body) error {
	cb := p.breakerFor(candidateKey)
	if !cb.Allow() {
		return ErrCircuitOpen
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
		err := body(attemptCtx)
		cancel()

		if err == nil {
			cb.RecordSuccess()
			return nil
		}
		lastErr = err
		cb.RecordFailure()

		if errors.Is(err, ErrAborted) {
			return err
		}
		if !p.cfg.Classify(err) {
			return err
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}
		if err := sleepBackoff(ctx, p.cfg.BackoffBase, attempt); err != nil {
			return err
		}
	}
	return lastErr
}

// ExecuteStream runs connect through the pipeline to establish a streaming
// call: the pipeline retries only the connection/initiation step. Once
// connect returns a live stream handle, the pipeline's job is done -- the
// caller enumerates chunks itself, outside any retry (spec.md §4.6: "never
// the enumeration of chunks").
func (p *Pipeline) ExecuteStream(ctx context.Context, candidateKey string, connect func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	cb := p.breakerFor(candidateKey)
	if !cb.Allow() {
		return nil, ErrCircuitOpen
	}

	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		stream, err := p.connectOnce(ctx, connect)

		if err == nil {
			cb.RecordSuccess()
			return stream, nil
		}
		lastErr = err
		cb.RecordFailure()

		if errors.Is(err, ErrAborted) {
			return nil, err
		}
		if !p.cfg.Classify(err) {
			return nil, err
		}
		if attempt == p.cfg.MaxAttempts {
			break
		}
		if err := sleepBackoff(ctx, p.cfg.BackoffBase, attempt); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// connectOnce bounds only the connect/initiation step by AttemptTimeout. It
// deliberately does NOT derive a timeout-scoped context to hand to connect:
// many streaming adapters capture the context they are given and keep
// reading from it for the stream's entire lifetime, so a context cancelled
// right after connect() returns would sever an already-flowing stream a
// moment after it started (violating spec.md §4.6's "wraps only the
// connection/initiation... never the enumeration of chunks"). Instead,
// connect runs under the caller's own ctx, and a timer races it purely to
// decide whether the attempt counts as a timeout.
func (p *Pipeline) connectOnce(ctx context.Context, connect func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	type result struct {
		stream interface{}
		err    error
	}
	resCh := make(chan result, 1)
	go func() {
		stream, err := connect(ctx)
		resCh <- result{stream, err}
	}()

	timer := time.NewTimer(p.cfg.AttemptTimeout)
	defer timer.Stop()
	select {
	case r := <-resCh:
		return r.stream, r.err
	case <-timer.C:
		return nil, context.DeadlineExceeded
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// sleepBackoff sleeps base * 2^(attempt-1), jittered by ±20%, or returns
// ctx.Err() if ctx is cancelled first.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	jitter := 1 + (rand.Float64()*0.4 - 0.2) // [0.8, 1.2)
	d = time.Duration(float64(d) * jitter)

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrAborted is returned by a body to signal the pipeline should stop
// retrying without being classified (distinct from a context cancellation).
var ErrAborted = errors.New("resilience: aborted")
