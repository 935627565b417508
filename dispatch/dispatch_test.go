package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ferrogate/gateway/health"
	"github.com/ferrogate/gateway/internal/resilience"
	"github.com/ferrogate/gateway/providers"
	"github.com/ferrogate/gateway/quota"
	"github.com/ferrogate/gateway/registry"
	"github.com/ferrogate/gateway/resolver"
	"github.com/ferrogate/gateway/router"
)

// fakeProvider is a minimal providers.Provider/StreamProvider test double.
type fakeProvider struct {
	name      string
	responses []fakeOutcome
	call      int
}

type fakeOutcome struct {
	resp *providers.Response
	err  error
}

func (f *fakeProvider) Name() string                        { return f.name }
func (f *fakeProvider) SupportedModels() []string            { return nil }
func (f *fakeProvider) SupportsModel(string) bool            { return true }
func (f *fakeProvider) Models() []providers.ModelInfo        { return nil }

func (f *fakeProvider) Complete(ctx context.Context, req providers.Request) (*providers.Response, error) {
	if f.call >= len(f.responses) {
		return nil, errors.New("fakeProvider: out of scripted responses")
	}
	o := f.responses[f.call]
	f.call++
	if o.err != nil {
		return nil, o.err
	}
	resp := *o.resp
	resp.Model = req.Model
	return &resp, nil
}

type fakeLookup struct {
	byKey map[string]providers.Provider
}

func (l *fakeLookup) Get(key string) (providers.Provider, bool) {
	p, ok := l.byKey[key]
	return p, ok
}

func newTestEngine(t *testing.T, providersByKey map[string]providers.Provider) (*Engine, *health.Store, *quota.Tracker) {
	t.Helper()
	reg, err := registry.New(registry.Document{
		Providers: map[string]registry.ProviderConfig{
			"a": {Key: "a", Type: "openai", Enabled: true, Tier: 0},
			"b": {Key: "b", Type: "groq", Enabled: true, Tier: 1},
		},
		Models: []registry.CanonicalModel{
			{ID: "m", Capabilities: registry.Capabilities{Streaming: true}},
		},
		Bindings: []registry.ProviderModelBinding{
			{ProviderKey: "a", CanonicalID: "m", ProviderSpecificID: "meta-llama-3", IsAvailable: true},
			{ProviderKey: "b", CanonicalID: "m", ProviderSpecificID: "llama3-70b-8192", IsAvailable: true},
		},
	})
	if err != nil {
		t.Fatalf("registry.New() error: %v", err)
	}

	res := resolver.New(reg)
	rt := router.New(res, router.Priority, nil) // Priority keeps ordering deterministic for tests
	hs := health.NewStore(nil)
	qt := quota.NewTracker()
	pipelineReg := resilience.NewRegistry()
	pipeline := pipelineReg.Register("provider-retry", resilience.Config{
		AttemptTimeout: time.Second,
		MaxAttempts:    2,
		BackoffBase:    time.Millisecond,
		Classify: func(err error) bool {
			te := toTransportError(err)
			return classifyFailure("", te).retryable
		},
	})

	lookup := &fakeLookup{byKey: providersByKey}
	engine := New(rt, hs, qt, pipeline, lookup, slog.Default())
	return engine, hs, qt
}

func TestGetResponseDispatchesToTierZero(t *testing.T) {
	engine, _, _ := newTestEngine(t, map[string]providers.Provider{
		"a": &fakeProvider{name: "a", responses: []fakeOutcome{{resp: &providers.Response{ID: "1", Usage: providers.Usage{PromptTokens: 3, CompletionTokens: 5}}}}},
		"b": &fakeProvider{name: "b", responses: []fakeOutcome{{resp: &providers.Response{ID: "2"}}}},
	})

	resp, err := engine.GetResponse(context.Background(), providers.Request{Model: "m", Messages: []providers.Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "a" {
		t.Fatalf("expected dispatch to tier-0 provider a, got %s", resp.Provider)
	}
	if resp.EffectiveModelID != "meta-llama-3" {
		t.Fatalf("expected effective model id meta-llama-3, got %s", resp.EffectiveModelID)
	}
}

func TestGetResponseFailsOverOnServerError(t *testing.T) {
	engine, hs, qt := newTestEngine(t, map[string]providers.Provider{
		"a": &fakeProvider{name: "a", responses: []fakeOutcome{
			{err: &TransportError{Status: 503}},
			{err: &TransportError{Status: 503}},
		}},
		"b": &fakeProvider{name: "b", responses: []fakeOutcome{
			{resp: &providers.Response{ID: "2", Usage: providers.Usage{PromptTokens: 3, CompletionTokens: 5}}},
		}},
	})

	resp, err := engine.GetResponse(context.Background(), providers.Request{Model: "m", Messages: []providers.Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "b" {
		t.Fatalf("expected failover to provider b, got %s", resp.Provider)
	}
	if hs.IsHealthy("a") {
		t.Fatalf("expected provider a to be in cooldown after 503s")
	}
	_, tokens := qt.Usage("b")
	if tokens != 8 {
		t.Fatalf("expected provider b to record 8 tokens of usage, got %d", tokens)
	}
}

func TestGetResponseDoesNotFailoverOnRequestError(t *testing.T) {
	engine, hs, _ := newTestEngine(t, map[string]providers.Provider{
		"a": &fakeProvider{name: "a", responses: []fakeOutcome{{err: &TransportError{Status: 400}}}},
		"b": &fakeProvider{name: "b", responses: []fakeOutcome{{resp: &providers.Response{ID: "2"}}}},
	})

	_, err := engine.GetResponse(context.Background(), providers.Request{Model: "m", Messages: []providers.Message{{Role: "user", Content: "hi"}}})
	var dispatchErr *Error
	if !errors.As(err, &dispatchErr) || dispatchErr.Kind != KindProviderRequestError {
		t.Fatalf("expected ProviderRequestError surfaced directly, got %v", err)
	}
	if !hs.IsHealthy("a") {
		t.Fatalf("expected provider a to remain healthy after a 400 (not penalised)")
	}
}

func TestGetResponseAllProvidersFailedOn401s(t *testing.T) {
	engine, hs, _ := newTestEngine(t, map[string]providers.Provider{
		"a": &fakeProvider{name: "a", responses: []fakeOutcome{{err: &TransportError{Status: 401}}}},
		"b": &fakeProvider{name: "b", responses: []fakeOutcome{{err: &TransportError{Status: 401}}}},
	})

	_, err := engine.GetResponse(context.Background(), providers.Request{Model: "m", Messages: []providers.Message{{Role: "user", Content: "hi"}}})
	var dispatchErr *Error
	if !errors.As(err, &dispatchErr) || dispatchErr.Kind != KindProviderAuthError {
		t.Fatalf("expected aggregated ProviderAuthError, got %v", err)
	}
	if hs.IsHealthy("a") || hs.IsHealthy("b") {
		t.Fatalf("expected both providers in cooldown after 401s")
	}
}

func TestGetResponseSkipsUnhealthyCandidate(t *testing.T) {
	engine, hs, _ := newTestEngine(t, map[string]providers.Provider{
		"a": &fakeProvider{name: "a", responses: []fakeOutcome{{resp: &providers.Response{ID: "should-not-be-called"}}}},
		"b": &fakeProvider{name: "b", responses: []fakeOutcome{{resp: &providers.Response{ID: "2"}}}},
	})
	hs.MarkFailure("a", time.Hour)

	resp, err := engine.GetResponse(context.Background(), providers.Request{Model: "m", Messages: []providers.Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Provider != "b" {
		t.Fatalf("expected unhealthy provider a to be skipped in favor of b, got %s", resp.Provider)
	}
}

func TestGetResponseMissingModelIsInvalidRequest(t *testing.T) {
	engine, _, _ := newTestEngine(t, nil)
	_, err := engine.GetResponse(context.Background(), providers.Request{})
	var dispatchErr *Error
	if !errors.As(err, &dispatchErr) || dispatchErr.Kind != KindInvalidRequest {
		t.Fatalf("expected InvalidRequest for missing model id, got %v", err)
	}
}

func TestStripPrefixInvariant(t *testing.T) {
	if got := stripPrefix("a/llama-3.3-70b", "a"); got != "llama-3.3-70b" {
		t.Fatalf("expected prefix stripped, got %q", got)
	}
	if got := stripPrefix("llama-3.3-70b", "a"); got != "llama-3.3-70b" {
		t.Fatalf("expected verbatim passthrough with no prefix match, got %q", got)
	}
}
