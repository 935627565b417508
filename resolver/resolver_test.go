package resolver

import (
	"testing"

	"github.com/ferrogate/gateway/registry"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(registry.Document{
		Providers: map[string]registry.ProviderConfig{
			"tier0": {Key: "tier0", Type: "openai", Enabled: true, Tier: 0, QualityScore: 5},
			"tier1": {Key: "tier1", Type: "groq", Enabled: true, Tier: 1, QualityScore: 9},
			"disabled": {Key: "disabled", Type: "openai", Enabled: false, Tier: 0},
			"no-stream": {Key: "no-stream", Type: "replicate", Enabled: true, Tier: 0},
		},
		Models: []registry.CanonicalModel{
			{ID: "llama-3.3-70b", Capabilities: registry.Capabilities{Streaming: true, Tools: true}},
			{ID: "no-tools-model", Capabilities: registry.Capabilities{Streaming: true}},
		},
		Bindings: []registry.ProviderModelBinding{
			{ProviderKey: "tier0", CanonicalID: "llama-3.3-70b", ProviderSpecificID: "meta-llama-3", IsAvailable: true},
			{ProviderKey: "tier1", CanonicalID: "llama-3.3-70b", ProviderSpecificID: "llama3-70b-8192", IsAvailable: true},
			{ProviderKey: "disabled", CanonicalID: "llama-3.3-70b", ProviderSpecificID: "ignored", IsAvailable: true},
			{ProviderKey: "tier0", CanonicalID: "no-tools-model", ProviderSpecificID: "no-tools", IsAvailable: false},
		},
		Aliases: map[string][]string{
			"llama-latest": {"llama-3.3-70b"},
		},
	})
	if err != nil {
		t.Fatalf("registry.New() error: %v", err)
	}
	return reg
}

func TestResolveOrdersByTierThenQualityThenKey(t *testing.T) {
	r := New(newTestRegistry(t))
	res := r.Resolve("llama-3.3-70b", RequiredCapabilities{})

	if len(res.Candidates) != 2 {
		t.Fatalf("expected 2 candidates (disabled provider excluded), got %d: %+v", len(res.Candidates), res.Candidates)
	}
	if res.Candidates[0].ProviderKey != "tier0" {
		t.Fatalf("expected tier0 first (lower tier), got %s", res.Candidates[0].ProviderKey)
	}
	if res.Candidates[1].ProviderKey != "tier1" {
		t.Fatalf("expected tier1 second, got %s", res.Candidates[1].ProviderKey)
	}
}

func TestResolveExpandsAlias(t *testing.T) {
	r := New(newTestRegistry(t))
	res := r.Resolve("llama-latest", RequiredCapabilities{})
	if len(res.Candidates) != 2 {
		t.Fatalf("expected alias to expand to same 2 candidates as canonical id, got %d", len(res.Candidates))
	}
}

func TestResolveUnknownModelYieldsEmpty(t *testing.T) {
	r := New(newTestRegistry(t))
	res := r.Resolve("does-not-exist", RequiredCapabilities{})
	if len(res.Candidates) != 0 {
		t.Fatalf("expected empty resolution for unknown model id, got %d candidates", len(res.Candidates))
	}
}

func TestResolveUnavailableBindingExcluded(t *testing.T) {
	r := New(newTestRegistry(t))
	res := r.Resolve("no-tools-model", RequiredCapabilities{})
	if len(res.Candidates) != 0 {
		t.Fatalf("expected no candidates for model with only an unavailable binding, got %d", len(res.Candidates))
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r := New(newTestRegistry(t))
	first := r.Resolve("llama-3.3-70b", RequiredCapabilities{})
	second := r.Resolve("llama-3.3-70b", RequiredCapabilities{})

	if len(first.Candidates) != len(second.Candidates) {
		t.Fatalf("expected repeated resolve calls to return identical-length lists")
	}
	for i := range first.Candidates {
		a, b := first.Candidates[i], second.Candidates[i]
		if a.ProviderKey != b.ProviderKey || a.ProviderSpecificID != b.ProviderSpecificID || a.Tier != b.Tier {
			t.Fatalf("expected identical candidate at index %d, got %+v vs %+v", i, a, b)
		}
	}
}
