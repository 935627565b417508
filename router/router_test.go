package router

import (
	"testing"

	"github.com/ferrogate/gateway/registry"
	"github.com/ferrogate/gateway/resolver"
)

func newTestResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	reg, err := registry.New(registry.Document{
		Providers: map[string]registry.ProviderConfig{
			"t0-a": {Key: "t0-a", Type: "openai", Enabled: true, Tier: 0, QualityScore: 3},
			"t0-b": {Key: "t0-b", Type: "groq", Enabled: true, Tier: 0, QualityScore: 8},
			"t1-a": {Key: "t1-a", Type: "mistral", Enabled: true, Tier: 1, QualityScore: 5},
		},
		Models: []registry.CanonicalModel{
			{ID: "m", Capabilities: registry.Capabilities{Streaming: true}},
		},
		Bindings: []registry.ProviderModelBinding{
			{ProviderKey: "t0-a", CanonicalID: "m", ProviderSpecificID: "m", IsAvailable: true},
			{ProviderKey: "t0-b", CanonicalID: "m", ProviderSpecificID: "m", IsAvailable: true},
			{ProviderKey: "t1-a", CanonicalID: "m", ProviderSpecificID: "m", IsAvailable: true},
		},
	})
	if err != nil {
		t.Fatalf("registry.New() error: %v", err)
	}
	return resolver.New(reg)
}

func TestGetCandidatesTierOrderingNonDecreasing(t *testing.T) {
	r := New(newTestResolver(t), RoundRobin, nil)
	candidates := r.GetCandidates("m", false)

	if len(candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(candidates))
	}
	for i := 1; i < len(candidates); i++ {
		if candidates[i].Tier < candidates[i-1].Tier {
			t.Fatalf("expected non-decreasing tier sequence, got %+v", candidates)
		}
	}
}

func TestGetCandidatesPriorityOrdersByQualityWithinTier(t *testing.T) {
	r := New(newTestResolver(t), Priority, nil)
	candidates := r.GetCandidates("m", false)

	if candidates[0].ProviderKey != "t0-b" {
		t.Fatalf("expected t0-b (quality 8) first within tier 0, got %s", candidates[0].ProviderKey)
	}
	if candidates[1].ProviderKey != "t0-a" {
		t.Fatalf("expected t0-a second within tier 0, got %s", candidates[1].ProviderKey)
	}
	if candidates[2].ProviderKey != "t1-a" {
		t.Fatalf("expected t1-a last (tier 1), got %s", candidates[2].ProviderKey)
	}
}

func TestGetCandidatesLeastLoadedOrdersAscending(t *testing.T) {
	load := map[string]int64{"t0-a": 500, "t0-b": 10}
	r := New(newTestResolver(t), LeastLoaded, func(key string) int64 { return load[key] })
	candidates := r.GetCandidates("m", false)

	if candidates[0].ProviderKey != "t0-b" {
		t.Fatalf("expected least-loaded t0-b first within tier 0, got %s", candidates[0].ProviderKey)
	}
}

func TestGetCandidatesRoundRobinRotatesAcrossCalls(t *testing.T) {
	r := New(newTestResolver(t), RoundRobin, nil)
	first := r.GetCandidates("m", false)[0].ProviderKey
	second := r.GetCandidates("m", false)[0].ProviderKey
	third := r.GetCandidates("m", false)[0].ProviderKey

	seen := map[string]bool{first: true, second: true, third: true}
	if len(seen) < 2 {
		t.Fatalf("expected round-robin to rotate the leading candidate across calls, got %s %s %s", first, second, third)
	}
}

func TestGetCandidatesUnknownModelReturnsEmpty(t *testing.T) {
	r := New(newTestResolver(t), RoundRobin, nil)
	if candidates := r.GetCandidates("does-not-exist", false); candidates != nil {
		t.Fatalf("expected nil candidates for unknown model, got %+v", candidates)
	}
}
