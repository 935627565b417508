// Package resolver implements the Model Resolver: expanding a requested
// model id (canonical or alias) into the ordered set of provider candidates
// eligible to serve it.
package resolver

import (
	"sort"

	"github.com/ferrogate/gateway/registry"
)

// RequiredCapabilities is an alias of registry.Capabilities -- the flags a
// caller requires a candidate to satisfy. It is not a distinct type; the
// name marks the flags as requirements.
type RequiredCapabilities = registry.Capabilities

// EnrichedCandidate is the ephemeral per-request record produced by
// resolution: everything downstream components (router, dispatch) need to
// attempt one (provider, canonical model) pairing.
type EnrichedCandidate struct {
	ProviderKey        string
	CanonicalModelPath string
	ProviderSpecificID string
	Tier               int
	Config             registry.ProviderConfig
	QualityScore       int
}

// Resolution is the result of a resolve call: an ordered candidate list.
// Empty is a legal value -- callers treat it as ModelUnavailable.
type Resolution struct {
	Candidates []EnrichedCandidate
}

// Resolver resolves model ids against a registry snapshot.
type Resolver struct {
	reg *registry.Registry
}

// New builds a Resolver bound to reg. Each Resolve call reads the registry's
// current snapshot fresh, so reloads are picked up without re-constructing
// the Resolver.
func New(reg *registry.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// streamingAwareTypes lists adapter types known to support streaming. A
// candidate whose provider type is not in this set is dropped whenever
// required.Streaming is set, per spec.md §4.2 step 2.
var streamingAwareTypes = map[string]bool{
	"openai":        true,
	"openai-compat": true,
	"azure-openai":  true,
	"gemini":        true,
	"anthropic":     true,
	"groq":          true,
	"mistral":       true,
	"cohere":        true,
	"together":      true,
	"fireworks":     true,
	"deepseek":      true,
	"ai21":          true,
	"perplexity":    true,
	"ollama":        true,
	// bedrock streams only for the anthropic.* family; the adapter itself
	// is consulted at dispatch time for the finer-grained decision, but at
	// resolution time it is treated as streaming-capable so Bedrock
	// Anthropic candidates are not dropped wholesale.
	"bedrock": true,
}

// Resolve expands modelID (a canonical id or an alias) into an ordered list
// of EnrichedCandidate records, per spec.md §4.2.
//
// Resolve is pure over the registry snapshot observed at call time: repeated
// calls against an unchanged snapshot return identical lists.
func (r *Resolver) Resolve(modelID string, required RequiredCapabilities) Resolution {
	snap := r.reg.Snapshot()

	canonicalIDs := expandAlias(snap, modelID)

	var candidates []EnrichedCandidate
	for _, canonicalID := range canonicalIDs {
		model, ok := snap.GetCanonicalModel(canonicalID)
		if !ok {
			continue
		}
		if !model.Capabilities.Satisfies(required) {
			continue
		}
		for _, binding := range snap.BindingsFor(canonicalID) {
			if !binding.IsAvailable {
				continue
			}
			provider, ok := snap.GetProvider(binding.ProviderKey)
			if !ok || !provider.Enabled {
				continue
			}
			if required.Streaming && !streamingAwareTypes[provider.Type] {
				continue
			}
			candidates = append(candidates, EnrichedCandidate{
				ProviderKey:        binding.ProviderKey,
				CanonicalModelPath: canonicalID,
				ProviderSpecificID: binding.ProviderSpecificID,
				Tier:               provider.Tier,
				Config:             provider,
				QualityScore:       provider.QualityScore,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.QualityScore != b.QualityScore {
			return a.QualityScore > b.QualityScore
		}
		return a.ProviderKey < b.ProviderKey
	})

	return Resolution{Candidates: candidates}
}

// expandAlias returns modelID's own id if it is a known canonical model, or
// the alias expansion otherwise. Alias targets are expanded in declared
// order with duplicates removed, keeping the first occurrence, matching
// spec.md §4.2 step 1. registry.Registry already deduplicates alias targets
// at load time, so this is a pass-through plus the canonical-id fallback.
func expandAlias(snap *registry.Snapshot, modelID string) []string {
	if targets, ok := snap.ResolveAlias(modelID); ok {
		return targets
	}
	if _, ok := snap.GetCanonicalModel(modelID); ok {
		return []string{modelID}
	}
	return nil
}
