// Package router implements the Smart Router: asks the resolver for base
// candidates, partitions them by tier, and orders each tier according to a
// configured within-tier strategy.
package router

import (
	"math/rand"
	"sort"
	"sync/atomic"

	"github.com/ferrogate/gateway/resolver"
)

// Strategy names the within-tier ordering applied to candidates that share
// a tier. Health/Quota filtering is deliberately NOT done here -- it is
// evaluated inside the dispatch loop, at the moment of attempt, per
// spec.md §4.5.
type Strategy string

// Supported within-tier strategies. RoundRobin is the default, per
// spec.md §9's explicit instruction not to infer a different one even
// though LeastLoaded and Priority are also implemented.
const (
	RoundRobin Strategy = "RoundRobin"
	LeastLoaded Strategy = "LeastLoaded"
	Priority    Strategy = "Priority"
)

// LoadProvider reports a provider's current load for the LeastLoaded
// strategy (e.g. backed by health.Store.Get(...).LastLatencyMs). Returning
// a larger number means "more loaded, try later".
type LoadProvider func(providerKey string) int64

// Router produces ordered candidate lists for a request.
type Router struct {
	resolve  *resolver.Resolver
	strategy Strategy
	load     LoadProvider

	// roundRobinCursor gives each tier its own rotating start index via a
	// small fixed-size table, since tiers are small integers in practice;
	// tiers 7 and above share the last slot.
	roundRobinCursor [8]uint64
}

// New builds a Router bound to resolve, using strategy as the default
// within-tier ordering. load may be nil unless strategy is LeastLoaded.
func New(resolve *resolver.Resolver, strategy Strategy, load LoadProvider) *Router {
	if strategy == "" {
		strategy = RoundRobin
	}
	return &Router{resolve: resolve, strategy: strategy, load: load}
}

// GetCandidates resolves modelID and returns an ordered candidate list:
// lowest tier first, each tier internally ordered per the configured
// strategy.
func (r *Router) GetCandidates(modelID string, streamingRequired bool) []resolver.EnrichedCandidate {
	res := r.resolve.Resolve(modelID, resolver.RequiredCapabilities{Streaming: streamingRequired})
	if len(res.Candidates) == 0 {
		return nil
	}

	tiers := partitionByTier(res.Candidates)
	out := make([]resolver.EnrichedCandidate, 0, len(res.Candidates))
	for _, tier := range sortedTierKeys(tiers) {
		group := tiers[tier]
		switch r.strategy {
		case LeastLoaded:
			out = append(out, r.orderLeastLoaded(group)...)
		case Priority:
			out = append(out, orderByQualityDesc(group)...)
		default:
			out = append(out, r.orderRoundRobin(tier, group)...)
		}
	}
	return out
}

func partitionByTier(candidates []resolver.EnrichedCandidate) map[int][]resolver.EnrichedCandidate {
	tiers := make(map[int][]resolver.EnrichedCandidate)
	for _, c := range candidates {
		tiers[c.Tier] = append(tiers[c.Tier], c)
	}
	return tiers
}

func sortedTierKeys(tiers map[int][]resolver.EnrichedCandidate) []int {
	keys := make([]int, 0, len(tiers))
	for k := range tiers {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// orderRoundRobin rotates group by a per-tier cursor that advances on every
// call, so concurrent requests fan out across same-tier candidates instead
// of always hammering the first one. The rotation is unweighted.
func (r *Router) orderRoundRobin(tier int, group []resolver.EnrichedCandidate) []resolver.EnrichedCandidate {
	if len(group) <= 1 {
		return group
	}
	slotIdx := tier
	if slotIdx < 0 || slotIdx >= len(r.roundRobinCursor) {
		slotIdx = len(r.roundRobinCursor) - 1
	}
	start := int(atomic.AddUint64(&r.roundRobinCursor[slotIdx], 1)-1) % len(group)

	out := make([]resolver.EnrichedCandidate, len(group))
	for i := range group {
		out[i] = group[(start+i)%len(group)]
	}
	return out
}

// orderLeastLoaded sorts group ascending by the router's LoadProvider
// reading; candidates the LoadProvider has no data for sort first (load 0).
func (r *Router) orderLeastLoaded(group []resolver.EnrichedCandidate) []resolver.EnrichedCandidate {
	out := make([]resolver.EnrichedCandidate, len(group))
	copy(out, group)
	if r.load == nil {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		return r.load(out[i].ProviderKey) < r.load(out[j].ProviderKey)
	})
	return out
}

// orderByQualityDesc implements the Priority strategy: highest qualityScore
// first within the tier, ties broken by provider key for determinism.
func orderByQualityDesc(group []resolver.EnrichedCandidate) []resolver.EnrichedCandidate {
	out := make([]resolver.EnrichedCandidate, len(group))
	copy(out, group)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QualityScore != out[j].QualityScore {
			return out[i].QualityScore > out[j].QualityScore
		}
		return out[i].ProviderKey < out[j].ProviderKey
	})
	return out
}

// shuffle performs a Fisher-Yates shuffle of group in place using rnd. No
// Strategy uses it.
func shuffle(group []resolver.EnrichedCandidate, rnd *rand.Rand) {
	for i := len(group) - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		group[i], group[j] = group[j], group[i]
	}
}
