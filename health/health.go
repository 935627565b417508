// Package health implements the Health Store: per-provider circuit state
// with lazy cooldown expiry and one lock per entry, never a global lock.
package health

import (
	"sync"
	"time"
)

// State is a provider's externally-observable health.
type State int

const (
	// Healthy means the provider is eligible for dispatch.
	Healthy State = iota
	// Cooldown means the provider is skipped until cooldownUntil elapses.
	Cooldown
)

func (s State) String() string {
	if s == Cooldown {
		return "cooldown"
	}
	return "healthy"
}

// entry holds one provider's health state behind its own mutex. A sync.Map
// keyed by provider key gives per-entry locking without a registry-wide
// lock, matching internal/circuitbreaker's per-breaker-mutex style.
type entry struct {
	mu                  sync.Mutex
	cooldownUntil       time.Time
	consecutiveFailures int
	lastLatencyMs       int64
}

// TransitionFunc is invoked whenever a provider's resolved state changes,
// for telemetry (health_transitions_total{provider, to_state}).
type TransitionFunc func(providerKey string, to State)

// Store tracks health state for every provider referenced so far. Entries
// are created lazily on first reference and pruned explicitly on config
// reload via Prune.
type Store struct {
	entries    sync.Map // string -> *entry
	onTransition TransitionFunc
	now        func() time.Time
}

// NewStore builds an empty Store. onTransition may be nil.
func NewStore(onTransition TransitionFunc) *Store {
	return &Store{onTransition: onTransition, now: time.Now}
}

func (s *Store) load(providerKey string) *entry {
	if v, ok := s.entries.Load(providerKey); ok {
		return v.(*entry)
	}
	v, _ := s.entries.LoadOrStore(providerKey, &entry{})
	return v.(*entry)
}

// IsHealthy reports whether providerKey is currently eligible for dispatch.
// A provider in Cooldown becomes implicitly Healthy once cooldownUntil has
// elapsed -- the transition happens lazily, on this read, rather than via a
// background timer.
func (s *Store) IsHealthy(providerKey string) bool {
	e := s.load(providerKey)
	e.mu.Lock()
	defer e.mu.Unlock()
	return s.resolveLocked(providerKey, e) == Healthy
}

// resolveLocked must be called with e.mu held. It performs the lazy
// cooldown-expiry check and returns the resolved state; it does not fire
// onTransition (MarkSuccess and MarkFailure do).
func (s *Store) resolveLocked(providerKey string, e *entry) State {
	if e.cooldownUntil.IsZero() || !e.cooldownUntil.After(s.now()) {
		return Healthy
	}
	return Cooldown
}

// MarkSuccess resets consecutiveFailures to 0 and clears any cooldown.
func (s *Store) MarkSuccess(providerKey string) {
	e := s.load(providerKey)
	e.mu.Lock()
	wasCooldown := s.resolveLocked(providerKey, e) == Cooldown
	e.consecutiveFailures = 0
	e.cooldownUntil = time.Time{}
	e.mu.Unlock()

	if wasCooldown && s.onTransition != nil {
		s.onTransition(providerKey, Healthy)
	}
}

// MarkFailure sets cooldownUntil = now + cooldown unless the existing
// cooldown already ends later: a new failure can extend a cooldown, never
// shrink it (spec.md
// §4.3's cooldown-monotonicity invariant).
func (s *Store) MarkFailure(providerKey string, cooldown time.Duration) {
	e := s.load(providerKey)
	e.mu.Lock()
	wasHealthy := s.resolveLocked(providerKey, e) == Healthy
	e.consecutiveFailures++
	candidate := s.now().Add(cooldown)
	if candidate.After(e.cooldownUntil) {
		e.cooldownUntil = candidate
	}
	e.mu.Unlock()

	if wasHealthy && s.onTransition != nil {
		s.onTransition(providerKey, Cooldown)
	}
}

// RecordLatency stores the most recent attempt latency for providerKey,
// surfaced via Snapshot for telemetry and LeastLoaded routing.
func (s *Store) RecordLatency(providerKey string, ms int64) {
	e := s.load(providerKey)
	e.mu.Lock()
	e.lastLatencyMs = ms
	e.mu.Unlock()
}

// Snapshot is a point-in-time, read-only view of one provider's health,
// used by telemetry and the router's LeastLoaded strategy.
type Snapshot struct {
	State               State
	CooldownUntil       time.Time
	ConsecutiveFailures int
	LastLatencyMs       int64
}

// Get returns a Snapshot of providerKey's current state.
func (s *Store) Get(providerKey string) Snapshot {
	e := s.load(providerKey)
	e.mu.Lock()
	defer e.mu.Unlock()
	return Snapshot{
		State:               s.resolveLocked(providerKey, e),
		CooldownUntil:       e.cooldownUntil,
		ConsecutiveFailures: e.consecutiveFailures,
		LastLatencyMs:       e.lastLatencyMs,
	}
}

// Prune removes entries for provider keys not present in keep. Called after
// a registry reload so health state does not leak for removed providers.
func (s *Store) Prune(keep map[string]bool) {
	s.entries.Range(func(k, _ interface{}) bool {
		key := k.(string)
		if !keep[key] {
			s.entries.Delete(key)
		}
		return true
	})
}
