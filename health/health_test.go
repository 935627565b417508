package health

import (
	"testing"
	"time"
)

func TestNewProviderStartsHealthy(t *testing.T) {
	s := NewStore(nil)
	if !s.IsHealthy("a") {
		t.Fatalf("expected unseen provider to start healthy")
	}
}

func TestMarkFailureEntersCooldown(t *testing.T) {
	s := NewStore(nil)
	s.MarkFailure("a", 30*time.Second)
	if s.IsHealthy("a") {
		t.Fatalf("expected provider to be unhealthy immediately after MarkFailure")
	}
}

func TestCooldownExpiresLazily(t *testing.T) {
	base := time.Now()
	s := NewStore(nil)
	s.now = func() time.Time { return base }

	s.MarkFailure("a", 10*time.Second)
	if s.IsHealthy("a") {
		t.Fatalf("expected provider to be in cooldown")
	}

	s.now = func() time.Time { return base.Add(11 * time.Second) }
	if !s.IsHealthy("a") {
		t.Fatalf("expected provider to be healthy again once cooldown has elapsed")
	}
}

func TestMarkSuccessClearsCooldown(t *testing.T) {
	s := NewStore(nil)
	s.MarkFailure("a", time.Hour)
	s.MarkSuccess("a")
	if !s.IsHealthy("a") {
		t.Fatalf("expected MarkSuccess to clear cooldown")
	}
	snap := s.Get("a")
	if snap.ConsecutiveFailures != 0 {
		t.Fatalf("expected ConsecutiveFailures reset to 0, got %d", snap.ConsecutiveFailures)
	}
}

func TestCooldownMonotonicity(t *testing.T) {
	base := time.Now()
	s := NewStore(nil)
	s.now = func() time.Time { return base }

	s.MarkFailure("a", 10*time.Second)
	s.MarkFailure("a", 30*time.Second)

	snap := s.Get("a")
	want := base.Add(30 * time.Second)
	if !snap.CooldownUntil.Equal(want) {
		t.Fatalf("expected cooldownUntil = max(now+d1, now+d2) = %v, got %v", want, snap.CooldownUntil)
	}

	// A later, shorter failure must not shrink the existing cooldown.
	s.MarkFailure("a", 5*time.Second)
	snap = s.Get("a")
	if !snap.CooldownUntil.Equal(want) {
		t.Fatalf("expected shorter subsequent cooldown not to shrink existing one, got %v", snap.CooldownUntil)
	}
}

func TestTransitionCallbackFiresOnce(t *testing.T) {
	var transitions []State
	s := NewStore(func(providerKey string, to State) {
		transitions = append(transitions, to)
	})

	s.MarkFailure("a", time.Hour)
	s.MarkFailure("a", time.Hour) // already in cooldown, must not re-fire
	s.MarkSuccess("a")

	if len(transitions) != 2 {
		t.Fatalf("expected exactly 2 transitions (healthy->cooldown, cooldown->healthy), got %d: %v", len(transitions), transitions)
	}
	if transitions[0] != Cooldown || transitions[1] != Healthy {
		t.Fatalf("unexpected transition sequence: %v", transitions)
	}
}

func TestPruneRemovesDroppedProviders(t *testing.T) {
	s := NewStore(nil)
	s.MarkFailure("a", time.Hour)
	s.MarkFailure("b", time.Hour)

	s.Prune(map[string]bool{"a": true})

	// b was dropped from the keep set, so its cooldown entry is gone; a
	// fresh lazy-created entry reports healthy again.
	if !s.IsHealthy("b") {
		t.Fatalf("expected pruned provider b to report healthy (fresh entry)")
	}
}
