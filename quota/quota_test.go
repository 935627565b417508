package quota

import (
	"testing"
	"time"
)

func TestUnconfiguredProviderIsAlwaysHealthy(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 100; i++ {
		tr.RecordUsage("a", 1000, 1000)
	}
	if !tr.IsHealthy("a") {
		t.Fatalf("expected provider with no configured limits to stay healthy")
	}
}

func TestRPMLimitTripsAtThreshold(t *testing.T) {
	tr := NewTracker()
	tr.Configure("a", 3, 0)

	for i := 0; i < 3; i++ {
		if !tr.IsHealthy("a") {
			t.Fatalf("expected provider healthy before request %d", i)
		}
		tr.RecordUsage("a", 1, 1)
	}
	if tr.IsHealthy("a") {
		t.Fatalf("expected provider unhealthy after RPM limit reached")
	}
}

func TestTPMLimitTripsAtThreshold(t *testing.T) {
	tr := NewTracker()
	tr.Configure("a", 0, 100)

	tr.RecordUsage("a", 60, 30) // 90 tokens
	if !tr.IsHealthy("a") {
		t.Fatalf("expected provider healthy at 90/100 tokens")
	}
	tr.RecordUsage("a", 5, 5) // 100 tokens
	if tr.IsHealthy("a") {
		t.Fatalf("expected provider unhealthy at 100/100 tokens")
	}
}

func TestWindowSlidesAfter60Seconds(t *testing.T) {
	base := time.Now().Truncate(time.Second)
	tr := NewTracker()
	tr.now = func() time.Time { return base }
	tr.Configure("a", 2, 0)

	tr.RecordUsage("a", 1, 1)
	tr.RecordUsage("a", 1, 1)
	if tr.IsHealthy("a") {
		t.Fatalf("expected provider unhealthy at RPM limit")
	}

	tr.now = func() time.Time { return base.Add(61 * time.Second) }
	if !tr.IsHealthy("a") {
		t.Fatalf("expected provider healthy once the 60s window has fully elapsed")
	}
}

func TestRecordUsageAccumulatesWithinWindow(t *testing.T) {
	base := time.Now().Truncate(time.Second)
	tr := NewTracker()
	tr.now = func() time.Time { return base }

	tr.RecordUsage("a", 3, 5)
	tr.now = func() time.Time { return base.Add(20 * time.Second) }
	tr.RecordUsage("a", 2, 0)

	requests, tokens := tr.Usage("a")
	if requests != 2 {
		t.Fatalf("expected 2 requests within window, got %d", requests)
	}
	if tokens != 10 {
		t.Fatalf("expected 10 tokens within window, got %d", tokens)
	}
}

func TestPruneRemovesConfiguredLimits(t *testing.T) {
	tr := NewTracker()
	tr.Configure("a", 1, 0)
	tr.RecordUsage("a", 1, 1)
	if tr.IsHealthy("a") {
		t.Fatalf("expected provider unhealthy before prune")
	}

	tr.Prune(map[string]bool{})
	if !tr.IsHealthy("a") {
		t.Fatalf("expected pruned provider to report healthy (limits forgotten)")
	}
}
