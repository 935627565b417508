// Package quota implements the Quota Tracker: per-provider RPM/TPM
// sliding-window limits backed by a coarse-grained bucket decomposition, so
// memory use stays bounded regardless of request volume.
package quota

import (
	"sync"
	"time"
)

const (
	bucketWidth = 10 * time.Second
	numBuckets  = 6 // 6 * 10s = 60s sliding window, per spec.md §4.4
	window      = bucketWidth * numBuckets
)

// bucket accumulates request and token counts for one 10-second slot.
type bucket struct {
	start    time.Time
	requests int
	tokens   int
}

// limits is the per-provider configured ceiling. A zero value means "no
// limit configured" for that dimension.
type limits struct {
	rpm int
	tpm int
}

// entry holds one provider's rotating bucket ring behind its own mutex.
type entry struct {
	mu      sync.Mutex
	limits  limits
	buckets [numBuckets]bucket
}

// Tracker tracks per-provider request/token usage in sliding 60-second
// windows. Entries are created lazily on first reference.
type Tracker struct {
	entries sync.Map // string -> *entry
	now     func() time.Time
}

// NewTracker builds an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Configure sets (or updates) the RPM/TPM limits for providerKey. Zero means
// unlimited for that dimension. Call this once per provider at load/reload
// time; Tracker does not read registry itself to stay decoupled.
func (t *Tracker) Configure(providerKey string, rpm, tpm int) {
	e := t.load(providerKey)
	e.mu.Lock()
	e.limits = limits{rpm: rpm, tpm: tpm}
	e.mu.Unlock()
}

func (t *Tracker) load(providerKey string) *entry {
	if v, ok := t.entries.Load(providerKey); ok {
		return v.(*entry)
	}
	v, _ := t.entries.LoadOrStore(providerKey, &entry{})
	return v.(*entry)
}

// rotateLocked must be called with e.mu held. It advances the ring so that
// the bucket for "now" is current, zeroing any bucket whose slot has aged
// out of the 60-second window entirely.
func rotateLocked(e *entry, now time.Time) {
	slot := now.Truncate(bucketWidth)
	idx := bucketIndex(now)
	if e.buckets[idx].start.Equal(slot) {
		return
	}
	// The bucket at this ring position belongs to a different 10s slot
	// (either never used, or aged out a full window ago) -- reset it.
	e.buckets[idx] = bucket{start: slot}
}

func bucketIndex(t time.Time) int {
	return int(t.Unix()/int64(bucketWidth.Seconds())) % numBuckets
}

// sumLocked must be called with e.mu held, after rotateLocked. It sums
// counts across every bucket still within the trailing 60-second window.
func sumLocked(e *entry, now time.Time) (requests, tokens int) {
	cutoff := now.Add(-window)
	for _, b := range e.buckets {
		if b.start.After(cutoff) {
			requests += b.requests
			tokens += b.tokens
		}
	}
	return requests, tokens
}

// IsHealthy reports whether providerKey has remaining budget for one more
// request, given its configured RPM/TPM limits. A provider with no
// configured limits is always healthy.
func (t *Tracker) IsHealthy(providerKey string) bool {
	e := t.load(providerKey)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := t.now()
	rotateLocked(e, now)
	requests, tokens := sumLocked(e, now)

	if e.limits.rpm > 0 && requests >= e.limits.rpm {
		return false
	}
	if e.limits.tpm > 0 && tokens >= e.limits.tpm {
		return false
	}
	return true
}

// RecordUsage adds one request and inputTokens+outputTokens to providerKey's
// current bucket.
func (t *Tracker) RecordUsage(providerKey string, inputTokens, outputTokens int) {
	e := t.load(providerKey)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := t.now()
	rotateLocked(e, now)
	idx := bucketIndex(now)
	e.buckets[idx].requests++
	e.buckets[idx].tokens += inputTokens + outputTokens
}

// Usage returns the current request/token counts within the trailing
// 60-second window, for telemetry.
func (t *Tracker) Usage(providerKey string) (requests, tokens int) {
	e := t.load(providerKey)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := t.now()
	rotateLocked(e, now)
	return sumLocked(e, now)
}

// Prune removes entries for provider keys not present in keep.
func (t *Tracker) Prune(keep map[string]bool) {
	t.entries.Range(func(k, _ interface{}) bool {
		key := k.(string)
		if !keep[key] {
			t.entries.Delete(key)
		}
		return true
	})
}
