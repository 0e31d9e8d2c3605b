// Package cache implements the semantic cache (§4.1): exact fingerprint
// lookup, ring-buffer-prefiltered approximate vector lookup, adaptive
// TTL/threshold, utility-based eviction, and single-flight coalescing.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// Entry is the cache's central entity (§3 CacheEntry). accessMu serializes
// the lazy last-access/TTL/hit-count update a Get performs; hitCount is
// atomic so readers and the eviction scan never race on it.
type Entry struct {
	Key              string
	Embedding        types.Vector // present iff SemanticEligible
	Value            types.Answer
	TokensValue      int
	CreatedAt        time.Time
	TTLBase          time.Duration
	SemanticEligible bool

	accessMu     sync.Mutex
	lastAccessAt time.Time
	expiresAt    time.Time
	hitCount     atomic.Uint64
}

// LastAccessAt returns the entry's last-access timestamp.
func (e *Entry) LastAccessAt() time.Time {
	e.accessMu.Lock()
	defer e.accessMu.Unlock()
	return e.lastAccessAt
}

// ExpiresAt returns the entry's current expiry, as of the last access.
func (e *Entry) ExpiresAt() time.Time {
	e.accessMu.Lock()
	defer e.accessMu.Unlock()
	return e.expiresAt
}

// HitCount returns the entry's current hit count.
func (e *Entry) HitCount() uint64 {
	return e.hitCount.Load()
}

// sizeBytes estimates the serialized size of an entry's value for the
// §3 "Σ entries.value.size_bytes ≤ max_bytes" capacity bound.
func (e *Entry) sizeBytes() int64 {
	n := len(e.Value.Text)
	for _, b := range e.Value.Blocks {
		n += len(b.Text)
	}
	for _, c := range e.Value.Citations {
		n += len(c.Title) + len(c.URL) + len(c.DocID)
	}
	n += len(e.Embedding) * 4
	return int64(n)
}

// HitKind is the outcome of a Get (§4.1 operations).
type HitKind string

const (
	HitExact    HitKind = "exact"
	HitSemantic HitKind = "semantic"
	HitMiss     HitKind = "miss"
)

// Result is the outcome of Store.Get.
type Result struct {
	Kind           HitKind
	Value          types.Answer
	Similarity     float64
	SourceEntryKey string
}

// Config tunes the cache's policy knobs (§6 cache.*, §4.1 defaults).
type Config struct {
	MaxEntries       int
	MaxBytes         int64
	TTLBase          time.Duration
	SemanticEnabled  bool
	BaseThreshold    float64
	MinThreshold     float64
	MaxThreshold     float64
	KBoost           float64
	Alpha            float64
	HitCountCap      uint64
	RingSize         int
	UtilityWeightHit float64
	UtilityWeightTok float64
	UtilityWeightAge float64
}

// DefaultConfig returns the §4.1/§6 documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxEntries:       10_000,
		MaxBytes:         256 * 1024 * 1024,
		TTLBase:          time.Hour,
		SemanticEnabled:  true,
		BaseThreshold:    0.88,
		MinThreshold:     0.78,
		MaxThreshold:     0.95,
		KBoost:           0.01,
		Alpha:            0.1,
		HitCountCap:      20,
		RingSize:         256,
		UtilityWeightHit: 1.0,
		UtilityWeightTok: 0.001,
		UtilityWeightAge: 0.0005,
	}
}
