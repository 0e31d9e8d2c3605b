package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestEntry(key string, hitCount uint64, tokens int, age time.Duration) *Entry {
	e := &Entry{Key: key, TokensValue: tokens, CreatedAt: time.Now().Add(-age)}
	e.hitCount.Store(hitCount)
	e.expiresAt = time.Now().Add(time.Hour)
	return e
}

func TestSelectEvictions_RemovesExpiredRegardlessOfBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 10

	expired := newTestEntry("expired", 0, 0, time.Hour)
	expired.expiresAt = time.Now().Add(-time.Minute)
	fresh := newTestEntry("fresh", 0, 0, 0)

	entries := map[string]*Entry{"expired": expired, "fresh": fresh}

	evicted := selectEvictions(cfg, entries, 0, time.Now())
	assert.Contains(t, evicted, "expired")
	assert.NotContains(t, evicted, "fresh")
}

func TestSelectEvictions_PrefersLowUtilityWhenOverCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 1

	valuable := newTestEntry("valuable", 50, 1000, time.Second)
	cheap := newTestEntry("cheap", 0, 10, time.Second)

	entries := map[string]*Entry{"valuable": valuable, "cheap": cheap}

	evicted := selectEvictions(cfg, entries, 0, time.Now())
	assert.Equal(t, []string{"cheap"}, evicted)
}

func TestSelectEvictions_NoneWhenWithinBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 10

	entries := map[string]*Entry{"only": newTestEntry("only", 0, 10, time.Second)}

	evicted := selectEvictions(cfg, entries, 0, time.Now())
	assert.Empty(t, evicted)
}
