package cache

import (
	"sort"
	"time"
)

// utility computes the eviction score (§4.1): U = w_h*hit_count +
// w_s*tokens_value - w_a*age_seconds. Lower utility is evicted first.
func utility(cfg Config, e *Entry, now time.Time) float64 {
	age := now.Sub(e.CreatedAt).Seconds()
	return cfg.UtilityWeightHit*float64(e.HitCount()) +
		cfg.UtilityWeightTok*float64(e.TokensValue) -
		cfg.UtilityWeightAge*age
}

// selectEvictions decides which entries to remove to restore both the
// max-entries and max-bytes bounds (§4.1 Eviction, §3 capacity invariant).
// It does not mutate entries; the caller removes the returned keys.
//
// Step 1: every expired entry is always a candidate, regardless of bounds.
// Step 2: if still over a bound, rank survivors by ascending utility and
// evict lowest-utility first until both bounds hold.
func selectEvictions(cfg Config, entries map[string]*Entry, totalBytes int64, now time.Time) []string {
	var evicted []string

	survivors := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if !e.ExpiresAt().After(now) {
			evicted = append(evicted, e.Key)
			totalBytes -= e.sizeBytes()
			continue
		}
		survivors = append(survivors, e)
	}

	overCount := len(survivors) > cfg.MaxEntries
	overBytes := cfg.MaxBytes > 0 && totalBytes > cfg.MaxBytes
	if !overCount && !overBytes {
		return evicted
	}

	sort.Slice(survivors, func(i, j int) bool {
		return utility(cfg, survivors[i], now) < utility(cfg, survivors[j], now)
	})

	count := len(survivors)
	for _, e := range survivors {
		if count <= cfg.MaxEntries && (cfg.MaxBytes <= 0 || totalBytes <= cfg.MaxBytes) {
			break
		}
		evicted = append(evicted, e.Key)
		totalBytes -= e.sizeBytes()
		count--
	}

	return evicted
}
