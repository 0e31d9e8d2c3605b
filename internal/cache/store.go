package cache

import (
	"context"
	"log/slog"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/helpdesk-ai/ragdesk/internal/cache/mirror"
	"github.com/helpdesk-ai/ragdesk/internal/embedding"
	"github.com/helpdesk-ai/ragdesk/internal/metrics"
	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// Store is the semantic cache (§4.1): exact key lookup, ring-prefiltered
// approximate vector lookup, adaptive TTL/threshold, utility eviction, and
// single-flight coalescing, all behind one read/write lock on the index
// (§5 "Cache index: single-writer / multi-reader").
type Store struct {
	cfg      Config
	embedder embedding.Client
	logger   *slog.Logger

	mu         sync.RWMutex
	entries    map[string]*Entry
	totalBytes int64
	ring       *recencyRing

	flight *flightGroup
	keyMu  sync.Map // fingerprint -> *sync.Mutex, for §4.1 "per-key write lock"
	mirror *mirror.Mirror

	exactHits    atomic.Uint64
	semanticHits atomic.Uint64
	misses       atomic.Uint64
	evictions    atomic.Uint64
	tokensSaved  atomic.Uint64
	tokensSpent  atomic.Uint64
}

// NewStore builds an empty Store.
func NewStore(cfg Config, embedder embedding.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		cfg:      cfg,
		embedder: embedder,
		logger:   logger,
		entries:  make(map[string]*Entry),
		ring:     newRecencyRing(cfg.RingSize),
		flight:   newFlightGroup(),
	}
}

// Flight exposes the single-flight group to the orchestrator (§4.5 step 2).
func (s *Store) Flight() *flightGroup {
	return s.flight
}

// SetMirror attaches the optional external key-value mirror (§6 Persisted
// state). A nil mirror disables mirroring, the default.
func (s *Store) SetMirror(m *mirror.Mirror) {
	s.mirror = m
}

// Hydrate loads a single entry from the mirror when it is not already in
// memory and has not yet expired (§6: "on restart, entries are
// re-validated (expiry check) before serving"). Get calls it before the
// exact lookup, so mirrored entries are read back lazily on a miss.
func (s *Store) Hydrate(ctx context.Context, q types.Query) {
	if s.mirror == nil {
		return
	}
	fp := Fingerprint(q)

	s.mu.RLock()
	_, alreadyPresent := s.entries[fp]
	s.mu.RUnlock()
	if alreadyPresent {
		return
	}

	snap, ok, err := s.mirror.Load(ctx, fp)
	if err != nil || !ok {
		return
	}

	entry := &Entry{
		Key:              snap.Key,
		Embedding:        snap.Embedding,
		Value:            snap.Value,
		TokensValue:      snap.TokensValue,
		CreatedAt:        snap.CreatedAt,
		TTLBase:          time.Duration(snap.TTLBaseSeconds * float64(time.Second)),
		SemanticEligible: snap.SemanticEligible,
	}
	entry.lastAccessAt = snap.LastAccessAt
	entry.expiresAt = snap.ExpiresAt
	entry.hitCount.Store(snap.HitCount)

	s.mu.Lock()
	s.entries[fp] = entry
	s.totalBytes += entry.sizeBytes()
	s.mu.Unlock()
	if entry.SemanticEligible {
		s.ring.touch(fp)
	}
}

// mirrorSave best-effort writes a snapshot; mirror failures never fail the
// pipeline (§7).
func (s *Store) mirrorSave(e *Entry) {
	if s.mirror == nil {
		return
	}
	snap := mirror.Snapshot{
		Key:              e.Key,
		Embedding:        e.Embedding,
		Value:            e.Value,
		TokensValue:      e.TokensValue,
		CreatedAt:        e.CreatedAt,
		LastAccessAt:     e.LastAccessAt(),
		ExpiresAt:        e.ExpiresAt(),
		HitCount:         e.HitCount(),
		TTLBaseSeconds:   e.TTLBase.Seconds(),
		SemanticEligible: e.SemanticEligible,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.mirror.Save(ctx, snap); err != nil {
		s.logger.Error("cache mirror save failed", "key", e.Key, "error", err)
	}
}

// Get performs the exact lookup and, when permitted, the semantic lookup
// fallback (§4.1 Exact lookup, Semantic lookup).
func (s *Store) Get(ctx context.Context, q types.Query) (Result, error) {
	fp := Fingerprint(q)
	s.Hydrate(ctx, q)

	if res, ok := s.getExact(fp); ok {
		return res, nil
	}

	if !q.AllowSemantic || !s.cfg.SemanticEnabled {
		s.misses.Add(1)
		metrics.CacheMisses.Inc()
		return Result{Kind: HitMiss}, nil
	}

	return s.getSemantic(ctx, q)
}

func (s *Store) getExact(fingerprint string) (Result, bool) {
	s.mu.RLock()
	entry, ok := s.entries[fingerprint]
	s.mu.RUnlock()
	if !ok {
		return Result{}, false
	}

	now := time.Now()
	if !entry.ExpiresAt().After(now) {
		s.removeExpired(fingerprint)
		return Result{}, false
	}

	s.recordAccess(entry, now)
	s.exactHits.Add(1)
	s.tokensSaved.Add(uint64(entry.TokensValue))
	metrics.CacheExactHits.Inc()
	metrics.TokensSaved.Add(float64(entry.TokensValue))

	return Result{Kind: HitExact, Value: entry.Value}, true
}

func (s *Store) removeExpired(fingerprint string) {
	s.mu.Lock()
	if e, ok := s.entries[fingerprint]; ok {
		s.totalBytes -= e.sizeBytes()
		delete(s.entries, fingerprint)
	}
	s.mu.Unlock()
	s.ring.remove(fingerprint)
}

// getSemantic implements candidate pre-filtering against the recency ring
// before falling back to a full-population scan (§4.1 step 2).
func (s *Store) getSemantic(ctx context.Context, q types.Query) (Result, error) {
	qVec, err := s.embedder.Embed(ctx, normalizeText(q.Text))
	if err != nil {
		return Result{}, err
	}

	now := time.Now()

	if best, sim, ok := s.bestInRing(qVec, now); ok {
		return s.acceptSemantic(best, sim, now), nil
	}

	best, sim, ok := s.bestInPopulation(qVec, now)
	if !ok {
		s.misses.Add(1)
		metrics.CacheMisses.Inc()
		return Result{Kind: HitMiss}, nil
	}

	return s.acceptSemantic(best, sim, now), nil
}

// bestInRing implements the §4.1 step-2 shortcut: if the ring's best
// candidate already clears its own adaptive threshold, skip the full scan.
func (s *Store) bestInRing(qVec types.Vector, now time.Time) (*Entry, float64, bool) {
	var best *Entry
	var bestSim float64 = -2

	for _, key := range s.ring.snapshot() {
		s.mu.RLock()
		e, ok := s.entries[key]
		s.mu.RUnlock()
		if !ok || !e.SemanticEligible || !e.ExpiresAt().After(now) {
			continue
		}
		sim := cosineSimilarity(qVec, e.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = e
		}
	}

	if best == nil || bestSim < threshold(s.cfg, best) {
		return nil, 0, false
	}
	return best, bestSim, true
}

func (s *Store) bestInPopulation(qVec types.Vector, now time.Time) (*Entry, float64, bool) {
	s.mu.RLock()
	candidates := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.SemanticEligible && e.ExpiresAt().After(now) {
			candidates = append(candidates, e)
		}
	}
	s.mu.RUnlock()

	var best *Entry
	var bestSim float64 = -2

	for i, e := range candidates {
		sim := cosineSimilarity(qVec, e.Embedding)
		if sim > bestSim {
			bestSim = sim
			best = e
		}
		// Release control at coarse boundaries so a large scan doesn't
		// starve peers (§5 "release control ... every 1024 comparisons").
		if i%1024 == 1023 {
			runtime.Gosched()
		}
	}

	if best == nil || bestSim < threshold(s.cfg, best) {
		return nil, 0, false
	}
	return best, bestSim, true
}

func (s *Store) acceptSemantic(e *Entry, similarity float64, now time.Time) Result {
	s.recordAccess(e, now)
	s.semanticHits.Add(1)
	s.tokensSaved.Add(uint64(e.TokensValue))
	metrics.CacheSemanticHits.Inc()
	metrics.TokensSaved.Add(float64(e.TokensValue))

	return Result{
		Kind:           HitSemantic,
		Value:          e.Value,
		Similarity:     similarity,
		SourceEntryKey: e.Key,
	}
}

// recordAccess bumps hit_count and refreshes the lazily-computed adaptive
// TTL (§4.1 Adaptive TTL: "updated lazily at access").
func (s *Store) recordAccess(e *Entry, now time.Time) {
	newCount := e.hitCount.Add(1)

	e.accessMu.Lock()
	e.lastAccessAt = now
	e.expiresAt = e.CreatedAt.Add(adaptiveTTL(s.cfg, e.TTLBase, newCount))
	e.accessMu.Unlock()

	s.ring.touch(e.Key)
}

// Put writes or refreshes an entry for the query's fingerprint (§4.1 put).
func (s *Store) Put(q types.Query, value types.Answer, tokensValue int, embeddingVec types.Vector) {
	fp := Fingerprint(q)
	lock := s.lockFor(fp)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	ttlBase := s.cfg.TTLBase
	if ttlBase <= 0 {
		ttlBase = time.Hour
	}

	s.mu.Lock()
	existing, exists := s.entries[fp]
	if exists {
		s.totalBytes -= existing.sizeBytes()
	}

	entry := &Entry{
		Key:              fp,
		Embedding:        embeddingVec,
		Value:            value,
		TokensValue:      tokensValue,
		CreatedAt:        now,
		TTLBase:          ttlBase,
		SemanticEligible: q.AllowSemantic && len(embeddingVec) > 0,
	}
	entry.lastAccessAt = now
	entry.expiresAt = now.Add(ttlBase)
	if exists {
		entry.CreatedAt = existing.CreatedAt
		if existing.HitCount() > 0 {
			entry.hitCount.Store(existing.HitCount())
		}
	}

	s.entries[fp] = entry
	s.totalBytes += entry.sizeBytes()
	entryCount, totalBytes := len(s.entries), s.totalBytes
	s.mu.Unlock()

	s.tokensSpent.Add(uint64(tokensValue))
	metrics.TokensSpent.Add(float64(tokensValue))
	metrics.CacheEntries.Set(float64(entryCount))
	metrics.CacheBytes.Set(float64(totalBytes))
	if entry.SemanticEligible {
		s.ring.touch(fp)
	}

	s.evictIfNeeded()
	s.mirrorSave(entry)
}

func (s *Store) lockFor(key string) *sync.Mutex {
	actual, _ := s.keyMu.LoadOrStore(key, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// evictIfNeeded restores both capacity bounds before returning (§3, §4.1
// Eviction).
func (s *Store) evictIfNeeded() {
	s.mu.RLock()
	over := len(s.entries) > s.cfg.MaxEntries || (s.cfg.MaxBytes > 0 && s.totalBytes > s.cfg.MaxBytes)
	s.mu.RUnlock()
	if !over {
		return
	}

	s.mu.Lock()
	toEvict := selectEvictions(s.cfg, s.entries, s.totalBytes, time.Now())
	for _, key := range toEvict {
		if e, ok := s.entries[key]; ok {
			s.totalBytes -= e.sizeBytes()
			delete(s.entries, key)
		}
	}
	entryCount, totalBytes := len(s.entries), s.totalBytes
	s.mu.Unlock()

	for _, key := range toEvict {
		s.ring.remove(key)
	}
	if n := len(toEvict); n > 0 {
		s.evictions.Add(uint64(n))
		metrics.CacheEvictions.Add(float64(n))
		metrics.CacheEntries.Set(float64(entryCount))
		metrics.CacheBytes.Set(float64(totalBytes))
		s.logger.Info("cache eviction", "count", n)
	}
}

// Invalidate removes entries matching predicate, returning the count
// removed (§4.1 operations, §6 POST /invalidate).
func (s *Store) Invalidate(predicate func(*Entry) bool) int {
	s.mu.Lock()
	var toRemove []string
	for key, e := range s.entries {
		if predicate(e) {
			toRemove = append(toRemove, key)
			s.totalBytes -= e.sizeBytes()
		}
	}
	for _, key := range toRemove {
		delete(s.entries, key)
	}
	s.mu.Unlock()

	for _, key := range toRemove {
		s.ring.remove(key)
		if s.mirror != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.mirror.Delete(ctx, key); err != nil {
				s.logger.Error("cache mirror delete failed", "key", key, "error", err)
			}
			cancel()
		}
	}
	return len(toRemove)
}

// InvalidateKey removes a single entry by its fingerprint.
func (s *Store) InvalidateKey(key string) int {
	return s.Invalidate(func(e *Entry) bool { return e.Key == key })
}

// Stats returns the cumulative cache counters (§3 Stats).
func (s *Store) Stats() types.Stats {
	return types.Stats{
		ExactHits:    s.exactHits.Load(),
		SemanticHits: s.semanticHits.Load(),
		Misses:       s.misses.Load(),
		Evictions:    s.evictions.Load(),
		TokensSaved:  s.tokensSaved.Load(),
		TokensSpent:  s.tokensSpent.Load(),
	}
}

// threshold computes the adaptive semantic-acceptance threshold (§4.1 step
// 4): clamp(base - k_boost*log2(1+hit_count), min, max).
func threshold(cfg Config, e *Entry) float64 {
	base := cfg.BaseThreshold
	if base == 0 {
		base = 0.88
	}
	minT := cfg.MinThreshold
	if minT == 0 {
		minT = 0.78
	}
	maxT := cfg.MaxThreshold
	if maxT == 0 {
		maxT = 0.95
	}
	kBoost := cfg.KBoost
	if kBoost == 0 {
		kBoost = 0.01
	}

	t := base - kBoost*math.Log2(1+float64(e.HitCount()))
	if t < minT {
		return minT
	}
	if t > maxT {
		return maxT
	}
	return t
}

// adaptiveTTL computes ttl_base*(1+alpha*min(hit_count,H)) (§4.1 Adaptive TTL).
func adaptiveTTL(cfg Config, base time.Duration, hitCount uint64) time.Duration {
	alpha := cfg.Alpha
	if alpha == 0 {
		alpha = 0.1
	}
	hitCap := cfg.HitCountCap
	if hitCap == 0 {
		hitCap = 20
	}
	n := hitCount
	if n > hitCap {
		n = hitCap
	}
	return time.Duration(float64(base) * (1 + alpha*float64(n)))
}

// cosineSimilarity assumes both vectors are already unit-normalized (§3
// invariant), so the dot product alone is the cosine similarity.
func cosineSimilarity(a, b types.Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return -2
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
