package cache

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// stubEmbedder returns a fixed vector per text, so tests can control
// similarity deterministically.
type stubEmbedder struct {
	vectors map[string]types.Vector
	calls   int
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (types.Vector, error) {
	s.calls++
	if v, ok := s.vectors[text]; ok {
		return v, nil
	}
	return types.Vector{1, 0}, nil
}

func (s *stubEmbedder) Ping(_ context.Context) error { return nil }

func testAnswer(text string) types.Answer {
	return types.Answer{Text: text}
}

func TestStore_ExactHit_CreditsTokensSaved(t *testing.T) {
	store := NewStore(DefaultConfig(), &stubEmbedder{}, nil)
	q := types.Query{Text: "how do I reset my password?", Mode: types.ModeConcise}

	store.Put(q, testAnswer("reset via the portal"), 500, nil)

	res, err := store.Get(t.Context(), q)
	require.NoError(t, err)
	assert.Equal(t, HitExact, res.Kind)
	assert.Equal(t, "reset via the portal", res.Value.Text)
	assert.EqualValues(t, 500, store.Stats().TokensSaved)
	assert.EqualValues(t, 1, store.Stats().ExactHits)
}

func TestStore_SemanticHit_AboveThreshold(t *testing.T) {
	e1 := types.Vector{1, 0}
	e2 := types.Vector{0.91, normSqrtComplement(0.91)}

	embedder := &stubEmbedder{vectors: map[string]types.Vector{
		"password reset procedure": e2,
	}}
	store := NewStore(DefaultConfig(), embedder, nil)

	putQ := types.Query{Text: "how to reset my password", Mode: types.ModeConcise, AllowSemantic: true}
	store.Put(putQ, testAnswer("answer A"), 500, e1)

	getQ := types.Query{Text: "password reset procedure", Mode: types.ModeConcise, AllowSemantic: true}
	res, err := store.Get(t.Context(), getQ)
	require.NoError(t, err)
	assert.Equal(t, HitSemantic, res.Kind)
	assert.InDelta(t, 0.91, res.Similarity, 1e-6)
}

func TestStore_SemanticMiss_BelowThreshold(t *testing.T) {
	e1 := types.Vector{1, 0}
	e2 := types.Vector{0.5, normSqrtComplement(0.5)}

	embedder := &stubEmbedder{vectors: map[string]types.Vector{
		"unrelated question": e2,
	}}
	store := NewStore(DefaultConfig(), embedder, nil)

	putQ := types.Query{Text: "how to reset my password", Mode: types.ModeConcise, AllowSemantic: true}
	store.Put(putQ, testAnswer("answer A"), 500, e1)

	getQ := types.Query{Text: "unrelated question", Mode: types.ModeConcise, AllowSemantic: true}
	res, err := store.Get(t.Context(), getQ)
	require.NoError(t, err)
	assert.Equal(t, HitMiss, res.Kind)
}

func TestStore_AllowSemanticFalse_NeverFallsThrough(t *testing.T) {
	store := NewStore(DefaultConfig(), &stubEmbedder{}, nil)
	getQ := types.Query{Text: "anything", Mode: types.ModeConcise, AllowSemantic: false}

	res, err := store.Get(t.Context(), getQ)
	require.NoError(t, err)
	assert.Equal(t, HitMiss, res.Kind)
}

func TestStore_CapacityBound_EvictsLowUtilityFirst(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 3
	store := NewStore(cfg, &stubEmbedder{}, nil)

	q1 := types.Query{Text: "e1", Mode: types.ModeConcise}
	q2 := types.Query{Text: "e2", Mode: types.ModeConcise}
	q3 := types.Query{Text: "e3", Mode: types.ModeConcise}
	q4 := types.Query{Text: "e4", Mode: types.ModeConcise}

	store.Put(q1, testAnswer("a1"), 1000, nil)
	bumpHitCount(store, Fingerprint(q1), 10)
	store.Put(q2, testAnswer("a2"), 100, nil)
	store.Put(q3, testAnswer("a3"), 100, nil)
	store.Put(q4, testAnswer("a4"), 100, nil)

	stats := store.Stats()
	_ = stats
	assert.LessOrEqual(t, len(store.entries), cfg.MaxEntries)

	_, stillExists := store.entries[Fingerprint(q1)]
	assert.True(t, stillExists, "high-utility entry should survive eviction")
}

func TestStore_Put_RefreshesExistingKey_MaxHitCount(t *testing.T) {
	store := NewStore(DefaultConfig(), &stubEmbedder{}, nil)
	q := types.Query{Text: "repeatable question", Mode: types.ModeConcise}

	store.Put(q, testAnswer("first"), 10, nil)
	bumpHitCount(store, Fingerprint(q), 5)
	store.Put(q, testAnswer("second"), 20, nil)

	entry := store.entries[Fingerprint(q)]
	assert.Equal(t, "second", entry.Value.Text)
	assert.EqualValues(t, 5, entry.HitCount())
}

func TestStore_Invalidate_RemovesMatching(t *testing.T) {
	store := NewStore(DefaultConfig(), &stubEmbedder{}, nil)
	q := types.Query{Text: "to remove", Mode: types.ModeConcise}
	store.Put(q, testAnswer("gone soon"), 10, nil)

	removed := store.Invalidate(func(e *Entry) bool { return true })
	assert.Equal(t, 1, removed)

	res, _ := store.Get(t.Context(), q)
	assert.Equal(t, HitMiss, res.Kind)
}

func TestStore_ExactEntry_ExpiresAfterTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TTLBase = time.Millisecond
	store := NewStore(cfg, &stubEmbedder{}, nil)
	q := types.Query{Text: "short lived", Mode: types.ModeConcise}
	store.Put(q, testAnswer("value"), 10, nil)

	time.Sleep(5 * time.Millisecond)

	res, err := store.Get(t.Context(), q)
	require.NoError(t, err)
	assert.Equal(t, HitMiss, res.Kind)
}

// bumpHitCount directly records N accesses against an entry to exercise
// hit-count-dependent behavior deterministically.
func bumpHitCount(s *Store, key string, n int) {
	e, ok := s.entries[key]
	if !ok {
		return
	}
	for i := 0; i < n; i++ {
		s.recordAccess(e, time.Now())
	}
}

// normSqrtComplement returns y such that (x,y) is unit-norm, for building
// test vectors with a known cosine similarity against {1,0}.
func normSqrtComplement(x float64) float32 {
	return float32(math.Sqrt(1 - x*x))
}
