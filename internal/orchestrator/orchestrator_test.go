package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-ai/ragdesk/internal/cache"
	"github.com/helpdesk-ai/ragdesk/internal/llmclient"
	"github.com/helpdesk-ai/ragdesk/internal/queryengine"
	"github.com/helpdesk-ai/ragdesk/internal/resilience"
	"github.com/helpdesk-ai/ragdesk/internal/responsebuilder"
	"github.com/helpdesk-ai/ragdesk/internal/sources"
	"github.com/helpdesk-ai/ragdesk/internal/vectorstore"
	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

type stubEmbedder struct{ vec types.Vector }

func (e stubEmbedder) Embed(ctx context.Context, text string) (types.Vector, error) {
	if e.vec != nil {
		return e.vec, nil
	}
	return types.Vector{1, 0, 0}, nil
}
func (stubEmbedder) Ping(ctx context.Context) error { return nil }

type stubStore struct {
	hits []types.Hit
}

func (s *stubStore) Search(ctx context.Context, collection string, vector types.Vector, k int, filter vectorstore.Filter) ([]types.Hit, error) {
	return s.hits, nil
}
func (s *stubStore) Upsert(ctx context.Context, collection, docID string, vector types.Vector, payload types.Payload) error {
	return nil
}
func (s *stubStore) Ping(ctx context.Context) error { return nil }

type stubLLM struct {
	calls int
}

func (s *stubLLM) Complete(ctx context.Context, messages []llmclient.Message, params llmclient.Params) (llmclient.Result, error) {
	s.calls++
	return llmclient.Result{Text: "answer text", PromptTokens: 10, CompletionTokens: 5}, nil
}
func (s *stubLLM) Ping(ctx context.Context) error { return nil }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestOrchestrator(t *testing.T, hits []types.Hit, llm *stubLLM) *Orchestrator {
	t.Helper()
	embedder := stubEmbedder{}
	registry := sources.NewRegistry([]sources.Config{
		{ID: "confluence", Collection: "confluence-col", Enabled: true, Weight: 1.0},
	})
	store := cache.NewStore(cache.DefaultConfig(), embedder, testLogger())
	engine := queryengine.New(queryengine.DefaultConfig(), registry, nil, &stubStore{hits: hits}, embedder, resilience.DefaultCircuitBreakerConfig(), testLogger(), nil)
	builder := responsebuilder.New(responsebuilder.DefaultConfig(), llm, resilience.NewCircuitBreaker("llm", resilience.DefaultCircuitBreakerConfig()), nil)
	return New(DefaultConfig(), store, engine, builder, embedder, testLogger(), nil)
}

func testQuery() types.Query {
	return types.Query{Text: "how do I reset my password", Mode: types.ModeConcise, AllowSemantic: true}
}

func TestOrchestrator_Handle_CacheMissThenFanOutThenCacheWrite(t *testing.T) {
	llm := &stubLLM{}
	hits := []types.Hit{{SourceID: "confluence", DocID: "1", Score: 0.9, Payload: types.Payload{Title: "t", URL: "u", TextSnippet: "s"}}}
	o := newTestOrchestrator(t, hits, llm)

	answer, err := o.Handle(context.Background(), testQuery())

	require.NoError(t, err)
	assert.Equal(t, "answer text", answer.Text)
	assert.Equal(t, types.CacheResultMiss, answer.Metrics.CacheResult)
	assert.Equal(t, 1, llm.calls)
}

func TestOrchestrator_Handle_SecondCallHitsExactCache(t *testing.T) {
	llm := &stubLLM{}
	hits := []types.Hit{{SourceID: "confluence", DocID: "1", Score: 0.9, Payload: types.Payload{Title: "t", URL: "u", TextSnippet: "s"}}}
	o := newTestOrchestrator(t, hits, llm)
	q := testQuery()

	_, err := o.Handle(context.Background(), q)
	require.NoError(t, err)

	answer, err := o.Handle(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, types.CacheResultExact, answer.Metrics.CacheResult)
	assert.Equal(t, 1, llm.calls, "second call should be served from cache, not re-invoke the LLM")
}

func TestOrchestrator_Handle_EmptyFanOutFallsBackToNoContextAnswer(t *testing.T) {
	llm := &stubLLM{}
	o := newTestOrchestrator(t, nil, llm)

	answer, err := o.Handle(context.Background(), testQuery())

	require.NoError(t, err)
	assert.Equal(t, types.CacheResultMissNoCtx, answer.Metrics.CacheResult)
	assert.Equal(t, 1, llm.calls)
}
