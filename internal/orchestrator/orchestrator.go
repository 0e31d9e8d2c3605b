// Package orchestrator implements the gateway's single entry point,
// handle(query) -> answer (spec §4.5): cache lookup, single-flight
// coalescing, fan-out, response building, and cache write.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/helpdesk-ai/ragdesk/internal/cache"
	"github.com/helpdesk-ai/ragdesk/internal/embedding"
	"github.com/helpdesk-ai/ragdesk/internal/metrics"
	"github.com/helpdesk-ai/ragdesk/internal/observability"
	"github.com/helpdesk-ai/ragdesk/internal/queryengine"
	"github.com/helpdesk-ai/ragdesk/internal/responsebuilder"
	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// Config holds the §5 pipeline-wide tuning knobs.
type Config struct {
	// Deadline bounds a single handle() call (§5 "Every pipeline invocation
	// carries a deadline, default 25s").
	Deadline time.Duration
}

// DefaultConfig returns the spec.md §5 default.
func DefaultConfig() Config {
	return Config{Deadline: 25 * time.Second}
}

// Orchestrator wires the cache, query engine, and response builder into
// the single handle(query) -> answer pipeline.
type Orchestrator struct {
	cfg      Config
	store    *cache.Store
	engine   *queryengine.Engine
	builder  *responsebuilder.Builder
	embedder embedding.Client
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New builds an Orchestrator from its already-constructed collaborators.
// tracer starts the root span for each /query call and the child span
// around cache lookups (§13 span tree); pass nil to disable tracing, in
// which case Handle runs untraced.
func New(cfg Config, store *cache.Store, engine *queryengine.Engine, builder *responsebuilder.Builder, embedder embedding.Client, logger *slog.Logger, tracer trace.Tracer) *Orchestrator {
	return &Orchestrator{cfg: cfg, store: store, engine: engine, builder: builder, embedder: embedder, logger: logger, tracer: tracer}
}

// Handle runs the §4.5 seven-step pipeline for a single query.
func (o *Orchestrator) Handle(ctx context.Context, q types.Query) (types.Answer, error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()

	if o.tracer != nil {
		var span trace.Span
		ctx, span = observability.StartPipelineSpan(ctx, o.tracer, q.Tenant, string(q.Mode))
		defer span.End()
	}

	start := time.Now()

	answer, err := o.handle(ctx, q)
	if err != nil && o.tracer != nil {
		observability.RecordError(trace.SpanFromContext(ctx), err)
	}
	metrics.PipelineRequests.WithLabelValues(string(answer.Metrics.CacheResult)).Inc()
	metrics.PipelineLatency.WithLabelValues(string(answer.Metrics.CacheResult)).Observe(time.Since(start).Seconds())
	return answer, err
}

func (o *Orchestrator) handle(ctx context.Context, q types.Query) (types.Answer, error) {
	// Step 1: cache lookup. Store.Get tries the exact key first and, when
	// the query allows it, the semantic lookup as well.
	result, err := o.cacheGet(ctx, q)
	if err != nil {
		return types.Answer{}, err
	}
	if result.Kind == cache.HitExact {
		result.Value.Metrics.CacheResult = types.CacheResultExact
		return result.Value, nil
	}
	if result.Kind == cache.HitSemantic {
		result.Value.Metrics.CacheResult = types.CacheResultSemantic
		result.Value.Metrics.Similarity = result.Similarity
		return result.Value, nil
	}

	// Step 2: single-flight coalescing per fingerprint. Latecomers for the
	// same fingerprint await the in-flight execution's result instead of
	// repeating the fan-out and LLM call (§4.5 step 2, §5 ordering).
	fingerprint := cache.Fingerprint(q)
	answer, err, shared := o.store.Flight().Do(fingerprint, func() (types.Answer, error) {
		return o.execute(ctx, q)
	})
	if shared {
		metrics.SingleFlightCoalesced.Inc()
	}
	return answer, err
}

// execute runs steps 3-6 of §4.5: semantic lookup, fan-out, response
// building, and the cache write. It is the function coalesced by
// single-flight, so it performs at most one fan-out and one LLM call per
// fingerprint, however many callers are waiting on it.
func (o *Orchestrator) execute(ctx context.Context, q types.Query) (types.Answer, error) {
	// Step 3: cache semantic lookup, re-checked inside the single-flight
	// critical section since another goroutine may have populated the cache
	// while this caller waited to acquire it.
	if q.AllowSemantic {
		result, err := o.cacheGet(ctx, q)
		if err != nil {
			return types.Answer{}, err
		}
		if result.Kind == cache.HitSemantic || result.Kind == cache.HitExact {
			if result.Kind == cache.HitSemantic {
				result.Value.Metrics.CacheResult = types.CacheResultSemantic
				result.Value.Metrics.Similarity = result.Similarity
			} else {
				result.Value.Metrics.CacheResult = types.CacheResultExact
			}
			return result.Value, nil
		}
	}

	// Step 4: query engine fan-out.
	engineResult, err := o.engine.Search(ctx, q)
	if err != nil {
		return types.Answer{}, err
	}

	var answer types.Answer
	if len(engineResult.Hits) == 0 {
		o.logger.Info("fan-out returned no usable hits, answering without context", "tenant", q.Tenant)
		answer, err = o.builder.Build(ctx, q.Text, q.Mode, nil)
		if err != nil {
			return types.Answer{}, err
		}
		answer.Metrics.CacheResult = types.CacheResultMissNoCtx
		answer.Metrics.Partial = false
	} else {
		// Step 5: response builder invocation.
		answer, err = o.builder.Build(ctx, q.Text, q.Mode, engineResult.Hits)
		if err != nil {
			return types.Answer{}, err
		}
		answer.Metrics.CacheResult = types.CacheResultMiss
		answer.Metrics.Partial = engineResult.Partial
	}

	// Step 6: cache write. tokens_value is the sum of prompt and completion
	// tokens actually billed by the LLM provider (§4.5 step 6, §14 Open
	// Question resolution).
	tokensValue := answer.Metrics.PromptTokens + answer.Metrics.CompletionTokens
	var embeddingVec types.Vector
	if q.AllowSemantic {
		if vec, embedErr := o.embedder.Embed(ctx, q.Text); embedErr == nil {
			embeddingVec = vec
		} else {
			o.logger.Warn("embedding for cache write failed, storing without semantic eligibility", "error", embedErr)
		}
	}
	if o.tracer != nil {
		_, span := observability.StartCacheSpan(ctx, o.tracer, "put")
		o.store.Put(q, answer, tokensValue, embeddingVec)
		span.End()
	} else {
		o.store.Put(q, answer, tokensValue, embeddingVec)
	}

	// Step 7: release single-flight slot, return answer. Releasing the slot
	// is handled by singleflight.Group itself once this function returns.
	return answer, nil
}

// cacheGet wraps a cache lookup in a child span when tracing is enabled
// (§13 span tree: "child spans for cache lookup").
func (o *Orchestrator) cacheGet(ctx context.Context, q types.Query) (cache.Result, error) {
	if o.tracer == nil {
		return o.store.Get(ctx, q)
	}
	spanCtx, span := observability.StartCacheSpan(ctx, o.tracer, "get")
	defer span.End()
	result, err := o.store.Get(spanCtx, q)
	if err != nil {
		observability.RecordError(span, err)
	}
	return result, err
}
