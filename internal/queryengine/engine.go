// Package queryengine implements the gateway's fan-out search and
// aggregation stage (spec §4.2): it turns one query into a ranked,
// deduplicated, source-attributed hit list drawn from the permitted
// sources.
package queryengine

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/otel/trace"

	"github.com/helpdesk-ai/ragdesk/internal/embedding"
	"github.com/helpdesk-ai/ragdesk/internal/metrics"
	"github.com/helpdesk-ai/ragdesk/internal/observability"
	"github.com/helpdesk-ai/ragdesk/internal/resilience"
	"github.com/helpdesk-ai/ragdesk/internal/sources"
	"github.com/helpdesk-ai/ragdesk/internal/vectorstore"
	gwerrors "github.com/helpdesk-ai/ragdesk/pkg/errors"
	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

// Config holds the §4.2/§6 pipeline.* fan-out tuning knobs.
type Config struct {
	TopKPerSource      int
	TopKGlobal         int
	PerSourceTimeout   time.Duration
	OverallDeadline    time.Duration
	MaxConcurrentTasks int
}

// DefaultConfig returns the spec.md §6 defaults.
func DefaultConfig() Config {
	return Config{
		TopKPerSource:      10,
		TopKGlobal:         8,
		PerSourceTimeout:   4 * time.Second,
		OverallDeadline:    8 * time.Second,
		MaxConcurrentTasks: 6,
	}
}

// Result is the aggregated outcome of one fan-out (§4.2 "Degraded
// results").
type Result struct {
	Hits    []types.RankedHit
	Partial bool   // a selected source timed out or was skipped
	Empty   bool   // every selected source failed; Hits is empty
	Sources []types.SourceID
}

// Engine runs the bounded-concurrency, circuit-breaker-guarded fan-out
// across a Registry's sources and merges the results.
type Engine struct {
	cfg      Config
	registry *sources.Registry
	matcher  *sources.ClientMatcher
	store    vectorstore.Client
	embedder embedding.Client
	breakers map[types.SourceID]*resilience.CircuitBreaker
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New builds an Engine, creating one circuit breaker per source in the
// registry's enabled set (§4.4: one breaker per collaborator). tracer
// starts a child span per source search during fan-out (§13 span tree);
// pass nil to disable tracing.
func New(cfg Config, registry *sources.Registry, matcher *sources.ClientMatcher, store vectorstore.Client, embedder embedding.Client, breakerCfg resilience.CircuitBreakerConfig, logger *slog.Logger, tracer trace.Tracer) *Engine {
	breakers := make(map[types.SourceID]*resilience.CircuitBreaker, len(registry.Enabled()))
	for _, id := range registry.Enabled() {
		b := resilience.NewCircuitBreaker(string(id), breakerCfg)
		b.OnStateChange(func(name string, from, to resilience.CircuitState) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			if to == resilience.StateOpen {
				metrics.BreakerTrips.WithLabelValues(name).Inc()
			}
		})
		breakers[id] = b
	}
	return &Engine{
		cfg:      cfg,
		registry: registry,
		matcher:  matcher,
		store:    store,
		embedder: embedder,
		breakers: breakers,
		logger:   logger,
		tracer:   tracer,
	}
}

// Breaker exposes the per-source breaker, e.g. for /stats reporting.
func (e *Engine) Breaker(id types.SourceID) (*resilience.CircuitBreaker, bool) {
	b, ok := e.breakers[id]
	return b, ok
}

type sourceOutcome struct {
	sourceID types.SourceID
	hits     []types.Hit
	skipped  bool
	failed   bool
}

// Search embeds the query once, fans it out across the selected sources
// under a bounded concurrency limit with FIFO waiting (§4.2), and returns
// the merged, deduplicated, ranked hit list.
func (e *Engine) Search(ctx context.Context, q types.Query) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.OverallDeadline)
	defer cancel()

	selected := sources.Select(e.registry, e.matcher, q)
	if len(selected) == 0 {
		return Result{Empty: true}, nil
	}

	vector, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return Result{}, err
	}

	outcomes, err := e.fanOut(ctx, selected, vector)
	if err != nil {
		return Result{}, err
	}

	return e.aggregate(selected, outcomes), nil
}

// fanOut launches one bounded-concurrency task per source. The semaphore
// enforces FIFO ordering for tasks beyond C_max (errgroup's own SetLimit
// does not guarantee order). Every task returns nil and records failures in
// its outcome, so errgroup only joins the tasks; the overall deadline
// reaches them through ctx.
func (e *Engine) fanOut(ctx context.Context, selected []types.SourceID, vector types.Vector) ([]sourceOutcome, error) {
	sem := resilience.NewSemaphore(e.cfg.MaxConcurrentTasks)
	outcomes := make([]sourceOutcome, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range selected {
		i, id := i, id
		g.Go(func() error {
			if err := sem.Acquire(gctx); err != nil {
				outcomes[i] = sourceOutcome{sourceID: id, skipped: true}
				return nil
			}
			defer sem.Release()

			outcomes[i] = e.searchOne(gctx, id, vector)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// searchOne runs a single source's search under its circuit breaker and
// per-task timeout. It never returns an error: failures are encoded in the
// outcome so one bad source never aborts the whole fan-out.
func (e *Engine) searchOne(ctx context.Context, id types.SourceID, vector types.Vector) sourceOutcome {
	if e.tracer != nil {
		var span trace.Span
		ctx, span = observability.StartSourceSearchSpan(ctx, e.tracer, string(id))
		defer span.End()
	}

	breaker := e.breakers[id]
	if breaker != nil && !breaker.Allow() {
		e.logger.Info("source skipped: circuit open", "source", id)
		metrics.SourceSkipped.WithLabelValues(string(id)).Inc()
		return sourceOutcome{sourceID: id, skipped: true}
	}

	cfg, ok := e.registry.Lookup(id)
	if !ok {
		return sourceOutcome{sourceID: id, failed: true}
	}

	taskCtx, cancel := context.WithTimeout(ctx, e.cfg.PerSourceTimeout)
	defer cancel()

	start := time.Now()
	hits, err := e.store.Search(taskCtx, cfg.Collection, vector, e.cfg.TopKPerSource, nil)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		metrics.SourceSearchLatency.WithLabelValues(string(id), "failure").Observe(elapsed)
		if breaker != nil && gwerrors.CountsAgainstBreaker(err) {
			weight := 1.0
			if gwerrors.IsRateLimited(err) {
				weight = 0.5
			}
			breaker.RecordFailure(weight)
		}
		e.logger.Warn("source search failed", "source", id, "error", err)
		if e.tracer != nil {
			observability.RecordError(trace.SpanFromContext(ctx), err)
		}
		return sourceOutcome{sourceID: id, failed: true}
	}

	metrics.SourceSearchLatency.WithLabelValues(string(id), "success").Observe(elapsed)
	if breaker != nil {
		breaker.RecordSuccess()
	}
	// The adapter labels hits with the collection name; attribute them to
	// the source so ranking applies this source's weight.
	for i := range hits {
		hits[i].SourceID = id
	}
	return sourceOutcome{sourceID: id, hits: hits}
}

// aggregate implements §4.2's four aggregation steps (validate, rank,
// dedup, sort+truncate) plus the "degraded results" partial/empty flags.
func (e *Engine) aggregate(selected []types.SourceID, outcomes []sourceOutcome) Result {
	var all []types.Hit
	partial := false
	anySucceeded := false

	for _, o := range outcomes {
		switch {
		case o.skipped:
			partial = true
		case o.failed:
			partial = true
		default:
			anySucceeded = true
			all = append(all, o.hits...)
		}
	}

	ranked := rank(e.registry, all)
	deduped := dedup(ranked)
	final := sortAndTruncate(deduped, e.cfg.TopKGlobal)

	result := Result{
		Hits:    final,
		Partial: partial && anySucceeded,
		Empty:   !anySucceeded,
		Sources: selected,
	}
	if result.Partial {
		metrics.PartialResults.Inc()
	}
	if result.Empty {
		metrics.EmptyResults.Inc()
	}
	return result
}
