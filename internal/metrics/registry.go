// Package metrics provides the Prometheus metrics registry consumed by
// observability collaborators (spec §2 item 9).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ragdesk"

// LatencyBuckets are the histogram buckets shared by the pipeline's
// latency metrics, in seconds.
var LatencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 0.75,
	1.0, 1.5, 2.0, 3.0, 4.0, 5.0, 8.0, 12.0, 20.0, 30.0,
}

// Cache metrics (§4.1, §8 property 2/4/5).
var (
	CacheExactHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "cache", Name: "exact_hits_total",
		Help: "Exact-key cache hits.",
	})
	CacheSemanticHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "cache", Name: "semantic_hits_total",
		Help: "Approximate vector-similarity cache hits.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "cache", Name: "misses_total",
		Help: "Cache lookups that found neither an exact nor a semantic match.",
	})
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "cache", Name: "evictions_total",
		Help: "Entries removed by the capacity evictor.",
	})
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "cache", Name: "entries",
		Help: "Current number of live cache entries.",
	})
	CacheBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "cache", Name: "bytes",
		Help: "Current estimated byte size of all cache entries.",
	})
	TokensSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "cache", Name: "tokens_saved_total",
		Help: "Tokens credited as saved by exact or semantic cache hits.",
	})
	TokensSpent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "cache", Name: "tokens_spent_total",
		Help: "Tokens actually spent on LLM completions (prompt + completion).",
	})
	SingleFlightCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "cache", Name: "singleflight_coalesced_total",
		Help: "Requests that waited on an in-flight pipeline execution instead of starting their own.",
	})
)

// Query engine / fan-out metrics (§4.2, §8 property 6).
var (
	SourceSearchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "queryengine", Name: "source_search_latency_seconds",
		Help: "Per-source vector_store.search latency.", Buckets: LatencyBuckets,
	}, []string{"source_id", "outcome"})
	SourceSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "queryengine", Name: "source_skipped_total",
		Help: "Source searches short-circuited by an open circuit breaker.",
	}, []string{"source_id"})
	PartialResults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "queryengine", Name: "partial_results_total",
		Help: "Fan-outs where at least one selected source timed out or was skipped.",
	})
	EmptyResults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "queryengine", Name: "empty_results_total",
		Help: "Fan-outs where every selected source failed.",
	})
)

// Response builder metrics (§4.3).
var (
	LLMLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "responsebuilder", Name: "llm_latency_seconds",
		Help: "LLM completion call latency.", Buckets: LatencyBuckets,
	}, []string{"outcome"})
	LLMRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "responsebuilder", Name: "llm_retries_total",
		Help: "Retries issued against the LLM client.",
	})
)

// Circuit breaker metrics (§4.4, §8 property 7).
var (
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "breaker", Name: "state",
		Help: "Current breaker state: 0=closed, 1=open, 2=half-open.",
	}, []string{"name"})
	BreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "breaker", Name: "trips_total",
		Help: "Closed -> Open transitions.",
	}, []string{"name"})
)

// Orchestrator-level metrics (§4.5).
var (
	PipelineLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "pipeline", Name: "latency_seconds",
		Help: "End-to-end handle(query) latency.", Buckets: LatencyBuckets,
	}, []string{"cache_result"})
	PipelineRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "pipeline", Name: "requests_total",
		Help: "Total handle(query) invocations.", ConstLabels: nil,
	}, []string{"cache_result"})
)
