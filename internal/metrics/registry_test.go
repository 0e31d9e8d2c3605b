package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCacheCounters_Increment(t *testing.T) {
	before := testutil.ToFloat64(CacheExactHits)
	CacheExactHits.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(CacheExactHits))
}

func TestBreakerStateGauge_PerName(t *testing.T) {
	BreakerState.WithLabelValues("jira").Set(1)
	BreakerState.WithLabelValues("confluence").Set(0)

	assert.Equal(t, float64(1), testutil.ToFloat64(BreakerState.WithLabelValues("jira")))
	assert.Equal(t, float64(0), testutil.ToFloat64(BreakerState.WithLabelValues("confluence")))
}

func TestSourceSearchLatency_Observes(t *testing.T) {
	SourceSearchLatency.WithLabelValues("jira", "ok").Observe(0.05)
	// Observation should not panic; histogram count is exercised via Write in real exporters.
}
