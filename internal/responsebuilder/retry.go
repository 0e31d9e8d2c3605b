package responsebuilder

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/helpdesk-ai/ragdesk/internal/llmclient"
	"github.com/helpdesk-ai/ragdesk/internal/metrics"
	"github.com/helpdesk-ai/ragdesk/internal/resilience"
	gwerrors "github.com/helpdesk-ai/ragdesk/pkg/errors"
)

// RetryConfig configures the LLM invocation's retry/backoff schedule
// (§4.3 "at most 2 retries ... exponential backoff with jitter").
type RetryConfig struct {
	MaxRetries   int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	Jitter       float64
	PerAttemptTO time.Duration
}

// DefaultRetryConfig returns the spec.md §4.3 defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   2,
		BaseBackoff:  250 * time.Millisecond,
		MaxBackoff:   2 * time.Second,
		Jitter:       0.3,
		PerAttemptTO: 20 * time.Second,
	}
}

var backoffRand = struct {
	mu  sync.Mutex
	rnd *rand.Rand
}{}

func randomFloat64() float64 {
	backoffRand.mu.Lock()
	defer backoffRand.mu.Unlock()
	if backoffRand.rnd == nil {
		backoffRand.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return backoffRand.rnd.Float64()
}

// retryBackoff computes the exponential-backoff-with-jitter delay before
// attempt (1-indexed), doubling BaseBackoff and capping at MaxBackoff,
// mirroring the teacher's collaborator-call retry schedule.
func retryBackoff(cfg RetryConfig, attempt int) time.Duration {
	if attempt <= 0 || cfg.BaseBackoff <= 0 {
		return 0
	}

	backoff := cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		next := backoff * 2
		if next < backoff {
			break
		}
		backoff = next
	}
	if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
		backoff = cfg.MaxBackoff
	}

	if cfg.Jitter > 0 {
		jitter := cfg.Jitter
		if jitter > 1 {
			jitter = 1
		}
		minFactor := 1 - jitter
		maxFactor := 1 + jitter
		factor := minFactor + randomFloat64()*(maxFactor-minFactor)
		backoff = time.Duration(float64(backoff) * factor)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return backoff
}

// isRetryable reports whether err is a transport failure, timeout, or 5xx
// (§4.3: "A 4xx other than 429 is not retried"). A 429 is classified as
// CodeUnavailable (not CodeBadRequest) and is therefore retried with the
// same schedule; the breaker applies the dampening weight separately.
func isRetryable(err error) bool {
	var gerr *gwerrors.GatewayError
	if !errors.As(err, &gerr) {
		return true
	}
	return gerr.Code != gwerrors.CodeBadRequest && gerr.Code != gwerrors.CodeInternal
}

// callWithRetry invokes llm.Complete guarded by breaker, retrying on
// transport/5xx failures with backoff-with-jitter, up to cfg.MaxRetries
// additional attempts (§4.3).
func callWithRetry(ctx context.Context, llm llmclient.Client, breaker *resilience.CircuitBreaker, messages []llmclient.Message, params llmclient.Params, cfg RetryConfig) (llmclient.Result, error) {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.LLMRetries.Inc()
			backoff := retryBackoff(cfg, attempt)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return llmclient.Result{}, ctx.Err()
			}
		}

		if breaker != nil && !breaker.Allow() {
			return llmclient.Result{}, gwerrors.NewUnavailable("llm circuit open", resilience.ErrCircuitOpen)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, cfg.PerAttemptTO)
		start := time.Now()
		result, err := llm.Complete(attemptCtx, messages, params)
		elapsed := time.Since(start).Seconds()
		cancel()

		if err == nil {
			metrics.LLMLatency.WithLabelValues("success").Observe(elapsed)
			if breaker != nil {
				breaker.RecordSuccess()
			}
			return result, nil
		}

		metrics.LLMLatency.WithLabelValues("failure").Observe(elapsed)
		lastErr = err
		if breaker != nil && gwerrors.CountsAgainstBreaker(err) {
			weight := 1.0
			if gwerrors.IsRateLimited(err) {
				weight = 0.5
			}
			breaker.RecordFailure(weight)
		}

		if !isRetryable(err) {
			break
		}
	}

	return llmclient.Result{}, lastErr
}
