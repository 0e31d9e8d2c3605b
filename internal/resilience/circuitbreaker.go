// Package resilience provides the gateway's availability patterns: a
// circuit breaker per source/LLM collaborator (§4.4) and a bounded
// concurrency semaphore for the fan-out (§4.2, §5).
package resilience

import (
	"errors"
	"sync"
	"time"
)

// CircuitState is the current state of a circuit breaker (§4.4).
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Allow-guarded call sites when a breaker is
// short-circuiting requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig configures the sliding-window failure trigger and
// cool-down schedule (§4.4, §6 breaker.*).
type CircuitBreakerConfig struct {
	// FailureThreshold trips the breaker once this many failures occur
	// within Window, regardless of rate.
	FailureThreshold int
	// Window is the number of most recent call outcomes considered for the
	// failure-rate trigger.
	Window int
	// FailureRate trips the breaker once the failure ratio over Window
	// calls reaches this value.
	FailureRate float64
	// CoolDown is how long the breaker stays open before allowing a single
	// half-open probe.
	CoolDown time.Duration
	// CoolDownMax caps the doubling backoff applied to CoolDown each time a
	// half-open probe fails.
	CoolDownMax time.Duration
}

// DefaultCircuitBreakerConfig returns spec.md §6 defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		Window:           20,
		FailureRate:      0.5,
		CoolDown:         30 * time.Second,
		CoolDownMax:      5 * time.Minute,
	}
}

// CircuitBreaker implements the three-state breaker of §4.4: a sliding
// window of recent outcomes trips Closed -> Open; a cool-down timer
// (doubling on repeated probe failure, capped at CoolDownMax) gates
// Open -> HalfOpen; a single probe decides HalfOpen -> {Closed, Open}.
type CircuitBreaker struct {
	mu sync.Mutex

	name   string
	state  CircuitState
	config CircuitBreakerConfig

	// outcomes is a ring buffer of the last Window call failure weights: 0
	// for a success, 1.0 for a full failure, 0.5 for a dampened 429 (§4.4).
	outcomes     []float64
	outcomeCount int
	outcomeHead  int
	failureSum   float64 // sum of outcomes currently in the window
	failureN     int     // count of non-zero entries currently in the window

	openedAt      time.Time
	currentCool   time.Duration
	halfOpenInUse bool

	onStateChange func(name string, from, to CircuitState)
}

// NewCircuitBreaker creates a breaker for one collaborator (a SourceID or
// the LLM client).
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.Window <= 0 {
		cfg.Window = 20
	}
	return &CircuitBreaker{
		name:        name,
		state:       StateClosed,
		config:      cfg,
		outcomes:    make([]float64, cfg.Window),
		currentCool: cfg.CoolDown,
	}
}

// OnStateChange registers a callback fired (asynchronously) on every state
// transition, for logging and metrics.
func (cb *CircuitBreaker) OnStateChange(fn func(name string, from, to CircuitState)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// Allow reports whether a call should proceed. It performs the
// Open -> HalfOpen transition as a side effect once the cool-down elapses.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true

	case StateOpen:
		if time.Since(cb.openedAt) >= cb.currentCool {
			cb.transitionTo(StateHalfOpen)
			cb.halfOpenInUse = true
			return true
		}
		return false

	case StateHalfOpen:
		// Only one probe in flight at a time; concurrent callers are
		// short-circuited until the probe resolves.
		if cb.halfOpenInUse {
			return false
		}
		cb.halfOpenInUse = true
		return true

	default:
		return false
	}
}

// RecordSuccess reports a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.pushOutcome(0)
		if cb.shouldTrip() {
			cb.trip()
		}
	case StateHalfOpen:
		cb.transitionTo(StateClosed)
		cb.resetWindow()
		cb.currentCool = cb.config.CoolDown
		cb.halfOpenInUse = false
	}
}

// RecordFailure reports a failed call. weight is 1.0 for a full failure
// (timeout, 5xx, explicit unavailable) or 0.5 for a 429 (§4.4 dampening).
func (cb *CircuitBreaker) RecordFailure(weight float64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.pushOutcome(weight)
		if cb.shouldTrip() {
			cb.trip()
		}
	case StateHalfOpen:
		cb.halfOpenInUse = false
		cb.trip()
		cb.currentCool *= 2
		if cb.currentCool > cb.config.CoolDownMax {
			cb.currentCool = cb.config.CoolDownMax
		}
	}
}

// shouldTrip evaluates the §4.4 trigger: >= FailureThreshold failures in
// the window, OR failure rate >= FailureRate over a full window.
func (cb *CircuitBreaker) shouldTrip() bool {
	if cb.failureN >= cb.config.FailureThreshold {
		return true
	}
	if cb.outcomeCount >= cb.config.Window {
		rate := cb.failureSum / float64(cb.outcomeCount)
		return rate >= cb.config.FailureRate
	}
	return false
}

// pushOutcome records one call's failure weight (0 for success, 0.5 for a
// dampened 429, 1.0 for any other failure) into the sliding window.
func (cb *CircuitBreaker) pushOutcome(weight float64) {
	n := len(cb.outcomes)
	if cb.outcomeCount < n {
		cb.outcomes[cb.outcomeCount] = weight
		cb.outcomeCount++
	} else {
		evicted := cb.outcomes[cb.outcomeHead]
		cb.failureSum -= evicted
		if evicted > 0 {
			cb.failureN--
		}
		cb.outcomes[cb.outcomeHead] = weight
		cb.outcomeHead = (cb.outcomeHead + 1) % n
	}
	if weight > 0 {
		cb.failureSum += weight
		cb.failureN++
	}
}

func (cb *CircuitBreaker) resetWindow() {
	cb.outcomeCount = 0
	cb.outcomeHead = 0
	cb.failureSum = 0
	cb.failureN = 0
	for i := range cb.outcomes {
		cb.outcomes[i] = 0
	}
}

func (cb *CircuitBreaker) trip() {
	cb.transitionTo(StateOpen)
	cb.openedAt = time.Now()
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Name returns the breaker's collaborator name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Reset forces the breaker back to Closed, clearing its window.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(StateClosed)
	cb.resetWindow()
	cb.currentCool = cb.config.CoolDown
	cb.halfOpenInUse = false
}

func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	if cb.state == newState {
		return
	}
	oldState := cb.state
	cb.state = newState
	if cb.onStateChange != nil {
		go cb.onStateChange(cb.name, oldState, newState)
	}
}
