package resilience

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the service recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
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

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// FailureRateThreshold is the failure percentage at which the circuit
	// opens.
	// Default: 50
	FailureRateThreshold float64

	// SlidingWindowSize is the number of most recent calls the failure rate
	// is computed over. The rate is only evaluated once the window is full.
	// Default: 100
	SlidingWindowSize int

	// WaitDurationInOpenState is how long to wait before probing.
	// Default: 10 seconds
	WaitDurationInOpenState time.Duration

	// PermittedCallsInHalfOpenState is the number of trial calls whose
	// outcome decides between closing and reopening.
	// Default: 10
	PermittedCallsInHalfOpenState int

	// OnStateChange is called when the circuit state changes.
	OnStateChange func(from, to State)

	// IsFailure determines if an error should count as a failure.
	// Default: all non-nil errors are failures.
	IsFailure func(err error) bool

	// Now is the time source.
	// Default: time.Now
	Now func() time.Time
}

// outcomeWindow is a fixed-size ring of call outcomes.
type outcomeWindow struct {
	outcomes []bool // true = failure
	next     int
	count    int
	failures int
}

func newOutcomeWindow(size int) outcomeWindow {
	return outcomeWindow{outcomes: make([]bool, size)}
}

func (w *outcomeWindow) record(failure bool) {
	if w.count == len(w.outcomes) {
		if w.outcomes[w.next] {
			w.failures--
		}
	} else {
		w.count++
	}
	w.outcomes[w.next] = failure
	if failure {
		w.failures++
	}
	w.next = (w.next + 1) % len(w.outcomes)
}

func (w *outcomeWindow) full() bool { return w.count == len(w.outcomes) }

func (w *outcomeWindow) failureRate() float64 {
	if w.count == 0 {
		return 0
	}
	return float64(w.failures) * 100 / float64(w.count)
}

func (w *outcomeWindow) reset() {
	clear(w.outcomes)
	w.next, w.count, w.failures = 0, 0, 0
}

// CircuitBreaker implements a count-based circuit breaker.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu            sync.Mutex
	state         State
	closedWindow  outcomeWindow
	halfOpen      outcomeWindow
	halfOpenCount int
	openedAt      time.Time
	lastFailure   time.Time
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureRateThreshold <= 0 || config.FailureRateThreshold > 100 {
		config.FailureRateThreshold = 50
	}
	if config.SlidingWindowSize <= 0 {
		config.SlidingWindowSize = 100
	}
	if config.WaitDurationInOpenState <= 0 {
		config.WaitDurationInOpenState = 10 * time.Second
	}
	if config.PermittedCallsInHalfOpenState <= 0 {
		config.PermittedCallsInHalfOpenState = 10
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool { return err != nil }
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &CircuitBreaker{
		config:       config,
		state:        StateClosed,
		closedWindow: newOutcomeWindow(config.SlidingWindowSize),
		halfOpen:     newOutcomeWindow(config.PermittedCallsInHalfOpenState),
	}
}

// Execute runs the operation through the circuit breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	err := op(ctx)
	cb.afterRequest(err)
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionLocked(StateClosed)
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentStateLocked() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.config.PermittedCallsInHalfOpenState {
			return ErrCircuitOpen
		}
		cb.halfOpenCount++
	}
	return nil
}

func (cb *CircuitBreaker) afterRequest(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failure := cb.config.IsFailure(err)
	if failure {
		cb.lastFailure = cb.config.Now()
	}

	switch cb.state {
	case StateClosed:
		cb.closedWindow.record(failure)
		if cb.closedWindow.full() && cb.closedWindow.failureRate() >= cb.config.FailureRateThreshold {
			cb.transitionLocked(StateOpen)
		}

	case StateHalfOpen:
		cb.halfOpen.record(failure)
		if cb.halfOpen.full() {
			if cb.halfOpen.failureRate() >= cb.config.FailureRateThreshold {
				cb.transitionLocked(StateOpen)
			} else {
				cb.transitionLocked(StateClosed)
			}
		}
	}
	// Outcomes of calls admitted before the circuit opened are ignored.
}

func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state == StateOpen && cb.config.Now().Sub(cb.openedAt) >= cb.config.WaitDurationInOpenState {
		cb.transitionLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	cb.state = to
	switch to {
	case StateClosed:
		cb.closedWindow.reset()
	case StateOpen:
		cb.openedAt = cb.config.Now()
	case StateHalfOpen:
		cb.halfOpen.reset()
		cb.halfOpenCount = 0
	}
	if from != to && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// Metrics returns current circuit breaker metrics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state := cb.currentStateLocked()
	window := &cb.closedWindow
	if state == StateHalfOpen {
		window = &cb.halfOpen
	}
	return CircuitBreakerMetrics{
		State:       state,
		Calls:       window.count,
		Failures:    window.failures,
		FailureRate: window.failureRate(),
		LastFailure: cb.lastFailure,
	}
}

// CircuitBreakerMetrics contains circuit breaker statistics for the window
// of the current state.
type CircuitBreakerMetrics struct {
	State       State
	Calls       int
	Failures    int
	FailureRate float64
	LastFailure time.Time
}
