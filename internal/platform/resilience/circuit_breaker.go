package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrCircuitOpen is returned when the circuit breaker rejects a call.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed allows all calls.
	StateClosed State = iota
	// StateOpen rejects all calls until the reset timeout elapses.
	StateOpen
	// StateHalfOpen allows probe calls to test recovery.
	StateHalfOpen
)

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

// CircuitBreaker gates calls to a failing dependency. It opens after
// FailureThreshold consecutive failures, rejects calls for ResetTimeout,
// then allows probes; SuccessThreshold consecutive probe successes close it
// again. A deadline exceeded on the call counts as a failure; a cancellation
// of the caller's context does not.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	successThreshold int
	resetTimeout     time.Duration

	state         State
	failures      int
	successes     int
	openedAt      time.Time
	mu            sync.RWMutex
	onStateChange func(from, to State)
}

// CircuitBreakerConfig configures a breaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
	OnStateChange    func(from, to State)
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}

	return &CircuitBreaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		resetTimeout:     cfg.ResetTimeout,
		state:            StateClosed,
		onStateChange:    cfg.OnStateChange,
	}
}

// Execute runs fn through the breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	cb.afterCall(err)
	return err
}

// ExecuteWithResult runs fn through cb and returns its result. Standalone
// function because Go does not allow generic methods.
func ExecuteWithResult[T any](cb *CircuitBreaker, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := cb.beforeCall(); err != nil {
		return zero, err
	}

	result, err := fn(ctx)
	cb.afterCall(err)
	return result, err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil

	case StateOpen:
		if time.Since(cb.openedAt) >= cb.resetTimeout {
			cb.setState(StateHalfOpen)
			return nil
		}
		return ErrCircuitOpen

	case StateHalfOpen:
		return nil

	default:
		return ErrCircuitOpen
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		// A cancelled caller says nothing about upstream health. A deadline
		// exceeded is an upstream timeout and counts.
		if errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return
		}

		cb.failures++
		cb.successes = 0

		switch cb.state {
		case StateClosed:
			if cb.failures >= cb.failureThreshold {
				cb.open()
			}
		case StateHalfOpen:
			cb.open()
		}
		return
	}

	cb.successes++

	switch cb.state {
	case StateClosed:
		cb.failures = 0

	case StateHalfOpen:
		if cb.successes >= cb.successThreshold {
			cb.setState(StateClosed)
			cb.failures = 0
		}
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = time.Now()
	cb.setState(StateOpen)
}

func (cb *CircuitBreaker) setState(newState State) {
	oldState := cb.state
	if oldState == newState {
		return
	}
	cb.state = newState

	if cb.onStateChange != nil {
		cb.onStateChange(oldState, newState)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// Stats returns the current state and consecutive failure/success counts.
func (cb *CircuitBreaker) Stats() (state State, failures, successes int) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state, cb.failures, cb.successes
}

// ForceOpen opens the breaker immediately.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.open()
}

// Reset closes the breaker and clears its counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.setState(StateClosed)
	cb.failures = 0
	cb.successes = 0
}
