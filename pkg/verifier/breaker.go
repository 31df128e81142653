package verifier

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker is rejecting calls.
var ErrCircuitOpen = errors.New("verifier: circuit open")

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed is the normal operating state where calls pass through.
	CircuitClosed CircuitState = iota

	// CircuitOpen is the tripped state where calls are rejected immediately.
	CircuitOpen

	// CircuitHalfOpen lets one call through after the reset timeout to test
	// whether the node is back.
	CircuitHalfOpen
)

// String returns a human-readable circuit state name.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker behavior.
type CircuitBreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening the circuit. Default: 3
	FailureThreshold int

	// ResetTimeout is how long to wait before attempting to reset from open state. Default: 30s
	ResetTimeout time.Duration
}

// DefaultCircuitBreakerConfig returns a CircuitBreakerConfig with sensible defaults.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 3,
		ResetTimeout:     30 * time.Second,
	}
}

// CircuitBreaker fast-fails submissions while the verifier node is
// unreachable. Only failures the caller reports through Execute count;
// contract rejections are not node failures and must not trip it.
type CircuitBreaker struct {
	mu  sync.Mutex
	now func() time.Time

	cfg CircuitBreakerConfig

	state            CircuitState
	consecutiveFails int
	lastFailTime     time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	def := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}

	return &CircuitBreaker{
		cfg:   cfg,
		now:   time.Now,
		state: CircuitClosed,
	}
}

// State returns the current state of the circuit breaker.
// Note: this may transition from Open to HalfOpen if the reset timeout has elapsed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.stateLocked()
}

// stateLocked returns the current state, handling the Open->HalfOpen transition.
// Must be called with mu held.
func (cb *CircuitBreaker) stateLocked() CircuitState {
	if cb.state == CircuitOpen && cb.now().Sub(cb.lastFailTime) >= cb.cfg.ResetTimeout {
		cb.state = CircuitHalfOpen
	}
	return cb.state
}

// Execute runs fn unless the circuit is open. fn returns the error that
// counts against the breaker, which may differ from what the caller reports.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mu.Lock()
	if cb.stateLocked() == CircuitOpen {
		cb.mu.Unlock()
		return ErrCircuitOpen
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
	return err
}

// onFailure handles a failed call.
// Must be called with mu held.
func (cb *CircuitBreaker) onFailure() {
	cb.consecutiveFails++
	cb.lastFailTime = cb.now()

	// In half-open state, any failure reopens the circuit
	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		return
	}

	if cb.consecutiveFails >= cb.cfg.FailureThreshold {
		cb.state = CircuitOpen
	}
}

// onSuccess handles a successful call.
// Must be called with mu held.
func (cb *CircuitBreaker) onSuccess() {
	cb.consecutiveFails = 0
	if cb.state == CircuitHalfOpen {
		cb.state = CircuitClosed
	}
}

// Reset manually resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.consecutiveFails = 0
}
