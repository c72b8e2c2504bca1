package limiter

import (
	"sync/atomic"
	"time"
)

// CircuitState represents breaker state.
type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitOptions configures breaker thresholds.
type CircuitOptions struct {
	FailureThreshold int64
	OpenDuration     time.Duration
	HalfOpenMaxCalls int64
}

// CircuitBreaker stops store calls after consecutive failures so an
// unreachable store costs no latency while it is down.
type CircuitBreaker struct {
	state            atomic.Int32
	openUntil        atomic.Int64
	failures         atomic.Int64
	halfOpenInFlight atomic.Int64
	opts             CircuitOptions
	now              func() time.Time
}

// NewCircuitBreaker constructs a breaker with defaults. A nil now uses time.Now.
func NewCircuitBreaker(opts CircuitOptions, now func() time.Time) *CircuitBreaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 10
	}
	if opts.OpenDuration <= 0 {
		opts.OpenDuration = 5 * time.Second
	}
	if opts.HalfOpenMaxCalls <= 0 {
		opts.HalfOpenMaxCalls = 5
	}
	if now == nil {
		now = time.Now
	}
	cb := &CircuitBreaker{opts: opts, now: now}
	cb.state.Store(int32(CircuitClosed))
	return cb
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	return CircuitState(cb.state.Load())
}

// Allow reports whether the call should proceed.
func (cb *CircuitBreaker) Allow() bool {
	if cb == nil {
		return true
	}
	switch CircuitState(cb.state.Load()) {
	case CircuitOpen:
		if cb.now().UnixNano() < cb.openUntil.Load() {
			return false
		}
		if cb.state.CompareAndSwap(int32(CircuitOpen), int32(CircuitHalfOpen)) {
			cb.halfOpenInFlight.Store(0)
		}
		return cb.Allow()
	case CircuitHalfOpen:
		if cb.halfOpenInFlight.Add(1) <= cb.opts.HalfOpenMaxCalls {
			return true
		}
		cb.halfOpenInFlight.Add(-1)
		return false
	default:
		return true
	}
}

// OnSuccess records a successful call.
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	if CircuitState(cb.state.Load()) == CircuitHalfOpen {
		cb.halfOpenInFlight.Add(-1)
		cb.state.Store(int32(CircuitClosed))
	}
	cb.failures.Store(0)
}

// OnFailure records a failure and reports whether it opened the circuit.
func (cb *CircuitBreaker) OnFailure() bool {
	if cb == nil {
		return false
	}
	openUntil := cb.now().Add(cb.opts.OpenDuration).UnixNano()
	if CircuitState(cb.state.Load()) == CircuitHalfOpen {
		cb.halfOpenInFlight.Add(-1)
		cb.openUntil.Store(openUntil)
		return cb.state.CompareAndSwap(int32(CircuitHalfOpen), int32(CircuitOpen))
	}
	if cb.failures.Add(1) >= cb.opts.FailureThreshold {
		cb.openUntil.Store(openUntil)
		return cb.state.CompareAndSwap(int32(CircuitClosed), int32(CircuitOpen))
	}
	return false
}
