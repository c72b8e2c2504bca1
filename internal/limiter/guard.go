package limiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xizzxy/quotagate/internal/store"
)

// FailureMode decides what a check returns when the store cannot be reached.
type FailureMode string

const (
	FailOpen   FailureMode = "open"
	FailClosed FailureMode = "closed"
)

// ParseFailureMode parses "open" or "closed".
func ParseFailureMode(s string) (FailureMode, error) {
	switch FailureMode(s) {
	case FailOpen, FailClosed:
		return FailureMode(s), nil
	default:
		return "", fmt.Errorf("%w: failure mode must be %q or %q, got %q", ErrInvalidConfiguration, FailOpen, FailClosed, s)
	}
}

// DefaultStoreTimeout bounds every guarded store interaction.
const DefaultStoreTimeout = 250 * time.Millisecond

// Guard runs store interactions under a timeout and circuit breaker and
// turns their failures into the configured failure mode.
type Guard struct {
	mode     FailureMode
	timeout  time.Duration
	breaker  *CircuitBreaker
	logger   *slog.Logger
	recorder Recorder
}

func newGuard(mode FailureMode, timeout time.Duration, breaker *CircuitBreaker, logger *slog.Logger, recorder Recorder) *Guard {
	if mode == "" {
		mode = FailOpen
	}
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Guard{
		mode:     mode,
		timeout:  timeout,
		breaker:  breaker,
		logger:   logger,
		recorder: recorder,
	}
}

// Do runs fn with a bounded context. Any failure, including a timeout or an
// open circuit, is reported as store.ErrUnavailable.
func (g *Guard) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !g.breaker.Allow() {
		return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, op, ErrCircuitOpen)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	g.recorder.ObserveStoreCall(op, time.Since(start), err)
	if err != nil {
		if g.breaker.OnFailure() {
			g.logger.Warn("Counter store circuit opened", "op", op, "error", err)
		}
		return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, op, err)
	}
	g.breaker.OnSuccess()
	return nil
}

// Degrade logs a store failure and reports whether the failure mode admits
// the request.
func (g *Guard) Degrade(err error, args ...any) bool {
	admit := g.mode == FailOpen
	if errors.Is(err, ErrCircuitOpen) {
		g.logger.Debug("Counter store circuit open, skipping check", append(args, "admit", admit)...)
		return admit
	}
	g.logger.Warn("Counter store unavailable", append(args, "admit", admit, "error", err)...)
	return admit
}

// Mode returns the configured failure mode.
func (g *Guard) Mode() FailureMode { return g.mode }
