package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable marks failures talking to the backing counter store.
	ErrUnavailable = errors.New("counter store unavailable")
	// ErrNotInteger is returned when an increment hits a non-integer value.
	ErrNotInteger = errors.New("value is not an integer")
	// ErrOverflow is returned when an increment would overflow int64.
	ErrOverflow = errors.New("increment would overflow")
)

// CounterStore is the shared key-value store every limiter instance counts in.
// Any store offering these primitives can back the engine.
type CounterStore interface {
	// Incr atomically adds delta to the integer at key (absent = 0) and returns the new value.
	Incr(ctx context.Context, key string, delta int64) (int64, error)
	// Get returns the value at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// ExpireIfUnset sets a ttl on key only when it has none.
	ExpireIfUnset(ctx context.Context, key string, ttl time.Duration) error
	// Delete removes the given keys.
	Delete(ctx context.Context, keys ...string) error
}

// TokenTaker is implemented by stores that can run a token-bucket
// refill-then-consume step atomically.
type TokenTaker interface {
	TakeToken(ctx context.Context, key string, burst int64, refillRate float64, nowMs int64, ttl time.Duration) (allowed bool, tokens float64, err error)
}

// Pinger is implemented by stores that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}
