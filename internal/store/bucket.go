package store

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BucketState is the persisted token-bucket record.
//
// It is encoded as "<tokens>|<lastRefillMs>" with tokens fixed at four
// decimal places; the Lua script in redis.go reads and writes the same shape.
type BucketState struct {
	Tokens       float64
	LastRefillMs int64
}

// String encodes the state for storage.
func (s BucketState) String() string {
	return strconv.FormatFloat(s.Tokens, 'f', 4, 64) + "|" + strconv.FormatInt(s.LastRefillMs, 10)
}

// ParseBucketState decodes a stored bucket record.
func ParseBucketState(raw string) (BucketState, error) {
	tokens, last, ok := strings.Cut(raw, "|")
	if !ok {
		return BucketState{}, fmt.Errorf("malformed bucket state %q", raw)
	}
	t, err := strconv.ParseFloat(tokens, 64)
	if err != nil {
		return BucketState{}, fmt.Errorf("parse bucket tokens: %w", err)
	}
	l, err := strconv.ParseInt(last, 10, 64)
	if err != nil {
		return BucketState{}, fmt.Errorf("parse bucket refill time: %w", err)
	}
	return BucketState{Tokens: t, LastRefillMs: l}, nil
}

// FullBucket is the state of a bucket that has never been used.
func FullBucket(burst int64, nowMs int64) BucketState {
	return BucketState{Tokens: float64(burst), LastRefillMs: nowMs}
}

// Refill adds whole tokens earned since the last refill, capped at burst.
// Fractional credit is not granted until it adds up to a full token.
func (s BucketState) Refill(burst int64, refillRate float64, nowMs int64) BucketState {
	elapsed := nowMs - s.LastRefillMs
	if elapsed < 0 {
		elapsed = 0
	}
	earned := math.Floor(float64(elapsed) / 1000 * refillRate)
	s.Tokens = math.Min(float64(burst), s.Tokens+earned)
	if s.Tokens < 0 {
		s.Tokens = 0
	}
	return s
}

// Take refills the bucket and consumes one token. When fewer than one token
// is available it returns the refilled state with ok false; callers must not
// persist that state.
func (s BucketState) Take(burst int64, refillRate float64, nowMs int64) (next BucketState, ok bool) {
	next = s.Refill(burst, refillRate, nowMs)
	if next.Tokens < 1 {
		return next, false
	}
	next.Tokens--
	next.LastRefillMs = nowMs
	return next, true
}
