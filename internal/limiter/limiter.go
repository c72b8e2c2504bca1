// Package limiter decides whether a tenant-scoped operation may proceed.
//
// Three independent checks share one counter store:
//
//   - fixed-window request rate per (tenant, endpoint class)
//   - token-bucket burst rate per (tenant, endpoint class)
//   - monthly usage quota per (tenant, resource dimension)
//
// Every check is bounded by a short store timeout. When the store fails the
// check degrades to the configured failure mode (open by default) instead of
// returning an error, so callers only ever see a decision.
package limiter

import (
	"time"
)

// Result is the outcome of a rate-limit check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Limit     int64     `json:"limit"`
	Remaining int64     `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
	// Tokens is the exact bucket balance; only set by token-bucket checks.
	Tokens            float64 `json:"tokens,omitempty"`
	RetryAfterSeconds int64   `json:"retry_after_seconds,omitempty"`
	// Degraded reports that the store could not be consulted and the
	// decision came from the failure mode.
	Degraded bool `json:"degraded,omitempty"`
}

// QuotaResult is the outcome of a quota check.
type QuotaResult struct {
	Allowed   bool      `json:"allowed"`
	Dimension Dimension `json:"dimension"`
	Usage     int64     `json:"usage"`
	Limit     int64     `json:"limit"`
	ResetDate time.Time `json:"reset_date"`
	Degraded  bool      `json:"degraded,omitempty"`
}

// Recorder receives limiter telemetry.
type Recorder interface {
	// ObserveDecision records one decision. subject is the endpoint class or quota dimension.
	ObserveDecision(kind, subject string, allowed, degraded bool)
	// ObserveStoreCall records the latency and outcome of one guarded store interaction.
	ObserveStoreCall(op string, elapsed time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveDecision(string, string, bool, bool)     {}
func (nopRecorder) ObserveStoreCall(string, time.Duration, error) {}

const (
	kindFixedWindow = "fixed_window"
	kindTokenBucket = "token_bucket"
	kindQuota       = "quota"
)

func retryAfterSeconds(now, reset time.Time) int64 {
	d := reset.Sub(now)
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
