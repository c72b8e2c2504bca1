package limiter

import (
	"fmt"

	"github.com/xizzxy/quotagate/internal/config"
)

// FromPolicyFile builds the registry and static quota ceilings from the
// loaded policy file.
func FromPolicyFile(pf *config.PolicyFile) (*Registry, StaticCeilings, error) {
	policies := make([]RateLimitPolicy, 0, len(pf.Policies))
	for _, p := range pf.Policies {
		policies = append(policies, RateLimitPolicy{
			EndpointClass: p.EndpointClass,
			Window:        p.Window,
			MaxRequests:   p.MaxRequests,
		})
	}
	bursts := make([]BurstPolicy, 0, len(pf.Burst))
	for _, b := range pf.Burst {
		bursts = append(bursts, BurstPolicy{
			EndpointClass: b.EndpointClass,
			BurstLimit:    b.BurstLimit,
			RefillRate:    b.RefillRate,
		})
	}

	registry, err := NewRegistry(policies, bursts)
	if err != nil {
		return nil, nil, err
	}
	ceilings, err := NewStaticCeilings(pf.Quotas)
	if err != nil {
		return nil, nil, err
	}
	return registry, ceilings, nil
}

// OptionsFromConfig translates the limits and circuit breaker settings.
func OptionsFromConfig(limits config.LimitsConfig, cb config.CircuitBreakerConfig) ([]Option, error) {
	mode, err := ParseFailureMode(limits.FailureMode)
	if err != nil {
		return nil, err
	}
	if limits.StoreTimeout < 0 {
		return nil, fmt.Errorf("%w: negative store timeout %s", ErrInvalidConfiguration, limits.StoreTimeout)
	}
	opts := []Option{
		WithFailureMode(mode),
		WithStoreTimeout(limits.StoreTimeout),
	}
	if cb.Enabled {
		opts = append(opts, WithCircuitBreaker(CircuitOptions{
			FailureThreshold: int64(cb.FailureThreshold),
			OpenDuration:     cb.OpenDuration,
			HalfOpenMaxCalls: int64(cb.HalfOpenMaxCalls),
		}))
	}
	return opts, nil
}
