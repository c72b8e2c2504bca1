package limiter

import (
	"fmt"
	"time"
)

// DefaultEndpointClass is the policy applied to classes with no entry of their own.
const DefaultEndpointClass = "default"

// RateLimitPolicy allows MaxRequests per fixed Window for one endpoint class.
type RateLimitPolicy struct {
	EndpointClass string        `json:"endpoint_class"`
	Window        time.Duration `json:"window"`
	MaxRequests   int64         `json:"max_requests"`
}

func (p RateLimitPolicy) Validate() error {
	if p.EndpointClass == "" {
		return fmt.Errorf("%w: policy without endpoint class", ErrInvalidConfiguration)
	}
	if p.Window.Milliseconds() <= 0 {
		return fmt.Errorf("%w: %s: window must be at least 1ms, got %s", ErrInvalidConfiguration, p.EndpointClass, p.Window)
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%w: %s: max requests must be positive, got %d", ErrInvalidConfiguration, p.EndpointClass, p.MaxRequests)
	}
	return nil
}

// BurstPolicy configures a token bucket: BurstLimit tokens of capacity,
// refilled at RefillRate tokens per second.
type BurstPolicy struct {
	EndpointClass string  `json:"endpoint_class,omitempty"`
	BurstLimit    int64   `json:"burst_limit"`
	RefillRate    float64 `json:"refill_rate"`
}

func (p BurstPolicy) Validate() error {
	if p.BurstLimit <= 0 {
		return fmt.Errorf("%w: burst limit must be positive, got %d", ErrInvalidConfiguration, p.BurstLimit)
	}
	if !(p.RefillRate > 0) {
		return fmt.Errorf("%w: refill rate must be positive, got %v", ErrInvalidConfiguration, p.RefillRate)
	}
	return nil
}
