package limiter

import (
	"fmt"
	"sort"
)

// Registry maps endpoint classes to their limiter configuration. It is
// built once at startup and never mutated, so lookups need no locking.
type Registry struct {
	policies map[string]RateLimitPolicy
	bursts   map[string]BurstPolicy
}

// NewRegistry validates the policies and builds a registry. A "default"
// window policy is mandatory.
func NewRegistry(policies []RateLimitPolicy, bursts []BurstPolicy) (*Registry, error) {
	r := &Registry{
		policies: make(map[string]RateLimitPolicy, len(policies)),
		bursts:   make(map[string]BurstPolicy, len(bursts)),
	}
	for _, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.policies[p.EndpointClass]; dup {
			return nil, fmt.Errorf("%w: duplicate policy for %q", ErrInvalidConfiguration, p.EndpointClass)
		}
		r.policies[p.EndpointClass] = p
	}
	if _, ok := r.policies[DefaultEndpointClass]; !ok {
		return nil, fmt.Errorf("%w: missing %q policy", ErrInvalidConfiguration, DefaultEndpointClass)
	}
	for _, b := range bursts {
		if b.EndpointClass == "" {
			return nil, fmt.Errorf("%w: burst policy without endpoint class", ErrInvalidConfiguration)
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", b.EndpointClass, err)
		}
		if _, dup := r.bursts[b.EndpointClass]; dup {
			return nil, fmt.Errorf("%w: duplicate burst policy for %q", ErrInvalidConfiguration, b.EndpointClass)
		}
		r.bursts[b.EndpointClass] = b
	}
	return r, nil
}

// MustRegistry is NewRegistry for static tables known to be valid.
func MustRegistry(policies []RateLimitPolicy, bursts []BurstPolicy) *Registry {
	r, err := NewRegistry(policies, bursts)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the policy for endpointClass, falling back to "default".
func (r *Registry) Resolve(endpointClass string) RateLimitPolicy {
	if p, ok := r.policies[endpointClass]; ok {
		return p
	}
	return r.policies[DefaultEndpointClass]
}

// Burst returns the token-bucket policy for endpointClass, falling back to a
// "default" burst policy when one is configured.
func (r *Registry) Burst(endpointClass string) (BurstPolicy, bool) {
	if b, ok := r.bursts[endpointClass]; ok {
		return b, true
	}
	b, ok := r.bursts[DefaultEndpointClass]
	return b, ok
}

// Policies lists the window policies sorted by endpoint class.
func (r *Registry) Policies() []RateLimitPolicy {
	out := make([]RateLimitPolicy, 0, len(r.policies))
	for _, p := range r.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndpointClass < out[j].EndpointClass })
	return out
}

// BurstPolicies lists the token-bucket policies sorted by endpoint class.
func (r *Registry) BurstPolicies() []BurstPolicy {
	out := make([]BurstPolicy, 0, len(r.bursts))
	for _, b := range r.bursts {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndpointClass < out[j].EndpointClass })
	return out
}
