package limiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xizzxy/quotagate/internal/config"
)

func TestFromPolicyFile_Defaults(t *testing.T) {
	registry, ceilings, err := FromPolicyFile(config.DefaultPolicyFile())
	require.NoError(t, err)

	assert.Equal(t, int64(20), registry.Resolve("products:create").MaxRequests)
	assert.Equal(t, int64(100), registry.Resolve("unknown").MaxRequests)
	b, ok := registry.Burst("social:post")
	require.True(t, ok)
	assert.Equal(t, 0.5, b.RefillRate)
	assert.Equal(t, DefaultCeilings(), ceilings)
}

func TestFromPolicyFile_Invalid(t *testing.T) {
	pf := config.DefaultPolicyFile()
	pf.Policies = append(pf.Policies, config.WindowPolicy{EndpointClass: "bad", Window: time.Second})
	_, _, err := FromPolicyFile(pf)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	pf = config.DefaultPolicyFile()
	pf.Quotas["storage"] = -5
	_, _, err = FromPolicyFile(pf)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestOptionsFromConfig(t *testing.T) {
	limits := config.LimitsConfig{FailureMode: "closed", StoreTimeout: 100 * time.Millisecond}
	cb := config.CircuitBreakerConfig{Enabled: true, FailureThreshold: 3, OpenDuration: time.Second, HalfOpenMaxCalls: 1}

	opts, err := OptionsFromConfig(limits, cb)
	require.NoError(t, err)
	o := buildOptions(opts)
	assert.Equal(t, FailClosed, o.mode)
	assert.Equal(t, 100*time.Millisecond, o.timeout)
	require.NotNil(t, o.breaker)
	assert.Equal(t, int64(3), o.breaker.FailureThreshold)

	cb.Enabled = false
	opts, err = OptionsFromConfig(limits, cb)
	require.NoError(t, err)
	assert.Nil(t, buildOptions(opts).breaker)

	_, err = OptionsFromConfig(config.LimitsConfig{FailureMode: "maybe"}, cb)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
