package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucketState_Encoding(t *testing.T) {
	s := BucketState{Tokens: 2.5, LastRefillMs: 1700000000123}
	assert.Equal(t, "2.5000|1700000000123", s.String())

	parsed, err := ParseBucketState(s.String())
	require.NoError(t, err)
	assert.Equal(t, s, parsed)

	for _, raw := range []string{"", "3", "x|1", "1|y"} {
		_, err := ParseBucketState(raw)
		assert.Error(t, err, raw)
	}
}

func TestBucketState_Refill(t *testing.T) {
	tests := []struct {
		name    string
		state   BucketState
		nowMs   int64
		rate    float64
		expects float64
	}{
		{"no time passed", BucketState{Tokens: 1, LastRefillMs: 1000}, 1000, 1, 1},
		{"partial second earns nothing", BucketState{Tokens: 0, LastRefillMs: 1000}, 1999, 1, 0},
		{"whole seconds earn tokens", BucketState{Tokens: 0, LastRefillMs: 1000}, 3500, 1, 2},
		{"capped at burst", BucketState{Tokens: 4, LastRefillMs: 0}, 60000, 1, 5},
		{"fractional rate", BucketState{Tokens: 0, LastRefillMs: 0}, 4000, 0.5, 2},
		{"clock going backwards", BucketState{Tokens: 2, LastRefillMs: 5000}, 1000, 1, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.state.Refill(5, tt.rate, tt.nowMs)
			assert.Equal(t, tt.expects, got.Tokens)
			assert.Equal(t, tt.state.LastRefillMs, got.LastRefillMs)
		})
	}
}

func TestBucketState_RepeatedRoundTripKeepsPrecision(t *testing.T) {
	s := FullBucket(1000, 0)
	for i := 0; i < 5000; i++ {
		s.Tokens -= 0.1
		if s.Tokens < 0 {
			s.Tokens = 1000
		}
		parsed, err := ParseBucketState(s.String())
		require.NoError(t, err)
		s = parsed
	}
	assert.InDelta(t, s.Tokens, float64(int64(s.Tokens*10+0.5))/10, 1e-4)
}

func TestBucketState_Take(t *testing.T) {
	s := FullBucket(2, 1000)

	s, ok := s.Take(2, 1, 1000)
	require.True(t, ok)
	assert.Equal(t, BucketState{Tokens: 1, LastRefillMs: 1000}, s)

	s, ok = s.Take(2, 1, 1000)
	require.True(t, ok)
	assert.Equal(t, float64(0), s.Tokens)

	rejected, ok := s.Take(2, 1, 1500)
	assert.False(t, ok)
	assert.Equal(t, int64(1000), rejected.LastRefillMs, "rejection keeps refill credit")

	s, ok = s.Take(2, 1, 2000)
	require.True(t, ok)
	assert.Equal(t, BucketState{Tokens: 0, LastRefillMs: 2000}, s)
}
