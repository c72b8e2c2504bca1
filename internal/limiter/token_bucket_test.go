package limiter

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xizzxy/quotagate/internal/store"
)

var uploadBurst = BurstPolicy{EndpointClass: "media:upload", BurstLimit: 5, RefillRate: 1}

func bucketStores() map[string]func(t *testing.T, clock *fakeClock) store.CounterStore {
	return map[string]func(t *testing.T, clock *fakeClock) store.CounterStore{
		"memory": func(_ *testing.T, clock *fakeClock) store.CounterStore {
			return store.NewMemoryStore(clock.Now)
		},
		"primitives": func(_ *testing.T, clock *fakeClock) store.CounterStore {
			return primitivesOnly{store.NewMemoryStore(clock.Now)}
		},
		"redis": func(t *testing.T, _ *fakeClock) store.CounterStore {
			return newRedisStore(t)
		},
	}
}

func TestTokenBucket_SaturationAndDrain(t *testing.T) {
	for name, newStore := range bucketStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock(epoch)
			l := NewTokenBucketLimiter(newStore(t, clock), WithClock(clock))

			for i := 0; i < 5; i++ {
				res, err := l.Check(ctx, "tenant-a", "media:upload", uploadBurst)
				require.NoError(t, err)
				assert.True(t, res.Allowed, "call %d", i+1)
				assert.Equal(t, int64(4-i), res.Remaining)
			}
			res, err := l.Check(ctx, "tenant-a", "media:upload", uploadBurst)
			require.NoError(t, err)
			assert.False(t, res.Allowed)

			clock.Advance(2 * time.Second)
			for i := 0; i < 2; i++ {
				res, err := l.Check(ctx, "tenant-a", "media:upload", uploadBurst)
				require.NoError(t, err)
				assert.True(t, res.Allowed)
			}
			res, err = l.Check(ctx, "tenant-a", "media:upload", uploadBurst)
			require.NoError(t, err)
			assert.False(t, res.Allowed, "refill is whole tokens only")
		})
	}
}

func TestTokenBucket_ResultTimes(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(epoch)
	l := NewTokenBucketLimiter(store.NewMemoryStore(clock.Now), WithClock(clock))
	policy := BurstPolicy{BurstLimit: 2, RefillRate: 0.5}

	res, err := l.Check(ctx, "tenant-a", "social:post", policy)
	require.NoError(t, err)
	assert.Equal(t, float64(1), res.Tokens)
	assert.Equal(t, epoch.Add(2*time.Second), res.ResetTime, "time until the bucket is full")

	_, err = l.Check(ctx, "tenant-a", "social:post", policy)
	require.NoError(t, err)
	res, err = l.Check(ctx, "tenant-a", "social:post", policy)
	require.NoError(t, err)
	require.False(t, res.Allowed)
	assert.Equal(t, epoch.Add(2*time.Second), res.ResetTime, "time until one token")
	assert.Equal(t, int64(2), res.RetryAfterSeconds)
}

func TestTokenBucket_RejectionPersistsNothing(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(epoch)
	st := store.NewMemoryStore(clock.Now)
	l := NewTokenBucketLimiter(primitivesOnly{st}, WithClock(clock))
	policy := BurstPolicy{BurstLimit: 1, RefillRate: 1}

	_, err := l.Check(ctx, "tenant-a", "default", policy)
	require.NoError(t, err)
	before, _, err := st.Get(ctx, BucketKey("tenant-a", "default"))
	require.NoError(t, err)

	clock.Advance(600 * time.Millisecond)
	res, err := l.Check(ctx, "tenant-a", "default", policy)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	after, _, err := st.Get(ctx, BucketKey("tenant-a", "default"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// The 600ms already waited still counts toward the next token.
	clock.Advance(400 * time.Millisecond)
	res, err = l.Check(ctx, "tenant-a", "default", policy)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestTokenBucket_NeverExceedsCapacity(t *testing.T) {
	for name, newStore := range bucketStores() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock(epoch)
			l := NewTokenBucketLimiter(newStore(t, clock), WithClock(clock))
			policy := BurstPolicy{BurstLimit: 4, RefillRate: 3}
			rng := rand.New(rand.NewSource(42))

			for i := 0; i < 300; i++ {
				clock.Advance(time.Duration(rng.Intn(5000)) * time.Millisecond)
				res, err := l.Check(ctx, "tenant-a", "default", policy)
				require.NoError(t, err)
				assert.LessOrEqual(t, res.Tokens, float64(policy.BurstLimit))
				assert.GreaterOrEqual(t, res.Tokens, float64(0))
			}
		})
	}
}

func TestTokenBucket_IdleBucketExpires(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(epoch)
	st := store.NewMemoryStore(clock.Now)
	l := NewTokenBucketLimiter(st, WithClock(clock))

	_, err := l.Check(ctx, "tenant-a", "media:upload", uploadBurst)
	require.NoError(t, err)
	ttl, ok := st.TTL(BucketKey("tenant-a", "media:upload"))
	require.True(t, ok)
	assert.Equal(t, time.Hour, ttl)
}

func TestTokenBucket_InvalidArguments(t *testing.T) {
	l := NewTokenBucketLimiter(store.NewMemoryStore(nil))
	ctx := context.Background()

	_, err := l.Check(ctx, "", "media:upload", uploadBurst)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = l.Check(ctx, "tenant-a", "media:upload", BurstPolicy{BurstLimit: 5})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}
