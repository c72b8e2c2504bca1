package limiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xizzxy/quotagate/internal/store"
)

func TestFixedWindow_ExactBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(epoch)
	l := NewFixedWindowLimiter(store.NewMemoryStore(clock.Now), testRegistry(), WithClock(clock))

	for want := int64(2); want >= 0; want-- {
		res, err := l.Check(ctx, "tenant-a", "orders:list")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, want, res.Remaining)
		assert.Equal(t, int64(3), res.Limit)
		assert.Equal(t, epoch.Add(time.Second).UnixMilli(), res.ResetTime.UnixMilli())
	}

	res, err := l.Check(ctx, "tenant-a", "orders:list")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Equal(t, int64(1), res.RetryAfterSeconds)

	clock.Advance(time.Second)
	res, err = l.Check(ctx, "tenant-a", "orders:list")
	require.NoError(t, err)
	assert.True(t, res.Allowed, "next window starts fresh")
	assert.Equal(t, int64(2), res.Remaining)
	assert.Equal(t, epoch.Add(2*time.Second).UnixMilli(), res.ResetTime.UnixMilli())
}

func TestFixedWindow_NoCrossTenantLeakage(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(epoch)
	l := NewFixedWindowLimiter(store.NewMemoryStore(clock.Now), testRegistry(), WithClock(clock))

	for i := 0; i < 5; i++ {
		_, err := l.Check(ctx, "tenant-a", "products:create")
		require.NoError(t, err)
	}

	res, err := l.Check(ctx, "tenant-b", "products:create")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.Remaining)
}

func TestFixedWindow_NoCrossEndpointLeakage(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(epoch)
	l := NewFixedWindowLimiter(store.NewMemoryStore(clock.Now), testRegistry(), WithClock(clock))

	for i := 0; i < 3; i++ {
		_, err := l.Check(ctx, "tenant-a", "products:create")
		require.NoError(t, err)
	}
	res, err := l.Check(ctx, "tenant-a", "products:create")
	require.NoError(t, err)
	require.False(t, res.Allowed)

	res, err = l.Check(ctx, "tenant-a", "products:list")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(4), res.Remaining)
}

func TestFixedWindow_RejectionDoesNotIncrement(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(epoch)
	st := store.NewMemoryStore(clock.Now)
	l := NewFixedWindowLimiter(st, testRegistry(), WithClock(clock))

	for i := 0; i < 6; i++ {
		_, err := l.Check(ctx, "tenant-a", "products:create")
		require.NoError(t, err)
	}

	key := WindowKey("tenant-a", "products:create", windowIndex(epoch, time.Second))
	raw, found, err := st.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "2", raw)
}

func TestFixedWindow_TTLSetOnceByCreator(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(epoch)
	st := store.NewMemoryStore(clock.Now)
	l := NewFixedWindowLimiter(st, testRegistry(), WithClock(clock))

	_, err := l.Check(ctx, "tenant-a", "media:upload")
	require.NoError(t, err)
	key := WindowKey("tenant-a", "media:upload", windowIndex(epoch, 1500*time.Millisecond))
	ttl, ok := st.TTL(key)
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, ttl, "1.5s window rounds up to whole seconds")

	clock.Advance(500 * time.Millisecond)
	_, err = l.Check(ctx, "tenant-a", "media:upload")
	require.NoError(t, err)
	ttl, ok = st.TTL(key)
	require.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, ttl, "later hits must not extend the window")
}

func TestFixedWindow_CorruptWindowRestarts(t *testing.T) {
	stores := map[string]func(t *testing.T, clock *fakeClock) store.CounterStore{
		"memory": func(t *testing.T, clock *fakeClock) store.CounterStore { return store.NewMemoryStore(clock.Now) },
		"redis":  func(t *testing.T, clock *fakeClock) store.CounterStore { return newRedisStore(t) },
	}
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := newFakeClock(epoch)
			st := newStore(t, clock)
			l := NewFixedWindowLimiter(st, testRegistry(), WithClock(clock), WithFailureMode(FailClosed))

			key := WindowKey("tenant-a", "orders:list", windowIndex(epoch, time.Second))
			require.NoError(t, st.Set(ctx, key, "garbage", 0))

			res, err := l.Check(ctx, "tenant-a", "orders:list")
			require.NoError(t, err)
			assert.True(t, res.Allowed)
			assert.False(t, res.Degraded)
			assert.Equal(t, int64(2), res.Remaining)

			raw, found, err := st.Get(ctx, key)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, "1", raw)
		})
	}
}

func TestFixedWindow_UnknownClassUsesDefault(t *testing.T) {
	clock := newFakeClock(epoch)
	l := NewFixedWindowLimiter(store.NewMemoryStore(clock.Now), testRegistry(), WithClock(clock))

	res, err := l.Check(context.Background(), "tenant-a", "bookings:create")
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Limit)
}

func TestFixedWindow_EmptyTenant(t *testing.T) {
	l := NewFixedWindowLimiter(store.NewMemoryStore(nil), testRegistry())

	_, err := l.Check(context.Background(), "", "default")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFixedWindow_ConcurrencyStress(t *testing.T) {
	const (
		callers = 100
		limit   = 10
	)
	registry := MustRegistry([]RateLimitPolicy{
		{EndpointClass: DefaultEndpointClass, Window: time.Minute, MaxRequests: limit},
	}, nil)

	stores := map[string]func(t *testing.T, clock *fakeClock) store.CounterStore{
		"memory": func(_ *testing.T, clock *fakeClock) store.CounterStore { return store.NewMemoryStore(clock.Now) },
		"redis":  func(t *testing.T, _ *fakeClock) store.CounterStore { return newRedisStore(t) },
	}
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			clock := newFakeClock(epoch)
			l := NewFixedWindowLimiter(newStore(t, clock), registry, WithClock(clock), WithStoreTimeout(5*time.Second))

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				admitted int
				rejected int
			)
			start := make(chan struct{})
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					res, err := l.Check(context.Background(), "tenant-a", "default")
					if !assert.NoError(t, err) {
						return
					}
					assert.False(t, res.Degraded)
					assert.GreaterOrEqual(t, res.Remaining, int64(0))
					assert.LessOrEqual(t, res.Remaining, int64(limit))
					mu.Lock()
					defer mu.Unlock()
					if res.Allowed {
						admitted++
					} else {
						rejected++
					}
				}()
			}
			close(start)
			wg.Wait()

			assert.Equal(t, limit, admitted)
			assert.Equal(t, callers-limit, rejected)
		})
	}
}
