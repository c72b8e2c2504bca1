package limiter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/xizzxy/quotagate/internal/store"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// primitivesOnly hides optional store capabilities so limiters fall back
// to the five basic operations.
type primitivesOnly struct {
	store.CounterStore
}

// flakyStore fails every call while down is set.
type flakyStore struct {
	store.CounterStore
	down  atomic.Bool
	calls atomic.Int64
}

func (f *flakyStore) fail() error {
	f.calls.Add(1)
	if f.down.Load() {
		return errConnRefused
	}
	return nil
}

func (f *flakyStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	if err := f.fail(); err != nil {
		return 0, err
	}
	return f.CounterStore.Incr(ctx, key, delta)
}

func (f *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := f.fail(); err != nil {
		return "", false, err
	}
	return f.CounterStore.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.CounterStore.Set(ctx, key, value, ttl)
}

func (f *flakyStore) ExpireIfUnset(ctx context.Context, key string, ttl time.Duration) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.CounterStore.ExpireIfUnset(ctx, key, ttl)
}

func (f *flakyStore) Delete(ctx context.Context, keys ...string) error {
	if err := f.fail(); err != nil {
		return err
	}
	return f.CounterStore.Delete(ctx, keys...)
}

// hangingStore blocks every call until the context is done.
type hangingStore struct {
	store.CounterStore
}

func (hangingStore) Incr(ctx context.Context, _ string, _ int64) (int64, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

func (hangingStore) Get(ctx context.Context, _ string) (string, bool, error) {
	<-ctx.Done()
	return "", false, ctx.Err()
}

type decision struct {
	kind, subject     string
	allowed, degraded bool
}

type fakeRecorder struct {
	mu        sync.Mutex
	decisions []decision
	storeErrs int
}

func (r *fakeRecorder) ObserveDecision(kind, subject string, allowed, degraded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, decision{kind, subject, allowed, degraded})
}

func (r *fakeRecorder) ObserveStoreCall(_ string, _ time.Duration, err error) {
	if err == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.storeErrs++
}

func newRedisStore(t *testing.T) *store.RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), PoolSize: 32})
	t.Cleanup(func() { _ = client.Close() })
	return store.NewRedisStore(client)
}

// epoch is aligned to whole seconds and minutes.
var epoch = time.UnixMilli(1_700_000_040_000)

func testRegistry() *Registry {
	return MustRegistry([]RateLimitPolicy{
		{EndpointClass: DefaultEndpointClass, Window: time.Second, MaxRequests: 3},
		{EndpointClass: "products:create", Window: time.Second, MaxRequests: 2},
		{EndpointClass: "products:list", Window: time.Second, MaxRequests: 5},
		{EndpointClass: "media:upload", Window: 1500 * time.Millisecond, MaxRequests: 1},
	}, []BurstPolicy{
		{EndpointClass: "media:upload", BurstLimit: 5, RefillRate: 1},
	})
}
