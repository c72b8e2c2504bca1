package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeHarness runs the same behaviour checks against every CounterStore.
type storeHarness struct {
	store   interface {
		CounterStore
		TokenTaker
	}
	advance func(time.Duration)
}

func runCounterStoreContract(t *testing.T, newHarness func(t *testing.T) storeHarness) {
	ctx := context.Background()

	t.Run("IncrStartsAtZero", func(t *testing.T) {
		h := newHarness(t)
		n, err := h.store.Incr(ctx, "c", 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = h.store.Incr(ctx, "c", 41)
		require.NoError(t, err)
		assert.Equal(t, int64(42), n)

		n, err = h.store.Incr(ctx, "c", -2)
		require.NoError(t, err)
		assert.Equal(t, int64(40), n)
	})

	t.Run("IncrOnNonInteger", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.store.Set(ctx, "s", "abc", 0))
		_, err := h.store.Incr(ctx, "s", 1)
		assert.ErrorIs(t, err, ErrNotInteger)
	})

	t.Run("GetMissing", func(t *testing.T) {
		h := newHarness(t)
		v, ok, err := h.store.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, v)
	})

	t.Run("SetWithTTLExpires", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.store.Set(ctx, "k", "v", time.Second))
		v, ok, err := h.store.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "v", v)

		h.advance(time.Second)
		_, ok, err = h.store.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("ExpireIfUnsetKeepsFirstTTL", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.store.Incr(ctx, "w", 1)
		require.NoError(t, err)
		require.NoError(t, h.store.ExpireIfUnset(ctx, "w", 2*time.Second))

		h.advance(time.Second)
		require.NoError(t, h.store.ExpireIfUnset(ctx, "w", 10*time.Second))

		h.advance(time.Second)
		_, ok, err := h.store.Get(ctx, "w")
		require.NoError(t, err)
		assert.False(t, ok, "second ExpireIfUnset must not extend the key")
	})

	t.Run("Delete", func(t *testing.T) {
		h := newHarness(t)
		require.NoError(t, h.store.Set(ctx, "a", "1", 0))
		require.NoError(t, h.store.Set(ctx, "b", "2", 0))
		require.NoError(t, h.store.Delete(ctx, "a", "b", "missing"))
		_, ok, err := h.store.Get(ctx, "a")
		require.NoError(t, err)
		assert.False(t, ok)
		require.NoError(t, h.store.Delete(ctx))
	})

	t.Run("TakeTokenDrainsAndRefills", func(t *testing.T) {
		h := newHarness(t)
		now := int64(1_000_000)
		for i := 0; i < 3; i++ {
			ok, tokens, err := h.store.TakeToken(ctx, "b", 3, 1, now, time.Hour)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, float64(2-i), tokens)
		}

		ok, tokens, err := h.store.TakeToken(ctx, "b", 3, 1, now+500, time.Hour)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0.0, tokens)

		// the rejection above must not have moved the refill clock
		ok, _, err = h.store.TakeToken(ctx, "b", 3, 1, now+1000, time.Hour)
		require.NoError(t, err)
		assert.True(t, ok)

		raw, found, err := h.store.Get(ctx, "b")
		require.NoError(t, err)
		require.True(t, found)
		state, err := ParseBucketState(raw)
		require.NoError(t, err)
		assert.Equal(t, BucketState{Tokens: 0, LastRefillMs: now + 1000}, state)
	})

	t.Run("ConcurrentIncr", func(t *testing.T) {
		h := newHarness(t)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = h.store.Incr(ctx, "race", 1)
			}()
		}
		wg.Wait()
		v, _, err := h.store.Get(ctx, "race")
		require.NoError(t, err)
		assert.Equal(t, "50", v)
	})
}
