// Package storagetest holds the behaviour every storage.Store must share.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pastebin-lite/internal/storage"
)

// Options tunes the suite for a backend.
type Options struct {
	// NativeExpiry marks backends whose DeleteExpired is a no-op because the
	// store evicts on its own.
	NativeExpiry bool
	// Readers is the number of concurrent readers racing for a view limit.
	Readers int
}

// Run executes the conformance suite. newStore must return a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store, opts Options) {
	t.Helper()
	if opts.Readers <= 0 {
		opts.Readers = 24
	}

	t.Run("unlimited paste is readable repeatedly", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		now := time.Now().UnixMilli()
		require.NoError(t, st.Create(ctx, &storage.Paste{ID: "plain", Content: "Hello World", CreatedAt: now}))

		for i := 0; i < 5; i++ {
			got, err := st.Consume(ctx, "plain", now+int64(i))
			require.NoError(t, err)
			assert.Equal(t, "Hello World", got.Content)
			assert.Nil(t, got.RemainingViews)
			assert.Nil(t, got.ExpiresAt)
		}
	})

	t.Run("missing paste is unavailable", func(t *testing.T) {
		st := newStore(t)
		_, err := st.Consume(context.Background(), "nope", time.Now().UnixMilli())
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, err, storage.ErrUnavailable)
	})

	t.Run("view limit counts down then refuses", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		now := time.Now().UnixMilli()
		require.NoError(t, st.Create(ctx, &storage.Paste{ID: "limited", Content: "Limited View", CreatedAt: now, RemainingViews: int64Ptr(2)}))

		first, err := st.Consume(ctx, "limited", now)
		require.NoError(t, err)
		assert.Equal(t, "Limited View", first.Content)
		require.NotNil(t, first.RemainingViews)
		assert.Equal(t, int64(1), *first.RemainingViews)

		second, err := st.Consume(ctx, "limited", now)
		require.NoError(t, err)
		require.NotNil(t, second.RemainingViews)
		assert.Equal(t, int64(0), *second.RemainingViews)

		_, err = st.Consume(ctx, "limited", now)
		assert.ErrorIs(t, err, storage.ErrExhausted)
		_, err = st.Consume(ctx, "limited", now)
		assert.ErrorIs(t, err, storage.ErrUnavailable)
	})

	t.Run("ttl boundary is inclusive", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		t0 := time.Now().UnixMilli()
		expires := t0 + 60_000
		require.NoError(t, st.Create(ctx, &storage.Paste{ID: "ttl", Content: "Expire Me", CreatedAt: t0, ExpiresAt: &expires}))

		got, err := st.Consume(ctx, "ttl", t0+1000)
		require.NoError(t, err)
		assert.Equal(t, "Expire Me", got.Content)
		require.NotNil(t, got.ExpiresAt)
		assert.Equal(t, expires, *got.ExpiresAt)

		_, err = st.Consume(ctx, "ttl", expires)
		assert.NoError(t, err)

		_, err = st.Consume(ctx, "ttl", t0+61_000)
		assert.ErrorIs(t, err, storage.ErrExpired)
	})

	t.Run("expired read leaves counter alone", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		t0 := time.Now().UnixMilli()
		expires := t0 + 60_000
		require.NoError(t, st.Create(ctx, &storage.Paste{ID: "both", Content: "x", CreatedAt: t0, ExpiresAt: &expires, RemainingViews: int64Ptr(2)}))

		_, err := st.Consume(ctx, "both", expires+1)
		require.ErrorIs(t, err, storage.ErrExpired)

		got, err := st.Consume(ctx, "both", t0)
		require.NoError(t, err)
		require.NotNil(t, got.RemainingViews)
		assert.Equal(t, int64(1), *got.RemainingViews)
	})

	t.Run("concurrent readers never exceed the limit", func(t *testing.T) {
		st := newStore(t)
		ctx := context.Background()
		now := time.Now().UnixMilli()
		const limit = 5
		require.NoError(t, st.Create(ctx, &storage.Paste{ID: "race", Content: "contended", CreatedAt: now, RemainingViews: int64Ptr(limit)}))

		var (
			wg     sync.WaitGroup
			served atomic.Int64
			mu     sync.Mutex
			seen   = make(map[int64]int)
			start  = make(chan struct{})
			errs   = make(chan error, opts.Readers)
		)
		for i := 0; i < opts.Readers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				got, err := st.Consume(ctx, "race", now)
				if err != nil {
					if !isUnavailable(err) {
						errs <- err
					}
					return
				}
				served.Add(1)
				mu.Lock()
				seen[*got.RemainingViews]++
				mu.Unlock()
			}()
		}
		close(start)
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("unexpected error: %v", err)
		}
		assert.Equal(t, int64(limit), served.Load())
		for v := int64(0); v < limit; v++ {
			assert.Equal(t, 1, seen[v], fmt.Sprintf("remaining=%d", v))
		}
	})

	t.Run("delete expired reclaims dead records", func(t *testing.T) {
		if opts.NativeExpiry {
			t.Skip("backend evicts natively")
		}
		st := newStore(t)
		ctx := context.Background()
		t0 := time.Now().UnixMilli()
		past := t0 + 1000
		future := t0 + 3_600_000

		require.NoError(t, st.Create(ctx, &storage.Paste{ID: "dead", Content: "a", CreatedAt: t0, ExpiresAt: &past}))
		require.NoError(t, st.Create(ctx, &storage.Paste{ID: "alive", Content: "b", CreatedAt: t0, ExpiresAt: &future}))
		require.NoError(t, st.Create(ctx, &storage.Paste{ID: "used", Content: "c", CreatedAt: t0, RemainingViews: int64Ptr(1)}))
		require.NoError(t, st.Create(ctx, &storage.Paste{ID: "forever", Content: "d", CreatedAt: t0}))

		_, err := st.Consume(ctx, "used", t0)
		require.NoError(t, err)

		removed, err := st.DeleteExpired(ctx, t0+5000)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		_, err = st.Consume(ctx, "dead", t0)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = st.Consume(ctx, "used", t0)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		_, err = st.Consume(ctx, "alive", t0+5000)
		assert.NoError(t, err)
		_, err = st.Consume(ctx, "forever", t0+5000)
		assert.NoError(t, err)
	})

	t.Run("ping", func(t *testing.T) {
		st := newStore(t)
		assert.NoError(t, st.Ping(context.Background()))
	})
}

func isUnavailable(err error) bool {
	return errors.Is(err, storage.ErrUnavailable)
}

func int64Ptr(v int64) *int64 { return &v }
