package redisstore

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pastebin-lite/internal/storage"
	"pastebin-lite/internal/storage/storagetest"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := New(client, opts...)
	t.Cleanup(func() { store.Close() })
	return store, mr
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, _ := newTestStore(t)
		return store
	}, storagetest.Options{NativeExpiry: true})
}

func TestRecordLayout(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	expires := int64(61_000)
	views := int64(3)
	require.NoError(t, store.Create(ctx, &storage.Paste{ID: "abc", Content: "hello", CreatedAt: 1_000, ExpiresAt: &expires, RemainingViews: &views}))

	assert.True(t, mr.Exists("paste:abc"))
	assert.Equal(t, "hello", mr.HGet("paste:abc", "content"))
	assert.Equal(t, "1000", mr.HGet("paste:abc", "created_at"))
	assert.Equal(t, "61000", mr.HGet("paste:abc", "expires_at"))
	assert.Equal(t, "3", mr.HGet("paste:abc", "remaining_views"))
	assert.Equal(t, time.Minute, mr.TTL("paste:abc"))
}

func TestNoBackstopWithoutTTL(t *testing.T) {
	store, mr := newTestStore(t)
	require.NoError(t, store.Create(context.Background(), &storage.Paste{ID: "forever", Content: "x", CreatedAt: 1}))

	assert.Equal(t, time.Duration(0), mr.TTL("paste:forever"))
	assert.Equal(t, "", mr.HGet("paste:forever", "expires_at"))
}

func TestBackstopEviction(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()
	expires := now + 10_000
	require.NoError(t, store.Create(ctx, &storage.Paste{ID: "gone", Content: "x", CreatedAt: now, ExpiresAt: &expires}))

	mr.FastForward(11 * time.Second)

	_, err := store.Consume(ctx, "gone", now)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTimestampCheckWithoutEviction(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()
	expires := now + 10_000
	require.NoError(t, store.Create(ctx, &storage.Paste{ID: "late", Content: "x", CreatedAt: now, ExpiresAt: &expires}))

	// The key is still present; only the stored timestamp refuses the read.
	_, err := store.Consume(ctx, "late", expires+1)
	assert.ErrorIs(t, err, storage.ErrExpired)
}

func TestCustomPrefix(t *testing.T) {
	store, mr := newTestStore(t, WithPrefix("tenant"))
	require.NoError(t, store.Create(context.Background(), &storage.Paste{ID: "abc", Content: "x", CreatedAt: 1}))
	assert.True(t, mr.Exists("tenant:abc"))
	assert.False(t, mr.Exists("paste:abc"))
}

func TestCreateReplacesCollidingKey(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	views := int64(1)
	require.NoError(t, store.Create(ctx, &storage.Paste{ID: "dup", Content: "first", CreatedAt: 1, RemainingViews: &views}))
	require.NoError(t, store.Create(ctx, &storage.Paste{ID: "dup", Content: "second", CreatedAt: 2}))

	assert.Equal(t, "", mr.HGet("paste:dup", "remaining_views"))
	got, err := store.Consume(ctx, "dup", 2)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content)
	assert.Nil(t, got.RemainingViews)
}

func TestServerDownIsNotUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := store.Consume(ctx, "abc", 0)
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrUnavailable)
	assert.Error(t, store.Ping(ctx))
}

func TestBackstopRoundsUp(t *testing.T) {
	lifetime := func(ms int64) *storage.Paste {
		expires := 1_000 + ms
		return &storage.Paste{CreatedAt: 1_000, ExpiresAt: &expires}
	}

	ttl, ok := backstop(lifetime(1000))
	assert.True(t, ok)
	assert.Equal(t, time.Second, ttl)

	ttl, ok = backstop(lifetime(1500))
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, ttl)

	_, ok = backstop(&storage.Paste{CreatedAt: 1_000})
	assert.False(t, ok)

	_, ok = backstop(lifetime(math.MaxInt64 - 1_000))
	assert.False(t, ok)
}

func TestBackstopNeverShorterThanLifetime(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	for _, ttlSeconds := range []int64{1, 61, 3_153_600_000, 18_446_744_074, 9_300_000_000_000_000} {
		id := fmt.Sprintf("ttl-%d", ttlSeconds)
		expires := storage.ExpiresAfter(now, ttlSeconds)
		require.NoError(t, store.Create(ctx, &storage.Paste{ID: id, Content: "x", CreatedAt: now, ExpiresAt: &expires}))

		evict := mr.TTL("paste:" + id)
		if evict == 0 {
			continue // no eviction at all
		}
		assert.GreaterOrEqual(t, evict.Milliseconds(), expires-now, "ttl %d", ttlSeconds)
	}
}

func TestLongTTLSurvivesBackstop(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()
	expires := storage.ExpiresAfter(now, 18_446_744_074)
	require.NoError(t, store.Create(ctx, &storage.Paste{ID: "long", Content: "x", CreatedAt: now, ExpiresAt: &expires}))

	mr.FastForward(2 * time.Second)

	got, err := store.Consume(ctx, "long", now+2000)
	require.NoError(t, err)
	assert.Equal(t, expires, *got.ExpiresAt)
}

func TestOpenURL(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := OpenURL("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer store.Close()
	assert.NoError(t, store.Ping(context.Background()))

	_, err = OpenURL("not a url")
	assert.Error(t, err)
}
