package boltstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"pastebin-lite/internal/storage"
	"pastebin-lite/internal/storage/storagetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return openTemp(t)
	}, storagetest.Options{})
}

func TestViewsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	views := int64(3)
	now := time.Now().UnixMilli()
	if err := store.Create(context.Background(), &storage.Paste{ID: "abc123", Content: "hello", CreatedAt: now, RemainingViews: &views}); err != nil {
		t.Fatalf("create paste: %v", err)
	}
	if _, err := store.Consume(context.Background(), "abc123", now); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	out, err := store.Consume(context.Background(), "abc123", now)
	if err != nil {
		t.Fatalf("consume after reopen: %v", err)
	}
	if out.RemainingViews == nil || *out.RemainingViews != 1 {
		t.Fatalf("expected 1 remaining view, got %v", out.RemainingViews)
	}
}

func TestCreateReplacesExpiryIndex(t *testing.T) {
	store := openTemp(t)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	soon := now + 1000
	if err := store.Create(ctx, &storage.Paste{ID: "dup", Content: "first", CreatedAt: now, ExpiresAt: &soon}); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if err := store.Create(ctx, &storage.Paste{ID: "dup", Content: "second", CreatedAt: now}); err != nil {
		t.Fatalf("create second: %v", err)
	}

	removed, err := store.DeleteExpired(ctx, now+5000)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if removed != 0 {
		t.Fatalf("expected stale index to be gone, removed %d", removed)
	}
	out, err := store.Consume(ctx, "dup", now+5000)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if out.Content != "second" {
		t.Fatalf("expected content %q got %q", "second", out.Content)
	}
}
