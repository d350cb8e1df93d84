package boltstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"pastebin-lite/internal/storage"
)

var (
	pasteBucket     = []byte("pastes")
	expireBucket    = []byte("expires")
	exhaustedBucket = []byte("exhausted")
)

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store backed by BoltDB. Every read that may
// decrement runs inside a single read-write transaction, and bolt allows
// only one of those at a time, so the check and the decrement cannot interleave.
type Store struct {
	db *bolt.DB
}

// Open initializes a BoltDB-backed store located at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{pasteBucket, expireBucket, exhaustedBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Create persists a paste and indexes its expiry.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	data, err := json.Marshal(paste)
	if err != nil {
		return fmt.Errorf("marshal paste: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := buckets(tx)
		if err != nil {
			return err
		}

		// An id collision replaces the old record, so drop its index entries.
		if existing := b.pastes.Get([]byte(paste.ID)); existing != nil {
			var prev storage.Paste
			if err := json.Unmarshal(existing, &prev); err == nil {
				if err := b.unindex(&prev); err != nil {
					return err
				}
			}
		}

		if err := b.pastes.Put([]byte(paste.ID), data); err != nil {
			return fmt.Errorf("save paste: %w", err)
		}

		if paste.HasExpiration() {
			if err := b.expires.Put(expireKey(*paste.ExpiresAt, paste.ID), []byte(paste.ID)); err != nil {
				return fmt.Errorf("index expiry: %w", err)
			}
		}

		return nil
	})
}

// Consume applies one read to the paste inside a write transaction.
func (s *Store) Consume(ctx context.Context, id string, now int64) (*storage.Paste, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var out *storage.Paste
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := buckets(tx)
		if err != nil {
			return err
		}
		raw := b.pastes.Get([]byte(id))
		if raw == nil {
			return storage.ErrNotFound
		}
		var paste storage.Paste
		if err := json.Unmarshal(raw, &paste); err != nil {
			return fmt.Errorf("unmarshal paste: %w", err)
		}
		if err := paste.Consume(now); err != nil {
			return err
		}

		if paste.HasViewLimit() {
			data, err := json.Marshal(&paste)
			if err != nil {
				return fmt.Errorf("marshal paste: %w", err)
			}
			if err := b.pastes.Put([]byte(id), data); err != nil {
				return fmt.Errorf("update views: %w", err)
			}
			if paste.Exhausted() {
				if err := b.exhausted.Put([]byte(id), nil); err != nil {
					return fmt.Errorf("index exhausted: %w", err)
				}
			}
		}

		out = &paste
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteExpired removes pastes whose expiry lies before now and pastes with
// no views left.
func (s *Store) DeleteExpired(ctx context.Context, now int64) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	var removed int
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := buckets(tx)
		if err != nil {
			return err
		}

		cursor := b.expires.Cursor()
		cutoff := toTimestamp(now)
		for key, val := cursor.First(); key != nil; key, val = cursor.Next() {
			ts := binary.BigEndian.Uint64(key[:8])
			if ts >= cutoff {
				break
			}
			id := string(val)
			if err := b.pastes.Delete([]byte(id)); err != nil {
				return fmt.Errorf("delete expired paste %s: %w", id, err)
			}
			if err := b.exhausted.Delete([]byte(id)); err != nil {
				return fmt.Errorf("delete exhausted index: %w", err)
			}
			if err := cursor.Delete(); err != nil {
				return fmt.Errorf("delete expiry index: %w", err)
			}
			removed++
		}

		var spent [][]byte
		if err := b.exhausted.ForEach(func(k, _ []byte) error {
			spent = append(spent, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return fmt.Errorf("scan exhausted index: %w", err)
		}
		for _, id := range spent {
			if raw := b.pastes.Get(id); raw != nil {
				var paste storage.Paste
				if err := json.Unmarshal(raw, &paste); err == nil {
					if err := b.unindex(&paste); err != nil {
						return err
					}
				}
				if err := b.pastes.Delete(id); err != nil {
					return fmt.Errorf("delete exhausted paste %s: %w", id, err)
				}
				removed++
			}
			if err := b.exhausted.Delete(id); err != nil {
				return fmt.Errorf("delete exhausted index: %w", err)
			}
		}
		return nil
	})

	return removed, err
}

// Ping verifies the database file is still open and readable.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(pasteBucket) == nil {
			return errors.New("pastes bucket missing")
		}
		return nil
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type txBuckets struct {
	pastes    *bolt.Bucket
	expires   *bolt.Bucket
	exhausted *bolt.Bucket
}

func buckets(tx *bolt.Tx) (txBuckets, error) {
	b := txBuckets{
		pastes:    tx.Bucket(pasteBucket),
		expires:   tx.Bucket(expireBucket),
		exhausted: tx.Bucket(exhaustedBucket),
	}
	if b.pastes == nil || b.expires == nil || b.exhausted == nil {
		return b, errors.New("buckets not initialized")
	}
	return b, nil
}

func (b txBuckets) unindex(p *storage.Paste) error {
	if p.HasExpiration() {
		if err := b.expires.Delete(expireKey(*p.ExpiresAt, p.ID)); err != nil {
			return fmt.Errorf("remove expiry index: %w", err)
		}
	}
	if err := b.exhausted.Delete([]byte(p.ID)); err != nil {
		return fmt.Errorf("remove exhausted index: %w", err)
	}
	return nil
}

func expireKey(ms int64, id string) []byte {
	key := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(key, toTimestamp(ms))
	copy(key[8:], id)
	return key
}

func toTimestamp(ms int64) uint64 {
	if ms <= 0 {
		return 0
	}
	return uint64(ms)
}
