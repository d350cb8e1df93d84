// Package redisstore keeps pastes in Redis hashes. Retrieval runs as a
// server-side Lua script so the check and the decrement are one command.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pastebin-lite/internal/storage"
)

var _ storage.Store = (*Store)(nil)

const (
	fieldContent   = "content"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldRemaining = "remaining_views"
)

// Script status codes, the first element of every reply.
const (
	statusOK int64 = iota
	statusNotFound
	statusExpired
	statusExhausted
)

// consumeScript evaluates both expiry policies and spends one view.
// KEYS[1] is the paste key, ARGV[1] the read time in milliseconds.
// Reply: {status} or {0, content, created_at, remaining|nil, expires_at|nil}.
var consumeScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])

if redis.call('EXISTS', key) == 0 then
	return {1}
end

local expires = redis.call('HGET', key, 'expires_at')
if expires and tonumber(expires) < now then
	return {2}
end

local remaining = redis.call('HGET', key, 'remaining_views')
if remaining then
	if tonumber(remaining) <= 0 then
		return {3}
	end
	remaining = redis.call('HINCRBY', key, 'remaining_views', -1)
end

local fields = redis.call('HMGET', key, 'content', 'created_at')
return {0, fields[1], fields[2], remaining, expires}
`)

// Store implements storage.Store on a Redis client.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides the key namespace (default "paste").
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New wraps an existing client without checking connectivity.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: storage.KeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects with options and verifies the server answers.
func Open(options *redis.Options, opts ...Option) (*Store, error) {
	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return New(client, opts...), nil
}

// OpenURL is Open for a redis:// or rediss:// connection string.
func OpenURL(url string, opts ...Option) (*Store, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return Open(options, opts...)
}

func (s *Store) key(id string) string {
	return storage.Key(s.prefix, id)
}

// Create writes all fields and the eviction backstop in one MULTI/EXEC.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	key := s.key(paste.ID)

	fields := map[string]any{
		fieldContent:   paste.Content,
		fieldCreatedAt: paste.CreatedAt,
	}
	if paste.ExpiresAt != nil {
		fields[fieldExpiresAt] = *paste.ExpiresAt
	}
	if paste.RemainingViews != nil {
		fields[fieldRemaining] = *paste.RemainingViews
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		// Replace rather than merge if the id ever collides.
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if ttl, ok := backstop(paste); ok {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save paste: %w", err)
	}
	return nil
}

// Consume runs the retrieval script in a single round trip.
func (s *Store) Consume(ctx context.Context, id string, now int64) (*storage.Paste, error) {
	reply, err := consumeScript.Run(ctx, s.client, []string{s.key(id)}, now).Slice()
	if err != nil {
		return nil, fmt.Errorf("run consume script: %w", err)
	}
	if len(reply) == 0 {
		return nil, errors.New("empty consume reply")
	}

	status, ok := reply[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected consume status %T", reply[0])
	}
	switch status {
	case statusOK:
	case statusNotFound:
		return nil, storage.ErrNotFound
	case statusExpired:
		return nil, storage.ErrExpired
	case statusExhausted:
		return nil, storage.ErrExhausted
	default:
		return nil, fmt.Errorf("unexpected consume status %d", status)
	}

	return decodeReply(id, reply)
}

// DeleteExpired is a no-op: keys carry a native EXPIRE and exhausted keys are
// unreadable whether or not they are still present.
func (s *Store) DeleteExpired(ctx context.Context, now int64) (int, error) {
	return 0, nil
}

// Ping checks the server connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func decodeReply(id string, reply []any) (*storage.Paste, error) {
	if len(reply) < 5 {
		return nil, fmt.Errorf("short consume reply: %d elements", len(reply))
	}
	content, ok := reply[1].(string)
	if !ok {
		return nil, fmt.Errorf("unexpected content type %T", reply[1])
	}
	createdAt, err := toInt(reply[2])
	if err != nil {
		return nil, fmt.Errorf("decode created_at: %w", err)
	}

	paste := &storage.Paste{ID: id, Content: content}
	if createdAt != nil {
		paste.CreatedAt = *createdAt
	}
	if paste.RemainingViews, err = toInt(reply[3]); err != nil {
		return nil, fmt.Errorf("decode remaining_views: %w", err)
	}
	if paste.ExpiresAt, err = toInt(reply[4]); err != nil {
		return nil, fmt.Errorf("decode expires_at: %w", err)
	}
	return paste, nil
}

// toInt accepts the integer and bulk-string forms Lua replies use.
func toInt(v any) (*int64, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case int64:
		return &n, nil
	case string:
		parsed, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil, err
		}
		return &parsed, nil
	default:
		return nil, fmt.Errorf("unexpected type %T", v)
	}
}

// backstop is the eviction TTL for paste: its lifetime rounded up to whole
// seconds so the key never disappears before expires_at has passed. It
// reports false when there is no lifetime or it does not fit a Duration, in
// which case the key is left without an eviction.
func backstop(paste *storage.Paste) (time.Duration, bool) {
	ms := paste.LifetimeMillis()
	if ms <= 0 {
		return 0, false
	}
	secs := ms / 1000
	if ms%1000 != 0 {
		secs++
	}
	if secs > math.MaxInt64/int64(time.Second) {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
