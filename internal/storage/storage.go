package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrUnavailable is the umbrella for every reason a paste cannot be read.
// Callers outside the storage layer should only ever test against it.
var ErrUnavailable = errors.New("paste unavailable")

var (
	// ErrNotFound is returned when no record exists for the id.
	ErrNotFound = fmt.Errorf("%w: not found", ErrUnavailable)
	// ErrExpired is returned when expires_at lies before the read time.
	ErrExpired = fmt.Errorf("%w: expired", ErrUnavailable)
	// ErrExhausted is returned when the view counter has reached zero.
	ErrExhausted = fmt.Errorf("%w: view limit reached", ErrUnavailable)
)

// KeyPrefix namespaces paste records in shared key spaces.
const KeyPrefix = "paste"

// Paste represents a stored paste entry. Timestamps are milliseconds since
// the Unix epoch. ExpiresAt and RemainingViews are nil when the paste was
// created without the corresponding limit.
type Paste struct {
	ID             string `json:"id"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
	ExpiresAt      *int64 `json:"expires_at,omitempty"`
	RemainingViews *int64 `json:"remaining_views,omitempty"`
}

// HasExpiration reports whether the paste has an expiry set.
func (p Paste) HasExpiration() bool {
	return p.ExpiresAt != nil
}

// HasViewLimit reports whether the paste carries a view counter.
func (p Paste) HasViewLimit() bool {
	return p.RemainingViews != nil
}

// ExpiresAfter returns now plus ttlSeconds in milliseconds, saturating at
// math.MaxInt64 instead of wrapping.
func ExpiresAfter(now, ttlSeconds int64) int64 {
	if ttlSeconds <= 0 {
		return now
	}
	if ttlSeconds > (math.MaxInt64-max(now, 0))/1000 {
		return math.MaxInt64
	}
	return now + ttlSeconds*1000
}

// LifetimeMillis is expires_at minus created_at, or zero when unbounded.
func (p Paste) LifetimeMillis() int64 {
	if p.ExpiresAt == nil || *p.ExpiresAt <= p.CreatedAt {
		return 0
	}
	if p.CreatedAt < 0 && *p.ExpiresAt > math.MaxInt64+p.CreatedAt {
		return math.MaxInt64
	}
	return *p.ExpiresAt - p.CreatedAt
}

// TTL is the lifetime requested at creation, or zero when unbounded.
// Lifetimes beyond the range of time.Duration are clamped to its maximum.
func (p Paste) TTL() time.Duration {
	ms := p.LifetimeMillis()
	if ms > math.MaxInt64/int64(time.Millisecond) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ms) * time.Millisecond
}

// Expired reports whether the paste is past its expiry at now.
// A read at exactly expires_at is still allowed.
func (p Paste) Expired(now int64) bool {
	return p.ExpiresAt != nil && *p.ExpiresAt < now
}

// Exhausted reports whether every permitted view has been consumed.
func (p Paste) Exhausted() bool {
	return p.RemainingViews != nil && *p.RemainingViews <= 0
}

// Reclaimable reports whether the record can never be served again.
func (p Paste) Reclaimable(now int64) bool {
	return p.Expired(now) || p.Exhausted()
}

// Consume applies a single read at now. Time is checked before views so an
// expired read never touches the counter. Backends that evaluate outside the
// store must call it while holding whatever serialises access to the record.
func (p *Paste) Consume(now int64) error {
	if p.Expired(now) {
		return ErrExpired
	}
	if p.RemainingViews != nil {
		if *p.RemainingViews <= 0 {
			return ErrExhausted
		}
		left := *p.RemainingViews - 1
		p.RemainingViews = &left
	}
	return nil
}

// Clone returns a deep copy so callers never share counters with a backend.
func (p *Paste) Clone() *Paste {
	if p == nil {
		return nil
	}
	cp := *p
	if p.ExpiresAt != nil {
		v := *p.ExpiresAt
		cp.ExpiresAt = &v
	}
	if p.RemainingViews != nil {
		v := *p.RemainingViews
		cp.RemainingViews = &v
	}
	return &cp
}

// Key returns the namespaced record key for id.
func Key(prefix, id string) string {
	if prefix == "" {
		prefix = KeyPrefix
	}
	return prefix + ":" + id
}

// Store defines the storage backend contract.
//
// Create persists a new record in one atomic write and arms any native
// expiry the backend offers. Consume performs the whole
// exists/expiry/views/decrement/read sequence as one indivisible unit and
// returns the post-decrement record. DeleteExpired reclaims records that
// can never be served again; backends with native expiry may return zero.
type Store interface {
	Create(ctx context.Context, paste *Paste) error
	Consume(ctx context.Context, id string, now int64) (*Paste, error)
	DeleteExpired(ctx context.Context, now int64) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
