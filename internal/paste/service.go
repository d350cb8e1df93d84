// Package paste implements creation and atomic retrieval of self-expiring
// text pastes on top of a storage.Store.
package paste

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pastebin-lite/internal/id"
	"pastebin-lite/internal/storage"
)

const defaultTimeout = 3 * time.Second

// IDGenerator produces identifiers for new pastes.
type IDGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// CreateInput is the validated-by-Create request for a new paste. Nil
// optional fields mean "no limit".
type CreateInput struct {
	Content    string
	TTLSeconds *int64
	MaxViews   *int64
}

// Validate checks the creation constraints.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.Content) == "" {
		return &ValidationError{Field: "content", Message: "is required and must be a non-empty string"}
	}
	if in.TTLSeconds != nil && *in.TTLSeconds < 1 {
		return &ValidationError{Field: "ttl_seconds", Message: "must be an integer >= 1"}
	}
	if in.MaxViews != nil && *in.MaxViews < 1 {
		return &ValidationError{Field: "max_views", Message: "must be an integer >= 1"}
	}
	return nil
}

// View is what a successful retrieval hands back.
type View struct {
	ID             string
	Content        string
	RemainingViews *int64
	ExpiresAt      *int64
}

// Config captures service dependencies.
type Config struct {
	Store       storage.Store
	IDGenerator IDGenerator
	// Timeout bounds every store round trip.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Service exposes Create and Retrieve.
type Service struct {
	store   storage.Store
	ids     IDGenerator
	timeout time.Duration
	logger  *slog.Logger
}

// New constructs a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.IDGenerator == nil {
		cfg.IDGenerator = id.New(0)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		store:   cfg.Store,
		ids:     cfg.IDGenerator,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// Create validates in, persists a new paste stamped at now and returns its id.
func (s *Service) Create(ctx context.Context, in CreateInput, now int64) (string, error) {
	if err := in.Validate(); err != nil {
		return "", err
	}

	pasteID, err := s.ids.Generate(ctx)
	if err != nil {
		return "", &StoreError{Op: "create", Err: err}
	}

	p := &storage.Paste{
		ID:        pasteID,
		Content:   in.Content,
		CreatedAt: now,
	}
	if in.MaxViews != nil {
		views := *in.MaxViews
		p.RemainingViews = &views
	}
	if in.TTLSeconds != nil {
		expires := storage.ExpiresAfter(now, *in.TTLSeconds)
		p.ExpiresAt = &expires
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.store.Create(ctx, p); err != nil {
		s.logger.Error("create paste failed", "id", pasteID, "error", err)
		return "", &StoreError{Op: "create", Err: err}
	}

	s.logger.Debug("paste created", "id", pasteID, "ttl", p.TTL(), "max_views", in.MaxViews != nil)
	return pasteID, nil
}

// Retrieve consumes one read of the paste at now. It returns ErrUnavailable
// when the paste cannot be served and a *StoreError when the store fails.
func (s *Service) Retrieve(ctx context.Context, pasteID string, now int64) (*View, error) {
	if pasteID == "" {
		return nil, ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	p, err := s.store.Consume(ctx, pasteID, now)
	if err != nil {
		if errors.Is(err, storage.ErrUnavailable) {
			s.logger.Debug("paste unavailable", "id", pasteID, "reason", err)
			return nil, ErrUnavailable
		}
		s.logger.Error("retrieve paste failed", "id", pasteID, "error", err)
		return nil, &StoreError{Op: "retrieve", Err: err}
	}

	return &View{
		ID:             pasteID,
		Content:        p.Content,
		RemainingViews: p.RemainingViews,
		ExpiresAt:      p.ExpiresAt,
	}, nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.store.Ping(ctx)
}
