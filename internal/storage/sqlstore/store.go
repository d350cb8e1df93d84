// Package sqlstore persists pastes in a relational database. SQLite and
// PostgreSQL share one implementation; they differ only in SQL dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pastebin-lite/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Dialect carries the statements a database needs.
type Dialect struct {
	Name          string
	schema        string
	insert        string
	selectForRead string
	updateViews   string
	deleteExpired string
}

// Store implements storage.Store on database/sql.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// New wraps an existing handle. The schema is not applied.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d}
}

// Migrate applies the schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("apply %s schema: %w", s.dialect.Name, err)
	}
	return nil
}

// Create inserts a paste. A colliding id overwrites the previous row.
func (s *Store) Create(ctx context.Context, paste *storage.Paste) error {
	if paste == nil {
		return errors.New("paste is nil")
	}
	_, err := s.db.ExecContext(ctx, s.dialect.insert,
		paste.ID,
		paste.Content,
		paste.CreatedAt,
		nullableInt(paste.ExpiresAt),
		nullableInt(paste.RemainingViews),
	)
	if err != nil {
		return fmt.Errorf("save paste: %w", err)
	}
	return nil
}

// Consume reads, checks and decrements inside one transaction. The row is
// locked for the lifetime of the transaction (FOR UPDATE on PostgreSQL, the
// single shared connection on SQLite).
func (s *Store) Consume(ctx context.Context, id string, now int64) (*storage.Paste, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		paste     = storage.Paste{ID: id}
		expiresAt sql.NullInt64
		remaining sql.NullInt64
	)
	row := tx.QueryRowContext(ctx, s.dialect.selectForRead, id)
	if err := row.Scan(&paste.Content, &paste.CreatedAt, &expiresAt, &remaining); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("query paste: %w", err)
	}
	if expiresAt.Valid {
		paste.ExpiresAt = &expiresAt.Int64
	}
	if remaining.Valid {
		paste.RemainingViews = &remaining.Int64
	}

	if err := paste.Consume(now); err != nil {
		return nil, err
	}

	if paste.HasViewLimit() {
		if _, err := tx.ExecContext(ctx, s.dialect.updateViews, *paste.RemainingViews, id); err != nil {
			return nil, fmt.Errorf("update views: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &paste, nil
}

// DeleteExpired removes rows expired before now or with no views left.
func (s *Store) DeleteExpired(ctx context.Context, now int64) (int, error) {
	res, err := s.db.ExecContext(ctx, s.dialect.deleteExpired, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(rows), nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
