package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Postgres is the dialect for github.com/lib/pq.
var Postgres = Dialect{
	Name: "postgres",
	schema: `
CREATE TABLE IF NOT EXISTS pastes (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    expires_at BIGINT,
    remaining_views BIGINT
);
CREATE INDEX IF NOT EXISTS idx_pastes_expires_at ON pastes (expires_at);
`,
	insert: `
INSERT INTO pastes (id, content, created_at, expires_at, remaining_views)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    content = EXCLUDED.content,
    created_at = EXCLUDED.created_at,
    expires_at = EXCLUDED.expires_at,
    remaining_views = EXCLUDED.remaining_views;
`,
	selectForRead: `SELECT content, created_at, expires_at, remaining_views FROM pastes WHERE id = $1 FOR UPDATE;`,
	updateViews:   `UPDATE pastes SET remaining_views = $1 WHERE id = $2;`,
	deleteExpired: `
DELETE FROM pastes
WHERE (expires_at IS NOT NULL AND expires_at < $1)
   OR (remaining_views IS NOT NULL AND remaining_views <= 0);
`,
}

// OpenPostgres connects to the database at dsn and applies the schema.
func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := New(db, Postgres)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
