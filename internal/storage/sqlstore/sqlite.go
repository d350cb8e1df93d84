package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLite is the dialect for modernc.org/sqlite.
var SQLite = Dialect{
	Name: "sqlite",
	schema: `
CREATE TABLE IF NOT EXISTS pastes (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    expires_at INTEGER,
    remaining_views INTEGER
);
CREATE INDEX IF NOT EXISTS idx_pastes_expires_at ON pastes (expires_at);
`,
	insert: `
INSERT INTO pastes (id, content, created_at, expires_at, remaining_views)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    content=excluded.content,
    created_at=excluded.created_at,
    expires_at=excluded.expires_at,
    remaining_views=excluded.remaining_views;
`,
	selectForRead: `SELECT content, created_at, expires_at, remaining_views FROM pastes WHERE id = ?;`,
	updateViews:   `UPDATE pastes SET remaining_views = ? WHERE id = ?;`,
	deleteExpired: `
DELETE FROM pastes
WHERE (expires_at IS NOT NULL AND expires_at < ?)
   OR (remaining_views IS NOT NULL AND remaining_views <= 0);
`,
}

// OpenSQLite initializes the SQLite database at path.
func OpenSQLite(path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises every transaction, which is what makes the
	// read-check-decrement in Consume exclusive per paste.
	db.SetMaxOpenConns(1)

	s := New(db, SQLite)
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}
