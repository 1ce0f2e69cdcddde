package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists dispatch records to a SQLite database.
type SQLiteRecorder struct {
	db *sqlx.DB
}

var _ Recorder = (*SQLiteRecorder)(nil)

// pragmas applied on open; WAL keeps the request path from blocking on
// readers of the audit trail.
var pragmas = []string{
	`PRAGMA journal_mode=WAL`,
	`PRAGMA foreign_keys=ON`,
	`PRAGMA busy_timeout=5000`,
}

// NewSQLite opens (creating if needed) the audit database at path.
func NewSQLite(path string) (*SQLiteRecorder, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma: %w", err)
		}
	}

	rec := &SQLiteRecorder{db: db}
	if err := rec.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize audit schema: %w", err)
	}
	return rec, nil
}

func (s *SQLiteRecorder) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dispatches (
id TEXT PRIMARY KEY,
method TEXT NOT NULL,
path TEXT NOT NULL,
route TEXT,
status INTEGER NOT NULL,
outcome TEXT NOT NULL,
client TEXT,
duration_ns INTEGER NOT NULL,
created_at TIMESTAMP NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_created_at ON dispatches(created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("execute statement: %w", err)
		}
	}
	return nil
}

// Record inserts one dispatch record.
func (s *SQLiteRecorder) Record(ctx context.Context, rec Record) error {
	_, err := s.db.NamedExecContext(ctx, `
INSERT INTO dispatches (id, method, path, route, status, outcome, client, duration_ns, created_at)
VALUES (:id, :method, :path, :route, :status, :outcome, :client, :duration_ns, :created_at)`, rec)
	if err != nil {
		return fmt.Errorf("insert dispatch record: %w", err)
	}
	return nil
}

// Tail returns up to n records, newest first.
func (s *SQLiteRecorder) Tail(ctx context.Context, n int) ([]Record, error) {
	var records []Record
	err := s.db.SelectContext(ctx, &records, `
SELECT id, method, path, route, status, outcome, client, duration_ns, created_at
FROM dispatches ORDER BY created_at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("select dispatch records: %w", err)
	}
	return records, nil
}

// Close closes the underlying database.
func (s *SQLiteRecorder) Close() error {
	return s.db.Close()
}
