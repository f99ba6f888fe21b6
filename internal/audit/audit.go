// Package audit implements an optional SQLite-backed operation log,
// adapted from the teacher's internal/integration.SQLiteAuditLogger.
// It records every tool invocation and every recall request that gets
// past parameter validation and rate limiting, outside the
// core component budget (§2) — a pure enrichment that never gates a
// tool's success or failure.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Entry is one recorded operation.
type Entry struct {
	Timestamp time.Time
	Operation string // "store_qa", "query_qa", "merge_knowledge", "recall"
	Success   bool
	Error     string
	Duration  time.Duration
}

// Logger records Entry values to a SQLite database rooted at dbPath.
type Logger struct {
	db *sql.DB
}

// Open creates (or reopens) the audit database at
// <dbPath>/audit.sqlite3.
func Open(dbPath string) (*Logger, error) {
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, fmt.Errorf("audit: mkdir: %w", err)
	}
	path := filepath.Join(dbPath, "audit.sqlite3")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}

	l := &Logger{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: init schema: %w", err)
	}
	return l, nil
}

func (l *Logger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS operation_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		operation TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		error TEXT,
		duration_ms INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_operation_log_operation ON operation_log(operation);
	CREATE INDEX IF NOT EXISTS idx_operation_log_timestamp ON operation_log(timestamp);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Log records one operation entry.
func (l *Logger) Log(ctx context.Context, e Entry) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO operation_log (timestamp, operation, success, error, duration_ms) VALUES (?, ?, ?, ?, ?)`,
		e.Timestamp, e.Operation, e.Success, e.Error, e.Duration.Milliseconds(),
	)
	return err
}

// CountByOperation returns the number of recorded entries for op,
// mainly used by tests asserting the log is actually being written.
func (l *Logger) CountByOperation(ctx context.Context, op string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operation_log WHERE operation = ?`, op).Scan(&n)
	return n, err
}

// Close closes the underlying database connection.
func (l *Logger) Close() error {
	return l.db.Close()
}
