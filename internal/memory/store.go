// Package memory persists session turns in SQLite and retrieves prior
// context for new transcripts. The runtime treats the store as optional:
// failures here degrade the loop gracefully and are reported, never fatal.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"agentd/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.MemoryStore using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS turns (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id  TEXT NOT NULL,
		role        TEXT NOT NULL,
		content     TEXT,
		tool_name   TEXT,
		is_error    INTEGER DEFAULT 0,
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_turns_session ON turns(session_id, id);
	CREATE INDEX IF NOT EXISTS idx_turns_time ON turns(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AppendTurn persists one transcript message. Each append is a single atomic
// insert, safe under concurrent sessions.
func (s *SQLiteStore) AppendTurn(ctx context.Context, sessionID string, msg domain.Message) error {
	createdAt := msg.Timestamp
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, role, content, tool_name, is_error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, string(msg.Role), msg.Content, msg.ToolName, msg.IsError, createdAt,
	)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// Search returns prior turns whose content matches the query, newest first.
// Simple keyword search using LIKE; good enough for transcript context.
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]domain.MemorySnippet, error) {
	if limit <= 0 {
		limit = 10
	}

	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, role, content, created_at
		 FROM turns
		 WHERE content LIKE ? AND role != 'system'
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		pattern, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search turns: %w", err)
	}
	defer rows.Close()

	var out []domain.MemorySnippet
	for rows.Next() {
		var (
			snippet domain.MemorySnippet
			role    string
		)
		if err := rows.Scan(&snippet.SessionID, &role, &snippet.Content, &snippet.CreatedAt); err != nil {
			return nil, err
		}
		snippet.Role = domain.Role(role)
		out = append(out, snippet)
	}
	return out, rows.Err()
}

// Prune deletes turns older than the retention window.
func (s *SQLiteStore) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	res, err := s.db.ExecContext(ctx, `DELETE FROM turns WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune turns: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned old turns", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ domain.MemoryStore = (*SQLiteStore)(nil)
