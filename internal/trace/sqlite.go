package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"agentd/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteSink persists trace events to a SQLite database so the audit trail
// outlives the runtime process. Each Record is a single atomic insert, so
// concurrent sessions can append without interleaving corruption.
type SQLiteSink struct {
	db         *sql.DB
	logger     *slog.Logger
	failedOnce sync.Once
}

func NewSQLiteSink(dbPath string, logger *slog.Logger) (*SQLiteSink, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create trace directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open trace database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	sink := &SQLiteSink{db: db, logger: logger}
	if err := sink.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("trace database migration failed: %w", err)
	}
	return sink, nil
}

func (s *SQLiteSink) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trace_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id  TEXT NOT NULL,
		step        INTEGER NOT NULL,
		kind        TEXT NOT NULL,
		payload     TEXT,
		created_at  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trace_session ON trace_events(session_id, step, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one event. Failures are logged once and swallowed: tracing
// must never abort a session.
func (s *SQLiteSink) Record(ctx context.Context, event domain.TraceEvent) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		s.reportFailure(err)
		return
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trace_events (session_id, step, kind, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		event.SessionID, event.Step, string(event.Kind), string(payload), event.Timestamp,
	)
	if err != nil {
		s.reportFailure(err)
	}
}

func (s *SQLiteSink) reportFailure(err error) {
	s.failedOnce.Do(func() {
		s.logger.Error("trace sink failed, further failures suppressed", "error", err)
	})
}

// SessionEvents loads a session's events ordered by step, then insertion.
func (s *SQLiteSink) SessionEvents(ctx context.Context, sessionID string) ([]domain.TraceEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, step, kind, payload, created_at
		 FROM trace_events WHERE session_id = ? ORDER BY step, id`,
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.TraceEvent
	for rows.Next() {
		var (
			event   domain.TraceEvent
			kind    string
			payload string
			created time.Time
		)
		if err := rows.Scan(&event.SessionID, &event.Step, &kind, &payload, &created); err != nil {
			return nil, err
		}
		event.Kind = domain.TraceKind(kind)
		event.Timestamp = created
		if payload != "" && payload != "null" {
			if err := json.Unmarshal([]byte(payload), &event.Payload); err != nil {
				return nil, fmt.Errorf("corrupt payload for session %s step %d: %w", event.SessionID, event.Step, err)
			}
		}
		out = append(out, event)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

var _ domain.TraceSink = (*SQLiteSink)(nil)
