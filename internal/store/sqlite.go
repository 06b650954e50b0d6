package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// RequestLog captures one incoming MCP request handled by the server.
type RequestLog struct {
	ID         string
	Method     string
	ToolName   string
	Success    bool
	ErrorText  string
	DurationMS int64
	CreatedAt  time.Time
}

// Stats summarizes request counters for admin dashboards.
type Stats struct {
	Total    int64
	Failed   int64
	LastHour int64
}

// ToolCount aggregates calls per tool for admin dashboards.
type ToolCount struct {
	Tool     string
	Calls    int64
	Failures int64
}

// Store represents persistence operations for the request log.
type Store interface {
	InsertRequestLog(ctx context.Context, rec RequestLog) error
	RecentRequestLogs(ctx context.Context, limit int) ([]RequestLog, error)
	Stats(ctx context.Context, now time.Time) (Stats, error)
	ToolBreakdown(ctx context.Context, limit int) ([]ToolCount, error)
	PruneRequestLogs(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

// SQLiteStore is a SQLite-backed request log.
type SQLiteStore struct {
	db     *sql.DB
	logger *log.Logger
}

// OpenSQLite opens and initializes the SQLite store.
func OpenSQLite(ctx context.Context, dbPath string, logger *log.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init(ctx context.Context) error {
	for _, stmt := range splitSQLStatements(schemaSQL) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("run schema stmt: %w", err)
		}
	}
	return nil
}

func splitSQLStatements(s string) []string {
	parts := strings.Split(s, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p+";")
	}
	return out
}

// InsertRequestLog stores one request event. Rows without an id get one.
func (s *SQLiteStore) InsertRequestLog(ctx context.Context, rec RequestLog) error {
	id := strings.TrimSpace(rec.ID)
	if id == "" {
		id = uuid.NewString()
	}
	ts := rec.CreatedAt.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	success := 0
	if rec.Success {
		success = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO mcp_requests (
		id, method, tool_name, success, error_text, duration_ms, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id,
		strings.TrimSpace(rec.Method),
		strings.TrimSpace(rec.ToolName),
		success,
		strings.TrimSpace(rec.ErrorText),
		rec.DurationMS,
		ts.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// RecentRequestLogs returns the most recent request events, newest first.
func (s *SQLiteStore) RecentRequestLogs(ctx context.Context, limit int) ([]RequestLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, method, tool_name, success, error_text, duration_ms, created_at
FROM mcp_requests
ORDER BY created_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list request logs: %w", err)
	}
	defer rows.Close()

	items := make([]RequestLog, 0, limit)
	for rows.Next() {
		var (
			row       RequestLog
			success   int
			createdAt string
		)
		if err := rows.Scan(&row.ID, &row.Method, &row.ToolName, &success, &row.ErrorText, &row.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan request log: %w", err)
		}
		row.Success = success == 1
		if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			row.CreatedAt = ts
		}
		items = append(items, row)
	}
	return items, rows.Err()
}

// Stats returns aggregate request counters.
func (s *SQLiteStore) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM mcp_requests`).Scan(&st.Total); err != nil {
		return st, fmt.Errorf("count requests: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM mcp_requests WHERE success = 0`).Scan(&st.Failed); err != nil {
		return st, fmt.Errorf("count failed requests: %w", err)
	}
	hourAgo := now.UTC().Add(-time.Hour).Format(time.RFC3339Nano)
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM mcp_requests WHERE created_at > ?`, hourAgo).Scan(&st.LastHour); err != nil {
		return st, fmt.Errorf("count recent requests: %w", err)
	}
	return st, nil
}

// ToolBreakdown aggregates per-tool call and failure counts, busiest first.
func (s *SQLiteStore) ToolBreakdown(ctx context.Context, limit int) ([]ToolCount, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT tool_name, count(*), sum(CASE WHEN success = 0 THEN 1 ELSE 0 END)
FROM mcp_requests
WHERE tool_name != ''
GROUP BY tool_name
ORDER BY count(*) DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("tool breakdown: %w", err)
	}
	defer rows.Close()

	items := make([]ToolCount, 0, limit)
	for rows.Next() {
		var tc ToolCount
		if err := rows.Scan(&tc.Tool, &tc.Calls, &tc.Failures); err != nil {
			return nil, fmt.Errorf("scan tool breakdown: %w", err)
		}
		items = append(items, tc)
	}
	return items, rows.Err()
}

// PruneRequestLogs deletes rows created before the cutoff.
func (s *SQLiteStore) PruneRequestLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mcp_requests WHERE created_at < ?`,
		before.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("prune request logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune rows affected: %w", err)
	}
	if n > 0 {
		s.logger.Debug("pruned request log rows", "count", n)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
