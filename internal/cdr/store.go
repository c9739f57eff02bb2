// ABOUTME: SQLite persistence for call detail records using modernc.org/sqlite
// ABOUTME: Implements voice.CallRecorder; recording failures never block call handling

package cdr

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/youngnishant/fonoster/voice"
)

// Store persists call detail records in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the CDR database at path. The schema is created if
// it doesn't exist; parent directories are created if needed.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cdr")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("CDR store initialized", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS calls (
			id           TEXT PRIMARY KEY,
			call_ref     TEXT NOT NULL,
			event        TEXT NOT NULL,
			actions_json TEXT NOT NULL,
			status       TEXT NOT NULL,
			received_at  TEXT NOT NULL,
			duration_ms  INTEGER NOT NULL,

			CHECK (status IN ('ok', 'failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_calls_call_ref ON calls(call_ref);
		CREATE INDEX IF NOT EXISTS idx_calls_received_at ON calls(received_at DESC);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Record stores one call detail record.
func (s *Store) Record(ctx context.Context, rec voice.CallRecord) error {
	id := rec.RequestID
	if id == "" {
		id = uuid.New().String()
	}

	actionsJSON, err := json.Marshal(rec.Actions)
	if err != nil {
		return fmt.Errorf("encoding actions: %w", err)
	}

	query := `
		INSERT INTO calls (id, call_ref, event, actions_json, status, received_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		id,
		rec.CallRef,
		rec.EventName,
		string(actionsJSON),
		rec.Status,
		rec.ReceivedAt.UTC().Format(time.RFC3339Nano),
		rec.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}

	s.logger.Debug("recorded call",
		"id", id,
		"call_ref", rec.CallRef,
		"event", rec.EventName,
		"status", rec.Status,
	)
	return nil
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	// CallRef restricts to records for one call leg.
	CallRef string

	// Limit caps the number of records returned; 0 means 100.
	Limit int
}

// List returns call records, newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]voice.CallRecord, error) {
	query := `
		SELECT id, call_ref, event, actions_json, status, received_at, duration_ms
		FROM calls
		WHERE 1=1
	`
	args := []any{}

	if filter.CallRef != "" {
		query += " AND call_ref = ?"
		args = append(args, filter.CallRef)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += " ORDER BY received_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying call records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []voice.CallRecord
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating call rows: %w", err)
	}
	return records, nil
}

// Stats summarizes the recorded calls.
type Stats struct {
	Total         int64
	Failed        int64
	AvgDurationMS int64
	LastCallAt    time.Time
}

// GetStats returns aggregate counters over all recorded calls.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	query := `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) as failed,
			COALESCE(CAST(AVG(duration_ms) AS INTEGER), 0) as avg_duration,
			COALESCE(MAX(received_at), '') as last_call
		FROM calls
	`

	var stats Stats
	var lastCall string
	err := s.db.QueryRowContext(ctx, query).Scan(
		&stats.Total,
		&stats.Failed,
		&stats.AvgDurationMS,
		&lastCall,
	)
	if err != nil {
		return nil, fmt.Errorf("querying call stats: %w", err)
	}

	if lastCall != "" {
		stats.LastCallAt, err = time.Parse(time.RFC3339Nano, lastCall)
		if err != nil {
			return nil, fmt.Errorf("parsing last call time: %w", err)
		}
	}
	return &stats, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanCall(rows *sql.Rows) (voice.CallRecord, error) {
	var rec voice.CallRecord
	var actionsJSON string
	var receivedAtStr string
	var durationMS int64

	err := rows.Scan(
		&rec.RequestID,
		&rec.CallRef,
		&rec.EventName,
		&actionsJSON,
		&rec.Status,
		&receivedAtStr,
		&durationMS,
	)
	if err != nil {
		return rec, fmt.Errorf("scanning call row: %w", err)
	}

	if err := json.Unmarshal([]byte(actionsJSON), &rec.Actions); err != nil {
		return rec, fmt.Errorf("decoding actions: %w", err)
	}

	rec.ReceivedAt, err = time.Parse(time.RFC3339Nano, receivedAtStr)
	if err != nil {
		return rec, fmt.Errorf("parsing received_at: %w", err)
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond

	return rec, nil
}

// Ensure Store implements the recorder contract.
var _ voice.CallRecorder = (*Store)(nil)
