package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/gogo/negotiator/internal/protocol"
)

// SQLiteStore keeps finished sessions in a SQLite database so that history
// survives restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dsn and creates the schema if needed.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Every connection to an in-memory database is a separate database.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			result TEXT NOT NULL,
			rounds INTEGER NOT NULL,
			recorded_at DATETIME NOT NULL,
			record TEXT NOT NULL
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Add stores a session. REPLACE deletes the old row, so a repeated id gets a
// new rowid and sorts as newest.
func (s *SQLiteStore) Add(ctx context.Context, summary protocol.SessionSummary, record protocol.SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", summary.ID, err)
	}
	recordedAt := summary.Timestamp.Time
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (session_id, result, rounds, recorded_at, record) VALUES (?, ?, ?, ?, ?)`,
		summary.ID, summary.Result, summary.Rounds, recordedAt.UTC(), string(data))
	if err != nil {
		return fmt.Errorf("failed to store session %s: %w", summary.ID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]protocol.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, result, rounds, recorded_at FROM sessions ORDER BY rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	out := []protocol.SessionSummary{}
	for rows.Next() {
		var summary protocol.SessionSummary
		var recordedAt time.Time
		if err := rows.Scan(&summary.ID, &summary.Result, &summary.Rounds, &recordedAt); err != nil {
			return nil, err
		}
		summary.Timestamp = protocol.Timestamp{Time: recordedAt.UTC()}
		out = append(out, summary)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (protocol.SessionRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM sessions WHERE session_id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.SessionRecord{}, ErrSessionNotFound
	}
	if err != nil {
		return protocol.SessionRecord{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var record protocol.SessionRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return protocol.SessionRecord{}, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	return record, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
