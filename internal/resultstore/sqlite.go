// Package resultstore holds the durable implementation of exam.ResultStore.
// It depends on internal/exam, never the other way around; the exam package
// only sees the interface it declares.
package resultstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"toeicprep/internal/exam"
)

// SQLiteStore is the durable result store backed by an embedded sqlite
// file, so submitted summaries survive a process restart without touching
// the primary database.
type SQLiteStore struct {
	db *sql.DB
}

var _ exam.ResultStore = (*SQLiteStore)(nil)

// OpenSQLite opens (or creates) the store at path and ensures the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "file:toeicprep_results.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping result store: %w", err)
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS results (
			user_id INTEGER NOT NULL,
			key TEXT NOT NULL,
			summary_json TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (user_id, key)
		)
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure result schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Put(ctx context.Context, userID int64, key string, summary exam.ResultSummary) error {
	b, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (user_id, key, summary_json, updated_at)
		VALUES (?, ?, ?, unixepoch())
		ON CONFLICT (user_id, key)
		DO UPDATE SET summary_json = excluded.summary_json, updated_at = unixepoch()
	`, userID, key, string(b))
	if err != nil {
		return fmt.Errorf("put result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, userID int64, key string) (exam.ResultSummary, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT summary_json FROM results WHERE user_id = ? AND key = ?
	`, userID, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return exam.ResultSummary{}, exam.ErrResultNotFound
	}
	if err != nil {
		return exam.ResultSummary{}, fmt.Errorf("get result: %w", err)
	}
	var summary exam.ResultSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return exam.ResultSummary{}, fmt.Errorf("decode summary: %w", err)
	}
	return summary, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, userID int64, key string) error {
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM results WHERE user_id = ? AND key = ?
	`, userID, key); err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	return nil
}
