package db

import (
	"context"
	"database/sql"
	"fmt"
)

// EnsureSchema creates all tables if they do not exist yet. Statements are
// idempotent so repeated startups are safe.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT,
			password_hash TEXT NOT NULL,
			full_name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'student',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS tests (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			time_limit_sec INT NOT NULL DEFAULT 7200,
			sections JSONB NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			exam_id TEXT NOT NULL REFERENCES tests(id),
			user_id BIGINT NOT NULL REFERENCES users(id),
			parts TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'in_progress',
			started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at TIMESTAMPTZ,
			submitted_at TIMESTAMPTZ,
			result_json JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_attempts_user ON attempts (user_id, started_at DESC)`,
		`CREATE TABLE IF NOT EXISTS attempt_answers (
			attempt_id TEXT NOT NULL REFERENCES attempts(id) ON DELETE CASCADE,
			question_id TEXT NOT NULL,
			question_number INT NOT NULL,
			part INT NOT NULL,
			selected TEXT,
			is_flagged BOOLEAN NOT NULL DEFAULT FALSE,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (attempt_id, question_id)
		)`,
		`CREATE TABLE IF NOT EXISTS courses (
			id BIGSERIAL PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price_cents BIGINT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS enrollments (
			id BIGSERIAL PRIMARY KEY,
			course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			enrolled_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (course_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS class_sessions (
			id BIGSERIAL PRIMARY KEY,
			course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			topic TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			starts_at TIMESTAMPTZ NOT NULL,
			ends_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS makeup_slots (
			id BIGSERIAL PRIMARY KEY,
			course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
			topic TEXT NOT NULL,
			starts_at TIMESTAMPTZ NOT NULL,
			capacity INT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS makeup_bookings (
			id BIGSERIAL PRIMARY KEY,
			slot_id BIGINT NOT NULL REFERENCES makeup_slots(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			booked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (slot_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS vocab_decks (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS vocab_cards (
			id BIGSERIAL PRIMARY KEY,
			deck_id BIGINT NOT NULL REFERENCES vocab_decks(id) ON DELETE CASCADE,
			term TEXT NOT NULL,
			definition TEXT NOT NULL,
			example TEXT NOT NULL DEFAULT ''
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
