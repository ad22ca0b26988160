package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service owns tests and attempts. Question sets and answer keys live in the
// same sections payload; serving strips answers, grading reads them back at
// submit time only.
type Service struct {
	db                 *sql.DB
	results            ResultStore
	defaultTestMinutes int
}

type Attempt struct {
	ID        string     `json:"id"`
	ExamID    string     `json:"exam_id"`
	UserID    int64      `json:"user_id"`
	Parts     []int      `json:"parts,omitempty"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type AttemptSummary struct {
	Attempt
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	RemainingSecs  int64      `json:"remaining_secs"`
	TotalQuestions int        `json:"total_questions"`
	Answered       int        `json:"answered"`
	Flagged        int        `json:"flagged"`
	TotalScore     int        `json:"total_score,omitempty"`
}

type SaveAnswerInput struct {
	AttemptID  string
	QuestionID string
	Number     int
	Part       int
	Selected   string
	Flagged    bool
}

type TestInfo struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	TimeLimitSec int       `json:"time_limit_sec"`
	CreatedAt    time.Time `json:"created_at"`
}

type UpsertTestInput struct {
	ID           string
	Title        string
	TimeLimitSec int
	Sections     json.RawMessage
}

type attemptRow struct {
	ID          string
	ExamID      string
	UserID      int64
	Parts       sql.NullString
	Status      string
	StartedAt   time.Time
	ExpiresAt   sql.NullTime
	SubmittedAt sql.NullTime
	ResultJSON  []byte
}

func NewService(db *sql.DB, results ResultStore, defaultTestMinutes int) *Service {
	if defaultTestMinutes <= 0 {
		defaultTestMinutes = 120
	}
	if results == nil {
		results = NewMemoryStore()
	}
	return &Service{db: db, results: results, defaultTestMinutes: defaultTestMinutes}
}

// GetQuestionSet loads a test's sections, normalizes them for the selected
// parts and strips correct answers before they leave the service.
func (s *Service) GetQuestionSet(ctx context.Context, examID string, parts []int) (*Normalized, error) {
	sections, _, err := s.loadSections(ctx, s.db, examID)
	if err != nil {
		return nil, err
	}
	norm, err := Normalize(sections, parts)
	if err != nil {
		return nil, err
	}
	norm.Questions = Sanitize(norm.Questions)
	return norm, nil
}

// GetAnswerKeySections returns the sections with answers included.
func (s *Service) GetAnswerKeySections(ctx context.Context, examID string) ([]Section, error) {
	sections, _, err := s.loadSections(ctx, s.db, examID)
	if err != nil {
		return nil, err
	}
	return sections, nil
}

func (s *Service) StartAttempt(ctx context.Context, examID string, userID int64, parts []int) (*Attempt, error) {
	sections, timeLimitSec, err := s.loadSections(ctx, s.db, examID)
	if err != nil {
		return nil, err
	}
	if _, err := Normalize(sections, parts); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, exam_id, user_id, parts, status, started_at, expires_at
		FROM attempts
		WHERE exam_id = $1 AND user_id = $2 AND status = 'in_progress'
	`, examID, userID)
	existing, err := scanAttempt(row)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query existing attempt: %w", err)
	}

	if timeLimitSec <= 0 {
		timeLimitSec = s.defaultTestMinutes * 60
	}
	row = s.db.QueryRowContext(ctx, `
		INSERT INTO attempts (id, exam_id, user_id, parts, status, started_at, expires_at)
		VALUES ($1, $2, $3, $4, 'in_progress', now(), now() + make_interval(secs => $5))
		RETURNING id, exam_id, user_id, parts, status, started_at, expires_at
	`, uuid.NewString(), examID, userID, encodeParts(parts), timeLimitSec)

	created, err := scanAttempt(row)
	if err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return created, nil
}

func (s *Service) GetAttemptSummary(ctx context.Context, attemptID string) (*AttemptSummary, error) {
	row, err := s.loadAttemptRow(ctx, s.db, attemptID)
	if err != nil {
		return nil, err
	}
	return s.buildSummaryFromRow(ctx, row)
}

// SaveAnswer upserts the selected option and review flag for one question.
// Once the countdown has expired the attempt is locked for edits but is NOT
// auto-submitted; the user still confirms submission explicitly.
func (s *Service) SaveAnswer(ctx context.Context, in SaveAnswerInput) error {
	row, err := s.loadAttemptRow(ctx, s.db, in.AttemptID)
	if err != nil {
		return err
	}
	if row.Status != "in_progress" {
		return ErrAttemptNotEditable
	}
	if row.ExpiresAt.Valid && time.Now().After(row.ExpiresAt.Time) {
		return ErrAttemptNotEditable
	}
	if strings.TrimSpace(in.QuestionID) == "" || in.Number <= 0 {
		return ErrInvalidInput
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO attempt_answers (attempt_id, question_id, question_number, part, selected, is_flagged, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (attempt_id, question_id)
		DO UPDATE SET
			selected = EXCLUDED.selected,
			is_flagged = EXCLUDED.is_flagged,
			updated_at = now()
	`, in.AttemptID, in.QuestionID, in.Number, in.Part, nullIfEmpty(in.Selected), in.Flagged)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

// SubmitAttempt grades an attempt against the test's answer key inside a
// transaction and writes the summary both to the attempt row and to the
// result store under toeic_result_{examID}. A failure to assemble the key
// leaves the attempt in progress so the user can retry.
func (s *Service) SubmitAttempt(ctx context.Context, attemptID string) (*ResultSummary, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := s.loadAttemptRowForUpdate(ctx, tx, attemptID)
	if err != nil {
		return nil, err
	}
	if row.Status != "in_progress" {
		// Idempotent: a submitted attempt returns its stored summary.
		if len(row.ResultJSON) > 2 {
			var summary ResultSummary
			if err := json.Unmarshal(row.ResultJSON, &summary); err != nil {
				return nil, fmt.Errorf("decode stored summary: %w", err)
			}
			return &summary, nil
		}
		return nil, ErrAttemptNotEditable
	}

	parts := decodeParts(row.Parts.String)
	sections, _, err := s.loadSections(ctx, tx, row.ExamID)
	if err != nil {
		if errors.Is(err, ErrExamNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	norm, err := Normalize(sections, parts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}
	key, err := BuildAnswerKey(sections, parts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
	}

	answers, flags, err := s.loadAnswers(ctx, tx, attemptID)
	if err != nil {
		return nil, err
	}

	// Grading goes through the same state machine the interactive flow uses:
	// rebuild the session from the stored answers and submit it against the
	// key. The DB clock already enforced the time limit, so the rebuilt
	// session is untimed.
	sess := NewSession(row.ExamID, norm, parts, 0)
	sess.Begin()
	for id, selected := range answers {
		if err := sess.SelectAnswer(id, selected); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSubmitFailed, err)
		}
	}
	for id := range flags {
		sess.ToggleFlag(id)
	}
	summary, warnings, err := sess.Submit(key)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Printf("score input warning attempt=%s: %s", attemptID, w)
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("encode summary: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE attempts
		SET status = 'submitted',
			submitted_at = now(),
			result_json = $2::jsonb
		WHERE id = $1
	`, attemptID, summaryJSON); err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submit: %w", err)
	}

	if err := s.results.Put(ctx, row.UserID, ResultKey(row.ExamID), summary); err != nil {
		// The attempt is already final; losing the fallback copy only costs
		// refresh resilience on the results view.
		log.Printf("result store put failed attempt=%s: %v", attemptID, err)
	}
	return &summary, nil
}

// GetAttemptResult returns the stored summary of a finalized attempt.
func (s *Service) GetAttemptResult(ctx context.Context, attemptID string) (*ResultSummary, error) {
	row, err := s.loadAttemptRow(ctx, s.db, attemptID)
	if err != nil {
		return nil, err
	}
	if row.Status == "in_progress" {
		return nil, ErrAttemptNotFinal
	}
	var summary ResultSummary
	if err := json.Unmarshal(row.ResultJSON, &summary); err != nil {
		return nil, fmt.Errorf("decode stored summary: %w", err)
	}
	return &summary, nil
}

// LatestResult reads the result-store fallback copy for a user and exam,
// used by the results view when it has no navigation payload.
func (s *Service) LatestResult(ctx context.Context, userID int64, examID string) (*ResultSummary, error) {
	summary, err := s.results.Get(ctx, userID, ResultKey(examID))
	if err != nil {
		if errors.Is(err, ErrResultNotFound) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("read result store: %w", err)
	}
	return &summary, nil
}

func (s *Service) GetAttemptOwner(ctx context.Context, attemptID string) (int64, error) {
	var userID int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT user_id FROM attempts WHERE id = $1
	`, attemptID).Scan(&userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrAttemptNotFound
		}
		return 0, fmt.Errorf("load attempt owner: %w", err)
	}
	return userID, nil
}

func (s *Service) ListTests(ctx context.Context) ([]TestInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, time_limit_sec, created_at
		FROM tests
		WHERE is_active = TRUE
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query tests: %w", err)
	}
	defer rows.Close()

	out := make([]TestInfo, 0)
	for rows.Next() {
		var t TestInfo
		if err := rows.Scan(&t.ID, &t.Title, &t.TimeLimitSec, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan test: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tests: %w", err)
	}
	return out, nil
}

// UpsertTest stores a test's sections payload after validating its shape.
func (s *Service) UpsertTest(ctx context.Context, in UpsertTestInput) (*TestInfo, error) {
	if strings.TrimSpace(in.ID) == "" || strings.TrimSpace(in.Title) == "" {
		return nil, ErrInvalidInput
	}
	if _, err := DecodeSections(in.Sections); err != nil {
		return nil, err
	}
	var t TestInfo
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tests (id, title, time_limit_sec, sections, is_active, created_at)
		VALUES ($1, $2, $3, $4::jsonb, TRUE, now())
		ON CONFLICT (id)
		DO UPDATE SET
			title = EXCLUDED.title,
			time_limit_sec = EXCLUDED.time_limit_sec,
			sections = EXCLUDED.sections
		RETURNING id, title, time_limit_sec, created_at
	`, in.ID, in.Title, in.TimeLimitSec, []byte(in.Sections)).Scan(&t.ID, &t.Title, &t.TimeLimitSec, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert test: %w", err)
	}
	return &t, nil
}

func (s *Service) loadSections(ctx context.Context, q queryable, examID string) ([]Section, int, error) {
	var raw []byte
	var timeLimitSec int
	err := q.QueryRowContext(ctx, `
		SELECT sections, time_limit_sec
		FROM tests
		WHERE id = $1 AND is_active = TRUE
	`, examID).Scan(&raw, &timeLimitSec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrExamNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load test sections: %w", err)
	}
	sections, err := DecodeSections(raw)
	if err != nil {
		return nil, 0, err
	}
	return sections, timeLimitSec, nil
}

func (s *Service) loadAnswers(ctx context.Context, q queryable, attemptID string) (map[string]string, map[string]bool, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT question_id, COALESCE(selected, ''), is_flagged
		FROM attempt_answers
		WHERE attempt_id = $1
	`, attemptID)
	if err != nil {
		return nil, nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	answers := map[string]string{}
	flags := map[string]bool{}
	for rows.Next() {
		var qid, selected string
		var flagged bool
		if err := rows.Scan(&qid, &selected, &flagged); err != nil {
			return nil, nil, fmt.Errorf("scan answer: %w", err)
		}
		if selected != "" {
			answers[qid] = selected
		}
		if flagged {
			flags[qid] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate answers: %w", err)
	}
	return answers, flags, nil
}

func (s *Service) buildSummaryFromRow(ctx context.Context, row *attemptRow) (*AttemptSummary, error) {
	var answered, flagged int
	if err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE selected IS NOT NULL AND selected <> ''),
			COUNT(*) FILTER (WHERE is_flagged = TRUE)
		FROM attempt_answers
		WHERE attempt_id = $1
	`, row.ID).Scan(&answered, &flagged); err != nil {
		return nil, fmt.Errorf("count answers: %w", err)
	}

	sections, _, err := s.loadSections(ctx, s.db, row.ExamID)
	if err != nil {
		return nil, err
	}
	parts := decodeParts(row.Parts.String)
	norm, err := Normalize(sections, parts)
	if err != nil {
		return nil, err
	}

	summary := &AttemptSummary{
		Attempt: Attempt{
			ID:        row.ID,
			ExamID:    row.ExamID,
			UserID:    row.UserID,
			Parts:     parts,
			Status:    row.Status,
			StartedAt: row.StartedAt,
		},
		TotalQuestions: len(norm.Questions),
		Answered:       answered,
		Flagged:        flagged,
	}
	if row.ExpiresAt.Valid {
		t := row.ExpiresAt.Time
		summary.ExpiresAt = &t
		summary.RemainingSecs = remainingSeconds(row.Status, t)
	}
	if row.SubmittedAt.Valid {
		t := row.SubmittedAt.Time
		summary.SubmittedAt = &t
	}
	if row.Status != "in_progress" && len(row.ResultJSON) > 2 {
		var res ResultSummary
		if err := json.Unmarshal(row.ResultJSON, &res); err == nil {
			summary.TotalScore = res.TotalScore
		}
	}
	return summary, nil
}

func (s *Service) loadAttemptRow(ctx context.Context, q queryable, attemptID string) (*attemptRow, error) {
	return scanAttemptRow(q.QueryRowContext(ctx, `
		SELECT id, exam_id, user_id, parts, status, started_at, expires_at, submitted_at, COALESCE(result_json, '{}'::jsonb)
		FROM attempts
		WHERE id = $1
	`, attemptID))
}

func (s *Service) loadAttemptRowForUpdate(ctx context.Context, tx *sql.Tx, attemptID string) (*attemptRow, error) {
	return scanAttemptRow(tx.QueryRowContext(ctx, `
		SELECT id, exam_id, user_id, parts, status, started_at, expires_at, submitted_at, COALESCE(result_json, '{}'::jsonb)
		FROM attempts
		WHERE id = $1
		FOR UPDATE
	`, attemptID))
}

func scanAttemptRow(row *sql.Row) (*attemptRow, error) {
	r := &attemptRow{}
	err := row.Scan(&r.ID, &r.ExamID, &r.UserID, &r.Parts, &r.Status, &r.StartedAt, &r.ExpiresAt, &r.SubmittedAt, &r.ResultJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	return r, nil
}

func scanAttempt(row *sql.Row) (*Attempt, error) {
	var a Attempt
	var parts sql.NullString
	var expires sql.NullTime
	err := row.Scan(&a.ID, &a.ExamID, &a.UserID, &parts, &a.Status, &a.StartedAt, &expires)
	if err != nil {
		return nil, err
	}
	a.Parts = decodeParts(parts.String)
	if expires.Valid {
		t := expires.Time
		a.ExpiresAt = &t
	}
	return &a, nil
}

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

func remainingSeconds(status string, expiresAt time.Time) int64 {
	if status != "in_progress" {
		return 0
	}
	remaining := time.Until(expiresAt)
	if remaining <= 0 {
		return 0
	}
	return int64(remaining.Seconds())
}

func encodeParts(parts []int) string {
	if len(parts) == 0 {
		return ""
	}
	sorted := append([]int(nil), parts...)
	sort.Ints(sorted)
	ss := make([]string, len(sorted))
	for i, p := range sorted {
		ss[i] = strconv.Itoa(p)
	}
	return strings.Join(ss, ",")
}

func decodeParts(raw string) []int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []int
	for _, s := range strings.Split(raw, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && n >= 1 && n <= 7 {
			out = append(out, n)
		}
	}
	return out
}

func nullIfEmpty(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
