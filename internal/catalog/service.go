package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrCourseNotFound  = errors.New("course not found")
	ErrAlreadyEnrolled = errors.New("already enrolled")
	ErrNotEnrolled     = errors.New("not enrolled")
)

// Service manages the course catalog and student enrollments.
type Service struct {
	db *sql.DB
}

type Course struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

type UpsertCourseInput struct {
	Code        string
	Title       string
	Description string
	PriceCents  int64
	IsActive    *bool
}

type Enrollment struct {
	ID         int64     `json:"id"`
	CourseID   int64     `json:"course_id"`
	CourseCode string    `json:"course_code"`
	Title      string    `json:"title"`
	UserID     int64     `json:"user_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) ListCourses(ctx context.Context, includeInactive bool) ([]Course, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, title, COALESCE(description, ''), price_cents, is_active, created_at
		FROM courses
		WHERE is_active = TRUE OR $1
		ORDER BY created_at DESC
	`, includeInactive)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	out := make([]Course, 0)
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.Code, &c.Title, &c.Description, &c.PriceCents, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return out, nil
}

func (s *Service) GetCourse(ctx context.Context, courseID int64) (*Course, error) {
	var c Course
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, title, COALESCE(description, ''), price_cents, is_active, created_at
		FROM courses
		WHERE id = $1
	`, courseID).Scan(&c.ID, &c.Code, &c.Title, &c.Description, &c.PriceCents, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load course: %w", err)
	}
	return &c, nil
}

func (s *Service) CreateCourse(ctx context.Context, in UpsertCourseInput) (*Course, error) {
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.Title) == "" || in.PriceCents < 0 {
		return nil, ErrInvalidInput
	}
	var c Course
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO courses (code, title, description, price_cents, is_active, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, TRUE, now())
		RETURNING id, code, title, COALESCE(description, ''), price_cents, is_active, created_at
	`, strings.TrimSpace(in.Code), strings.TrimSpace(in.Title), strings.TrimSpace(in.Description), in.PriceCents).
		Scan(&c.ID, &c.Code, &c.Title, &c.Description, &c.PriceCents, &c.IsActive, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert course: %w", err)
	}
	return &c, nil
}

func (s *Service) UpdateCourse(ctx context.Context, courseID int64, in UpsertCourseInput) (*Course, error) {
	if courseID <= 0 || strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.Title) == "" || in.PriceCents < 0 {
		return nil, ErrInvalidInput
	}
	isActive := true
	if in.IsActive != nil {
		isActive = *in.IsActive
	}
	var c Course
	err := s.db.QueryRowContext(ctx, `
		UPDATE courses
		SET code = $2, title = $3, description = NULLIF($4, ''), price_cents = $5, is_active = $6
		WHERE id = $1
		RETURNING id, code, title, COALESCE(description, ''), price_cents, is_active, created_at
	`, courseID, strings.TrimSpace(in.Code), strings.TrimSpace(in.Title), strings.TrimSpace(in.Description), in.PriceCents, isActive).
		Scan(&c.ID, &c.Code, &c.Title, &c.Description, &c.PriceCents, &c.IsActive, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update course: %w", err)
	}
	return &c, nil
}

// Enroll registers a user on an active course. Payment settlement happens
// out of band; enrollment records the purchase intent.
func (s *Service) Enroll(ctx context.Context, courseID, userID int64) (*Enrollment, error) {
	course, err := s.GetCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if !course.IsActive {
		return nil, ErrCourseNotFound
	}

	var e Enrollment
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO enrollments (course_id, user_id, enrolled_at)
		VALUES ($1, $2, now())
		ON CONFLICT (course_id, user_id) DO NOTHING
		RETURNING id, course_id, user_id, enrolled_at
	`, courseID, userID).Scan(&e.ID, &e.CourseID, &e.UserID, &e.EnrolledAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlreadyEnrolled
	}
	if err != nil {
		return nil, fmt.Errorf("insert enrollment: %w", err)
	}
	e.CourseCode = course.Code
	e.Title = course.Title
	return &e, nil
}

func (s *Service) Unenroll(ctx context.Context, courseID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM enrollments WHERE course_id = $1 AND user_id = $2
	`, courseID, userID)
	if err != nil {
		return fmt.Errorf("delete enrollment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotEnrolled
	}
	return nil
}

func (s *Service) ListEnrollments(ctx context.Context, userID int64) ([]Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.course_id, c.code, c.title, e.user_id, e.enrolled_at
		FROM enrollments e
		JOIN courses c ON c.id = e.course_id
		WHERE e.user_id = $1
		ORDER BY e.enrolled_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query enrollments: %w", err)
	}
	defer rows.Close()

	out := make([]Enrollment, 0)
	for rows.Next() {
		var e Enrollment
		if err := rows.Scan(&e.ID, &e.CourseID, &e.CourseCode, &e.Title, &e.UserID, &e.EnrolledAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate enrollments: %w", err)
	}
	return out, nil
}
