// Package schedule manages class sessions and capacity-bounded makeup slots.
package schedule

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
	ErrSessionNotFound = errors.New("class session not found")
	ErrSlotNotFound    = errors.New("makeup slot not found")
	ErrSlotFull        = errors.New("makeup slot is full")
	ErrAlreadyBooked   = errors.New("slot already booked")
	ErrBookingNotFound = errors.New("booking not found")
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

type ClassSession struct {
	ID       int64     `json:"id"`
	CourseID int64     `json:"course_id"`
	Topic    string    `json:"topic"`
	Location string    `json:"location"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

type MakeupSlot struct {
	ID       int64     `json:"id"`
	CourseID int64     `json:"course_id"`
	Topic    string    `json:"topic"`
	StartsAt time.Time `json:"starts_at"`
	Capacity int       `json:"capacity"`
	Booked   int       `json:"booked"`
}

type Booking struct {
	ID       int64     `json:"id"`
	SlotID   int64     `json:"slot_id"`
	UserID   int64     `json:"user_id"`
	Topic    string    `json:"topic"`
	StartsAt time.Time `json:"starts_at"`
	BookedAt time.Time `json:"booked_at"`
}

type UpsertSessionInput struct {
	CourseID int64
	Topic    string
	Location string
	StartsAt time.Time
	EndsAt   time.Time
}

type CreateSlotInput struct {
	CourseID int64
	Topic    string
	StartsAt time.Time
	Capacity int
}

func (s *Service) ListSessions(ctx context.Context, courseID int64) ([]ClassSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, topic, location, starts_at, ends_at
		FROM class_sessions
		WHERE course_id = $1
		ORDER BY starts_at`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list class sessions: %w", err)
	}
	defer rows.Close()

	out := make([]ClassSession, 0, 16)
	for rows.Next() {
		var cs ClassSession
		if err := rows.Scan(&cs.ID, &cs.CourseID, &cs.Topic, &cs.Location, &cs.StartsAt, &cs.EndsAt); err != nil {
			return nil, fmt.Errorf("scan class session: %w", err)
		}
		out = append(out, cs)
	}
	return out, rows.Err()
}

func (s *Service) CreateSession(ctx context.Context, in UpsertSessionInput) (ClassSession, error) {
	if err := validateSession(in); err != nil {
		return ClassSession{}, err
	}
	var cs ClassSession
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO class_sessions (course_id, topic, location, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, course_id, topic, location, starts_at, ends_at`,
		in.CourseID, strings.TrimSpace(in.Topic), strings.TrimSpace(in.Location), in.StartsAt, in.EndsAt,
	).Scan(&cs.ID, &cs.CourseID, &cs.Topic, &cs.Location, &cs.StartsAt, &cs.EndsAt)
	if err != nil {
		return ClassSession{}, fmt.Errorf("create class session: %w", err)
	}
	return cs, nil
}

func (s *Service) DeleteSession(ctx context.Context, sessionID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM class_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete class session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete class session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *Service) ListSlots(ctx context.Context, courseID int64) ([]MakeupSlot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.course_id, s.topic, s.starts_at, s.capacity,
			(SELECT count(*) FROM makeup_bookings b WHERE b.slot_id = s.id) AS booked
		FROM makeup_slots s
		WHERE s.course_id = $1
		ORDER BY s.starts_at`, courseID)
	if err != nil {
		return nil, fmt.Errorf("list makeup slots: %w", err)
	}
	defer rows.Close()

	out := make([]MakeupSlot, 0, 8)
	for rows.Next() {
		var ms MakeupSlot
		if err := rows.Scan(&ms.ID, &ms.CourseID, &ms.Topic, &ms.StartsAt, &ms.Capacity, &ms.Booked); err != nil {
			return nil, fmt.Errorf("scan makeup slot: %w", err)
		}
		out = append(out, ms)
	}
	return out, rows.Err()
}

func (s *Service) CreateSlot(ctx context.Context, in CreateSlotInput) (MakeupSlot, error) {
	if in.CourseID <= 0 || strings.TrimSpace(in.Topic) == "" || in.Capacity <= 0 || in.StartsAt.IsZero() {
		return MakeupSlot{}, ErrInvalidInput
	}
	var ms MakeupSlot
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO makeup_slots (course_id, topic, starts_at, capacity)
		VALUES ($1, $2, $3, $4)
		RETURNING id, course_id, topic, starts_at, capacity`,
		in.CourseID, strings.TrimSpace(in.Topic), in.StartsAt, in.Capacity,
	).Scan(&ms.ID, &ms.CourseID, &ms.Topic, &ms.StartsAt, &ms.Capacity)
	if err != nil {
		return MakeupSlot{}, fmt.Errorf("create makeup slot: %w", err)
	}
	return ms, nil
}

// BookSlot reserves a seat in a makeup slot. The slot row is locked for the
// duration of the transaction so the capacity check and insert are atomic.
func (s *Service) BookSlot(ctx context.Context, slotID, userID int64) (Booking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Booking{}, fmt.Errorf("book slot: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		capacity int
		topic    string
		startsAt time.Time
	)
	err = tx.QueryRowContext(ctx, `
		SELECT capacity, topic, starts_at
		FROM makeup_slots
		WHERE id = $1
		FOR UPDATE`, slotID).Scan(&capacity, &topic, &startsAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrSlotNotFound
	}
	if err != nil {
		return Booking{}, fmt.Errorf("book slot: load slot: %w", err)
	}

	var booked int
	if err := tx.QueryRowContext(ctx, `
		SELECT count(*) FROM makeup_bookings WHERE slot_id = $1`, slotID).Scan(&booked); err != nil {
		return Booking{}, fmt.Errorf("book slot: count bookings: %w", err)
	}
	if booked >= capacity {
		return Booking{}, ErrSlotFull
	}

	var b Booking
	err = tx.QueryRowContext(ctx, `
		INSERT INTO makeup_bookings (slot_id, user_id, booked_at)
		VALUES ($1, $2, now())
		ON CONFLICT (slot_id, user_id) DO NOTHING
		RETURNING id, slot_id, user_id, booked_at`,
		slotID, userID,
	).Scan(&b.ID, &b.SlotID, &b.UserID, &b.BookedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Booking{}, ErrAlreadyBooked
	}
	if err != nil {
		return Booking{}, fmt.Errorf("book slot: insert booking: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Booking{}, fmt.Errorf("book slot: commit: %w", err)
	}
	b.Topic = topic
	b.StartsAt = startsAt
	return b, nil
}

func (s *Service) CancelBooking(ctx context.Context, slotID, userID int64) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM makeup_bookings WHERE slot_id = $1 AND user_id = $2`, slotID, userID)
	if err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}
	if n == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (s *Service) MyBookings(ctx context.Context, userID int64) ([]Booking, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.slot_id, b.user_id, s.topic, s.starts_at, b.booked_at
		FROM makeup_bookings b
		JOIN makeup_slots s ON s.id = b.slot_id
		WHERE b.user_id = $1
		ORDER BY s.starts_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	out := make([]Booking, 0, 4)
	for rows.Next() {
		var b Booking
		if err := rows.Scan(&b.ID, &b.SlotID, &b.UserID, &b.Topic, &b.StartsAt, &b.BookedAt); err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func validateSession(in UpsertSessionInput) error {
	if in.CourseID <= 0 || strings.TrimSpace(in.Topic) == "" {
		return ErrInvalidInput
	}
	if in.StartsAt.IsZero() || in.EndsAt.IsZero() || !in.EndsAt.After(in.StartsAt) {
		return ErrInvalidInput
	}
	return nil
}
