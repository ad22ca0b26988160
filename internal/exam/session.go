package exam

import (
	"github.com/google/uuid"
)

// SessionState is the lifecycle phase of an attempt session.
type SessionState string

const (
	StateLoading    SessionState = "loading"
	StateReady      SessionState = "ready"
	StateActive     SessionState = "active"
	StateSubmitting SessionState = "submitting"
	StateSubmitted  SessionState = "submitted"
)

// Session is the in-memory state of one exam attempt: current position,
// per-question answers and review flags, and the countdown. Reviewing is not
// a separate state, it is the flag-filtered view exposed by Flagged.
//
// A Session is not safe for concurrent use; each attempt is driven by a
// single interaction loop.
type Session struct {
	ID        string
	ExamID    string
	Parts     []int
	Questions []Question
	Groups    []Group

	index     int
	answers   map[string]string
	flags     map[string]bool
	remaining int
	timed     bool
	state     SessionState
}

// NewSession builds a session over an already-normalized question set. The
// set must be sanitized; a session never holds correct answers. A
// timeLimitSec of zero or less means untimed.
func NewSession(examID string, norm *Normalized, parts []int, timeLimitSec int) *Session {
	return &Session{
		ID:        uuid.NewString(),
		ExamID:    examID,
		Parts:     parts,
		Questions: Sanitize(norm.Questions),
		Groups:    norm.Groups,
		answers:   make(map[string]string),
		flags:     make(map[string]bool),
		remaining: max(timeLimitSec, 0),
		timed:     timeLimitSec > 0,
		state:     StateReady,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState { return s.state }

// Begin moves a ready session into the interactive state.
func (s *Session) Begin() {
	if s.state == StateReady {
		s.state = StateActive
	}
}

// Current returns the question at the navigation cursor.
func (s *Session) Current() Question {
	return s.Questions[s.index]
}

// GoTo moves the cursor. Out-of-range targets are clamped, never an error:
// navigation controls are expected to disable themselves at the bounds.
func (s *Session) GoTo(index int) {
	if index < 0 {
		index = 0
	}
	if index > len(s.Questions)-1 {
		index = len(s.Questions) - 1
	}
	s.index = index
}

// Index returns the cursor position.
func (s *Session) Index() int { return s.index }

// SelectAnswer records the chosen option label for a question, overwriting
// any previous choice. The label is trusted from the UI and not checked
// against the question's options here.
func (s *Session) SelectAnswer(questionID, label string) error {
	if !s.editable() {
		return ErrAttemptNotEditable
	}
	s.answers[questionID] = label
	return nil
}

// ToggleFlag flips the review mark on a question, independent of its answer.
func (s *Session) ToggleFlag(questionID string) {
	if s.flags[questionID] {
		delete(s.flags, questionID)
		return
	}
	s.flags[questionID] = true
}

// Flagged returns the questions currently marked for review, in exam order.
func (s *Session) Flagged() []Question {
	out := make([]Question, 0, len(s.flags))
	for _, q := range s.Questions {
		if s.flags[q.ID] {
			out = append(out, q)
		}
	}
	return out
}

// Answer returns the recorded choice for a question, if any.
func (s *Session) Answer(questionID string) (string, bool) {
	v, ok := s.answers[questionID]
	return v, ok
}

// Answered counts questions with a recorded choice.
func (s *Session) Answered() int { return len(s.answers) }

// Remaining returns the countdown value in seconds.
func (s *Session) Remaining() int { return s.remaining }

// Tick advances the countdown by one second, never below zero. When the
// timer reaches zero the session locks further answer edits; submission
// stays an explicit action.
func (s *Session) Tick() int {
	if !s.timed {
		return 0
	}
	if s.remaining > 0 {
		s.remaining--
	}
	return s.remaining
}

// Expired reports whether a timed session has run out.
func (s *Session) Expired() bool {
	return s.timed && s.remaining <= 0
}

func (s *Session) editable() bool {
	if s.state != StateActive && s.state != StateReady {
		return false
	}
	return !s.Expired()
}

// Submit grades the session against the authoritative answer key and moves
// it to the terminal state. If the key is missing entries for the attempted
// questions the session stays interactive so the caller can retry after
// re-fetching the key.
func (s *Session) Submit(key AnswerKey) (ResultSummary, []string, error) {
	if s.state == StateSubmitted {
		return ResultSummary{}, nil, ErrAttemptNotEditable
	}
	s.state = StateSubmitting

	if len(key) == 0 {
		s.state = StateActive
		return ResultSummary{}, nil, ErrSubmitFailed
	}

	listening, reading := 0, 0
	details := make([]DetailedAnswer, 0, len(s.Questions))
	for _, q := range s.Questions {
		correct, ok := key[q.Number]
		if !ok {
			s.state = StateActive
			return ResultSummary{}, nil, ErrSubmitFailed
		}
		selected := s.answers[q.ID]
		right := selected != "" && selected == correct
		if right {
			if ListeningPart(q.Part) {
				listening++
			} else {
				reading++
			}
		}
		details = append(details, DetailedAnswer{
			Number:   q.Number,
			Part:     q.Part,
			Selected: selected,
			Correct:  correct,
			IsRight:  right,
			Flagged:  s.flags[q.ID],
		})
	}

	summary, warnings := Summarize(s.ExamID, s.Parts, listening, reading, details)
	s.state = StateSubmitted
	return summary, warnings, nil
}
