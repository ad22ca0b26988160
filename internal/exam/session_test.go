package exam

import (
	"errors"
	"testing"
)

func sessionFixture(t *testing.T, timeLimitSec int) *Session {
	t.Helper()
	norm, err := Normalize(sampleSections(), nil)
	if err != nil {
		t.Fatalf("normalize fixture: %v", err)
	}
	return NewSession("etest1", norm, nil, timeLimitSec)
}

func fixtureKey(t *testing.T) AnswerKey {
	t.Helper()
	key, err := BuildAnswerKey(sampleSections(), nil)
	if err != nil {
		t.Fatalf("build fixture key: %v", err)
	}
	return key
}

func TestSessionLifecycle(t *testing.T) {
	s := sessionFixture(t, 60)
	if s.State() != StateReady {
		t.Fatalf("new session state = %s, want ready", s.State())
	}
	s.Begin()
	if s.State() != StateActive {
		t.Fatalf("state after Begin = %s, want active", s.State())
	}
	if s.ID == "" {
		t.Fatalf("session id not assigned")
	}
}

func TestSessionNavigationClamps(t *testing.T) {
	s := sessionFixture(t, 0)
	s.Begin()

	s.GoTo(-5)
	if s.Index() != 0 {
		t.Fatalf("negative target should clamp to 0, got %d", s.Index())
	}
	s.GoTo(999)
	if s.Index() != len(s.Questions)-1 {
		t.Fatalf("oversized target should clamp to last, got %d", s.Index())
	}
	s.GoTo(2)
	if s.Current().ID != s.Questions[2].ID {
		t.Fatalf("cursor and Current out of sync")
	}
}

func TestSessionAnswerOverwrite(t *testing.T) {
	s := sessionFixture(t, 0)
	s.Begin()
	qid := s.Questions[0].ID

	if err := s.SelectAnswer(qid, "A"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := s.SelectAnswer(qid, "C"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, ok := s.Answer(qid)
	if !ok || got != "C" {
		t.Fatalf("answer = %q ok=%v, want C", got, ok)
	}
	if s.Answered() != 1 {
		t.Fatalf("overwrite should not add a second answer, count=%d", s.Answered())
	}
}

func TestSessionFlagToggle(t *testing.T) {
	s := sessionFixture(t, 0)
	s.Begin()
	first := s.Questions[0].ID
	last := s.Questions[len(s.Questions)-1].ID

	s.ToggleFlag(last)
	s.ToggleFlag(first)
	flagged := s.Flagged()
	if len(flagged) != 2 {
		t.Fatalf("expected 2 flagged, got %d", len(flagged))
	}
	// Exam order, not toggle order.
	if flagged[0].ID != first || flagged[1].ID != last {
		t.Fatalf("flagged not in exam order: %s, %s", flagged[0].ID, flagged[1].ID)
	}

	s.ToggleFlag(first)
	if len(s.Flagged()) != 1 {
		t.Fatalf("double toggle should clear the flag")
	}
}

func TestSessionTimer(t *testing.T) {
	s := sessionFixture(t, 2)
	s.Begin()

	if s.Tick() != 1 {
		t.Fatalf("first tick should leave 1 second")
	}
	if s.Tick() != 0 {
		t.Fatalf("second tick should reach 0")
	}
	if s.Tick() != 0 {
		t.Fatalf("timer must not go below 0")
	}
	if !s.Expired() {
		t.Fatalf("session should be expired")
	}
	if err := s.SelectAnswer(s.Questions[0].ID, "A"); !errors.Is(err, ErrAttemptNotEditable) {
		t.Fatalf("expired session should lock edits, got %v", err)
	}
}

func TestSessionUntimed(t *testing.T) {
	s := sessionFixture(t, 0)
	s.Begin()
	for i := 0; i < 10; i++ {
		if s.Tick() != 0 {
			t.Fatalf("untimed tick should return 0")
		}
	}
	if s.Expired() {
		t.Fatalf("untimed session must never expire")
	}
}

func TestSessionSubmit(t *testing.T) {
	s := sessionFixture(t, 0)
	s.Begin()

	key := fixtureKey(t)
	// Answer 1 and 7 correctly (listening), 101 correctly (reading), 32 wrong.
	answers := map[string]string{
		"sec1-1":   "B",
		"sec2-7":   "A",
		"sec3-32":  "A",
		"sec4-101": "B",
	}
	for id, label := range answers {
		if err := s.SelectAnswer(id, label); err != nil {
			t.Fatalf("select %s: %v", id, err)
		}
	}
	s.ToggleFlag("sec3-32")

	summary, warnings, err := s.Submit(key)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if s.State() != StateSubmitted {
		t.Fatalf("state after submit = %s", s.State())
	}
	if summary.ListeningCorrect != 2 || summary.ReadingCorrect != 1 {
		t.Fatalf("correct counts = %d/%d, want 2/1", summary.ListeningCorrect, summary.ReadingCorrect)
	}
	if len(summary.DetailedAnswers) != 6 {
		t.Fatalf("expected 6 detailed answers, got %d", len(summary.DetailedAnswers))
	}

	var sawFlagged, sawWrong bool
	for _, d := range summary.DetailedAnswers {
		if d.Number == 32 {
			if d.IsRight {
				t.Fatalf("question 32 graded right with wrong answer")
			}
			sawWrong = true
			if d.Flagged {
				sawFlagged = true
			}
		}
		if d.Number == 2 && d.Selected != "" {
			t.Fatalf("unanswered question should have empty selection")
		}
	}
	if !sawWrong || !sawFlagged {
		t.Fatalf("detailed answers missing wrong/flagged record for 32")
	}

	if _, _, err := s.Submit(key); !errors.Is(err, ErrAttemptNotEditable) {
		t.Fatalf("resubmit should fail, got %v", err)
	}
}

func TestSessionSubmitRetryAfterBadKey(t *testing.T) {
	s := sessionFixture(t, 0)
	s.Begin()
	qid := s.Questions[0].ID
	if err := s.SelectAnswer(qid, "B"); err != nil {
		t.Fatalf("select: %v", err)
	}

	if _, _, err := s.Submit(AnswerKey{}); !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("empty key should fail submit, got %v", err)
	}
	if s.State() != StateActive {
		t.Fatalf("failed submit should return to active, got %s", s.State())
	}
	if got, ok := s.Answer(qid); !ok || got != "B" {
		t.Fatalf("answers lost across failed submit")
	}

	// Incomplete key: missing entries for attempted questions.
	if _, _, err := s.Submit(AnswerKey{1: "B"}); !errors.Is(err, ErrSubmitFailed) {
		t.Fatalf("incomplete key should fail submit, got %v", err)
	}

	summary, _, err := s.Submit(fixtureKey(t))
	if err != nil {
		t.Fatalf("retry with full key: %v", err)
	}
	if summary.ListeningCorrect != 1 {
		t.Fatalf("retry lost the recorded answer, listening=%d", summary.ListeningCorrect)
	}
}
