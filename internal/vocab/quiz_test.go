package vocab

import (
	"math/rand"
	"testing"
)

func quizService() *Service {
	return &Service{rand: rand.New(rand.NewSource(1))}
}

func quizCards() []Card {
	return []Card{
		{ID: 1, DeckID: 1, Term: "invoice", Definition: "a bill for goods or services"},
		{ID: 2, DeckID: 1, Term: "itinerary", Definition: "a planned route of a journey"},
		{ID: 3, DeckID: 1, Term: "warranty", Definition: "a written repair guarantee"},
		{ID: 4, DeckID: 1, Term: "merger", Definition: "a combination of two companies"},
		{ID: 5, DeckID: 1, Term: "quota", Definition: "a fixed share or limit"},
	}
}

func TestBuildChoicesContainsAnswer(t *testing.T) {
	s := quizService()
	cards := quizCards()

	for answerIdx := range cards {
		choices := s.buildChoices(cards, answerIdx)
		if len(choices) != 4 {
			t.Fatalf("expected 4 choices, got %d", len(choices))
		}
		found := false
		seen := map[string]bool{}
		for _, c := range choices {
			if seen[c] {
				t.Fatalf("duplicate choice %q", c)
			}
			seen[c] = true
			if c == cards[answerIdx].Definition {
				found = true
			}
		}
		if !found {
			t.Fatalf("correct definition missing from choices for %q", cards[answerIdx].Term)
		}
	}
}

func TestBuildChoicesSmallDeck(t *testing.T) {
	s := quizService()
	cards := quizCards()[:4]

	choices := s.buildChoices(cards, 0)
	if len(choices) != 4 {
		t.Fatalf("a 4-card deck should still fill 4 choices, got %d", len(choices))
	}
}

func TestBuildChoicesShuffles(t *testing.T) {
	s := quizService()
	cards := quizCards()

	// With enough draws the answer must not always land in slot 0.
	answerAlwaysFirst := true
	for i := 0; i < 20; i++ {
		choices := s.buildChoices(cards, 2)
		if choices[0] != cards[2].Definition {
			answerAlwaysFirst = false
			break
		}
	}
	if answerAlwaysFirst {
		t.Fatalf("choices do not appear shuffled")
	}
}
