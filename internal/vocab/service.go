// Package vocab manages flashcard decks and multiple-choice vocabulary quizzes.
package vocab

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrDeckNotFound = errors.New("deck not found")
	ErrCardNotFound = errors.New("card not found")
	ErrDeckTooSmall = errors.New("deck has too few cards for a quiz")
	ErrEmptyQuiz    = errors.New("no quiz answers submitted")
)

// A quiz question needs the right answer plus three distractors.
const minQuizDeckSize = 4

type Service struct {
	db   *sql.DB
	rand *rand.Rand
}

func NewService(db *sql.DB) *Service {
	return &Service{
		db:   db,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type Deck struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CardCount   int       `json:"card_count"`
	CreatedAt   time.Time `json:"created_at"`
}

type Card struct {
	ID         int64  `json:"id"`
	DeckID     int64  `json:"deck_id"`
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Example    string `json:"example,omitempty"`
}

type QuizQuestion struct {
	CardID  int64    `json:"card_id"`
	Term    string   `json:"term"`
	Choices []string `json:"choices"`
}

type QuizAnswer struct {
	CardID   int64  `json:"card_id"`
	Selected string `json:"selected"`
}

type QuizReport struct {
	DeckID  int64 `json:"deck_id"`
	Total   int   `json:"total"`
	Correct int   `json:"correct"`
}

func (s *Service) ListDecks(ctx context.Context) ([]Deck, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.description,
			(SELECT count(*) FROM vocab_cards c WHERE c.deck_id = d.id) AS card_count,
			d.created_at
		FROM vocab_decks d
		ORDER BY d.title`)
	if err != nil {
		return nil, fmt.Errorf("list decks: %w", err)
	}
	defer rows.Close()

	out := make([]Deck, 0, 16)
	for rows.Next() {
		var d Deck
		if err := rows.Scan(&d.ID, &d.Title, &d.Description, &d.CardCount, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan deck: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Service) CreateDeck(ctx context.Context, title, description string) (Deck, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Deck{}, ErrInvalidInput
	}
	var d Deck
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO vocab_decks (title, description, created_at)
		VALUES ($1, $2, now())
		RETURNING id, title, description, created_at`,
		title, strings.TrimSpace(description),
	).Scan(&d.ID, &d.Title, &d.Description, &d.CreatedAt)
	if err != nil {
		return Deck{}, fmt.Errorf("create deck: %w", err)
	}
	return d, nil
}

func (s *Service) DeleteDeck(ctx context.Context, deckID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vocab_decks WHERE id = $1`, deckID)
	if err != nil {
		return fmt.Errorf("delete deck: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete deck: %w", err)
	}
	if n == 0 {
		return ErrDeckNotFound
	}
	return nil
}

func (s *Service) ListCards(ctx context.Context, deckID int64) ([]Card, error) {
	cards, err := s.loadCards(ctx, deckID)
	if err != nil {
		return nil, err
	}
	if len(cards) == 0 {
		if err := s.deckExists(ctx, deckID); err != nil {
			return nil, err
		}
	}
	return cards, nil
}

func (s *Service) AddCard(ctx context.Context, deckID int64, term, definition, example string) (Card, error) {
	term = strings.TrimSpace(term)
	definition = strings.TrimSpace(definition)
	if term == "" || definition == "" {
		return Card{}, ErrInvalidInput
	}
	if err := s.deckExists(ctx, deckID); err != nil {
		return Card{}, err
	}
	var c Card
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO vocab_cards (deck_id, term, definition, example)
		VALUES ($1, $2, $3, $4)
		RETURNING id, deck_id, term, definition, example`,
		deckID, term, definition, strings.TrimSpace(example),
	).Scan(&c.ID, &c.DeckID, &c.Term, &c.Definition, &c.Example)
	if err != nil {
		return Card{}, fmt.Errorf("add card: %w", err)
	}
	return c, nil
}

func (s *Service) DeleteCard(ctx context.Context, cardID int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM vocab_cards WHERE id = $1`, cardID)
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if n == 0 {
		return ErrCardNotFound
	}
	return nil
}

// Draw picks n random cards from the deck and builds a multiple-choice
// question for each, using definitions from the other cards as distractors.
func (s *Service) Draw(ctx context.Context, deckID int64, n int) ([]QuizQuestion, error) {
	if n <= 0 {
		return nil, ErrInvalidInput
	}
	cards, err := s.loadCards(ctx, deckID)
	if err != nil {
		return nil, err
	}
	if len(cards) < minQuizDeckSize {
		if err := s.deckExists(ctx, deckID); err != nil {
			return nil, err
		}
		return nil, ErrDeckTooSmall
	}
	if n > len(cards) {
		n = len(cards)
	}

	picked := s.rand.Perm(len(cards))[:n]
	out := make([]QuizQuestion, 0, n)
	for _, idx := range picked {
		card := cards[idx]
		out = append(out, QuizQuestion{
			CardID:  card.ID,
			Term:    card.Term,
			Choices: s.buildChoices(cards, idx),
		})
	}
	return out, nil
}

// Grade scores a submitted quiz against the deck's cards.
func (s *Service) Grade(ctx context.Context, deckID int64, answers []QuizAnswer) (QuizReport, error) {
	if len(answers) == 0 {
		return QuizReport{}, ErrEmptyQuiz
	}
	cards, err := s.loadCards(ctx, deckID)
	if err != nil {
		return QuizReport{}, err
	}
	byID := make(map[int64]string, len(cards))
	for _, c := range cards {
		byID[c.ID] = c.Definition
	}

	report := QuizReport{DeckID: deckID, Total: len(answers)}
	for _, a := range answers {
		want, ok := byID[a.CardID]
		if !ok {
			return QuizReport{}, fmt.Errorf("%w: card %d", ErrCardNotFound, a.CardID)
		}
		if strings.EqualFold(strings.TrimSpace(a.Selected), want) {
			report.Correct++
		}
	}
	return report, nil
}

// buildChoices returns the correct definition plus three distractors drawn
// from other cards, shuffled.
func (s *Service) buildChoices(cards []Card, answerIdx int) []string {
	choices := []string{cards[answerIdx].Definition}
	for _, idx := range s.rand.Perm(len(cards)) {
		if len(choices) == 4 {
			break
		}
		if idx == answerIdx {
			continue
		}
		choices = append(choices, cards[idx].Definition)
	}
	s.rand.Shuffle(len(choices), func(i, j int) {
		choices[i], choices[j] = choices[j], choices[i]
	})
	return choices
}

func (s *Service) loadCards(ctx context.Context, deckID int64) ([]Card, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, deck_id, term, definition, example
		FROM vocab_cards
		WHERE deck_id = $1
		ORDER BY term`, deckID)
	if err != nil {
		return nil, fmt.Errorf("load cards: %w", err)
	}
	defer rows.Close()

	out := make([]Card, 0, 32)
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.ID, &c.DeckID, &c.Term, &c.Definition, &c.Example); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Service) deckExists(ctx context.Context, deckID int64) error {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM vocab_decks WHERE id = $1`, deckID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrDeckNotFound
	}
	if err != nil {
		return fmt.Errorf("check deck: %w", err)
	}
	return nil
}
