package exam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Section is one block of an exam as stored/served: a part number, shared
// media for its questions (audio clip, images, reading passage) and the raw
// questions themselves. Upstream payloads are inconsistent about the id
// field, so both spellings are accepted and collapsed into SectionID at
// decode time.
type Section struct {
	MongoID   string        `json:"_id,omitempty"`
	AltID     string        `json:"id,omitempty"`
	Part      int           `json:"part"`
	AudioURL  string        `json:"audio_url,omitempty"`
	ImageURLs []string      `json:"image_urls,omitempty"`
	Passage   string        `json:"passage,omitempty"`
	Questions []RawQuestion `json:"questions"`
}

// SectionID returns the canonical identifier for a section.
func (s Section) SectionID() string {
	if v := strings.TrimSpace(s.MongoID); v != "" {
		return v
	}
	return strings.TrimSpace(s.AltID)
}

// RawQuestion is a question as it arrives inside a section, before
// normalization attaches the section's shared context.
type RawQuestion struct {
	Number  int      `json:"number"`
	Prompt  string   `json:"prompt,omitempty"`
	Options []string `json:"options"`
	Answer  string   `json:"answer,omitempty"`
}

// Question is the normalized, display-ready form. CorrectAnswer stays empty
// on everything served during an attempt; it is only populated from the
// answer-key fetch at submit time.
type Question struct {
	ID            string   `json:"id"`
	Number        int      `json:"number"`
	Part          int      `json:"part"`
	GroupID       string   `json:"group_id"`
	Prompt        string   `json:"prompt,omitempty"`
	Options       []string `json:"options"`
	AudioURL      string   `json:"audio_url,omitempty"`
	ImageURLs     []string `json:"image_urls,omitempty"`
	Passage       string   `json:"passage,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"`
}

// Group is a cluster of questions sharing a passage, image set or audio
// clip. Parts 1-2 always produce singleton groups; parts 3-7 share one group
// per section.
type Group struct {
	ID        string   `json:"id"`
	Part      int      `json:"part"`
	AudioURL  string   `json:"audio_url,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
	Passage   string   `json:"passage,omitempty"`
	Questions []int    `json:"questions"` // global question numbers, ascending
}

// Normalized is the output of the normalizer: the flat ordered question list
// plus the display groups rebuilt from surviving sections.
type Normalized struct {
	Questions []Question `json:"questions"`
	Groups    []Group    `json:"groups"`
}

// AnswerKey maps global question number to the correct option label.
type AnswerKey map[int]string

// OptionLabel returns the conventional A/B/C/D label for an option position.
func OptionLabel(i int) string {
	return string(rune('A' + i))
}

// DetailedAnswer is one per-question record in a result, for the review UI.
type DetailedAnswer struct {
	Number   int    `json:"number"`
	Part     int    `json:"part"`
	Selected string `json:"selected,omitempty"`
	Correct  string `json:"correct"`
	IsRight  bool   `json:"is_right"`
	Flagged  bool   `json:"flagged,omitempty"`
}

// ResultSummary is the scored outcome of an attempt.
type ResultSummary struct {
	ExamID           string           `json:"exam_id"`
	Parts            []int            `json:"parts,omitempty"`
	ListeningCorrect int              `json:"listening_correct"`
	ReadingCorrect   int              `json:"reading_correct"`
	ListeningScore   int              `json:"listening_score"`
	ReadingScore     int              `json:"reading_score"`
	TotalScore       int              `json:"total_score"`
	DetailedAnswers  []DetailedAnswer `json:"detailed_answers,omitempty"`
	SubmittedAt      time.Time        `json:"submitted_at"`
}

// ResultKey builds the storage key a submitted summary is persisted under,
// matching what the results view reads back after a refresh.
func ResultKey(examID string) string {
	return fmt.Sprintf("toeic_result_%s", examID)
}

// ListeningPart reports whether a part number belongs to the listening
// skill. Parts 1-4 are listening, 5-7 reading.
func ListeningPart(part int) bool {
	return part >= 1 && part <= 4
}

// DecodeSections decodes a question-set payload into sections. The payload
// must be a JSON array of section objects; anything else fails with
// ErrBadShape rather than being probed for alternative shapes.
func DecodeSections(raw []byte) ([]Section, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrBadShape
	}
	var sections []Section
	if err := json.Unmarshal(trimmed, &sections); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadShape, err)
	}
	for i := range sections {
		if sections[i].SectionID() == "" {
			return nil, fmt.Errorf("%w: section %d has no id", ErrBadShape, i)
		}
		if sections[i].Part < 1 || sections[i].Part > 7 {
			return nil, fmt.Errorf("%w: section %q has part %d", ErrBadShape, sections[i].SectionID(), sections[i].Part)
		}
	}
	return sections, nil
}
