package exam

import (
	"fmt"
	"sort"
)

// Normalize flattens exam sections into a single numbered question list
// filtered by the selected parts, and rebuilds the display groups for
// shared-context clusters. An empty or nil part selection means "all parts".
//
// Questions inherit the shared media of their section and get a synthetic id
// of the form "<sectionID>-<number>". The returned list is sorted ascending
// by the global question number. Sections from parts 1-2 contribute one
// group per question; sections from parts 3-7 contribute a single group,
// but only when at least one of their questions survived the filter.
func Normalize(sections []Section, parts []int) (*Normalized, error) {
	selected := make(map[int]bool, len(parts))
	for _, p := range parts {
		selected[p] = true
	}
	includeAll := len(selected) == 0

	out := &Normalized{}
	for _, sec := range sections {
		if !includeAll && !selected[sec.Part] {
			continue
		}
		if len(sec.Questions) == 0 {
			// A declared part with no questions contributes nothing.
			continue
		}

		secID := sec.SectionID()
		numbers := make([]int, 0, len(sec.Questions))
		for _, rq := range sec.Questions {
			q := Question{
				ID:        fmt.Sprintf("%s-%d", secID, rq.Number),
				Number:    rq.Number,
				Part:      sec.Part,
				Prompt:    rq.Prompt,
				Options:   rq.Options,
				AudioURL:  sec.AudioURL,
				ImageURLs: sec.ImageURLs,
				Passage:   sec.Passage,
			}
			if sec.Part < 3 {
				q.GroupID = q.ID
			} else {
				q.GroupID = secID
			}
			out.Questions = append(out.Questions, q)
			numbers = append(numbers, rq.Number)
		}

		if sec.Part < 3 {
			for _, n := range numbers {
				out.Groups = append(out.Groups, Group{
					ID:        fmt.Sprintf("%s-%d", secID, n),
					Part:      sec.Part,
					AudioURL:  sec.AudioURL,
					ImageURLs: sec.ImageURLs,
					Questions: []int{n},
				})
			}
		} else {
			sort.Ints(numbers)
			out.Groups = append(out.Groups, Group{
				ID:        secID,
				Part:      sec.Part,
				AudioURL:  sec.AudioURL,
				ImageURLs: sec.ImageURLs,
				Passage:   sec.Passage,
				Questions: numbers,
			})
		}
	}

	if len(out.Questions) == 0 {
		return nil, ErrEmptySelection
	}

	sort.Slice(out.Questions, func(i, j int) bool {
		return out.Questions[i].Number < out.Questions[j].Number
	})
	sort.Slice(out.Groups, func(i, j int) bool {
		return out.Groups[i].Questions[0] < out.Groups[j].Questions[0]
	})

	return out, nil
}

// BuildAnswerKey extracts number→answer from answer-key sections, filtered
// to the same part selection used for the attempt.
func BuildAnswerKey(sections []Section, parts []int) (AnswerKey, error) {
	selected := make(map[int]bool, len(parts))
	for _, p := range parts {
		selected[p] = true
	}
	includeAll := len(selected) == 0

	key := AnswerKey{}
	for _, sec := range sections {
		if !includeAll && !selected[sec.Part] {
			continue
		}
		for _, rq := range sec.Questions {
			if rq.Answer == "" {
				return nil, fmt.Errorf("%w: question %d has no answer", ErrBadShape, rq.Number)
			}
			key[rq.Number] = rq.Answer
		}
	}
	if len(key) == 0 {
		return nil, ErrEmptySelection
	}
	return key, nil
}

// Sanitize strips correct answers from a question slice before it is served
// to a client during an attempt.
func Sanitize(questions []Question) []Question {
	out := make([]Question, len(questions))
	copy(out, questions)
	for i := range out {
		out[i].CorrectAnswer = ""
	}
	return out
}
