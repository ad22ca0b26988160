package exam

import "errors"

var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrAttemptNotFound    = errors.New("attempt not found")
	ErrAttemptNotEditable = errors.New("attempt is not editable")
	ErrAttemptNotFinal    = errors.New("attempt not final")
	ErrAttemptForbidden   = errors.New("attempt forbidden")
	ErrEmptySelection     = errors.New("selected parts contain no questions")
	ErrBadShape           = errors.New("unrecognized question-set shape")
	ErrSubmitFailed       = errors.New("could not load answer key for submission")
	ErrInvalidInput       = errors.New("invalid input")
)
