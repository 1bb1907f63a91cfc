package domain

import (
	"fmt"
	"strings"
)

// Answer is the value a participant gives to one question.
// Exactly one of ChoiceAnswer or TextAnswer, depending on the question type.
type Answer interface {
	isAnswer()
	// Payload returns the wire fields: selected option or free text, never both.
	Payload() (selectedOptionID *int64, answerText *string)
}

// ChoiceAnswer selects one option of an MCQ question.
type ChoiceAnswer struct {
	OptionID int64 `json:"optionId"`
}

// TextAnswer is a free-text answer to a descriptive question.
type TextAnswer struct {
	Text string `json:"text"`
}

func (ChoiceAnswer) isAnswer() {}
func (TextAnswer) isAnswer()   {}

func (a ChoiceAnswer) Payload() (*int64, *string) {
	id := a.OptionID
	return &id, nil
}

func (a TextAnswer) Payload() (*int64, *string) {
	text := a.Text
	return nil, &text
}

// ValidateAnswer checks that the answer variant fits the question's declared type.
func ValidateAnswer(q Question, a Answer) error {
	switch v := a.(type) {
	case ChoiceAnswer:
		if q.Type != QuestionMCQ {
			return fmt.Errorf("%w: question %d expects text", ErrInvalidAnswer, q.ID)
		}
		if _, ok := q.Option(v.OptionID); !ok {
			return fmt.Errorf("%w: option %d on question %d", ErrOptionNotFound, v.OptionID, q.ID)
		}
		return nil
	case TextAnswer:
		if q.Type != QuestionDescriptive {
			return fmt.Errorf("%w: question %d expects an option", ErrInvalidAnswer, q.ID)
		}
		return nil
	case nil:
		return fmt.Errorf("%w: empty answer", ErrInvalidAnswer)
	default:
		return fmt.Errorf("%w: unsupported answer %T", ErrInvalidAnswer, a)
	}
}

// AnswerFromSubmitted rebuilds the tagged answer of a stored row.
// Rows with neither field set (or a blank text) carry no answer.
func AnswerFromSubmitted(sa SubmittedAnswer) (Answer, bool) {
	if sa.SelectedOptionID != nil {
		return ChoiceAnswer{OptionID: *sa.SelectedOptionID}, true
	}
	if sa.AnswerText != nil && strings.TrimSpace(*sa.AnswerText) != "" {
		return TextAnswer{Text: *sa.AnswerText}, true
	}
	return nil, false
}

// SameAnswer reports whether two answers carry the same value.
func SameAnswer(a, b Answer) bool {
	switch av := a.(type) {
	case ChoiceAnswer:
		bv, ok := b.(ChoiceAnswer)
		return ok && av.OptionID == bv.OptionID
	case TextAnswer:
		bv, ok := b.(TextAnswer)
		return ok && av.Text == bv.Text
	}
	return a == nil && b == nil
}

// AnswerRecord is the serializable form of an Answer, used by journals.
type AnswerRecord struct {
	QuestionID       int64   `json:"question_id"`
	SelectedOptionID *int64  `json:"selected_option_id,omitempty"`
	AnswerText       *string `json:"answer_text,omitempty"`
}

// NewAnswerRecord flattens an answer for storage.
func NewAnswerRecord(questionID int64, a Answer) AnswerRecord {
	opt, text := a.Payload()
	return AnswerRecord{QuestionID: questionID, SelectedOptionID: opt, AnswerText: text}
}

// Answer restores the tagged answer.
func (r AnswerRecord) Answer() (Answer, bool) {
	if r.SelectedOptionID != nil {
		return ChoiceAnswer{OptionID: *r.SelectedOptionID}, true
	}
	if r.AnswerText != nil {
		return TextAnswer{Text: *r.AnswerText}, true
	}
	return nil, false
}
