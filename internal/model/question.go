package model

import (
	"encoding/json"

	"github.com/google/uuid"
)

// QuestionType is the discriminator of the question variant.
type QuestionType string

const (
	QuestionTypeOpen        QuestionType = "OP"
	QuestionTypeBoolean     QuestionType = "BO"
	QuestionTypeScale       QuestionType = "SC"
	QuestionTypeChoiceOne   QuestionType = "CO"
	QuestionTypeChoiceMulti QuestionType = "CM"
)

// IsChoice reports whether the type stores its payload as options.
func (t QuestionType) IsChoice() bool {
	return t == QuestionTypeChoiceOne || t == QuestionTypeChoiceMulti
}

// Scale bounds shared by questions and answers.
const (
	ScaleMin = 1
	ScaleMax = 10
)

// Value is the variant payload shared by a question's proper answer and a
// submitted answer. Exactly the field matching the question type is used.
type Value struct {
	Text    *string     `json:"text,omitempty"`
	Bool    *bool       `json:"bool,omitempty"`
	Scale   *int        `json:"scale,omitempty"`
	Choices []uuid.UUID `json:"choices,omitempty"`
}

// Choice is one selectable option of a choice question.
type Choice struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Name       string    `json:"name"`
	Position   int       `json:"-"`
}

// Question is a typed prompt. Proper holds the correct-answer payload; for
// choice types Proper.Choices references a subset of Options.
type Question struct {
	ID      uuid.UUID    `json:"id"`
	TestID  uuid.UUID    `json:"test_id"`
	Number  int          `json:"number"`
	Content string       `json:"content"`
	Type    QuestionType `json:"type"`
	Options []Choice     `json:"options,omitempty"`
	Proper  Value        `json:"-"`
}

// OneChoice mirrors the stored flag separating ChoiceOne from ChoiceMulti.
func (q *Question) OneChoice() bool {
	return q.Type == QuestionTypeChoiceOne
}

// HasOption reports whether id is one of the question's options.
func (q *Question) HasOption(id uuid.UUID) bool {
	for _, c := range q.Options {
		if c.ID == id {
			return true
		}
	}
	return false
}

// QuestionInput is the type-agnostic authoring input, decoded per type by
// the grading registry.
type QuestionInput struct {
	Number       int
	Content      string
	Type         QuestionType
	Options      []string
	ProperAnswer json.RawMessage
}

// CreateQuestionRequest is the payload for adding a question to a test.
// proper_answer is shaped by type: string|null (OP), bool (BO), 1-10 (SC),
// list of option names (CO, CM).
type CreateQuestionRequest struct {
	Number       int             `json:"number" binding:"required,min=1"`
	Content      string          `json:"content" binding:"required,min=1,max=5000"`
	Type         string          `json:"type" binding:"required,question_type"`
	Options      []string        `json:"options" binding:"omitempty,max=50,dive,required,max=500"`
	ProperAnswer json.RawMessage `json:"proper_answer"`
}

// UpdateQuestionRequest replaces a question's editable fields. The type is
// immutable.
type UpdateQuestionRequest struct {
	Number       int             `json:"number" binding:"required,min=1"`
	Content      string          `json:"content" binding:"required,min=1,max=5000"`
	Options      []string        `json:"options" binding:"omitempty,max=50,dive,required,max=500"`
	ProperAnswer json.RawMessage `json:"proper_answer"`
}

// QuestionView is a question with its proper answer rendered for owners.
type QuestionView struct {
	Question
	ProperAnswer any `json:"proper_answer"`
}

// QuestionForTaker is a question without its proper answer.
type QuestionForTaker struct {
	ID      uuid.UUID    `json:"id"`
	Number  int          `json:"number"`
	Content string       `json:"content"`
	Type    QuestionType `json:"type"`
	Options []Choice     `json:"options,omitempty"`
}
