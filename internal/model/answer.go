package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Answer is one user's submission for one question. Type mirrors the
// question's type at submission time.
type Answer struct {
	ID         uuid.UUID    `json:"id"`
	UserID     int          `json:"user_id"`
	QuestionID uuid.UUID    `json:"question_id"`
	Type       QuestionType `json:"type"`
	Value      Value        `json:"-"`
	Points     float64      `json:"points"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// SubmitAnswerRequest carries the submitted value, shaped like the
// question's proper answer: string (OP), bool (BO), 1-10 (SC), list of
// option ids (CO, CM).
type SubmitAnswerRequest struct {
	Answer json.RawMessage `json:"answer" binding:"required"`
}

// AnswerView is an answer rendered with its question number and value.
type AnswerView struct {
	Answer
	Number    int `json:"number"`
	Submitted any `json:"answer"`
}
