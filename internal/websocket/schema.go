package websocket

import (
	"encoding/json"

	"github.com/stemsi/quizcheck-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer  Action = "answer"
	ActionApprove Action = "approve"
	ActionPing    Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest creates or replaces the caller's answer to one question.
// Answer is shaped by the question type, as in the REST API.
type AnswerRequest struct {
	Action     Action          `json:"action"`
	QuestionID string          `json:"question_id"`
	Answer     json.RawMessage `json:"answer"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError       Event = "error"
	EventAnswerSaved Event = "answer_saved"
	EventApproved    Event = "approved"
	EventChecked     Event = "checked"
	EventPong        Event = "pong"
)

type AnswerSavedResponse struct {
	Event  Event            `json:"event"`
	Answer model.AnswerView `json:"answer"`
}

// GradeEvent announces an approval or a check result. It is also the
// payload fanned out to every stream of the test.
type GradeEvent struct {
	Event  Event        `json:"event"`
	UserID int          `json:"user_id"`
	Grade  *model.Grade `json:"grade"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
