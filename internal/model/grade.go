package model

import (
	"time"

	"github.com/google/uuid"
)

// GradeState is the per-(user, test) lifecycle state.
type GradeState string

const (
	GradeStateNotStarted GradeState = "NOT_STARTED"
	GradeStateApproved   GradeState = "APPROVED"
	GradeStateChecked    GradeState = "CHECKED"
)

// Grade aggregates a user's points across one test.
type Grade struct {
	ID        uuid.UUID  `json:"id"`
	UserID    int        `json:"user_id"`
	TestID    uuid.UUID  `json:"test_id"`
	Points    float64    `json:"points"`
	Grade     float64    `json:"grade"`
	CheckedAt *time.Time `json:"checked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	Seq       int64      `json:"-"`
}

// State derives the lifecycle state from the stored row.
func (g *Grade) State() GradeState {
	if g == nil {
		return GradeStateNotStarted
	}
	if g.CheckedAt != nil {
		return GradeStateChecked
	}
	return GradeStateApproved
}

// RankingEntry is one row of a test ranking.
type RankingEntry struct {
	UserID   int     `json:"user_id"`
	Username string  `json:"username"`
	Points   float64 `json:"points"`
}

// CheckRequest optionally narrows a check run to one user.
type CheckRequest struct {
	UserID *int `json:"user_id" binding:"omitempty,min=1"`
}

// SendResultsRequest selects whose results are mailed.
type SendResultsRequest struct {
	UserID int `json:"user_id" binding:"required,min=1"`
}

// ResultView is the read-only projection handed to the notification side.
type ResultView struct {
	User    User         `json:"user"`
	Test    Test         `json:"test"`
	Grade   *Grade       `json:"grade,omitempty"`
	Answers []AnswerView `json:"answers"`
}

// ResultJob is one queued result mail.
type ResultJob struct {
	TestID   uuid.UUID `json:"test_id"`
	UserID   int       `json:"user_id"`
	Attempts int       `json:"attempts,omitempty"`
}
