package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// The store interfaces below are what the services need from persistence.
// internal/repository implements them over pgx and Redis. Lookups of a
// missing row return an error wrapping model.ErrNotFound.

// TestStore persists tests.
type TestStore interface {
	Create(ctx context.Context, t *model.Test) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error)
	List(ctx context.Context, ownerID *int, limit, offset int) ([]model.Test, int, error)
	Update(ctx context.Context, t *model.Test) error
	// Delete removes the test and everything under it atomically.
	Delete(ctx context.Context, id uuid.UUID) error
}

// QuestionStore persists questions with their options and proper answers.
type QuestionStore interface {
	// Create writes the question, its options and proper links atomically.
	// A number already used in the test wraps model.ErrConflict.
	Create(ctx context.Context, q *model.Question) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
	GetByNumber(ctx context.Context, testID uuid.UUID, number int) (*model.Question, error)
	// ListByTest returns questions ordered by number.
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error)
	Update(ctx context.Context, q *model.Question) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// AnswerStore persists submitted answers, one per (user, question).
type AnswerStore interface {
	// Upsert creates or replaces an answer and resets its points. Returns
	// model.ErrAnswersLocked when the user already approved the test.
	Upsert(ctx context.Context, a *model.Answer) error
	Get(ctx context.Context, userID int, questionID uuid.UUID) (*model.Answer, error)
	Delete(ctx context.Context, userID int, questionID uuid.UUID) error
	// ListByTest returns answers to the test's questions, optionally for
	// one user only.
	ListByTest(ctx context.Context, testID uuid.UUID, userID *int) ([]model.Answer, error)
	UpdatePoints(ctx context.Context, id uuid.UUID, points float64) error
}

// GradeStore persists grade rows, one per (user, test).
type GradeStore interface {
	// Create inserts a zeroed row. A second row for the same pair returns
	// model.ErrAlreadyApproved.
	Create(ctx context.Context, g *model.Grade) error
	Get(ctx context.Context, userID int, testID uuid.UUID) (*model.Grade, error)
	// ListByTest returns grades in approval order.
	ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Grade, error)
	UpdateTotals(ctx context.Context, g *model.Grade) error
	// Ranking returns at most limit entries by points descending, ties in
	// approval order.
	Ranking(ctx context.Context, testID uuid.UUID, limit int) ([]model.RankingEntry, error)
}

// UserStore persists user accounts.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id int) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	SetAdmin(ctx context.Context, id int, isAdmin bool) error
}

// SessionStore keeps the active token id of each user.
type SessionStore interface {
	Save(ctx context.Context, userID int, jti string, ttl time.Duration) error
	// Active returns "" when the user has no session.
	Active(ctx context.Context, userID int) (string, error)
	Revoke(ctx context.Context, userID int) error
}

// ResultsQueue hands result mail jobs to the notification worker.
type ResultsQueue interface {
	Push(ctx context.Context, job model.ResultJob) error
}

// Recorder receives grading events for metrics.
type Recorder interface {
	AnswerScored(t model.QuestionType)
	GradeRecomputed()
	ResultQueued()
}

type nopRecorder struct{}

func (nopRecorder) AnswerScored(model.QuestionType) {}
func (nopRecorder) GradeRecomputed()                {}
func (nopRecorder) ResultQueued()                   {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
