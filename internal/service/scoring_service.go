package service

import (
	"context"
	"fmt"

	"github.com/stemsi/quizcheck-backend/internal/grading"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// ScoringService applies the grading rules to stored answers.
type ScoringService struct {
	registry *grading.Registry
	answers  AnswerStore
	recorder Recorder
}

// NewScoringService creates a new ScoringService. recorder may be nil.
func NewScoringService(registry *grading.Registry, answers AnswerStore, recorder Recorder) *ScoringService {
	return &ScoringService{registry: registry, answers: answers, recorder: recorderOrNop(recorder)}
}

// CheckAndPersist scores a and writes the points back. Running it twice on
// unchanged data stores the same value.
func (s *ScoringService) CheckAndPersist(ctx context.Context, q *model.Question, a *model.Answer) (float64, error) {
	points, err := s.registry.Score(q, a)
	if err != nil {
		return 0, err
	}
	if err := s.answers.UpdatePoints(ctx, a.ID, points); err != nil {
		return 0, fmt.Errorf("store points of answer %s: %w", a.ID, err)
	}
	a.Points = points
	s.recorder.AnswerScored(q.Type)
	return points, nil
}
