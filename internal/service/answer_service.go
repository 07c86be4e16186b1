package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/stemsi/quizcheck-backend/internal/grading"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// AnswerService is the answer store: one typed answer per (user,
// question), writable until the user approves the test.
type AnswerService struct {
	registry  *grading.Registry
	tests     TestStore
	questions QuestionStore
	answers   AnswerStore
	grades    GradeStore
}

// NewAnswerService creates a new AnswerService.
func NewAnswerService(registry *grading.Registry, tests TestStore, questions QuestionStore, answers AnswerStore, grades GradeStore) *AnswerService {
	return &AnswerService{
		registry:  registry,
		tests:     tests,
		questions: questions,
		answers:   answers,
		grades:    grades,
	}
}

// Submit creates or replaces the user's answer to a question. The raw
// value must match the question type.
func (s *AnswerService) Submit(ctx context.Context, userID int, questionID uuid.UUID, raw json.RawMessage) (*model.AnswerView, error) {
	q, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnlocked(ctx, userID, q.TestID); err != nil {
		return nil, err
	}

	v, err := s.registry.DecodeAnswer(q, raw)
	if err != nil {
		return nil, err
	}
	a := &model.Answer{
		UserID:     userID,
		QuestionID: q.ID,
		Type:       q.Type,
		Value:      v,
	}
	if err := s.answers.Upsert(ctx, a); err != nil {
		return nil, err
	}
	return &model.AnswerView{Answer: *a, Number: q.Number, Submitted: s.registry.RenderAnswer(q, a)}, nil
}

// Get returns the user's own answer to a question.
func (s *AnswerService) Get(ctx context.Context, userID int, questionID uuid.UUID) (*model.AnswerView, error) {
	q, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return nil, err
	}
	a, err := s.answers.Get(ctx, userID, questionID)
	if err != nil {
		return nil, err
	}
	return &model.AnswerView{Answer: *a, Number: q.Number, Submitted: s.registry.RenderAnswer(q, a)}, nil
}

// Delete removes the user's answer to a question.
func (s *AnswerService) Delete(ctx context.Context, userID int, questionID uuid.UUID) error {
	q, err := s.questions.GetByID(ctx, questionID)
	if err != nil {
		return err
	}
	if err := s.ensureUnlocked(ctx, userID, q.TestID); err != nil {
		return err
	}
	return s.answers.Delete(ctx, userID, questionID)
}

// ListMine returns the user's own answers in a test.
func (s *AnswerService) ListMine(ctx context.Context, userID int, testID uuid.UUID) ([]model.AnswerView, error) {
	if _, err := s.tests.GetByID(ctx, testID); err != nil {
		return nil, err
	}
	return s.views(ctx, testID, &userID, nil)
}

// ListForTest returns all answers in a test, optionally for one user.
// Owner or admin only.
func (s *AnswerService) ListForTest(ctx context.Context, actor Actor, testID uuid.UUID, userID *int) ([]model.AnswerView, error) {
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	if err := actor.mustManage(t); err != nil {
		return nil, err
	}
	return s.views(ctx, testID, userID, nil)
}

// ListForQuestion returns every answer to the question with the given
// number. Owner or admin only.
func (s *AnswerService) ListForQuestion(ctx context.Context, actor Actor, testID uuid.UUID, number int) ([]model.AnswerView, error) {
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	if err := actor.mustManage(t); err != nil {
		return nil, err
	}
	q, err := s.questions.GetByNumber(ctx, testID, number)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, testID, nil, &q.ID)
}

func (s *AnswerService) ensureUnlocked(ctx context.Context, userID int, testID uuid.UUID) error {
	_, err := s.grades.Get(ctx, userID, testID)
	switch {
	case err == nil:
		return model.ErrAnswersLocked
	case errors.Is(err, model.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *AnswerService) views(ctx context.Context, testID uuid.UUID, userID *int, questionID *uuid.UUID) ([]model.AnswerView, error) {
	questions, err := s.questions.ListByTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers.ListByTest(ctx, testID, userID)
	if err != nil {
		return nil, err
	}
	if questionID != nil {
		filtered := answers[:0]
		for _, a := range answers {
			if a.QuestionID == *questionID {
				filtered = append(filtered, a)
			}
		}
		answers = filtered
	}
	return answerViews(s.registry, questions, answers), nil
}

// answerViews renders answers with their question numbers. Answers whose
// question is not in the list are skipped.
func answerViews(registry *grading.Registry, questions []model.Question, answers []model.Answer) []model.AnswerView {
	byID := indexQuestions(questions)
	views := make([]model.AnswerView, 0, len(answers))
	for i := range answers {
		a := &answers[i]
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		views = append(views, model.AnswerView{
			Answer:    *a,
			Number:    q.Number,
			Submitted: registry.RenderAnswer(q, a),
		})
	}
	return views
}

func indexQuestions(questions []model.Question) map[uuid.UUID]*model.Question {
	byID := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}
	return byID
}
