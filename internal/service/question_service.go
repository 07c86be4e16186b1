package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/quizcheck-backend/internal/grading"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// QuestionService is the question catalog: typed question definitions and
// their proper answers.
type QuestionService struct {
	registry  *grading.Registry
	tests     TestStore
	questions QuestionStore
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(registry *grading.Registry, tests TestStore, questions QuestionStore) *QuestionService {
	return &QuestionService{registry: registry, tests: tests, questions: questions}
}

// Create validates and stores a question in a test. Owner or admin only.
func (s *QuestionService) Create(ctx context.Context, actor Actor, testID uuid.UUID, req model.CreateQuestionRequest) (*model.QuestionView, error) {
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	if err := actor.mustManage(t); err != nil {
		return nil, err
	}

	q, err := s.registry.BuildQuestion(model.QuestionInput{
		Number:       req.Number,
		Content:      req.Content,
		Type:         model.QuestionType(req.Type),
		Options:      req.Options,
		ProperAnswer: req.ProperAnswer,
	})
	if err != nil {
		return nil, err
	}
	q.TestID = testID

	if err := s.questions.Create(ctx, q); err != nil {
		return nil, err
	}
	return s.view(q), nil
}

// Get retrieves a question.
func (s *QuestionService) Get(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	return s.questions.GetByID(ctx, id)
}

// GetByNumber retrieves a question by its number within a test, rendered
// for the actor.
func (s *QuestionService) GetByNumber(ctx context.Context, actor Actor, testID uuid.UUID, number int) (any, error) {
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	q, err := s.questions.GetByNumber(ctx, testID, number)
	if err != nil {
		return nil, err
	}
	return s.render(q, actor.CanManage(t)), nil
}

// ListFor renders a test's questions for the actor: owners and admins see
// proper answers, everyone else does not.
func (s *QuestionService) ListFor(ctx context.Context, actor Actor, testID uuid.UUID) ([]any, error) {
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	questions, err := s.questions.ListByTest(ctx, testID)
	if err != nil {
		return nil, err
	}

	full := actor.CanManage(t)
	out := make([]any, 0, len(questions))
	for i := range questions {
		out = append(out, s.render(&questions[i], full))
	}
	return out, nil
}

// Update replaces number, content and proper answer with the same
// validation as Create. The type is immutable. Options whose name is kept
// are given their previous id before storing, so the repository keeps them
// and their existing selections. Stored answer points
// are left for the next check.
func (s *QuestionService) Update(ctx context.Context, actor Actor, id uuid.UUID, req model.UpdateQuestionRequest) (*model.QuestionView, error) {
	current, err := s.questions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	t, err := s.tests.GetByID(ctx, current.TestID)
	if err != nil {
		return nil, err
	}
	if err := actor.mustManage(t); err != nil {
		return nil, err
	}

	q, err := s.registry.BuildQuestion(model.QuestionInput{
		Number:       req.Number,
		Content:      req.Content,
		Type:         current.Type,
		Options:      req.Options,
		ProperAnswer: req.ProperAnswer,
	})
	if err != nil {
		return nil, err
	}
	q.ID = current.ID
	q.TestID = current.TestID
	keepChoiceIDs(current, q)

	if err := s.questions.Update(ctx, q); err != nil {
		return nil, err
	}
	return s.view(q), nil
}

// Delete removes a question with its options and answers. Owner or admin
// only.
func (s *QuestionService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	q, err := s.questions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	t, err := s.tests.GetByID(ctx, q.TestID)
	if err != nil {
		return err
	}
	if err := actor.mustManage(t); err != nil {
		return err
	}
	return s.questions.Delete(ctx, id)
}

func (s *QuestionService) view(q *model.Question) *model.QuestionView {
	return &model.QuestionView{Question: *q, ProperAnswer: s.registry.RenderProper(q)}
}

func (s *QuestionService) render(q *model.Question, full bool) any {
	if full {
		return s.view(q)
	}
	return model.QuestionForTaker{
		ID:      q.ID,
		Number:  q.Number,
		Content: q.Content,
		Type:    q.Type,
		Options: q.Options,
	}
}

// keepChoiceIDs gives the rebuilt options of next the ids of same-named
// options in prev and remaps the proper links accordingly.
func keepChoiceIDs(prev, next *model.Question) {
	if !next.Type.IsChoice() {
		return
	}
	byName := make(map[string]uuid.UUID, len(prev.Options))
	for _, c := range prev.Options {
		byName[c.Name] = c.ID
	}

	remap := make(map[uuid.UUID]uuid.UUID)
	for i := range next.Options {
		c := &next.Options[i]
		if id, ok := byName[c.Name]; ok {
			remap[c.ID] = id
			c.ID = id
		}
	}
	for i, id := range next.Proper.Choices {
		if kept, ok := remap[id]; ok {
			next.Proper.Choices[i] = kept
		}
	}
}
