package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizcheck-backend/internal/grading"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// Ranking limits.
const (
	DefaultRankingLimit = 10
	MaxRankingLimit     = 100
)

// GradeService is the grade aggregator: approval, checking, recomputation,
// ranking and result hand-off.
type GradeService struct {
	registry  *grading.Registry
	tests     TestStore
	questions QuestionStore
	answers   AnswerStore
	grades    GradeStore
	users     UserStore
	scoring   *ScoringService
	queue     ResultsQueue
	recorder  Recorder
	log       zerolog.Logger

	rankingDefault int
	now            func() time.Time
}

// GradeServiceDeps groups the collaborators of GradeService.
type GradeServiceDeps struct {
	Registry  *grading.Registry
	Tests     TestStore
	Questions QuestionStore
	Answers   AnswerStore
	Grades    GradeStore
	Users     UserStore
	Scoring   *ScoringService
	Queue     ResultsQueue
	Recorder  Recorder
	// RankingDefault applies when a ranking is requested without a limit.
	RankingDefault int
}

// NewGradeService creates a new GradeService.
func NewGradeService(deps GradeServiceDeps, log zerolog.Logger) *GradeService {
	rankingDefault := deps.RankingDefault
	if rankingDefault <= 0 || rankingDefault > MaxRankingLimit {
		rankingDefault = DefaultRankingLimit
	}
	return &GradeService{
		registry:       deps.Registry,
		tests:          deps.Tests,
		questions:      deps.Questions,
		answers:        deps.Answers,
		grades:         deps.Grades,
		users:          deps.Users,
		scoring:        deps.Scoring,
		queue:          deps.Queue,
		recorder:       recorderOrNop(deps.Recorder),
		log:            log.With().Str("component", "grade_service").Logger(),
		rankingDefault: rankingDefault,
		now:            time.Now,
	}
}

// CheckResult summarizes one check run.
type CheckResult struct {
	AnswersScored int           `json:"answers_scored"`
	Grades        []model.Grade `json:"grades"`
}

// GradeStatus is a user's lifecycle state in a test.
type GradeStatus struct {
	State model.GradeState `json:"state"`
	Grade *model.Grade     `json:"grade,omitempty"`
}

// Approve locks the user's answers in a test by creating their grade row.
func (s *GradeService) Approve(ctx context.Context, userID int, testID uuid.UUID) (*model.Grade, error) {
	if _, err := s.tests.GetByID(ctx, testID); err != nil {
		return nil, err
	}
	return s.CreateGrade(ctx, userID, testID)
}

// CreateGrade inserts a zeroed grade. A second call for the same pair
// fails with model.ErrAlreadyApproved.
func (s *GradeService) CreateGrade(ctx context.Context, userID int, testID uuid.UUID) (*model.Grade, error) {
	g := &model.Grade{UserID: userID, TestID: testID}
	if err := s.grades.Create(ctx, g); err != nil {
		return nil, err
	}
	s.log.Info().Int("user_id", userID).Str("test_id", testID.String()).Msg("Answers approved")
	return g, nil
}

// RecomputeGrade sets points to the sum of the user's answer points in the
// test and grade to points per question, or 0 for a test without
// questions. Always run after scoring.
func (s *GradeService) RecomputeGrade(ctx context.Context, g *model.Grade) (*model.Grade, error) {
	questions, err := s.questions.ListByTest(ctx, g.TestID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers.ListByTest(ctx, g.TestID, &g.UserID)
	if err != nil {
		return nil, err
	}
	return s.recompute(ctx, g, len(questions), answers)
}

func (s *GradeService) recompute(ctx context.Context, g *model.Grade, questionCount int, answers []model.Answer) (*model.Grade, error) {
	points := 0.0
	for _, a := range answers {
		if a.UserID == g.UserID {
			points += a.Points
		}
	}

	g.Points = points
	g.Grade = 0
	if questionCount > 0 {
		g.Grade = points / float64(questionCount)
	}
	checkedAt := s.now().UTC()
	g.CheckedAt = &checkedAt

	if err := s.grades.UpdateTotals(ctx, g); err != nil {
		return nil, fmt.Errorf("store grade %s: %w", g.ID, err)
	}
	s.recorder.GradeRecomputed()
	return g, nil
}

// Check scores every answer in the test, or only userID's when given, then
// recomputes the affected grades. Owner or admin only.
func (s *GradeService) Check(ctx context.Context, actor Actor, testID uuid.UUID, userID *int) (*CheckResult, error) {
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	if err := actor.mustManage(t); err != nil {
		return nil, err
	}

	questions, err := s.questions.ListByTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers.ListByTest(ctx, testID, userID)
	if err != nil {
		return nil, err
	}

	byID := indexQuestions(questions)
	result := &CheckResult{Grades: []model.Grade{}}
	for i := range answers {
		a := &answers[i]
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		if _, err := s.scoring.CheckAndPersist(ctx, q, a); err != nil {
			return nil, err
		}
		result.AnswersScored++
	}

	grades, err := s.gradesToRecompute(ctx, testID, userID)
	if err != nil {
		return nil, err
	}
	for i := range grades {
		g, err := s.recompute(ctx, &grades[i], len(questions), answers)
		if err != nil {
			return nil, err
		}
		result.Grades = append(result.Grades, *g)
	}

	s.log.Info().
		Str("test_id", testID.String()).
		Int("answers_scored", result.AnswersScored).
		Int("grades", len(result.Grades)).
		Msg("Test checked")
	return result, nil
}

func (s *GradeService) gradesToRecompute(ctx context.Context, testID uuid.UUID, userID *int) ([]model.Grade, error) {
	if userID == nil {
		return s.grades.ListByTest(ctx, testID)
	}
	g, err := s.grades.Get(ctx, *userID, testID)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []model.Grade{*g}, nil
}

// Ranking returns the best users of a test. limit <= 0 selects the
// configured default; values above MaxRankingLimit are capped.
func (s *GradeService) Ranking(ctx context.Context, testID uuid.UUID, limit int) ([]model.RankingEntry, error) {
	if _, err := s.tests.GetByID(ctx, testID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.rankingDefault
	}
	if limit > MaxRankingLimit {
		limit = MaxRankingLimit
	}
	entries, err := s.grades.Ranking(ctx, testID, limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []model.RankingEntry{}
	}
	return entries, nil
}

// Status returns the user's lifecycle state and grade in a test.
func (s *GradeService) Status(ctx context.Context, userID int, testID uuid.UUID) (*GradeStatus, error) {
	if _, err := s.tests.GetByID(ctx, testID); err != nil {
		return nil, err
	}
	g, err := s.grades.Get(ctx, userID, testID)
	if errors.Is(err, model.ErrNotFound) {
		return &GradeStatus{State: model.GradeStateNotStarted}, nil
	}
	if err != nil {
		return nil, err
	}
	return &GradeStatus{State: g.State(), Grade: g}, nil
}

// ResultView assembles the user's results in a test for notification.
func (s *GradeService) ResultView(ctx context.Context, testID uuid.UUID, userID int) (*model.ResultView, error) {
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	var grade *model.Grade
	g, err := s.grades.Get(ctx, userID, testID)
	switch {
	case err == nil:
		grade = g
	case !errors.Is(err, model.ErrNotFound):
		return nil, err
	}

	questions, err := s.questions.ListByTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	answers, err := s.answers.ListByTest(ctx, testID, &userID)
	if err != nil {
		return nil, err
	}

	return &model.ResultView{
		User:    *u,
		Test:    *t,
		Grade:   grade,
		Answers: answerViews(s.registry, questions, answers),
	}, nil
}

// SendResults queues a result mail for userID. Owner or admin only.
func (s *GradeService) SendResults(ctx context.Context, actor Actor, testID uuid.UUID, userID int) error {
	t, err := s.tests.GetByID(ctx, testID)
	if err != nil {
		return err
	}
	if err := actor.mustManage(t); err != nil {
		return err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return err
	}
	if err := s.queue.Push(ctx, model.ResultJob{TestID: testID, UserID: userID}); err != nil {
		return fmt.Errorf("queue result mail: %w", err)
	}
	s.recorder.ResultQueued()
	return nil
}
