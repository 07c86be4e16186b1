package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizcheck-backend/internal/grading"
	"github.com/stemsi/quizcheck-backend/internal/model"
	"github.com/stemsi/quizcheck-backend/internal/service/servicetest"
)

type harness struct {
	store     *servicetest.Store
	recorder  *servicetest.Recorder
	tests     *TestService
	questions *QuestionService
	answers   *AnswerService
	scoring   *ScoringService
	grades    *GradeService
	owner     Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := servicetest.NewStore()
	rec := servicetest.NewRecorder()
	reg := grading.NewRegistry()

	scoring := NewScoringService(reg, store.Answers(), rec)
	h := &harness{
		store:     store,
		recorder:  rec,
		tests:     NewTestService(store.Tests()),
		questions: NewQuestionService(reg, store.Tests(), store.Questions()),
		answers:   NewAnswerService(reg, store.Tests(), store.Questions(), store.Answers(), store.Grades()),
		scoring:   scoring,
		grades: NewGradeService(GradeServiceDeps{
			Registry:  reg,
			Tests:     store.Tests(),
			Questions: store.Questions(),
			Answers:   store.Answers(),
			Grades:    store.Grades(),
			Users:     store.Users(),
			Scoring:   scoring,
			Queue:     store.Queue(),
			Recorder:  rec,
		}, zerolog.Nop()),
	}
	h.owner = Actor{UserID: h.addUser(t, "author")}
	return h
}

func (h *harness) addUser(t *testing.T, name string) int {
	t.Helper()
	u := &model.User{Username: name, Email: name + "@example.test"}
	if err := h.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u.ID
}

func (h *harness) newTest(t *testing.T) *model.Test {
	t.Helper()
	test, err := h.tests.Create(context.Background(), h.owner, model.CreateTestRequest{Name: "Geography"})
	if err != nil {
		t.Fatalf("create test: %v", err)
	}
	return test
}

func (h *harness) addQuestion(t *testing.T, testID uuid.UUID, number int, typ model.QuestionType, options []string, proper string) *model.QuestionView {
	t.Helper()
	v, err := h.questions.Create(context.Background(), h.owner, testID, model.CreateQuestionRequest{
		Number:       number,
		Content:      "question",
		Type:         string(typ),
		Options:      options,
		ProperAnswer: json.RawMessage(proper),
	})
	if err != nil {
		t.Fatalf("create question %d: %v", number, err)
	}
	return v
}

func (h *harness) submit(t *testing.T, userID int, questionID uuid.UUID, raw string) {
	t.Helper()
	if _, err := h.answers.Submit(context.Background(), userID, questionID, json.RawMessage(raw)); err != nil {
		t.Fatalf("submit %s: %v", raw, err)
	}
}

func optionIDs(t *testing.T, q *model.QuestionView, names ...string) string {
	t.Helper()
	var ids []uuid.UUID
	for _, n := range names {
		found := false
		for _, c := range q.Options {
			if c.Name == n {
				ids = append(ids, c.ID)
				found = true
			}
		}
		if !found {
			t.Fatalf("option %q not found", n)
		}
	}
	if ids == nil {
		return "[]"
	}
	b, _ := json.Marshal(ids)
	return string(b)
}

func newUUID() uuid.UUID { return uuid.New() }
