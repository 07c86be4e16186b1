package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stemsi/quizcheck-backend/internal/model"
)

func TestSubmit_ValidatesAgainstQuestionType(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	test := h.newTest(t)
	scale := h.addQuestion(t, test.ID, 1, model.QuestionTypeScale, nil, `5`)
	one := h.addQuestion(t, test.ID, 2, model.QuestionTypeChoiceOne, []string{"A", "B"}, `["A"]`)
	taker := h.addUser(t, "taker")

	tests := []struct {
		name string
		q    *model.QuestionView
		raw  string
	}{
		{name: "scale above range", q: scale, raw: `11`},
		{name: "scale as text", q: scale, raw: `"5"`},
		{name: "two picks on choice one", q: one, raw: optionIDs(t, one, "A", "B")},
		{name: "foreign choice id", q: one, raw: `["` + newUUID().String() + `"]`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.answers.Submit(ctx, taker, tc.q.ID, json.RawMessage(tc.raw))
			if !errors.Is(err, model.ErrValidation) {
				t.Fatalf("err = %v, want ErrValidation", err)
			}
		})
	}

	mine, err := h.answers.ListMine(ctx, taker, test.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 0 {
		t.Errorf("invalid submissions persisted %d answers", len(mine))
	}
}

func TestSubmit_ReplacesPreviousAnswer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	test := h.newTest(t)
	q := h.addQuestion(t, test.ID, 1, model.QuestionTypeOpen, nil, `"Warsaw"`)
	taker := h.addUser(t, "taker")

	h.submit(t, taker, q.ID, `"Krakow"`)
	h.submit(t, taker, q.ID, `"Warsaw"`)

	mine, err := h.answers.ListMine(ctx, taker, test.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 1 {
		t.Fatalf("answers = %d, want 1", len(mine))
	}
	if text := mine[0].Submitted.(*string); *text != "Warsaw" {
		t.Errorf("answer = %q", *text)
	}
}

func TestAnswersLockedAfterApproval(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	test := h.newTest(t)
	q := h.addQuestion(t, test.ID, 1, model.QuestionTypeBoolean, nil, `true`)
	taker := h.addUser(t, "taker")
	h.submit(t, taker, q.ID, `false`)

	if _, err := h.grades.Approve(ctx, taker, test.ID); err != nil {
		t.Fatal(err)
	}

	_, err := h.answers.Submit(ctx, taker, q.ID, json.RawMessage(`true`))
	if !errors.Is(err, model.ErrAnswersLocked) || !errors.Is(err, model.ErrConflict) {
		t.Errorf("submit after approval: err = %v", err)
	}
	if err := h.answers.Delete(ctx, taker, q.ID); !errors.Is(err, model.ErrAnswersLocked) {
		t.Errorf("delete after approval: err = %v", err)
	}

	other := h.addUser(t, "other")
	h.submit(t, other, q.ID, `true`)
}

func TestListForTest_OwnerOnly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	test := h.newTest(t)
	q := h.addQuestion(t, test.ID, 1, model.QuestionTypeBoolean, nil, `true`)
	alice := h.addUser(t, "alice")
	bob := h.addUser(t, "bob")
	h.submit(t, alice, q.ID, `true`)
	h.submit(t, bob, q.ID, `false`)

	if _, err := h.answers.ListForTest(ctx, Actor{UserID: alice}, test.ID, nil); !errors.Is(err, model.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}

	all, err := h.answers.ListForTest(ctx, h.owner, test.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("all answers = %d, want 2", len(all))
	}
	onlyBob, err := h.answers.ListForTest(ctx, h.owner, test.ID, &bob)
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyBob) != 1 || onlyBob[0].UserID != bob {
		t.Errorf("bob's answers = %+v", onlyBob)
	}

	byNumber, err := h.answers.ListForQuestion(ctx, h.owner, test.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(byNumber) != 2 {
		t.Errorf("answers to question 1 = %d, want 2", len(byNumber))
	}
}

func TestDeleteAnswer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	test := h.newTest(t)
	q := h.addQuestion(t, test.ID, 1, model.QuestionTypeBoolean, nil, `true`)
	taker := h.addUser(t, "taker")

	if err := h.answers.Delete(ctx, taker, q.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("delete missing: err = %v, want ErrNotFound", err)
	}
	h.submit(t, taker, q.ID, `true`)
	if err := h.answers.Delete(ctx, taker, q.ID); err != nil {
		t.Fatal(err)
	}
}

func TestGetAnswer_ReturnsOwnRenderedAnswer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	test := h.newTest(t)
	q := h.addQuestion(t, test.ID, 3, model.QuestionTypeScale, nil, `7`)
	taker := h.addUser(t, "taker")
	other := h.addUser(t, "other")

	if _, err := h.answers.Get(ctx, taker, q.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("before submit: err = %v, want ErrNotFound", err)
	}
	h.submit(t, taker, q.ID, `4`)

	got, err := h.answers.Get(ctx, taker, q.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Number != 3 {
		t.Errorf("number = %d, want 3", got.Number)
	}
	if n, ok := got.Submitted.(*int); !ok || n == nil || *n != 4 {
		t.Errorf("submitted = %#v, want 4", got.Submitted)
	}
	if _, err := h.answers.Get(ctx, other, q.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("other user: err = %v, want ErrNotFound", err)
	}
}
