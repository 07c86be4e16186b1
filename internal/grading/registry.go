// Package grading holds the question type registry and the pure scoring
// rules. Each question type is described by one Kind; the Registry maps the
// discriminator to its Kind and is the only place type dispatch happens.
package grading

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/stemsi/quizcheck-backend/internal/model"
)

// Kind bundles everything type-specific about a question variant.
type Kind interface {
	// BuildQuestion decodes and validates authoring input.
	BuildQuestion(in model.QuestionInput) (*model.Question, error)
	// DecodeAnswer decodes and validates a submitted value against q.
	DecodeAnswer(q *model.Question, raw json.RawMessage) (model.Value, error)
	// Score returns points in [0,1]. It fails with model.ErrTypeMismatch
	// when v does not carry the payload of this kind.
	Score(q *model.Question, v model.Value) (float64, error)
	// RenderProper renders the proper answer in its API shape.
	RenderProper(q *model.Question) any
	// RenderValue renders a submitted value in its API shape.
	RenderValue(q *model.Question, v model.Value) any
}

// Registry resolves a question type to its Kind.
type Registry struct {
	kinds map[model.QuestionType]Kind
}

// NewRegistry installs the built-in question kinds. Build it once at
// startup and share it.
func NewRegistry() *Registry {
	return &Registry{
		kinds: map[model.QuestionType]Kind{
			model.QuestionTypeOpen:        openKind{},
			model.QuestionTypeBoolean:     booleanKind{},
			model.QuestionTypeScale:       scaleKind{},
			model.QuestionTypeChoiceOne:   choiceKind{one: true},
			model.QuestionTypeChoiceMulti: choiceKind{one: false},
		},
	}
}

// Types lists the registered discriminators in sorted order.
func (r *Registry) Types() []model.QuestionType {
	types := make([]model.QuestionType, 0, len(r.kinds))
	for t := range r.kinds {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Kind returns the behavior bundle for t.
func (r *Registry) Kind(t model.QuestionType) (Kind, error) {
	k, ok := r.kinds[t]
	if !ok {
		return nil, model.Validationf("unknown question type %q", t)
	}
	return k, nil
}

// BuildQuestion validates authoring input and returns an unsaved question.
func (r *Registry) BuildQuestion(in model.QuestionInput) (*model.Question, error) {
	if in.Number < 1 {
		return nil, model.Validationf("number must be at least 1")
	}
	if in.Content == "" {
		return nil, model.Validationf("content is required")
	}
	k, err := r.Kind(in.Type)
	if err != nil {
		return nil, err
	}
	if !in.Type.IsChoice() && len(in.Options) > 0 {
		return nil, model.Validationf("options are only allowed for choice questions")
	}
	q, err := k.BuildQuestion(in)
	if err != nil {
		return nil, err
	}
	q.Number = in.Number
	q.Content = in.Content
	q.Type = in.Type
	return q, nil
}

// DecodeAnswer turns a raw submitted value into a typed answer for q.
func (r *Registry) DecodeAnswer(q *model.Question, raw json.RawMessage) (model.Value, error) {
	k, err := r.Kind(q.Type)
	if err != nil {
		return model.Value{}, err
	}
	return k.DecodeAnswer(q, raw)
}

// Score computes the points of a against q. The answer must belong to q
// and carry the same type.
func (r *Registry) Score(q *model.Question, a *model.Answer) (float64, error) {
	if a.QuestionID != q.ID {
		return 0, fmt.Errorf("%w: answer %s belongs to question %s, not %s",
			model.ErrTypeMismatch, a.ID, a.QuestionID, q.ID)
	}
	if a.Type != q.Type {
		return 0, fmt.Errorf("%w: %s answer for %s question", model.ErrTypeMismatch, a.Type, q.Type)
	}
	k, err := r.Kind(q.Type)
	if err != nil {
		return 0, err
	}
	return k.Score(q, a.Value)
}

// RenderProper renders q's proper answer, or nil for unknown types.
func (r *Registry) RenderProper(q *model.Question) any {
	k, err := r.Kind(q.Type)
	if err != nil {
		return nil
	}
	return k.RenderProper(q)
}

// RenderAnswer renders a's submitted value in the shape of q's type.
func (r *Registry) RenderAnswer(q *model.Question, a *model.Answer) any {
	k, err := r.Kind(q.Type)
	if err != nil {
		return nil
	}
	return k.RenderValue(q, a.Value)
}

func decodeStrict(raw json.RawMessage, dst any, what string) error {
	if len(raw) == 0 {
		return model.Validationf("%s is required", what)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return model.Validationf("%s has the wrong shape: %v", what, err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
