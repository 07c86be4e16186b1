package grading

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// ─── Open ──────────────────────────────────────────────────────────────

type openKind struct{}

func (openKind) BuildQuestion(in model.QuestionInput) (*model.Question, error) {
	q := &model.Question{}
	if isNull(in.ProperAnswer) {
		return q, nil
	}
	var text string
	if err := decodeStrict(in.ProperAnswer, &text, "proper_answer"); err != nil {
		return nil, err
	}
	q.Proper.Text = &text
	return q, nil
}

func (openKind) DecodeAnswer(_ *model.Question, raw json.RawMessage) (model.Value, error) {
	var text *string
	if err := decodeStrict(raw, &text, "answer"); err != nil {
		return model.Value{}, err
	}
	if text == nil {
		return model.Value{}, model.Validationf("answer must be a string")
	}
	return model.Value{Text: text}, nil
}

// Score compares byte-for-byte. A question without a proper answer never
// awards points.
func (openKind) Score(q *model.Question, v model.Value) (float64, error) {
	if v.Text == nil {
		return 0, fmt.Errorf("%w: open answer has no text", model.ErrTypeMismatch)
	}
	if q.Proper.Text != nil && *q.Proper.Text == *v.Text {
		return 1, nil
	}
	return 0, nil
}

func (openKind) RenderProper(q *model.Question) any { return q.Proper.Text }

func (openKind) RenderValue(_ *model.Question, v model.Value) any { return v.Text }

// ─── Boolean ───────────────────────────────────────────────────────────

type booleanKind struct{}

func (booleanKind) BuildQuestion(in model.QuestionInput) (*model.Question, error) {
	b, err := decodeBool(in.ProperAnswer, "proper_answer")
	if err != nil {
		return nil, err
	}
	return &model.Question{Proper: model.Value{Bool: &b}}, nil
}

func (booleanKind) DecodeAnswer(_ *model.Question, raw json.RawMessage) (model.Value, error) {
	b, err := decodeBool(raw, "answer")
	if err != nil {
		return model.Value{}, err
	}
	return model.Value{Bool: &b}, nil
}

func (booleanKind) Score(q *model.Question, v model.Value) (float64, error) {
	if v.Bool == nil {
		return 0, fmt.Errorf("%w: boolean answer has no value", model.ErrTypeMismatch)
	}
	if q.Proper.Bool != nil && *q.Proper.Bool == *v.Bool {
		return 1, nil
	}
	return 0, nil
}

func (booleanKind) RenderProper(q *model.Question) any { return q.Proper.Bool }

func (booleanKind) RenderValue(_ *model.Question, v model.Value) any { return v.Bool }

func decodeBool(raw json.RawMessage, what string) (bool, error) {
	var b *bool
	if err := decodeStrict(raw, &b, what); err != nil {
		return false, err
	}
	if b == nil {
		return false, model.Validationf("%s must be true or false", what)
	}
	return *b, nil
}

// ─── Scale ─────────────────────────────────────────────────────────────

type scaleKind struct{}

func (scaleKind) BuildQuestion(in model.QuestionInput) (*model.Question, error) {
	n, err := decodeScale(in.ProperAnswer, "proper_answer")
	if err != nil {
		return nil, err
	}
	return &model.Question{Proper: model.Value{Scale: &n}}, nil
}

func (scaleKind) DecodeAnswer(_ *model.Question, raw json.RawMessage) (model.Value, error) {
	n, err := decodeScale(raw, "answer")
	if err != nil {
		return model.Value{}, err
	}
	return model.Value{Scale: &n}, nil
}

// Score is exact match only; closeness earns nothing.
func (scaleKind) Score(q *model.Question, v model.Value) (float64, error) {
	if v.Scale == nil {
		return 0, fmt.Errorf("%w: scale answer has no value", model.ErrTypeMismatch)
	}
	if q.Proper.Scale != nil && *q.Proper.Scale == *v.Scale {
		return 1, nil
	}
	return 0, nil
}

func (scaleKind) RenderProper(q *model.Question) any { return q.Proper.Scale }

func (scaleKind) RenderValue(_ *model.Question, v model.Value) any { return v.Scale }

func decodeScale(raw json.RawMessage, what string) (int, error) {
	var n *int
	if err := decodeStrict(raw, &n, what); err != nil {
		return 0, err
	}
	if n == nil {
		return 0, model.Validationf("%s must be an integer", what)
	}
	if *n < model.ScaleMin || *n > model.ScaleMax {
		return 0, model.Validationf("%s must be between %d and %d", what, model.ScaleMin, model.ScaleMax)
	}
	return *n, nil
}

// ─── ChoiceOne / ChoiceMulti ───────────────────────────────────────────

type choiceKind struct {
	one bool
}

// BuildQuestion turns option names into choices and links the proper
// names to them. Proper names must be a subset of the options.
func (k choiceKind) BuildQuestion(in model.QuestionInput) (*model.Question, error) {
	if len(in.Options) == 0 {
		return nil, model.Validationf("choice questions need options")
	}

	q := &model.Question{Options: make([]model.Choice, 0, len(in.Options))}
	byName := make(map[string]uuid.UUID, len(in.Options))
	for i, name := range in.Options {
		if name == "" {
			return nil, model.Validationf("option %d has no name", i+1)
		}
		if _, dup := byName[name]; dup {
			return nil, model.Validationf("option %q is listed twice", name)
		}
		id := uuid.New()
		byName[name] = id
		q.Options = append(q.Options, model.Choice{ID: id, Name: name, Position: i})
	}

	var names []string
	if err := decodeStrict(in.ProperAnswer, &names, "proper_answer"); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(names))
	for _, name := range names {
		id, ok := byName[name]
		if !ok {
			return nil, model.Validationf("proper answer %q must be included in options", name)
		}
		if seen[name] {
			return nil, model.Validationf("proper answer %q is listed twice", name)
		}
		seen[name] = true
		q.Proper.Choices = append(q.Proper.Choices, id)
	}

	switch {
	case k.one && len(q.Proper.Choices) != 1:
		return nil, model.Validationf("choice-one questions have exactly one proper answer")
	case !k.one && len(q.Proper.Choices) < 2:
		return nil, model.Validationf("choice-multi questions have at least two proper answers")
	}
	return q, nil
}

func (k choiceKind) DecodeAnswer(q *model.Question, raw json.RawMessage) (model.Value, error) {
	var ids []uuid.UUID
	if err := decodeStrict(raw, &ids, "answer"); err != nil {
		return model.Value{}, err
	}
	ids = dedupe(ids)
	for _, id := range ids {
		if !q.HasOption(id) {
			return model.Value{}, model.Validationf("choice %s is not an option of this question", id)
		}
	}
	if k.one && len(ids) > 1 {
		return model.Value{}, model.Validationf("choice-one questions accept a single choice")
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return model.Value{Choices: ids}, nil
}

func (choiceKind) Score(q *model.Question, v model.Value) (float64, error) {
	if v.Text != nil || v.Bool != nil || v.Scale != nil {
		return 0, fmt.Errorf("%w: choice answer carries a non-choice value", model.ErrTypeMismatch)
	}
	return ChoiceScore(q.Proper.Choices, v.Choices), nil
}

func (choiceKind) RenderProper(q *model.Question) any {
	names := make([]string, 0, len(q.Proper.Choices))
	for _, id := range q.Proper.Choices {
		for _, c := range q.Options {
			if c.ID == id {
				names = append(names, c.Name)
				break
			}
		}
	}
	return names
}

func (choiceKind) RenderValue(_ *model.Question, v model.Value) any {
	if v.Choices == nil {
		return []uuid.UUID{}
	}
	return v.Choices
}

// ChoiceScore awards correct / (P + 2*wrong), where P is the size of the
// proper set, correct counts selected proper choices and wrong counts
// selected non-proper choices. Duplicate selections count once.
func ChoiceScore(proper, submitted []uuid.UUID) float64 {
	properSet := make(map[uuid.UUID]struct{}, len(proper))
	for _, id := range proper {
		properSet[id] = struct{}{}
	}

	correct, wrong := 0, 0
	for _, id := range dedupe(submitted) {
		if _, ok := properSet[id]; ok {
			correct++
		} else {
			wrong++
		}
	}

	denom := len(properSet) + 2*wrong
	if denom == 0 {
		return 0
	}
	return float64(correct) / float64(denom)
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return ids
	}
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
