package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// AnswerRepository handles submitted answers. Writes are refused once the
// user holds a grade row for the question's test.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

const answerColumns = `a.id, a.user_id, a.question_id, a.type, a.text_value, a.bool_value, a.scale_value,
	a.points, a.created_at, a.updated_at`

// gradeExists is true when the user approved the test owning the question.
const gradeExists = `EXISTS (
	SELECT 1 FROM grades g JOIN questions q ON q.test_id = g.test_id
	WHERE q.id = $2 AND g.user_id = $1)`

// lockAnswerPair takes the (test, user) lock for the test owning
// questionID. See lockPair.
func lockAnswerPair(ctx context.Context, tx pgx.Tx, userID int, questionID uuid.UUID) error {
	var testID uuid.UUID
	err := tx.QueryRow(ctx, `SELECT test_id FROM questions WHERE id = $1`, questionID).Scan(&testID)
	if err != nil {
		return translate(err, "question "+questionID.String())
	}
	return lockPair(ctx, tx, testID, userID)
}

func scanAnswer(row pgx.Row, a *model.Answer) error {
	return row.Scan(&a.ID, &a.UserID, &a.QuestionID, &a.Type,
		&a.Value.Text, &a.Value.Bool, &a.Value.Scale,
		&a.Points, &a.CreatedAt, &a.UpdatedAt)
}

// Upsert creates or replaces the user's answer to a question and resets its
// points. Returns model.ErrAnswersLocked after approval.
func (r *AnswerRepository) Upsert(ctx context.Context, a *model.Answer) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockAnswerPair(ctx, tx, a.UserID, a.QuestionID); err != nil {
			return err
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO answers (user_id, question_id, type, text_value, bool_value, scale_value)
			 SELECT $1, $2, $3, $4, $5, $6
			 WHERE NOT `+gradeExists+`
			 ON CONFLICT (user_id, question_id) DO UPDATE
			 SET type = EXCLUDED.type, text_value = EXCLUDED.text_value,
			     bool_value = EXCLUDED.bool_value, scale_value = EXCLUDED.scale_value,
			     points = 0, updated_at = NOW()
			 RETURNING id, points, created_at, updated_at`,
			a.UserID, a.QuestionID, a.Type, a.Value.Text, a.Value.Bool, a.Value.Scale,
		).Scan(&a.ID, &a.Points, &a.CreatedAt, &a.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrAnswersLocked
		}
		if err != nil {
			return translate(err, "answer")
		}

		if _, err := tx.Exec(ctx, `DELETE FROM answer_choices WHERE answer_id = $1`, a.ID); err != nil {
			return fmt.Errorf("clear answer choices: %w", err)
		}
		for _, id := range a.Value.Choices {
			if _, err := tx.Exec(ctx,
				`INSERT INTO answer_choices (answer_id, choice_id) VALUES ($1, $2)`, a.ID, id,
			); err != nil {
				return fmt.Errorf("link answer choice: %w", err)
			}
		}
		return nil
	})
}

// Get retrieves the user's answer to a question.
func (r *AnswerRepository) Get(ctx context.Context, userID int, questionID uuid.UUID) (*model.Answer, error) {
	a := &model.Answer{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM answers a WHERE a.user_id = $1 AND a.question_id = $2`,
		userID, questionID)
	if err := scanAnswer(row, a); err != nil {
		return nil, translate(err, fmt.Sprintf("answer of user %d to question %s", userID, questionID))
	}
	if err := r.attachChoices(ctx, []*model.Answer{a}); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes the user's answer to a question. Returns
// model.ErrAnswersLocked after approval.
func (r *AnswerRepository) Delete(ctx context.Context, userID int, questionID uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockAnswerPair(ctx, tx, userID, questionID); err != nil {
			return err
		}
		var locked bool
		if err := tx.QueryRow(ctx, `SELECT `+gradeExists, userID, questionID).Scan(&locked); err != nil {
			return err
		}
		if locked {
			return model.ErrAnswersLocked
		}
		tag, err := tx.Exec(ctx,
			`DELETE FROM answers WHERE user_id = $1 AND question_id = $2`, userID, questionID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: answer of user %d to question %s", model.ErrNotFound, userID, questionID)
		}
		return nil
	})
}

// ListByTest returns the answers to a test's questions ordered by user and
// question number. A non-nil userID narrows the result to that user.
func (r *AnswerRepository) ListByTest(ctx context.Context, testID uuid.UUID, userID *int) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+answerColumns+`
		 FROM answers a JOIN questions q ON q.id = a.question_id
		 WHERE q.test_id = $1 AND ($2::int IS NULL OR a.user_id = $2)
		 ORDER BY a.user_id, q.number`, testID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := scanAnswer(rows, &a); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*model.Answer, len(answers))
	for i := range answers {
		ptrs[i] = &answers[i]
	}
	if err := r.attachChoices(ctx, ptrs); err != nil {
		return nil, err
	}
	return answers, nil
}

// UpdatePoints stores the score of an answer.
func (r *AnswerRepository) UpdatePoints(ctx context.Context, id uuid.UUID, points float64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE answers SET points = $1 WHERE id = $2`, points, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: answer %s", model.ErrNotFound, id)
	}
	return nil
}

func (r *AnswerRepository) attachChoices(ctx context.Context, answers []*model.Answer) error {
	byID := make(map[uuid.UUID]*model.Answer)
	ids := make([]string, 0, len(answers))
	for _, a := range answers {
		if a.Type.IsChoice() {
			a.Value.Choices = []uuid.UUID{}
			byID[a.ID] = a
			ids = append(ids, a.ID.String())
		}
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT ac.answer_id, ac.choice_id FROM answer_choices ac
		 JOIN choices c ON c.id = ac.choice_id
		 WHERE ac.answer_id = ANY($1::uuid[])
		 ORDER BY c.position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var aid, cid uuid.UUID
		if err := rows.Scan(&aid, &cid); err != nil {
			return err
		}
		a := byID[aid]
		a.Value.Choices = append(a.Value.Choices, cid)
	}
	return rows.Err()
}
