package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// QuestionRepository handles question data access. A question, its options
// and its proper-choice links are always written together.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

const questionColumns = `id, test_id, number, content, type, proper_text, proper_bool, proper_scale`

func scanQuestion(row pgx.Row, q *model.Question) error {
	return row.Scan(&q.ID, &q.TestID, &q.Number, &q.Content, &q.Type,
		&q.Proper.Text, &q.Proper.Bool, &q.Proper.Scale)
}

// Create inserts the question, its choices and proper-choice links in one
// transaction. A taken number within the test is a conflict.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO questions (test_id, number, content, type, one_choice, proper_text, proper_bool, proper_scale)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id`,
			q.TestID, q.Number, q.Content, q.Type, q.OneChoice(),
			q.Proper.Text, q.Proper.Bool, q.Proper.Scale,
		).Scan(&q.ID)
		if err != nil {
			return translate(err, fmt.Sprintf("question number %d", q.Number))
		}
		return writeChoices(ctx, tx, q)
	})
}

// GetByID retrieves a question with its options and proper answer.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q := &model.Question{}
	row := r.pool.QueryRow(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	if err := scanQuestion(row, q); err != nil {
		return nil, translate(err, "question "+id.String())
	}
	if err := r.attachChoices(ctx, []*model.Question{q}); err != nil {
		return nil, err
	}
	return q, nil
}

// GetByNumber retrieves the question with the given number in a test.
func (r *QuestionRepository) GetByNumber(ctx context.Context, testID uuid.UUID, number int) (*model.Question, error) {
	q := &model.Question{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE test_id = $1 AND number = $2`, testID, number)
	if err := scanQuestion(row, q); err != nil {
		return nil, translate(err, fmt.Sprintf("question %d of test %s", number, testID))
	}
	if err := r.attachChoices(ctx, []*model.Question{q}); err != nil {
		return nil, err
	}
	return q, nil
}

// ListByTest retrieves all questions of a test ordered by number.
func (r *QuestionRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE test_id = $1 ORDER BY number`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := scanQuestion(rows, &q); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ptrs := make([]*model.Question, len(questions))
	for i := range questions {
		ptrs[i] = &questions[i]
	}
	if err := r.attachChoices(ctx, ptrs); err != nil {
		return nil, err
	}
	return questions, nil
}

// Update replaces number, content, options and proper answer. Options are
// matched by id, so callers carry over the ids of options they keep: those
// survive with their answer links, the rest are removed along with any
// answer selecting them.
func (r *QuestionRepository) Update(ctx context.Context, q *model.Question) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE questions
			 SET number = $1, content = $2, proper_text = $3, proper_bool = $4, proper_scale = $5, updated_at = NOW()
			 WHERE id = $6`,
			q.Number, q.Content, q.Proper.Text, q.Proper.Bool, q.Proper.Scale, q.ID,
		)
		if err != nil {
			return translate(err, fmt.Sprintf("question number %d", q.Number))
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: question %s", model.ErrNotFound, q.ID)
		}
		if !q.Type.IsChoice() {
			return nil
		}

		keep := make([]string, len(q.Options))
		for i, c := range q.Options {
			keep[i] = c.ID.String()
		}
		if _, err := tx.Exec(ctx, `DELETE FROM question_proper_choices WHERE question_id = $1`, q.ID); err != nil {
			return fmt.Errorf("clear proper choices: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM answer_choices WHERE choice_id IN (
			   SELECT id FROM choices WHERE question_id = $1 AND id <> ALL($2::uuid[]))`,
			q.ID, keep,
		); err != nil {
			return fmt.Errorf("clear answer choices: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`DELETE FROM choices WHERE question_id = $1 AND id <> ALL($2::uuid[])`, q.ID, keep,
		); err != nil {
			return fmt.Errorf("clear choices: %w", err)
		}
		return writeChoices(ctx, tx, q)
	})
}

// Delete removes a question with its choices, links and answers.
func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM questions WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: question %s", model.ErrNotFound, id)
		}
		return purgeQuestions(ctx, tx, "id = $1", id)
	})
}

// writeChoices upserts q's options and inserts its proper-choice links.
func writeChoices(ctx context.Context, tx pgx.Tx, q *model.Question) error {
	for i := range q.Options {
		c := &q.Options[i]
		c.QuestionID = q.ID
		if _, err := tx.Exec(ctx,
			`INSERT INTO choices (id, question_id, name, position)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, position = EXCLUDED.position`,
			c.ID, q.ID, c.Name, c.Position,
		); err != nil {
			return translate(err, "option "+c.Name)
		}
	}
	for _, id := range q.Proper.Choices {
		if _, err := tx.Exec(ctx,
			`INSERT INTO question_proper_choices (question_id, choice_id) VALUES ($1, $2)`,
			q.ID, id,
		); err != nil {
			return fmt.Errorf("link proper choice: %w", err)
		}
	}
	return nil
}

// attachChoices loads options and proper links for the given questions.
func (r *QuestionRepository) attachChoices(ctx context.Context, questions []*model.Question) error {
	byID := make(map[uuid.UUID]*model.Question)
	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		if q.Type.IsChoice() {
			byID[q.ID] = q
			ids = append(ids, q.ID.String())
		}
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, question_id, name, position FROM choices
		 WHERE question_id = ANY($1::uuid[])
		 ORDER BY question_id, position`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var c model.Choice
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.Name, &c.Position); err != nil {
			rows.Close()
			return err
		}
		q := byID[c.QuestionID]
		q.Options = append(q.Options, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.pool.Query(ctx,
		`SELECT p.question_id, p.choice_id FROM question_proper_choices p
		 JOIN choices c ON c.id = p.choice_id
		 WHERE p.question_id = ANY($1::uuid[])
		 ORDER BY c.position`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var qid, cid uuid.UUID
		if err := rows.Scan(&qid, &cid); err != nil {
			return err
		}
		q := byID[qid]
		q.Proper.Choices = append(q.Proper.Choices, cid)
	}
	return rows.Err()
}
