package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// TestRepository handles test data access.
type TestRepository struct {
	pool *pgxpool.Pool
}

// NewTestRepository creates a new TestRepository.
func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

const testColumns = `t.id, t.owner_user_id, t.name, t.description, t.created_at, t.updated_at,
	(SELECT COUNT(*) FROM questions q WHERE q.test_id = t.id),
	ARRAY(SELECT g.user_id FROM grades g WHERE g.test_id = t.id ORDER BY g.seq)`

func scanTest(row pgx.Row, t *model.Test) error {
	return row.Scan(&t.ID, &t.OwnerUserID, &t.Name, &t.Description, &t.CreatedAt, &t.UpdatedAt,
		&t.QuestionCount, &t.UsersApproved)
}

// Create inserts a new test.
func (r *TestRepository) Create(ctx context.Context, t *model.Test) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO tests (owner_user_id, name, description)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		t.OwnerUserID, t.Name, t.Description,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return err
	}
	t.UsersApproved = []int{}
	return nil
}

// GetByID retrieves a test with its question count and approvals.
func (r *TestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	row := r.pool.QueryRow(ctx, `SELECT `+testColumns+` FROM tests t WHERE t.id = $1`, id)
	if err := scanTest(row, t); err != nil {
		return nil, translate(err, "test "+id.String())
	}
	return t, nil
}

// List returns a page of tests, newest first. A non-nil ownerID narrows the
// result to that owner.
func (r *TestRepository) List(ctx context.Context, ownerID *int, limit, offset int) ([]model.Test, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM tests WHERE ($1::int IS NULL OR owner_user_id = $1)`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+testColumns+`
		 FROM tests t
		 WHERE ($1::int IS NULL OR t.owner_user_id = $1)
		 ORDER BY t.created_at DESC
		 LIMIT $2 OFFSET $3`, ownerID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tests []model.Test
	for rows.Next() {
		var t model.Test
		if err := scanTest(rows, &t); err != nil {
			return nil, 0, err
		}
		tests = append(tests, t)
	}
	return tests, total, rows.Err()
}

// Update writes the test's name and description.
func (r *TestRepository) Update(ctx context.Context, t *model.Test) error {
	err := r.pool.QueryRow(ctx,
		`UPDATE tests SET name = $1, description = $2, updated_at = NOW()
		 WHERE id = $3
		 RETURNING updated_at`,
		t.Name, t.Description, t.ID,
	).Scan(&t.UpdatedAt)
	return translate(err, "test "+t.ID.String())
}

// Delete removes a test together with its questions, choices, answers and
// grades in one transaction.
func (r *TestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := purgeQuestions(ctx, tx, "test_id = $1", id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM grades WHERE test_id = $1`, id); err != nil {
			return fmt.Errorf("delete grades: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM tests WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete test: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: test %s", model.ErrNotFound, id)
		}
		return nil
	})
}

// purgeQuestions deletes the questions matching filter and everything that
// hangs off them. filter is a trusted WHERE fragment over questions with
// one placeholder.
func purgeQuestions(ctx context.Context, tx pgx.Tx, filter string, arg any) error {
	scope := `SELECT id FROM questions WHERE ` + filter
	steps := []struct {
		what string
		sql  string
	}{
		{"answer choices", `DELETE FROM answer_choices WHERE answer_id IN (SELECT id FROM answers WHERE question_id IN (` + scope + `))`},
		{"answers", `DELETE FROM answers WHERE question_id IN (` + scope + `)`},
		{"proper choices", `DELETE FROM question_proper_choices WHERE question_id IN (` + scope + `)`},
		{"choices", `DELETE FROM choices WHERE question_id IN (` + scope + `)`},
		{"questions", `DELETE FROM questions WHERE ` + filter},
	}
	for _, s := range steps {
		if _, err := tx.Exec(ctx, s.sql, arg); err != nil {
			return fmt.Errorf("delete %s: %w", s.what, err)
		}
	}
	return nil
}
