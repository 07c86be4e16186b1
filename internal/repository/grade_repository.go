package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// GradeRepository handles grade rows. One row per (user, test).
type GradeRepository struct {
	pool *pgxpool.Pool
}

// NewGradeRepository creates a new GradeRepository.
func NewGradeRepository(pool *pgxpool.Pool) *GradeRepository {
	return &GradeRepository{pool: pool}
}

const gradeColumns = `id, seq, user_id, test_id, points, grade, checked_at, created_at`

func scanGrade(row pgx.Row, g *model.Grade) error {
	return row.Scan(&g.ID, &g.Seq, &g.UserID, &g.TestID, &g.Points, &g.Grade, &g.CheckedAt, &g.CreatedAt)
}

// Create inserts a zeroed grade. A second grade for the same pair returns
// model.ErrAlreadyApproved.
func (r *GradeRepository) Create(ctx context.Context, g *model.Grade) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockPair(ctx, tx, g.TestID, g.UserID); err != nil {
			return err
		}
		err := tx.QueryRow(ctx,
			`INSERT INTO grades (user_id, test_id)
			 VALUES ($1, $2)
			 RETURNING `+gradeColumns,
			g.UserID, g.TestID,
		).Scan(&g.ID, &g.Seq, &g.UserID, &g.TestID, &g.Points, &g.Grade, &g.CheckedAt, &g.CreatedAt)
		if isUniqueViolation(err) {
			return model.ErrAlreadyApproved
		}
		return err
	})
}

// Get retrieves the grade of a user in a test.
func (r *GradeRepository) Get(ctx context.Context, userID int, testID uuid.UUID) (*model.Grade, error) {
	g := &model.Grade{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+gradeColumns+` FROM grades WHERE user_id = $1 AND test_id = $2`, userID, testID)
	if err := scanGrade(row, g); err != nil {
		return nil, translate(err, fmt.Sprintf("grade of user %d in test %s", userID, testID))
	}
	return g, nil
}

// ListByTest returns all grades of a test in approval order.
func (r *GradeRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Grade, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+gradeColumns+` FROM grades WHERE test_id = $1 ORDER BY seq`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grades []model.Grade
	for rows.Next() {
		var g model.Grade
		if err := scanGrade(rows, &g); err != nil {
			return nil, err
		}
		grades = append(grades, g)
	}
	return grades, rows.Err()
}

// UpdateTotals writes points, grade and checked_at.
func (r *GradeRepository) UpdateTotals(ctx context.Context, g *model.Grade) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE grades SET points = $1, grade = $2, checked_at = $3 WHERE id = $4`,
		g.Points, g.Grade, g.CheckedAt, g.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: grade %s", model.ErrNotFound, g.ID)
	}
	return nil
}

// Ranking returns the top grades of a test by points, ties broken by
// approval order.
func (r *GradeRepository) Ranking(ctx context.Context, testID uuid.UUID, limit int) ([]model.RankingEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT g.user_id, u.username, g.points
		 FROM grades g JOIN users u ON u.id = g.user_id
		 WHERE g.test_id = $1
		 ORDER BY g.points DESC, g.seq ASC
		 LIMIT $2`, testID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.RankingEntry
	for rows.Next() {
		var e model.RankingEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Points); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
