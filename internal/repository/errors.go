package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

const pgUniqueViolation = "23505"

// translate maps driver errors onto the domain taxonomy: missing rows become
// model.ErrNotFound and unique violations become model.ErrConflict.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", model.ErrNotFound, what)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s (%s)", model.ErrConflict, what, pgErr.ConstraintName)
	}
	return err
}

// lockPair takes a transaction-scoped advisory lock on (testID, userID).
// Answer writes and approval both hold it, so an answer write either
// commits before the grade row exists or sees it and is refused.
func lockPair(ctx context.Context, tx pgx.Tx, testID uuid.UUID, userID int) error {
	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtext($1::text), $2)`, testID.String(), userID,
	); err != nil {
		return fmt.Errorf("lock test %s user %d: %w", testID, userID, err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
