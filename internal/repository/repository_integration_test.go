//go:build integration

package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// Run with: go test -tags integration ./internal/repository/
// against a scratch database named by DATABASE_URL.

func setupDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	_ = godotenv.Load("../../.env")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	m, err := migrate.New("file://../../migrations", dsn)
	if err != nil {
		t.Fatalf("migrate init: %v", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		t.Fatalf("migrate up: %v", err)
	}
	m.Close()

	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

func createUser(t *testing.T, users *UserRepository, name string) *model.User {
	t.Helper()
	u := &model.User{Username: name + uuid.NewString()[:8], Email: name + "@example.com", PasswordHash: "x"}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestIntegration_AnswerLockAndRanking(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	users := NewUserRepository(pool)
	tests := NewTestRepository(pool)
	questions := NewQuestionRepository(pool)
	answers := NewAnswerRepository(pool)
	grades := NewGradeRepository(pool)

	owner := createUser(t, users, "owner")
	alice := createUser(t, users, "alice")
	bob := createUser(t, users, "bob")

	test := &model.Test{OwnerUserID: &owner.ID, Name: "Integration"}
	if err := tests.Create(ctx, test); err != nil {
		t.Fatalf("create test: %v", err)
	}
	t.Cleanup(func() { _ = tests.Delete(context.Background(), test.ID) })

	yes := true
	q := &model.Question{TestID: test.ID, Number: 1, Content: "Sky is blue?", Type: model.QuestionTypeBoolean,
		Proper: model.Value{Bool: &yes}}
	if err := questions.Create(ctx, q); err != nil {
		t.Fatalf("create question: %v", err)
	}

	dup := &model.Question{TestID: test.ID, Number: 1, Content: "again", Type: model.QuestionTypeBoolean,
		Proper: model.Value{Bool: &yes}}
	if err := questions.Create(ctx, dup); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("duplicate number: err = %v, want ErrConflict", err)
	}

	for _, u := range []*model.User{alice, bob} {
		a := &model.Answer{UserID: u.ID, QuestionID: q.ID, Type: q.Type, Value: model.Value{Bool: &yes}}
		if err := answers.Upsert(ctx, a); err != nil {
			t.Fatalf("upsert: %v", err)
		}
		if err := grades.Create(ctx, &model.Grade{UserID: u.ID, TestID: test.ID}); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}

	locked := &model.Answer{UserID: alice.ID, QuestionID: q.ID, Type: q.Type, Value: model.Value{Bool: &yes}}
	if err := answers.Upsert(ctx, locked); !errors.Is(err, model.ErrAnswersLocked) {
		t.Errorf("upsert after approval: err = %v, want ErrAnswersLocked", err)
	}
	if err := grades.Create(ctx, &model.Grade{UserID: alice.ID, TestID: test.ID}); !errors.Is(err, model.ErrAlreadyApproved) {
		t.Errorf("second approval: err = %v, want ErrAlreadyApproved", err)
	}

	ranking, err := grades.Ranking(ctx, test.ID, 10)
	if err != nil {
		t.Fatalf("ranking: %v", err)
	}
	if len(ranking) != 2 || ranking[0].UserID != alice.ID || ranking[1].UserID != bob.ID {
		t.Errorf("ranking = %+v, want alice then bob on equal points", ranking)
	}

	got, err := tests.GetByID(ctx, test.ID)
	if err != nil {
		t.Fatalf("get test: %v", err)
	}
	if got.QuestionCount != 1 || len(got.UsersApproved) != 2 {
		t.Errorf("test = %+v", got)
	}
}

func TestIntegration_AnswerWaitsForConcurrentApproval(t *testing.T) {
	pool := setupDB(t)
	ctx := context.Background()

	users := NewUserRepository(pool)
	tests := NewTestRepository(pool)
	questions := NewQuestionRepository(pool)
	answers := NewAnswerRepository(pool)

	taker := createUser(t, users, "racer")
	test := &model.Test{OwnerUserID: &taker.ID, Name: "Race"}
	if err := tests.Create(ctx, test); err != nil {
		t.Fatalf("create test: %v", err)
	}
	t.Cleanup(func() { _ = tests.Delete(context.Background(), test.ID) })

	yes := true
	q := &model.Question{TestID: test.ID, Number: 1, Content: "q", Type: model.QuestionTypeBoolean,
		Proper: model.Value{Bool: &yes}}
	if err := questions.Create(ctx, q); err != nil {
		t.Fatalf("create question: %v", err)
	}

	// Approval in flight: lock held and grade inserted, not yet committed.
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback(ctx)
	if err := lockPair(ctx, tx, test.ID, taker.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO grades (user_id, test_id) VALUES ($1, $2)`, taker.ID, test.ID); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- answers.Upsert(ctx, &model.Answer{UserID: taker.ID, QuestionID: q.ID, Type: q.Type,
			Value: model.Value{Bool: &yes}})
	}()

	select {
	case err := <-done:
		t.Fatalf("answer write finished during approval: %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	if err := tx.Commit(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if !errors.Is(err, model.ErrAnswersLocked) {
			t.Errorf("err = %v, want ErrAnswersLocked", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("answer write never finished")
	}
}
