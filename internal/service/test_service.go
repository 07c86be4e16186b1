package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/stemsi/quizcheck-backend/internal/model"
	"github.com/stemsi/quizcheck-backend/internal/response"
)

// TestService handles test management.
type TestService struct {
	tests TestStore
}

// NewTestService creates a new TestService.
func NewTestService(tests TestStore) *TestService {
	return &TestService{tests: tests}
}

// Create creates a test owned by the actor.
func (s *TestService) Create(ctx context.Context, actor Actor, req model.CreateTestRequest) (*model.Test, error) {
	owner := actor.UserID
	t := &model.Test{
		OwnerUserID: &owner,
		Name:        req.Name,
		Description: req.Description,
	}
	if err := s.tests.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get retrieves a test.
func (s *TestService) Get(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	return s.tests.GetByID(ctx, id)
}

// List retrieves tests with pagination. If ownerID is non-nil, only tests
// owned by that user are returned.
func (s *TestService) List(ctx context.Context, ownerID *int, page, perPage int) ([]model.Test, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	tests, total, err := s.tests.List(ctx, ownerID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if tests == nil {
		tests = []model.Test{}
	}
	return tests, response.NewPagination(page, perPage, total), nil
}

// Update changes name and description. Owner or admin only.
func (s *TestService) Update(ctx context.Context, actor Actor, id uuid.UUID, req model.UpdateTestRequest) (*model.Test, error) {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := actor.mustManage(t); err != nil {
		return nil, err
	}

	if req.Name != "" {
		t.Name = req.Name
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if err := s.tests.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Delete removes a test with all its questions, answers and grades. Owner
// or admin only.
func (s *TestService) Delete(ctx context.Context, actor Actor, id uuid.UUID) error {
	t, err := s.tests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := actor.mustManage(t); err != nil {
		return err
	}
	return s.tests.Delete(ctx, id)
}
