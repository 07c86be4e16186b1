package model

import (
	"time"

	"github.com/google/uuid"
)

// Test is a named, ordered collection of questions authored by one user.
// OwnerUserID is nil for anonymous-owned tests.
type Test struct {
	ID            uuid.UUID `json:"id"`
	OwnerUserID   *int      `json:"owner_user_id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	QuestionCount int       `json:"question_count"`
	UsersApproved []int     `json:"users_approved"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OwnedBy reports whether userID is the test owner.
func (t *Test) OwnedBy(userID int) bool {
	return t.OwnerUserID != nil && *t.OwnerUserID == userID
}

// CreateTestRequest is the payload for creating a test.
type CreateTestRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=120"`
	Description string `json:"description" binding:"max=5000"`
}

// UpdateTestRequest is the payload for updating a test.
type UpdateTestRequest struct {
	Name        string  `json:"name" binding:"omitempty,min=1,max=120"`
	Description *string `json:"description" binding:"omitempty,max=5000"`
}
