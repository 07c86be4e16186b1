package service

import (
	"fmt"

	"github.com/stemsi/quizcheck-backend/internal/model"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID  int
	IsAdmin bool
}

// CanManage reports whether the actor owns t or is an admin.
func (a Actor) CanManage(t *model.Test) bool {
	return a.IsAdmin || t.OwnedBy(a.UserID)
}

func (a Actor) mustManage(t *model.Test) error {
	if !a.CanManage(t) {
		return fmt.Errorf("%w: user %d cannot manage test %s", model.ErrForbidden, a.UserID, t.ID)
	}
	return nil
}
