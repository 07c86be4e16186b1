package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizcheck-backend/internal/model"
)

// FromError maps a domain error onto its status and code. Unknown errors
// become 500 INTERNAL_ERROR.
func FromError(err error) (int, ErrCode) {
	switch {
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest, ErrValidation
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, ErrNotFound
	case errors.Is(err, model.ErrTypeMismatch):
		return http.StatusUnprocessableEntity, ErrTypeMismatch
	case errors.Is(err, model.ErrAnswersLocked):
		return http.StatusConflict, ErrAnswersLocked
	case errors.Is(err, model.ErrAlreadyApproved):
		return http.StatusConflict, ErrAlreadyApproved
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict, ErrConflict
	case errors.Is(err, model.ErrForbidden):
		return http.StatusForbidden, ErrForbidden
	default:
		return http.StatusInternalServerError, ErrInternal
	}
}

// FailError sends the envelope for a domain error. Validation failures carry
// the reason under fields.detail; internal errors never leak their text.
func FailError(c *gin.Context, err error) {
	status, code := FromError(err)
	switch code {
	case ErrInternal:
		_ = c.Error(err)
		Fail(c, status, code)
	case ErrValidation, ErrTypeMismatch:
		FailWithFields(c, status, code, map[string]string{"detail": err.Error()})
	default:
		Fail(c, status, code)
	}
}
