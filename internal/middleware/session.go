package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/quizcheck-backend/internal/response"
)

// SessionChecker reports whether jti is the user's active session.
type SessionChecker interface {
	ValidateSession(ctx context.Context, userID int, jti string) error
}

// CheckSession validates the JWT's JTI against the active session in Redis.
// Tokens issued before the last login or logout are rejected.
func CheckSession(sessions SessionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		if err := sessions.ValidateSession(c.Request.Context(), claims.UserID, claims.ID); err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Next()
	}
}
