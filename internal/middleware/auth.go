// Package middleware provides gin middleware for authentication and request
// handling.
package middleware

import (
	"net/http"

	contextutils "exercisesapp/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Session keys
const (
	// UserIDKey is the key used to store the user id in the session
	UserIDKey = "user_id"
	// UserEmailKey is the key used to store the user email in the session
	UserEmailKey = "user_email"
)

// RequireAuth returns a middleware that rejects unauthenticated requests
// and puts the user id into the request context.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID := session.Get(UserIDKey)
		if userID == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  string(contextutils.ErrorCodeUnauthorized),
			})
			c.Abort()
			return
		}

		userIDStr, ok := userID.(string)
		if !ok || userIDStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error": "Authentication required",
				"code":  string(contextutils.ErrorCodeUnauthorized),
			})
			c.Abort()
			return
		}

		ctx := contextutils.WithUserID(c.Request.Context(), userIDStr)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
