package handlers

import (
	"exercisesapp/internal/middleware"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// GetUserIDFromSession retrieves the current user id from the session.
// Returns ("", false) if not authenticated or if the stored value is invalid.
func GetUserIDFromSession(c *gin.Context) (string, bool) {
	session := sessions.Default(c)
	userID := session.Get(middleware.UserIDKey)
	if userID == nil {
		return "", false
	}
	id, ok := userID.(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
