package handlers

import (
	"net/http"

	"exercisesapp/internal/middleware"
	"exercisesapp/internal/observability"
	"exercisesapp/internal/services"
	contextutils "exercisesapp/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// AuthHandler serves signup, login, logout, and current-user endpoints
// backed by the cookie session store.
type AuthHandler struct {
	userService *services.UserService
	logger      *observability.Logger
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(userService *services.UserService, logger *observability.Logger) *AuthHandler {
	return &AuthHandler{userService: userService, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Signup registers a new user and starts a session.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "request body", "", err.Error())
		return
	}

	user, err := h.userService.CreateUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	if err := h.startSession(c, user.ID, user.Email); err != nil {
		HandleAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "email": user.Email})
}

// Login authenticates a user and starts a session.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleValidationError(c, "request body", "", err.Error())
		return
	}

	user, err := h.userService.AuthenticateUser(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	if err := h.startSession(c, user.ID, user.Email); err != nil {
		HandleAppError(c, err)
		return
	}

	h.logger.Info(c.Request.Context(), "User logged in", map[string]interface{}{"user_id": user.ID})
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "email": user.Email})
}

// Logout clears the session.
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{MaxAge: -1, Path: "/"})
	if err := session.Save(); err != nil {
		HandleAppError(c, contextutils.WrapError(err, "failed to clear session"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the currently authenticated user.
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := GetUserIDFromSession(c)
	if !ok {
		StandardizeAppError(c, contextutils.ErrUnauthorized)
		return
	}

	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": user.ID, "email": user.Email, "created_at": user.CreatedAt})
}

func (h *AuthHandler) startSession(c *gin.Context, userID, email string) error {
	session := sessions.Default(c)
	session.Set(middleware.UserIDKey, userID)
	session.Set(middleware.UserEmailKey, email)
	if err := session.Save(); err != nil {
		return contextutils.WrapError(err, "failed to save session")
	}
	return nil
}
