package handlers

import (
	"net/http"
	"strconv"

	"exercisesapp/internal/models"
	"exercisesapp/internal/observability"
	"exercisesapp/internal/services"

	"github.com/gin-gonic/gin"
)

// ExerciseHandler serves exercise generation, retrieval, listing, visibility
// updates, deletion, and the reference-data endpoints.
type ExerciseHandler struct {
	exerciseService *services.ExerciseService
	logger          *observability.Logger
}

// NewExerciseHandler creates an exercise handler.
func NewExerciseHandler(exerciseService *services.ExerciseService, logger *observability.Logger) *ExerciseHandler {
	return &ExerciseHandler{exerciseService: exerciseService, logger: logger}
}

type createExerciseRequest struct {
	LanguageID         string `json:"language_id" binding:"required,uuid"`
	ProficiencyLevelID string `json:"proficiency_level_id" binding:"required,uuid"`
	Topic              string `json:"topic" binding:"required"`
	Visibility         string `json:"visibility" binding:"required,oneof=public private"`
}

type updateVisibilityRequest struct {
	Visibility string `json:"visibility" binding:"required,oneof=public private"`
}

// Create generates a new exercise text with questions.
func (h *ExerciseHandler) Create(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "CreateExercise")
	var err error
	defer observability.FinishSpan(span, &err)

	var req createExerciseRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		HandleValidationError(c, "request body", "", bindErr.Error())
		return
	}

	userID, _ := GetUserIDFromSession(c)
	result, err := h.exerciseService.GenerateExercise(ctx, userID,
		req.LanguageID, req.ProficiencyLevelID, req.Topic, models.Visibility(req.Visibility))
	if err != nil {
		HandleAppError(c, err)
		return
	}

	h.logger.Info(ctx, "Exercise generated", map[string]interface{}{
		"text_id":   result.ID,
		"user_id":   userID,
		"questions": len(result.Questions),
	})
	c.JSON(http.StatusCreated, result)
}

// Get returns one text with its language, level, and questions.
func (h *ExerciseHandler) Get(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "GetExercise",
		observability.AttributeTextID(c.Param("id")),
	)
	var err error
	defer observability.FinishSpan(span, &err)

	userID, _ := GetUserIDFromSession(c)
	result, err := h.exerciseService.GetTextWithQuestions(ctx, c.Param("id"), userID)
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// List returns texts visible to the user, with pagination and an optional
// language filter.
func (h *ExerciseHandler) List(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "ListExercises")
	var err error
	defer observability.FinishSpan(span, &err)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(services.DefaultListLimit)))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	userID, _ := GetUserIDFromSession(c)
	texts, err := h.exerciseService.ListTexts(ctx, userID, services.TextListFilter{
		LanguageID: c.Query("language_id"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		HandleAppError(c, err)
		return
	}
	if texts == nil {
		texts = []models.Text{}
	}
	c.JSON(http.StatusOK, gin.H{"texts": texts, "limit": limit, "offset": offset})
}

// UpdateVisibility changes a text's visibility. Owner only.
func (h *ExerciseHandler) UpdateVisibility(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "UpdateExerciseVisibility",
		observability.AttributeTextID(c.Param("id")),
	)
	var err error
	defer observability.FinishSpan(span, &err)

	var req updateVisibilityRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		HandleValidationError(c, "request body", "", bindErr.Error())
		return
	}

	userID, _ := GetUserIDFromSession(c)
	err = h.exerciseService.UpdateTextVisibility(ctx, c.Param("id"), userID, models.Visibility(req.Visibility))
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "visibility": req.Visibility})
}

// Delete removes a text. Owner only.
func (h *ExerciseHandler) Delete(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "DeleteExercise",
		observability.AttributeTextID(c.Param("id")),
	)
	var err error
	defer observability.FinishSpan(span, &err)

	userID, _ := GetUserIDFromSession(c)
	if err = h.exerciseService.DeleteText(ctx, c.Param("id"), userID); err != nil {
		HandleAppError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListLanguages returns the supported languages.
func (h *ExerciseHandler) ListLanguages(c *gin.Context) {
	languages, err := h.exerciseService.ListLanguages(c.Request.Context())
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"languages": languages})
}

// ListProficiencyLevels returns the proficiency levels in display order.
func (h *ExerciseHandler) ListProficiencyLevels(c *gin.Context) {
	levels, err := h.exerciseService.ListProficiencyLevels(c.Request.Context())
	if err != nil {
		HandleAppError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"proficiency_levels": levels})
}
