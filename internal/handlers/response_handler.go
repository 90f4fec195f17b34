package handlers

import (
	"context"
	"net/http"

	"exercisesapp/internal/models"
	"exercisesapp/internal/observability"

	"github.com/gin-gonic/gin"
)

// ResponseStore is the persistence surface needed to record graded answers.
// Satisfied by services.ExerciseService.
type ResponseStore interface {
	AuthorizeQuestionAccess(ctx context.Context, questionID, userID string) error
	CreateResponse(ctx context.Context, questionID, userID, responseText string, responseTimeMs int, graded *models.GradedAnswer) (*models.UserResponse, error)
}

// AnswerGrader grades free-text answers. Satisfied by services.FeedbackService.
type AnswerGrader interface {
	EvaluateAnswer(ctx context.Context, questionID, userAnswer string) *models.GradedAnswer
}

// ResponseHandler serves answer submission: grading through the feedback
// service and insert-only persistence of the graded response.
type ResponseHandler struct {
	store  ResponseStore
	grader AnswerGrader
	logger *observability.Logger
}

// NewResponseHandler creates a response handler.
func NewResponseHandler(store ResponseStore, grader AnswerGrader, logger *observability.Logger) *ResponseHandler {
	return &ResponseHandler{
		store:  store,
		grader: grader,
		logger: logger,
	}
}

type submitResponseRequest struct {
	ResponseText string `json:"response_text" binding:"required"`
	ResponseTime int    `json:"response_time" binding:"gte=0"`
}

// Submit grades an answer and records it. Every submission inserts a new
// row; duplicates are not deduplicated. Questions on a private text only
// accept answers from the text's owner.
func (h *ResponseHandler) Submit(c *gin.Context) {
	questionID := c.Param("id")
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "SubmitResponse",
		observability.AttributeQuestionID(questionID),
	)
	var err error
	defer observability.FinishSpan(span, &err)

	var req submitResponseRequest
	if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
		HandleValidationError(c, "request body", "", bindErr.Error())
		return
	}

	userID, _ := GetUserIDFromSession(c)
	if err = h.store.AuthorizeQuestionAccess(ctx, questionID, userID); err != nil {
		HandleAppError(c, err)
		return
	}

	// Grading never fails; gateway errors degrade to the heuristic grader
	// or a safe default inside the feedback service
	graded := h.grader.EvaluateAnswer(ctx, questionID, req.ResponseText)

	response, err := h.store.CreateResponse(ctx, questionID, userID, req.ResponseText, req.ResponseTime, graded)
	if err != nil {
		HandleAppError(c, err)
		return
	}

	h.logger.Info(ctx, "Answer graded", map[string]interface{}{
		"question_id": questionID,
		"user_id":     userID,
		"is_correct":  response.IsCorrect,
	})
	c.JSON(http.StatusCreated, response)
}
