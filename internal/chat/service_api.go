package chat

import (
	"context"

	"exercisesapp/internal/models"
)

// ExerciseStore is the service surface ServiceAPI reads and writes.
// Satisfied by services.ExerciseService.
type ExerciseStore interface {
	GetTextWithQuestions(ctx context.Context, textID, userID string) (*models.TextWithQuestions, error)
	AuthorizeQuestionAccess(ctx context.Context, questionID, userID string) error
	CreateResponse(ctx context.Context, questionID, userID, responseText string, responseTimeMs int, graded *models.GradedAnswer) (*models.UserResponse, error)
}

// AnswerGrader grades free-text answers. Satisfied by services.FeedbackService.
type AnswerGrader interface {
	EvaluateAnswer(ctx context.Context, questionID, userAnswer string) *models.GradedAnswer
}

// ServiceAPI implements ExerciseAPI directly against the exercise and
// feedback services, for controllers running in the same process as the
// server. The user identity is fixed at construction, matching one
// controller per learner session.
type ServiceAPI struct {
	store  ExerciseStore
	grader AnswerGrader
	userID string
}

var _ ExerciseAPI = (*ServiceAPI)(nil)

// NewServiceAPI creates a service-backed exercise API for one user.
func NewServiceAPI(store ExerciseStore, grader AnswerGrader, userID string) *ServiceAPI {
	return &ServiceAPI{store: store, grader: grader, userID: userID}
}

// LoadExercise fetches the text with its questions, enforcing visibility.
func (a *ServiceAPI) LoadExercise(ctx context.Context, textID string) (*models.TextWithQuestions, error) {
	return a.store.GetTextWithQuestions(ctx, textID, a.userID)
}

// SubmitResponse grades the answer and records it as a new response row.
// Questions on a private text only accept answers from the text's owner.
func (a *ServiceAPI) SubmitResponse(ctx context.Context, questionID, responseText string, responseTimeMs int) (*models.UserResponse, error) {
	if err := a.store.AuthorizeQuestionAccess(ctx, questionID, a.userID); err != nil {
		return nil, err
	}

	graded := a.grader.EvaluateAnswer(ctx, questionID, responseText)
	return a.store.CreateResponse(ctx, questionID, a.userID, responseText, responseTimeMs, graded)
}
