package chat

import (
	"context"
	"database/sql"
	"testing"

	"exercisesapp/internal/models"
	contextutils "exercisesapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExerciseStore records the arguments of every call.
type fakeExerciseStore struct {
	exercise     *models.TextWithQuestions
	loadErr      error
	authorizeErr error
	created      *models.UserResponse
	createErr    error

	loadUserID    string
	authorizeArgs []string
	createdWith   *models.GradedAnswer
	createCalls   int
}

func (f *fakeExerciseStore) GetTextWithQuestions(ctx context.Context, textID, userID string) (*models.TextWithQuestions, error) {
	f.loadUserID = userID
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.exercise, nil
}

func (f *fakeExerciseStore) AuthorizeQuestionAccess(ctx context.Context, questionID, userID string) error {
	f.authorizeArgs = []string{questionID, userID}
	return f.authorizeErr
}

func (f *fakeExerciseStore) CreateResponse(ctx context.Context, questionID, userID, responseText string, responseTimeMs int, graded *models.GradedAnswer) (*models.UserResponse, error) {
	f.createCalls++
	f.createdWith = graded
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

type fakeAnswerGrader struct {
	graded *models.GradedAnswer
	calls  int
}

func (f *fakeAnswerGrader) EvaluateAnswer(ctx context.Context, questionID, userAnswer string) *models.GradedAnswer {
	f.calls++
	return f.graded
}

func TestServiceAPI_LoadExercise(t *testing.T) {
	store := &fakeExerciseStore{exercise: twoQuestionExercise()}
	api := NewServiceAPI(store, &fakeAnswerGrader{}, "user-1")

	data, err := api.LoadExercise(context.Background(), "text-1")
	require.NoError(t, err)

	assert.Equal(t, "text-1", data.ID)
	assert.Equal(t, "user-1", store.loadUserID)
}

func TestServiceAPI_SubmitResponse(t *testing.T) {
	t.Run("grades then records with the fixed user identity", func(t *testing.T) {
		store := &fakeExerciseStore{
			created: &models.UserResponse{
				ID:         "r1",
				QuestionID: "q1",
				UserID:     "user-1",
				IsCorrect:  true,
				Feedback:   sql.NullString{String: "Ben fatto!", Valid: true},
			},
		}
		grader := &fakeAnswerGrader{graded: &models.GradedAnswer{Correct: true, Feedback: "Ben fatto!"}}
		api := NewServiceAPI(store, grader, "user-1")

		response, err := api.SubmitResponse(context.Background(), "q1", "la mia risposta", 1500)
		require.NoError(t, err)

		assert.Equal(t, []string{"q1", "user-1"}, store.authorizeArgs)
		assert.Equal(t, 1, grader.calls)
		assert.Equal(t, 1, store.createCalls)
		assert.Equal(t, grader.graded, store.createdWith)
		assert.True(t, response.IsCorrect)
	})

	t.Run("private text of another user is rejected before grading", func(t *testing.T) {
		store := &fakeExerciseStore{authorizeErr: contextutils.ErrForbidden}
		grader := &fakeAnswerGrader{}
		api := NewServiceAPI(store, grader, "user-2")

		_, err := api.SubmitResponse(context.Background(), "q1", "risposta", 0)
		require.Error(t, err)

		assert.True(t, contextutils.IsError(err, contextutils.ErrForbidden))
		assert.Equal(t, 0, grader.calls)
		assert.Equal(t, 0, store.createCalls)
	})

	t.Run("missing question is rejected before grading", func(t *testing.T) {
		store := &fakeExerciseStore{authorizeErr: contextutils.ErrQuestionNotFound}
		grader := &fakeAnswerGrader{}
		api := NewServiceAPI(store, grader, "user-1")

		_, err := api.SubmitResponse(context.Background(), "q-missing", "risposta", 0)
		require.Error(t, err)

		assert.True(t, contextutils.IsError(err, contextutils.ErrQuestionNotFound))
		assert.Equal(t, 0, grader.calls)
		assert.Equal(t, 0, store.createCalls)
	})
}
