package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"exercisesapp/internal/config"
	"exercisesapp/internal/middleware"
	"exercisesapp/internal/models"
	"exercisesapp/internal/observability"
	contextutils "exercisesapp/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResponseStore records authorization and persistence calls.
type fakeResponseStore struct {
	authorizeErr error
	created      *models.UserResponse
	createErr    error

	authorizeArgs []string
	createdUserID string
	createdWith   *models.GradedAnswer
	createCalls   int
}

func (f *fakeResponseStore) AuthorizeQuestionAccess(ctx context.Context, questionID, userID string) error {
	f.authorizeArgs = []string{questionID, userID}
	return f.authorizeErr
}

func (f *fakeResponseStore) CreateResponse(ctx context.Context, questionID, userID, responseText string, responseTimeMs int, graded *models.GradedAnswer) (*models.UserResponse, error) {
	f.createCalls++
	f.createdUserID = userID
	f.createdWith = graded
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

type fakeGrader struct {
	graded *models.GradedAnswer
	calls  int
}

func (f *fakeGrader) EvaluateAnswer(ctx context.Context, questionID, userAnswer string) *models.GradedAnswer {
	f.calls++
	return f.graded
}

// newResponseTestRouter builds a router with the session middleware and a
// stubbed logged-in user, mirroring the authed route group.
func newResponseTestRouter(t *testing.T, store ResponseStore, grader AnswerGrader, userID string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	handler := NewResponseHandler(store, grader, logger)

	router := gin.New()
	router.Use(sessions.Sessions(config.SessionName, cookie.NewStore([]byte("test-secret"))))
	router.Use(func(c *gin.Context) {
		if userID != "" {
			session := sessions.Default(c)
			session.Set(middleware.UserIDKey, userID)
		}
		c.Next()
	})
	router.POST("/v1/questions/:id/responses", handler.Submit)
	return router
}

func submitAnswer(router *gin.Engine, questionID, body string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/questions/"+questionID+"/responses", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestResponseHandlerSubmit(t *testing.T) {
	t.Run("grades and records the answer", func(t *testing.T) {
		store := &fakeResponseStore{
			created: &models.UserResponse{
				ID:         "r1",
				QuestionID: "q1",
				UserID:     "user-1",
				IsCorrect:  true,
				Feedback:   sql.NullString{String: "Ben fatto!", Valid: true},
			},
		}
		grader := &fakeGrader{graded: &models.GradedAnswer{Correct: true, Feedback: "Ben fatto!"}}
		router := newResponseTestRouter(t, store, grader, "user-1")

		recorder := submitAnswer(router, "q1", `{"response_text": "la mia risposta", "response_time": 1500}`)

		assert.Equal(t, http.StatusCreated, recorder.Code)
		assert.Equal(t, []string{"q1", "user-1"}, store.authorizeArgs)
		assert.Equal(t, 1, grader.calls)
		assert.Equal(t, "user-1", store.createdUserID)
		assert.Equal(t, grader.graded, store.createdWith)
		assert.Contains(t, recorder.Body.String(), `"is_correct":true`)
	})

	t.Run("question on another user's private text returns 403", func(t *testing.T) {
		store := &fakeResponseStore{authorizeErr: contextutils.ErrForbidden}
		grader := &fakeGrader{}
		router := newResponseTestRouter(t, store, grader, "user-2")

		recorder := submitAnswer(router, "q1", `{"response_text": "risposta"}`)

		assert.Equal(t, http.StatusForbidden, recorder.Code)
		assert.Equal(t, 0, grader.calls)
		assert.Equal(t, 0, store.createCalls)
	})

	t.Run("unknown question returns 404", func(t *testing.T) {
		store := &fakeResponseStore{authorizeErr: contextutils.ErrQuestionNotFound}
		grader := &fakeGrader{}
		router := newResponseTestRouter(t, store, grader, "user-1")

		recorder := submitAnswer(router, "q-missing", `{"response_text": "risposta"}`)

		assert.Equal(t, http.StatusNotFound, recorder.Code)
		assert.Equal(t, 0, grader.calls)
	})

	t.Run("missing response text returns 400", func(t *testing.T) {
		store := &fakeResponseStore{}
		grader := &fakeGrader{}
		router := newResponseTestRouter(t, store, grader, "user-1")

		recorder := submitAnswer(router, "q1", `{"response_time": 10}`)

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
		require.Nil(t, store.authorizeArgs)
		assert.Equal(t, 0, grader.calls)
	})
}
