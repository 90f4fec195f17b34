package chat

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"exercisesapp/internal/config"
	"exercisesapp/internal/models"
	"exercisesapp/internal/observability"
	contextutils "exercisesapp/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeTimer struct {
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

// fakeScheduler captures scheduled callbacks so tests fire them explicitly.
type fakeScheduler struct {
	delay time.Duration
	fn    func()
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) TimerHandle {
	s.delay = d
	s.fn = fn
	return &fakeTimer{}
}

// Fire runs the pending callback, simulating the delay elapsing.
func (s *fakeScheduler) Fire(t *testing.T) {
	t.Helper()
	require.NotNil(t, s.fn, "no callback is scheduled")
	fn := s.fn
	s.fn = nil
	fn()
}

// fakeExerciseAPI serves a canned exercise and grades via submitFn.
type fakeExerciseAPI struct {
	exercise *models.TextWithQuestions
	loadErr  error
	submitFn func(questionID, responseText string, responseTimeMs int) (*models.UserResponse, error)
}

func (f *fakeExerciseAPI) LoadExercise(ctx context.Context, textID string) (*models.TextWithQuestions, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.exercise, nil
}

func (f *fakeExerciseAPI) SubmitResponse(ctx context.Context, questionID, responseText string, responseTimeMs int) (*models.UserResponse, error) {
	return f.submitFn(questionID, responseText, responseTimeMs)
}

func twoQuestionExercise() *models.TextWithQuestions {
	return &models.TextWithQuestions{
		Text: models.Text{ID: "text-1", Title: "Il mercato", Content: "Un breve testo."},
		Questions: []models.Question{
			{ID: "q1", TextID: "text-1", Content: "Prima domanda?"},
			{ID: "q2", TextID: "text-1", Content: "Seconda domanda?"},
		},
	}
}

func gradedResponse(id, questionID string, correct bool, feedback string) *models.UserResponse {
	return &models.UserResponse{
		ID:         id,
		QuestionID: questionID,
		IsCorrect:  correct,
		Feedback:   sql.NullString{String: feedback, Valid: feedback != ""},
	}
}

func newTestController(api ExerciseAPI) (*Controller, *fakeClock, *fakeScheduler) {
	clock := newFakeClock()
	scheduler := &fakeScheduler{}
	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	return NewController(api, clock, scheduler, logger, "text-1"), clock, scheduler
}

func TestController_StartShowsFirstQuestion(t *testing.T) {
	api := &fakeExerciseAPI{exercise: twoQuestionExercise()}
	c, _, _ := newTestController(api)

	assert.Equal(t, StateLoadingInitial, c.State())
	assert.False(t, c.InputEnabled())

	c.Start(context.Background())

	assert.Equal(t, StateAwaitingAnswer, c.State())
	assert.True(t, c.InputEnabled())

	transcript := c.Transcript()
	require.Len(t, transcript, 1)
	assert.Equal(t, MessageAIQuestion, transcript[0].Type)
	assert.Equal(t, SenderAI, transcript[0].Sender)
	assert.Equal(t, "Prima domanda?", transcript[0].Text)
	assert.Equal(t, "q1", transcript[0].QuestionID)

	current := c.CurrentQuestion()
	require.NotNil(t, current)
	assert.Equal(t, "q1", current.ID)
}

func TestController_StartFailure(t *testing.T) {
	tests := []struct {
		name    string
		loadErr error
		want    string
	}{
		{"not found", contextutils.ErrTextNotFound, "Exercise not found"},
		{"unauthorized", contextutils.ErrUnauthorized, "You need to be logged in to access this exercise"},
		{"forbidden", contextutils.ErrForbidden, "You do not have permission to access this exercise"},
		{"generic", contextutils.ErrInternalError, "Failed to fetch exercise data"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeExerciseAPI{loadErr: tt.loadErr}
			c, _, _ := newTestController(api)

			c.Start(context.Background())

			assert.Equal(t, StateFailed, c.State())
			assert.Equal(t, tt.want, c.LoadError())
			assert.False(t, c.InputEnabled())
			assert.Empty(t, c.Transcript())
		})
	}
}

func TestController_StartWithNoQuestions(t *testing.T) {
	api := &fakeExerciseAPI{exercise: &models.TextWithQuestions{
		Text: models.Text{ID: "text-1"},
	}}
	c, _, _ := newTestController(api)

	c.Start(context.Background())

	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, "The exercise has no questions.", c.LoadError())
}

func TestController_CorrectAnswerAdvances(t *testing.T) {
	api := &fakeExerciseAPI{exercise: twoQuestionExercise()}
	api.submitFn = func(questionID, responseText string, responseTimeMs int) (*models.UserResponse, error) {
		return gradedResponse("r1", questionID, true, "Ben fatto!"), nil
	}
	c, clock, scheduler := newTestController(api)
	c.Start(context.Background())

	clock.Advance(1500 * time.Millisecond)
	require.NoError(t, c.SubmitAnswer(context.Background(), "la mia risposta"))

	// Feedback is showing and input is disabled until the timer fires
	assert.Equal(t, StateShowingFeedback, c.State())
	assert.False(t, c.InputEnabled())
	assert.Equal(t, config.FeedbackAdvanceDelay, scheduler.delay)

	transcript := c.Transcript()
	require.Len(t, transcript, 3)
	assert.Equal(t, MessageUserAnswer, transcript[1].Type)
	assert.Equal(t, SenderUser, transcript[1].Sender)
	assert.Equal(t, "la mia risposta", transcript[1].Text)
	assert.Equal(t, "q1", transcript[1].QuestionID)
	assert.Equal(t, 1500, transcript[1].ResponseTimeMs)
	assert.Equal(t, MessageFeedbackResult, transcript[2].Type)
	assert.True(t, transcript[2].IsCorrect)
	assert.Equal(t, "Ben fatto!", transcript[2].Feedback)
	assert.Equal(t, "r1", transcript[2].UserResponseID)

	scheduler.Fire(t)

	assert.Equal(t, StateAwaitingAnswer, c.State())
	transcript = c.Transcript()
	require.Len(t, transcript, 4)
	assert.Equal(t, MessageAIQuestion, transcript[3].Type)
	assert.Equal(t, "q2", transcript[3].QuestionID)

	current := c.CurrentQuestion()
	require.NotNil(t, current)
	assert.Equal(t, "q2", current.ID)
	assert.Equal(t, 0, c.AttemptCount())
}

func TestController_IncorrectAnswerRepeatsQuestion(t *testing.T) {
	api := &fakeExerciseAPI{exercise: twoQuestionExercise()}
	api.submitFn = func(questionID, responseText string, responseTimeMs int) (*models.UserResponse, error) {
		return gradedResponse("r1", questionID, false, "Riprova."), nil
	}
	c, _, scheduler := newTestController(api)
	c.Start(context.Background())

	require.NoError(t, c.SubmitAnswer(context.Background(), "risposta sbagliata"))
	scheduler.Fire(t)

	// Same question is asked again
	assert.Equal(t, StateAwaitingAnswer, c.State())
	transcript := c.Transcript()
	require.Len(t, transcript, 4)
	assert.Equal(t, MessageAIQuestion, transcript[3].Type)
	assert.Equal(t, "q1", transcript[3].QuestionID)
	assert.Equal(t, "Prima domanda?", transcript[3].Text)
	assert.Equal(t, 1, c.AttemptCount())

	current := c.CurrentQuestion()
	require.NotNil(t, current)
	assert.Equal(t, "q1", current.ID)
}

func TestController_CompletionAfterLastQuestion(t *testing.T) {
	api := &fakeExerciseAPI{exercise: twoQuestionExercise()}
	api.submitFn = func(questionID, responseText string, responseTimeMs int) (*models.UserResponse, error) {
		return gradedResponse("r-"+questionID, questionID, true, "Ben fatto!"), nil
	}
	c, _, scheduler := newTestController(api)
	c.Start(context.Background())

	require.NoError(t, c.SubmitAnswer(context.Background(), "uno"))
	scheduler.Fire(t)
	require.NoError(t, c.SubmitAnswer(context.Background(), "due"))
	scheduler.Fire(t)

	assert.Equal(t, StateCompleted, c.State())
	assert.False(t, c.InputEnabled())
	assert.Nil(t, c.CurrentQuestion())

	transcript := c.Transcript()
	last := transcript[len(transcript)-1]
	assert.Equal(t, MessageAIQuestion, last.Type)
	assert.Equal(t, SenderAI, last.Sender)
	assert.Equal(t, CompletionQuestionID, last.QuestionID)
	assert.Equal(t, CompletionMessageText, last.Text)

	// Completed is terminal: further submissions are rejected
	err := c.SubmitAnswer(context.Background(), "ancora")
	require.Error(t, err)
	assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))
	assert.Len(t, c.Transcript(), len(transcript))
}

func TestController_SubmitFailureKeepsTranscript(t *testing.T) {
	api := &fakeExerciseAPI{exercise: twoQuestionExercise()}
	api.submitFn = func(questionID, responseText string, responseTimeMs int) (*models.UserResponse, error) {
		return nil, contextutils.ErrQuestionNotFound
	}
	c, _, _ := newTestController(api)
	c.Start(context.Background())

	require.NoError(t, c.SubmitAnswer(context.Background(), "la mia risposta"))

	// Back to awaiting with an inline error; the optimistic answer entry stays
	assert.Equal(t, StateAwaitingAnswer, c.State())
	assert.Equal(t, "Question not found", c.SubmitError())
	assert.True(t, c.InputEnabled())

	transcript := c.Transcript()
	require.Len(t, transcript, 2)
	assert.Equal(t, MessageUserAnswer, transcript[1].Type)
	assert.Equal(t, "la mia risposta", transcript[1].Text)

	// A successful retry clears the inline error
	api.submitFn = func(questionID, responseText string, responseTimeMs int) (*models.UserResponse, error) {
		return gradedResponse("r1", questionID, true, "Ben fatto!"), nil
	}
	require.NoError(t, c.SubmitAnswer(context.Background(), "la mia risposta"))
	assert.Empty(t, c.SubmitError())
	assert.Equal(t, StateShowingFeedback, c.State())
}

func TestController_SubmitErrorMessages(t *testing.T) {
	tests := []struct {
		name      string
		submitErr error
		want      string
	}{
		{"unauthorized", contextutils.ErrUnauthorized, "You need to be logged in to submit answers"},
		{"forbidden", contextutils.ErrForbidden, "You do not have permission to answer this question"},
		{"question missing", contextutils.ErrQuestionNotFound, "Question not found"},
		{"generic", contextutils.ErrInternalError, "Failed to submit answer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeExerciseAPI{exercise: twoQuestionExercise()}
			api.submitFn = func(questionID, responseText string, responseTimeMs int) (*models.UserResponse, error) {
				return nil, tt.submitErr
			}
			c, _, _ := newTestController(api)
			c.Start(context.Background())

			require.NoError(t, c.SubmitAnswer(context.Background(), "risposta"))
			assert.Equal(t, tt.want, c.SubmitError())
		})
	}
}

func TestController_SubmitValidation(t *testing.T) {
	api := &fakeExerciseAPI{exercise: twoQuestionExercise()}
	c, _, _ := newTestController(api)

	t.Run("empty answer", func(t *testing.T) {
		err := c.SubmitAnswer(context.Background(), "")
		require.Error(t, err)
		assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))
	})

	t.Run("no question active", func(t *testing.T) {
		// Still loading; nothing to answer yet
		err := c.SubmitAnswer(context.Background(), "risposta")
		require.Error(t, err)
		assert.True(t, contextutils.IsError(err, contextutils.ErrInvalidInput))
	})
}

func TestController_DefaultFeedbackWhenMissing(t *testing.T) {
	api := &fakeExerciseAPI{exercise: twoQuestionExercise()}
	api.submitFn = func(questionID, responseText string, responseTimeMs int) (*models.UserResponse, error) {
		return gradedResponse("r1", questionID, true, ""), nil
	}
	c, _, _ := newTestController(api)
	c.Start(context.Background())

	require.NoError(t, c.SubmitAnswer(context.Background(), "risposta"))

	transcript := c.Transcript()
	require.Len(t, transcript, 3)
	assert.Equal(t, "Thank you for your answer.", transcript[2].Feedback)
}

func TestController_ResponseTimeResetsPerQuestion(t *testing.T) {
	api := &fakeExerciseAPI{exercise: twoQuestionExercise()}
	var recordedTimes []int
	api.submitFn = func(questionID, responseText string, responseTimeMs int) (*models.UserResponse, error) {
		recordedTimes = append(recordedTimes, responseTimeMs)
		return gradedResponse("r-"+questionID, questionID, true, "Ben fatto!"), nil
	}
	c, clock, scheduler := newTestController(api)
	c.Start(context.Background())

	clock.Advance(3 * time.Second)
	require.NoError(t, c.SubmitAnswer(context.Background(), "uno"))
	scheduler.Fire(t)

	// The timing baseline restarts when the next question appears
	clock.Advance(500 * time.Millisecond)
	require.NoError(t, c.SubmitAnswer(context.Background(), "due"))

	require.Len(t, recordedTimes, 2)
	assert.Equal(t, 3000, recordedTimes[0])
	assert.Equal(t, 500, recordedTimes[1])
}
