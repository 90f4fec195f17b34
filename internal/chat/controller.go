// Package chat hosts the exercise chat controller: an explicit finite state
// machine driving the question/answer/feedback/next-question cycle for one
// exercise attempt. Transcript and timing state live only in the controller
// for the duration of the attempt.
package chat

import (
	"context"
	"sync"
	"time"

	"exercisesapp/internal/config"
	"exercisesapp/internal/models"
	"exercisesapp/internal/observability"
	contextutils "exercisesapp/internal/utils"

	"github.com/google/uuid"
)

// State is the controller's FSM state tag.
type State string

const (
	// StateLoadingInitial is the initial fetch of text and questions
	StateLoadingInitial State = "loading-initial"
	// StateAwaitingAnswer means a question is active and input is accepted
	StateAwaitingAnswer State = "awaiting-answer"
	// StateSubmitting means a grading call is in flight
	StateSubmitting State = "submitting"
	// StateShowingFeedback means feedback is displayed and a timer is armed
	StateShowingFeedback State = "showing-feedback"
	// StateCompleted is terminal; the completion sentinel has been appended
	StateCompleted State = "completed"
	// StateFailed means the initial load failed; the whole exercise is blocked
	StateFailed State = "failed"
)

// ExerciseAPI is the server surface the controller talks to.
type ExerciseAPI interface {
	LoadExercise(ctx context.Context, textID string) (*models.TextWithQuestions, error)
	SubmitResponse(ctx context.Context, questionID, responseText string, responseTimeMs int) (*models.UserResponse, error)
}

// Event is one input to the reducer.
type Event interface{ isEvent() }

type exerciseLoaded struct{ data *models.TextWithQuestions }
type loadFailed struct{ err error }
type answerSubmitted struct {
	text           string
	responseTimeMs int
}
type gradeArrived struct{ response *models.UserResponse }
type gradeFailed struct{ err error }
type advanceTimerFired struct{}

func (exerciseLoaded) isEvent()    {}
func (loadFailed) isEvent()        {}
func (answerSubmitted) isEvent()   {}
func (gradeArrived) isEvent()      {}
func (gradeFailed) isEvent()       {}
func (advanceTimerFired) isEvent() {}

// Controller owns one exercise attempt. All mutation goes through the
// reducer; public methods perform I/O and feed the resulting events in.
// Safe for concurrent use, though the flow is inherently sequential: at most
// one submission is in flight at a time.
type Controller struct {
	mu sync.Mutex

	api       ExerciseAPI
	clock     Clock
	scheduler Scheduler
	logger    *observability.Logger
	delay     time.Duration

	textID          string
	text            *models.TextWithQuestions
	questions       []models.Question
	currentIndex    int
	state           State
	transcript      []Message
	questionShownAt time.Time
	attemptCount    int
	loadError       string
	submitError     string
	lastGradeOK     bool
	pendingTimer    TimerHandle
}

// NewController creates a controller for one exercise attempt.
func NewController(api ExerciseAPI, clock Clock, scheduler Scheduler, logger *observability.Logger, textID string) *Controller {
	return &Controller{
		api:          api,
		clock:        clock,
		scheduler:    scheduler,
		logger:       logger,
		delay:        config.FeedbackAdvanceDelay,
		textID:       textID,
		currentIndex: -1,
		state:        StateLoadingInitial,
	}
}

// State returns the current FSM state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Transcript returns a copy of the append-only transcript.
func (c *Controller) Transcript() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// CurrentQuestion returns the active question, or nil when none is active.
func (c *Controller) CurrentQuestion() *models.Question {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.currentIndex < 0 || c.currentIndex >= len(c.questions) {
		return nil
	}
	q := c.questions[c.currentIndex]
	return &q
}

// AttemptCount returns how many answers have been submitted for the current
// question. Exposed so an attempt cap could be layered on.
func (c *Controller) AttemptCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attemptCount
}

// LoadError returns the blocking initial-load error message, if any.
func (c *Controller) LoadError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadError
}

// SubmitError returns the inline submission error message, if any. The
// transcript is preserved past submission errors.
func (c *Controller) SubmitError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitError
}

// InputEnabled reports whether the learner may submit an answer right now.
func (c *Controller) InputEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateAwaitingAnswer
}

// Start fetches the exercise and shows the first question. A fetch failure
// or an empty question list blocks the whole exercise.
func (c *Controller) Start(ctx context.Context) {
	data, err := c.api.LoadExercise(ctx, c.textID)
	if err != nil {
		c.logger.Warn(ctx, "Exercise load failed", map[string]interface{}{
			"text_id": c.textID,
			"error":   err.Error(),
		})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.apply(loadFailed{err: err})
		return
	}
	c.apply(exerciseLoaded{data: data})
}

// SubmitAnswer submits the learner's answer for grading. Rejected when no
// question is active or a submission is already in flight. The user_answer
// entry is appended optimistically before the grading call.
func (c *Controller) SubmitAnswer(ctx context.Context, answerText string) error {
	if answerText == "" {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "answer cannot be empty")
	}

	c.mu.Lock()
	if c.state != StateAwaitingAnswer {
		c.mu.Unlock()
		return contextutils.WrapError(contextutils.ErrInvalidInput, "no question is awaiting an answer")
	}
	question := c.questions[c.currentIndex]
	responseTimeMs := int(c.clock.Now().Sub(c.questionShownAt).Milliseconds())
	c.apply(answerSubmitted{text: answerText, responseTimeMs: responseTimeMs})
	c.mu.Unlock()

	// A submitted request always runs to completion or error; there is no
	// mid-submission cancellation.
	response, err := c.api.SubmitResponse(ctx, question.ID, answerText, responseTimeMs)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.apply(gradeFailed{err: err})
		return nil
	}
	c.apply(gradeArrived{response: response})
	return nil
}

// apply is the single reducer. Callers must hold c.mu.
func (c *Controller) apply(event Event) {
	switch e := event.(type) {
	case exerciseLoaded:
		if c.state != StateLoadingInitial {
			return
		}
		if e.data == nil || len(e.data.Questions) == 0 {
			c.state = StateFailed
			c.loadError = "The exercise has no questions."
			return
		}
		c.text = e.data
		c.questions = e.data.Questions
		c.currentIndex = 0
		c.state = StateAwaitingAnswer
		c.appendQuestion(c.questions[0])

	case loadFailed:
		if c.state != StateLoadingInitial {
			return
		}
		c.state = StateFailed
		c.loadError = loadErrorMessage(e.err)

	case answerSubmitted:
		if c.state != StateAwaitingAnswer {
			return
		}
		c.state = StateSubmitting
		c.submitError = ""
		c.attemptCount++
		c.transcript = append(c.transcript, Message{
			ID:             uuid.NewString(),
			Type:           MessageUserAnswer,
			Sender:         SenderUser,
			Text:           e.text,
			QuestionID:     c.questions[c.currentIndex].ID,
			ResponseTimeMs: e.responseTimeMs,
			Timestamp:      timestamp(c.clock),
		})

	case gradeArrived:
		if c.state != StateSubmitting {
			return
		}
		feedback := "Thank you for your answer."
		if e.response.Feedback.Valid {
			feedback = e.response.Feedback.String
		}
		c.transcript = append(c.transcript, Message{
			ID:             e.response.ID,
			Type:           MessageFeedbackResult,
			Sender:         SenderAI,
			QuestionID:     e.response.QuestionID,
			IsCorrect:      e.response.IsCorrect,
			Feedback:       feedback,
			UserResponseID: e.response.ID,
			Timestamp:      timestamp(c.clock),
		})
		c.state = StateShowingFeedback
		c.lastGradeOK = e.response.IsCorrect
		c.pendingTimer = c.scheduler.AfterFunc(c.delay, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.apply(advanceTimerFired{})
		})

	case gradeFailed:
		if c.state != StateSubmitting {
			return
		}
		// Inline error: keep the optimistic user_answer entry and let the
		// learner retry the same answer
		c.state = StateAwaitingAnswer
		c.submitError = submitErrorMessage(e.err)
		c.questionShownAt = c.clock.Now()

	case advanceTimerFired:
		c.advanceAfterFeedback(c.lastGradeOK)
	}
}

// advanceAfterFeedback runs when the feedback delay elapses: advance to the
// next question on a correct answer, repeat the same question otherwise.
// Callers must hold c.mu.
func (c *Controller) advanceAfterFeedback(correct bool) {
	if c.state != StateShowingFeedback {
		return
	}
	c.pendingTimer = nil

	if !correct {
		// Repeat the same question until the learner gets it right
		c.appendQuestion(c.questions[c.currentIndex])
		c.state = StateAwaitingAnswer
		return
	}

	c.attemptCount = 0
	if c.currentIndex < len(c.questions)-1 {
		c.currentIndex++
		c.appendQuestion(c.questions[c.currentIndex])
		c.state = StateAwaitingAnswer
		return
	}

	// Last question answered correctly: append the completion sentinel and
	// stop accepting input
	c.transcript = append(c.transcript, Message{
		ID:         uuid.NewString(),
		Type:       MessageAIQuestion,
		Sender:     SenderAI,
		Text:       CompletionMessageText,
		QuestionID: CompletionQuestionID,
		Timestamp:  timestamp(c.clock),
	})
	c.currentIndex = -1
	c.state = StateCompleted
}

// appendQuestion appends an ai_question entry and resets the answer-timing
// baseline. Callers must hold c.mu.
func (c *Controller) appendQuestion(q models.Question) {
	c.questionShownAt = c.clock.Now()
	c.transcript = append(c.transcript, Message{
		ID:         uuid.NewString(),
		Type:       MessageAIQuestion,
		Sender:     SenderAI,
		Text:       q.Content,
		QuestionID: q.ID,
		Timestamp:  timestamp(c.clock),
	})
}

// loadErrorMessage maps an initial-load failure to a learner-facing message.
func loadErrorMessage(err error) string {
	switch contextutils.GetErrorCode(err) {
	case contextutils.ErrorCodeTextNotFound, contextutils.ErrorCodeRecordNotFound:
		return "Exercise not found"
	case contextutils.ErrorCodeUnauthorized:
		return "You need to be logged in to access this exercise"
	case contextutils.ErrorCodeForbidden:
		return "You do not have permission to access this exercise"
	default:
		return "Failed to fetch exercise data"
	}
}

// submitErrorMessage maps a submission failure to a learner-facing message.
func submitErrorMessage(err error) string {
	switch contextutils.GetErrorCode(err) {
	case contextutils.ErrorCodeUnauthorized:
		return "You need to be logged in to submit answers"
	case contextutils.ErrorCodeForbidden:
		return "You do not have permission to answer this question"
	case contextutils.ErrorCodeQuestionNotFound, contextutils.ErrorCodeRecordNotFound:
		return "Question not found"
	default:
		return "Failed to submit answer"
	}
}
