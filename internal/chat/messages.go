package chat

import "time"

// CompletionQuestionID is the sentinel question id carried by the synthetic
// completion message. It is never a real question identity.
const CompletionQuestionID = "completion"

// CompletionMessageText is the terminal message appended after the last
// question is answered correctly.
const CompletionMessageText = "Congratulations! You have completed all questions for this exercise."

// MessageType discriminates transcript entries.
type MessageType string

const (
	// MessageAIQuestion is a question (or the completion sentinel) from the tutor
	MessageAIQuestion MessageType = "ai_question"
	// MessageUserAnswer is the learner's submitted answer
	MessageUserAnswer MessageType = "user_answer"
	// MessageFeedbackResult carries the graded outcome for an answer
	MessageFeedbackResult MessageType = "feedback_result"
	// MessageLoadingAI is a transient placeholder while grading is in flight
	MessageLoadingAI MessageType = "loading_ai"
)

// Sender tags who produced a transcript entry.
type Sender string

const (
	// SenderAI marks tutor-generated entries
	SenderAI Sender = "ai"
	// SenderUser marks learner-generated entries
	SenderUser Sender = "user"
)

// Message is one transcript entry. The transcript is append-only, ordered by
// occurrence, and never persisted server-side.
type Message struct {
	ID             string      `json:"id"`
	Type           MessageType `json:"type"`
	Sender         Sender      `json:"sender"`
	Text           string      `json:"text,omitempty"`
	QuestionID     string      `json:"question_id,omitempty"`
	ResponseTimeMs int         `json:"response_time_ms,omitempty"`
	IsCorrect      bool        `json:"is_correct,omitempty"`
	Feedback       string      `json:"feedback,omitempty"`
	UserResponseID string      `json:"user_response_id,omitempty"`
	Timestamp      string      `json:"timestamp"`
}

func timestamp(clock Clock) string {
	return clock.Now().UTC().Format(time.RFC3339)
}
