package services

import (
	"context"
	"database/sql"

	"exercisesapp/internal/config"
	"exercisesapp/internal/models"
	"exercisesapp/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// safeDefaultFeedback is returned whenever evaluation cannot complete at all.
const safeDefaultFeedback = "Sorry, we could not evaluate your answer at this time. Please try again."

// FeedbackService grades free-text answers. It asks the model gateway first
// and falls back to a local keyword-overlap grader when the gateway fails.
// EvaluateAnswer never returns an error: every failure degrades to a safe
// default so a broken model call never blocks a learner from getting feedback.
type FeedbackService struct {
	db      *sql.DB
	gateway Gateway
	cfg     *config.Config
	logger  *observability.Logger
}

// NewFeedbackService creates a feedback service with an explicit gateway
// dependency.
func NewFeedbackService(db *sql.DB, gateway Gateway, cfg *config.Config, logger *observability.Logger) *FeedbackService {
	return &FeedbackService{db: db, gateway: gateway, cfg: cfg, logger: logger}
}

// questionContext is the joined question/text/language/level row the grading
// prompt is built from.
type questionContext struct {
	QuestionContent  string
	PassageContent   string
	LanguageName     string
	LanguageCode     string
	ProficiencyLevel string
}

// EvaluateAnswer grades userAnswer against the question's passage. The
// returned result is always usable; failures inside are absorbed.
func (s *FeedbackService) EvaluateAnswer(ctx context.Context, questionID, userAnswer string) (result *models.GradedAnswer) {
	ctx, span := observability.TraceFeedbackFunction(ctx, "EvaluateAnswer",
		observability.AttributeQuestionID(questionID),
	)
	var spanErr error
	defer observability.FinishSpan(span, &spanErr)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "Panic during answer evaluation", nil, map[string]interface{}{
				"question_id": questionID,
				"panic":       r,
			})
			result = &models.GradedAnswer{Correct: false, Feedback: safeDefaultFeedback}
		}
	}()

	qc, err := s.loadQuestionContext(ctx, questionID)
	if err != nil {
		spanErr = err
		s.logger.Error(ctx, "Failed to load question context for grading", err, map[string]interface{}{
			"question_id": questionID,
		})
		return &models.GradedAnswer{Correct: false, Feedback: safeDefaultFeedback}
	}

	return s.gradeWithGateway(ctx, qc, userAnswer)
}

// gradeWithGateway grades a loaded question context: model grading first,
// heuristic grading when the gateway fails or its reply is unusable.
func (s *FeedbackService) gradeWithGateway(ctx context.Context, qc *questionContext, userAnswer string) *models.GradedAnswer {
	span := trace.SpanFromContext(ctx)

	systemPrompt := BuildLanguageTeacherPrompt(qc.LanguageName, qc.LanguageCode, qc.ProficiencyLevel)
	prompt := BuildGradingPrompt(qc.PassageContent, qc.QuestionContent, userAnswer, qc.LanguageName, qc.ProficiencyLevel)

	payload, err := s.gateway.SendMessage(ctx, prompt, systemPrompt, nil)
	if err != nil {
		s.logger.Warn(ctx, "Gateway grading failed, using heuristic grader", map[string]interface{}{
			"error": err.Error(),
		})
		span.SetAttributes(attribute.String("grading.mode", "heuristic"))
		return s.heuristicGrade(qc.PassageContent, qc.QuestionContent, userAnswer)
	}

	if graded, ok := extractVerification(payload); ok {
		span.SetAttributes(attribute.String("grading.mode", "model"), attribute.Bool("grading.correct", graded.Correct))
		return graded
	}

	s.logger.Warn(ctx, "Gateway reply had no usable verification, using heuristic grader")
	span.SetAttributes(attribute.String("grading.mode", "heuristic"))
	return s.heuristicGrade(qc.PassageContent, qc.QuestionContent, userAnswer)
}

// loadQuestionContext fetches the question and its passage, language, and
// level in a single joined query.
func (s *FeedbackService) loadQuestionContext(ctx context.Context, questionID string) (result0 *questionContext, err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "loadQuestionContext",
		observability.AttributeQuestionID(questionID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT q.content, t.content, l.name, l.code, pl.name
		FROM questions q
		JOIN texts t ON t.id = q.text_id
		JOIN languages l ON l.id = t.language_id
		JOIN proficiency_levels pl ON pl.id = t.proficiency_level_id
		WHERE q.id = $1`

	var qc questionContext
	err = s.db.QueryRowContext(ctx, query, questionID).Scan(
		&qc.QuestionContent,
		&qc.PassageContent,
		&qc.LanguageName,
		&qc.LanguageCode,
		&qc.ProficiencyLevel,
	)
	if err != nil {
		return nil, err
	}
	return &qc, nil
}

// extractVerification pulls a graded result out of a gateway payload.
// Validated AnswerVerification is the expected shape; an Unvalidated object
// is still accepted when both fields are extractable.
func extractVerification(payload *ModelPayload) (*models.GradedAnswer, bool) {
	if payload == nil {
		return nil, false
	}
	if payload.AnswerVerification != nil {
		return &models.GradedAnswer{
			Correct:  payload.AnswerVerification.Correct,
			Feedback: payload.AnswerVerification.Feedback,
		}, true
	}
	if payload.Unvalidated != nil {
		correct, okCorrect := payload.Unvalidated["correct"].(bool)
		feedback, okFeedback := payload.Unvalidated["feedback"].(string)
		if okCorrect && okFeedback {
			return &models.GradedAnswer{Correct: correct, Feedback: feedback}, true
		}
	}
	return nil, false
}
