package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"exercisesapp/internal/config"
	"exercisesapp/internal/models"
	"exercisesapp/internal/observability"
	contextutils "exercisesapp/internal/utils"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Pagination bounds for text listing
const (
	DefaultListLimit = 12
	MaxListLimit     = 50
)

// ExerciseService manages exercise texts, their questions, and graded user
// responses.
type ExerciseService struct {
	db      *sql.DB
	gateway Gateway
	cfg     *config.Config
	logger  *observability.Logger
}

// NewExerciseService creates an exercise service with an explicit gateway
// dependency for text generation.
func NewExerciseService(db *sql.DB, gateway Gateway, cfg *config.Config, logger *observability.Logger) *ExerciseService {
	return &ExerciseService{db: db, gateway: gateway, cfg: cfg, logger: logger}
}

// TextListFilter narrows a text listing.
type TextListFilter struct {
	LanguageID string
	Limit      int
	Offset     int
}

// GenerateExercise asks the model gateway for a passage with comprehension
// questions and persists both transactionally.
func (s *ExerciseService) GenerateExercise(ctx context.Context, userID, languageID, levelID, topic string, visibility models.Visibility) (result0 *models.TextWithQuestions, err error) {
	ctx, span := observability.TraceExerciseFunction(ctx, "GenerateExercise",
		observability.AttributeUserID(userID),
		attribute.String("language.id", languageID),
		attribute.String("level.id", levelID),
	)
	defer observability.FinishSpan(span, &err)

	if topic == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "topic is required")
	}
	if !visibility.Valid() {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "visibility must be public or private")
	}

	language, level, err := s.loadReferenceData(ctx, languageID, levelID)
	if err != nil {
		return nil, err
	}

	prompt := BuildGenerationPrompt(topic, language.Name, language.Code, level.Name, level.Description)
	payload, err := s.gateway.SendMessage(ctx, prompt, ExerciseGeneratorTemplate, nil)
	if err != nil {
		return nil, contextutils.WrapError(err, "exercise generation failed")
	}
	if payload.TextWithQuestions == nil {
		return nil, contextutils.WrapError(contextutils.ErrGatewayResponseInvalid, "generation reply did not contain a text with questions")
	}
	generated := payload.TextWithQuestions
	if len(generated.Questions) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrGatewayResponseInvalid, "generation reply contained no questions")
	}

	now := time.Now().UTC()
	text := models.Text{
		ID:                 uuid.NewString(),
		Title:              topic,
		Content:            generated.Text,
		LanguageID:         languageID,
		ProficiencyLevelID: levelID,
		Topic:              topic,
		Visibility:         visibility,
		UserID:             userID,
		WordCount:          CountWords(generated.Text),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	questions := make([]models.Question, 0, len(generated.Questions))
	for _, q := range generated.Questions {
		questions = append(questions, models.Question{
			ID:        uuid.NewString(),
			TextID:    text.ID,
			Content:   q.Question,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.persistExercise(ctx, &text, questions); err != nil {
		return nil, err
	}

	return &models.TextWithQuestions{
		Text:             text,
		Language:         *language,
		ProficiencyLevel: *level,
		Questions:        questions,
	}, nil
}

// loadReferenceData fetches the language and proficiency level rows needed
// to build the generation prompt.
func (s *ExerciseService) loadReferenceData(ctx context.Context, languageID, levelID string) (*models.Language, *models.ProficiencyLevel, error) {
	var language models.Language
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, code, created_at FROM languages WHERE id = $1`, languageID).
		Scan(&language.ID, &language.Name, &language.Code, &language.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, contextutils.WrapError(contextutils.ErrInvalidInput, "language not found")
		}
		return nil, nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}

	var level models.ProficiencyLevel
	err = s.db.QueryRowContext(ctx,
		`SELECT id, name, description, display_order, created_at FROM proficiency_levels WHERE id = $1`, levelID).
		Scan(&level.ID, &level.Name, &level.Description, &level.DisplayOrder, &level.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, contextutils.WrapError(contextutils.ErrInvalidInput, "proficiency level not found")
		}
		return nil, nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}

	return &language, &level, nil
}

// persistExercise inserts the text and its questions in one transaction.
func (s *ExerciseService) persistExercise(ctx context.Context, text *models.Text, questions []models.Question) (err error) {
	ctx, span := observability.TraceDatabaseFunction(ctx, "persistExercise",
		observability.AttributeTextID(text.ID),
		attribute.Int("questions.count", len(questions)),
	)
	defer observability.FinishSpan(span, &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return contextutils.WrapError(contextutils.ErrDatabaseConnection, err.Error())
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Error(ctx, "Failed to roll back exercise transaction", rbErr)
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO texts (id, title, content, language_id, proficiency_level_id, topic, visibility, user_id, word_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		text.ID, text.Title, text.Content, text.LanguageID, text.ProficiencyLevelID,
		text.Topic, text.Visibility, text.UserID, text.WordCount, text.CreatedAt, text.UpdatedAt)
	if err != nil {
		return contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}

	for _, q := range questions {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO questions (id, text_id, content, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
			q.ID, q.TextID, q.Content, q.CreatedAt, q.UpdatedAt)
		if err != nil {
			return contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
		}
	}

	if err = tx.Commit(); err != nil {
		return contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	return nil
}

// GetTextWithQuestions returns a text with its language, level, and question
// set. Private texts are only visible to their owner.
func (s *ExerciseService) GetTextWithQuestions(ctx context.Context, textID, userID string) (result0 *models.TextWithQuestions, err error) {
	ctx, span := observability.TraceExerciseFunction(ctx, "GetTextWithQuestions",
		observability.AttributeTextID(textID),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT t.id, t.title, t.content, t.language_id, t.proficiency_level_id, t.topic,
		       t.visibility, t.user_id, t.word_count, t.created_at, t.updated_at,
		       l.id, l.name, l.code, l.created_at,
		       pl.id, pl.name, pl.description, pl.display_order, pl.created_at
		FROM texts t
		JOIN languages l ON l.id = t.language_id
		JOIN proficiency_levels pl ON pl.id = t.proficiency_level_id
		WHERE t.id = $1`

	var result models.TextWithQuestions
	err = s.db.QueryRowContext(ctx, query, textID).Scan(
		&result.ID, &result.Title, &result.Content, &result.LanguageID, &result.ProficiencyLevelID,
		&result.Topic, &result.Visibility, &result.UserID, &result.WordCount, &result.CreatedAt, &result.UpdatedAt,
		&result.Language.ID, &result.Language.Name, &result.Language.Code, &result.Language.CreatedAt,
		&result.ProficiencyLevel.ID, &result.ProficiencyLevel.Name, &result.ProficiencyLevel.Description,
		&result.ProficiencyLevel.DisplayOrder, &result.ProficiencyLevel.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrTextNotFound
		}
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}

	if result.Visibility == models.VisibilityPrivate && result.UserID != userID {
		return nil, contextutils.ErrForbidden
	}

	result.Questions, err = s.listQuestions(ctx, textID)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (s *ExerciseService) listQuestions(ctx context.Context, textID string) ([]models.Question, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text_id, content, created_at, updated_at FROM questions WHERE text_id = $1 ORDER BY created_at`, textID)
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close questions rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var questions []models.Question
	for rows.Next() {
		var q models.Question
		if err := rows.Scan(&q.ID, &q.TextID, &q.Content, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	return questions, nil
}

// ListTexts returns texts visible to the user: their own plus public ones,
// newest first, optionally filtered by language.
func (s *ExerciseService) ListTexts(ctx context.Context, userID string, filter TextListFilter) (result0 []models.Text, err error) {
	ctx, span := observability.TraceExerciseFunction(ctx, "ListTexts",
		observability.AttributeUserID(userID),
		observability.AttributeLimit(filter.Limit),
		observability.AttributeOffset(filter.Offset),
	)
	defer observability.FinishSpan(span, &err)

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, title, content, language_id, proficiency_level_id, topic,
		       visibility, user_id, word_count, created_at, updated_at
		FROM texts
		WHERE (visibility = 'public' OR user_id = $1)`
	args := []interface{}{userID}

	if filter.LanguageID != "" {
		query += ` AND language_id = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`
		args = append(args, filter.LanguageID, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close texts rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var texts []models.Text
	for rows.Next() {
		var t models.Text
		if err := rows.Scan(&t.ID, &t.Title, &t.Content, &t.LanguageID, &t.ProficiencyLevelID,
			&t.Topic, &t.Visibility, &t.UserID, &t.WordCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
		}
		texts = append(texts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	return texts, nil
}

// UpdateTextVisibility changes a text's visibility. Owner only; content
// itself is immutable.
func (s *ExerciseService) UpdateTextVisibility(ctx context.Context, textID, userID string, visibility models.Visibility) (err error) {
	ctx, span := observability.TraceExerciseFunction(ctx, "UpdateTextVisibility",
		observability.AttributeTextID(textID),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	if !visibility.Valid() {
		return contextutils.WrapError(contextutils.ErrInvalidInput, "visibility must be public or private")
	}

	ownerID, err := s.textOwner(ctx, textID)
	if err != nil {
		return err
	}
	if ownerID != userID {
		return contextutils.ErrForbidden
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE texts SET visibility = $1, updated_at = $2 WHERE id = $3`,
		visibility, time.Now().UTC(), textID)
	if err != nil {
		return contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	return nil
}

// DeleteText removes a text and, via cascade, its questions and responses.
// Owner only.
func (s *ExerciseService) DeleteText(ctx context.Context, textID, userID string) (err error) {
	ctx, span := observability.TraceExerciseFunction(ctx, "DeleteText",
		observability.AttributeTextID(textID),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	ownerID, err := s.textOwner(ctx, textID)
	if err != nil {
		return err
	}
	if ownerID != userID {
		return contextutils.ErrForbidden
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM texts WHERE id = $1`, textID)
	if err != nil {
		return contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	return nil
}

func (s *ExerciseService) textOwner(ctx context.Context, textID string) (string, error) {
	var ownerID string
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM texts WHERE id = $1`, textID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", contextutils.ErrTextNotFound
		}
		return "", contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	return ownerID, nil
}

// CreateResponse records one graded answer submission. Rows are insert-only;
// resubmitting the same answer produces a distinct new row.
func (s *ExerciseService) CreateResponse(ctx context.Context, questionID, userID, responseText string, responseTimeMs int, graded *models.GradedAnswer) (result0 *models.UserResponse, err error) {
	ctx, span := observability.TraceExerciseFunction(ctx, "CreateResponse",
		observability.AttributeQuestionID(questionID),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	response := models.UserResponse{
		ID:             uuid.NewString(),
		QuestionID:     questionID,
		UserID:         userID,
		ResponseText:   responseText,
		IsCorrect:      graded.Correct,
		ResponseTimeMs: responseTimeMs,
		CreatedAt:      time.Now().UTC(),
	}
	if graded.Feedback != "" {
		response.Feedback = sql.NullString{String: graded.Feedback, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_responses (id, question_id, user_id, response_text, is_correct, feedback, response_time_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		response.ID, response.QuestionID, response.UserID, response.ResponseText,
		response.IsCorrect, response.Feedback, response.ResponseTimeMs, response.CreatedAt)
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}

	return &response, nil
}

// AuthorizeQuestionAccess verifies the question exists and its owning text is
// readable by the user. Questions on a private text accept answers from the
// text's owner only.
func (s *ExerciseService) AuthorizeQuestionAccess(ctx context.Context, questionID, userID string) (err error) {
	ctx, span := observability.TraceExerciseFunction(ctx, "AuthorizeQuestionAccess",
		observability.AttributeQuestionID(questionID),
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	var visibility models.Visibility
	var ownerID string
	err = s.db.QueryRowContext(ctx,
		`SELECT t.visibility, t.user_id FROM questions q JOIN texts t ON t.id = q.text_id WHERE q.id = $1`,
		questionID).Scan(&visibility, &ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return contextutils.ErrQuestionNotFound
		}
		return contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}

	if visibility == models.VisibilityPrivate && ownerID != userID {
		return contextutils.ErrForbidden
	}
	return nil
}

// ListLanguages returns all languages ordered by name.
func (s *ExerciseService) ListLanguages(ctx context.Context) (result0 []models.Language, err error) {
	ctx, span := observability.TraceExerciseFunction(ctx, "ListLanguages")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, code, created_at FROM languages ORDER BY name`)
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close languages rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var languages []models.Language
	for rows.Next() {
		var l models.Language
		if err := rows.Scan(&l.ID, &l.Name, &l.Code, &l.CreatedAt); err != nil {
			return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
		}
		languages = append(languages, l)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	return languages, nil
}

// ListProficiencyLevels returns all levels in display order.
func (s *ExerciseService) ListProficiencyLevels(ctx context.Context) (result0 []models.ProficiencyLevel, err error) {
	ctx, span := observability.TraceExerciseFunction(ctx, "ListProficiencyLevels")
	defer observability.FinishSpan(span, &err)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, display_order, created_at FROM proficiency_levels ORDER BY display_order`)
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			s.logger.Warn(ctx, "Failed to close levels rows", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	var levels []models.ProficiencyLevel
	for rows.Next() {
		var l models.ProficiencyLevel
		if err := rows.Scan(&l.ID, &l.Name, &l.Description, &l.DisplayOrder, &l.CreatedAt); err != nil {
			return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
		}
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	return levels, nil
}
