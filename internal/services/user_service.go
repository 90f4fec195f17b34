package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"exercisesapp/internal/models"
	"exercisesapp/internal/observability"
	contextutils "exercisesapp/internal/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// UserService manages user accounts and credential checks for the session
// identity provider.
type UserService struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewUserService creates a user service.
func NewUserService(db *sql.DB, logger *observability.Logger) *UserService {
	return &UserService{db: db, logger: logger}
}

// CreateUser registers a new user with a bcrypt-hashed password.
func (s *UserService) CreateUser(ctx context.Context, email, password string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "CreateUser")
	defer observability.FinishSpan(span, &err)

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "a valid email is required")
	}
	if len(password) < 8 {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to hash password")
	}

	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, created_at) VALUES ($1, $2, $3, $4)`,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, contextutils.WrapError(contextutils.ErrRecordExists, "email already registered")
		}
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}

	return &user, nil
}

// AuthenticateUser checks credentials and returns the user on success.
// Unknown email and wrong password return the same error.
func (s *UserService) AuthenticateUser(ctx context.Context, email, password string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "AuthenticateUser")
	defer observability.FinishSpan(span, &err)

	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err = s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE email = $1`, email).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrInvalidCredentials
		}
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, contextutils.ErrInvalidCredentials
	}

	return &user, nil
}

// GetUserByID returns the user with the given id.
func (s *UserService) GetUserByID(ctx context.Context, userID string) (result0 *models.User, err error) {
	ctx, span := observability.TraceUserFunction(ctx, "GetUserByID",
		observability.AttributeUserID(userID),
	)
	defer observability.FinishSpan(span, &err)

	var user models.User
	err = s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM users WHERE id = $1`, userID).
		Scan(&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.ErrRecordNotFound
		}
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, err.Error())
	}
	return &user, nil
}
