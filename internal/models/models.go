// Package models defines the persistent and API data structures for the
// exercises application.
package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Visibility controls who can read an exercise text.
type Visibility string

const (
	// VisibilityPublic makes a text readable by any authenticated user
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate restricts a text to its owner
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility value.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// User represents a registered user. Passwords are stored as bcrypt hashes.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Language represents a language exercises can be generated in.
type Language struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Code      string    `json:"code" db:"code"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ProficiencyLevel represents a CEFR proficiency level (A1 through C2).
type ProficiencyLevel struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	DisplayOrder int       `json:"display_order" db:"display_order"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Text represents a generated reading passage. Content is immutable after
// creation; only visibility may change, and only by the owner.
type Text struct {
	ID                 string     `json:"id" db:"id"`
	Title              string     `json:"title" db:"title"`
	Content            string     `json:"content" db:"content"`
	LanguageID         string     `json:"language_id" db:"language_id"`
	ProficiencyLevelID string     `json:"proficiency_level_id" db:"proficiency_level_id"`
	Topic              string     `json:"topic" db:"topic"`
	Visibility         Visibility `json:"visibility" db:"visibility"`
	UserID             string     `json:"user_id" db:"user_id"`
	WordCount          int        `json:"word_count" db:"word_count"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// Question represents a comprehension question attached to a text.
// Questions are immutable.
type Question struct {
	ID        string    `json:"id" db:"id"`
	TextID    string    `json:"text_id" db:"text_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserResponse records one answer submission. Rows are insert-only; every
// attempt at a question gets its own row, duplicates included.
type UserResponse struct {
	ID             string         `json:"id" db:"id"`
	QuestionID     string         `json:"question_id" db:"question_id"`
	UserID         string         `json:"user_id" db:"user_id"`
	ResponseText   string         `json:"response_text" db:"response_text"`
	IsCorrect      bool           `json:"is_correct" db:"is_correct"`
	Feedback       sql.NullString `json:"-" db:"feedback"`
	ResponseTimeMs int            `json:"response_time_ms" db:"response_time_ms"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// MarshalJSON renders the nullable feedback column as a plain string or null.
func (r UserResponse) MarshalJSON() ([]byte, error) {
	type alias UserResponse
	var feedback *string
	if r.Feedback.Valid {
		feedback = &r.Feedback.String
	}
	return json.Marshal(struct {
		alias
		Feedback *string `json:"feedback"`
	}{alias(r), feedback})
}

// TextWithQuestions is the full exercise view returned by the API: the
// passage with its language, level and questions resolved.
type TextWithQuestions struct {
	Text
	Language         Language         `json:"language"`
	ProficiencyLevel ProficiencyLevel `json:"proficiency_level"`
	Questions        []Question       `json:"questions"`
}

// GradedAnswer is the outcome of evaluating a learner's answer.
type GradedAnswer struct {
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback"`
}
