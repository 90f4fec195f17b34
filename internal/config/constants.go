package config

import "time"

// Timeout constants
const (
	// HTTP timeouts
	DefaultHTTPTimeout = 60 * time.Second

	// Database timeouts
	DatabaseConnMaxLifetime = 5 * time.Minute

	// Session timeouts
	SessionMaxAge = 7 * 24 * time.Hour // 7 days
)

// Model gateway defaults
const (
	DefaultGatewayModel          = "openai/gpt-4o-mini"
	DefaultGatewayTemperature    = 0.7
	DefaultGatewayMaxTokens      = 400
	DefaultGatewayTopP           = 1.0
	DefaultGatewayRetryLimit     = 3
	DefaultGatewayRequestTimeout = 30 * time.Second
)

// Heuristic grader defaults
const (
	DefaultGraderMinKeywordLength = 3 // content words must be strictly longer than this
	DefaultGraderMinCandidates    = 5
	DefaultGraderThresholdDivisor = 3
)

// Exercise generation defaults
const (
	// GradingExcerptLength caps the passage excerpt embedded in the grading prompt
	GradingExcerptLength = 500

	// FeedbackAdvanceDelay is how long the chat controller lets the learner
	// read feedback before advancing or repeating the question
	FeedbackAdvanceDelay = 2 * time.Second
)

// Session configuration constants
const (
	// Session settings
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionSecure   = false // Set to true in production with HTTPS

	// Session name
	SessionName = "exercises-session"
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:;"
)
