package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseJSON(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &parsed))
	return parsed
}

func TestValidateModelPayload_TextWithQuestions(t *testing.T) {
	raw := parseJSON(t, `{
		"text": "Un breve racconto.",
		"language_code": "it",
		"questions": [
			{"question": "Chi e il protagonista?"},
			{"question": "Dove si svolge la storia?"}
		]
	}`)

	payload, err := ValidateModelPayload(raw)
	require.NoError(t, err)

	assert.True(t, payload.Validated)
	require.NotNil(t, payload.TextWithQuestions)
	assert.Nil(t, payload.Text)
	assert.Nil(t, payload.AnswerVerification)
	assert.Equal(t, "Un breve racconto.", payload.TextWithQuestions.Text)
	assert.Equal(t, "it", payload.TextWithQuestions.LanguageCode)
	assert.Len(t, payload.TextWithQuestions.Questions, 2)
}

func TestValidateModelPayload_AnswerVerification(t *testing.T) {
	raw := parseJSON(t, `{"correct": true, "feedback": "Ben fatto!"}`)

	payload, err := ValidateModelPayload(raw)
	require.NoError(t, err)

	assert.True(t, payload.Validated)
	require.NotNil(t, payload.AnswerVerification)
	assert.True(t, payload.AnswerVerification.Correct)
	assert.Equal(t, "Ben fatto!", payload.AnswerVerification.Feedback)
}

func TestValidateModelPayload_Text(t *testing.T) {
	raw := parseJSON(t, `{"text": "Solo testo.", "language_of_response": "it"}`)

	payload, err := ValidateModelPayload(raw)
	require.NoError(t, err)

	assert.True(t, payload.Validated)
	require.NotNil(t, payload.Text)
	assert.Equal(t, "Solo testo.", payload.Text.Text)
	assert.Equal(t, "it", payload.Text.LanguageOfResponse)
}

func TestValidateModelPayload_SelectionPolicy(t *testing.T) {
	t.Run("questions array wins over verification markers", func(t *testing.T) {
		raw := parseJSON(t, `{
			"text": "Testo",
			"language_code": "it",
			"questions": [{"question": "q1"}],
			"correct": true,
			"feedback": "noise"
		}`)

		payload, err := ValidateModelPayload(raw)
		require.NoError(t, err)
		assert.NotNil(t, payload.TextWithQuestions)
		assert.Nil(t, payload.AnswerVerification)
	})

	t.Run("non-array questions field does not select questions shape", func(t *testing.T) {
		raw := parseJSON(t, `{"questions": "not an array", "correct": true, "feedback": "ok"}`)

		payload, err := ValidateModelPayload(raw)
		require.NoError(t, err)
		assert.NotNil(t, payload.AnswerVerification)
	})

	t.Run("non-boolean correct does not select verification shape", func(t *testing.T) {
		raw := parseJSON(t, `{"correct": "yes", "feedback": "ok", "text": "fallback"}`)

		payload, err := ValidateModelPayload(raw)
		require.NoError(t, err)
		assert.NotNil(t, payload.Text)
		assert.Nil(t, payload.AnswerVerification)
	})
}

func TestValidateModelPayload_UnvalidatedFallback(t *testing.T) {
	t.Run("questions shape missing required field", func(t *testing.T) {
		// language_code is required by the strict schema
		raw := parseJSON(t, `{"text": "Testo", "questions": [{"question": "q1"}]}`)

		payload, err := ValidateModelPayload(raw)
		require.NoError(t, err)

		assert.False(t, payload.Validated)
		assert.Nil(t, payload.TextWithQuestions)
		require.NotNil(t, payload.Unvalidated)
		assert.Equal(t, "Testo", payload.Unvalidated["text"])
	})

	t.Run("object with none of the known shapes", func(t *testing.T) {
		raw := parseJSON(t, `{"unexpected": 42}`)

		payload, err := ValidateModelPayload(raw)
		require.NoError(t, err)

		assert.False(t, payload.Validated)
		require.NotNil(t, payload.Unvalidated)
		assert.Equal(t, float64(42), payload.Unvalidated["unexpected"])
	})
}
