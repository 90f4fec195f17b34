package services

import (
	"encoding/json"

	contextutils "exercisesapp/internal/utils"

	"github.com/xeipuuv/gojsonschema"
)

// JSON Schema definitions for the three reply shapes the model gateway can
// return. They mirror the strict response_format descriptors sent with each
// request; validation here is the second line of defense for providers that
// ignore response_format.
const (
	// TextResponseSchema validates a plain generated-text reply
	TextResponseSchema = `{
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"language_of_response": {"type": ["string", "null"]},
			"arithmetical_value": {"type": ["number", "null"]}
		},
		"required": ["text"]
	}`

	// TextWithQuestionsSchema validates a generated passage with questions
	TextWithQuestionsSchema = `{
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"language_code": {"type": "string"},
			"questions": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"question": {"type": "string"}
					},
					"required": ["question"]
				}
			}
		},
		"required": ["text", "language_code", "questions"]
	}`

	// AnswerVerificationSchema validates a graded-answer reply
	AnswerVerificationSchema = `{
		"type": "object",
		"properties": {
			"correct": {"type": "boolean"},
			"feedback": {"type": "string"}
		},
		"required": ["correct", "feedback"]
	}`
)

// TextPayload is a plain generated-text reply.
type TextPayload struct {
	Text               string   `json:"text"`
	LanguageOfResponse string   `json:"language_of_response,omitempty"`
	ArithmeticalValue  *float64 `json:"arithmetical_value,omitempty"`
}

// GeneratedQuestion is one comprehension question in a generated exercise.
type GeneratedQuestion struct {
	Question string `json:"question"`
}

// TextWithQuestionsPayload is a generated passage plus its questions.
type TextWithQuestionsPayload struct {
	Text         string              `json:"text"`
	LanguageCode string              `json:"language_code"`
	Questions    []GeneratedQuestion `json:"questions"`
}

// AnswerVerificationPayload is a graded-answer reply.
type AnswerVerificationPayload struct {
	Correct  bool   `json:"correct"`
	Feedback string `json:"feedback"`
}

// ModelPayload is a tagged variant holding exactly one reply shape. When
// strict validation fails, the raw parsed object is kept in Unvalidated and
// Validated is false; callers must branch explicitly instead of trusting
// untyped data.
type ModelPayload struct {
	Validated          bool
	Text               *TextPayload
	TextWithQuestions  *TextWithQuestionsPayload
	AnswerVerification *AnswerVerificationPayload
	Unvalidated        map[string]interface{}
}

// ValidateModelPayload narrows a raw parsed object into one of the three
// known reply shapes. Selection policy: a questions array wins, then a
// correct boolean paired with feedback, then plain text. A strict-validation
// failure downgrades to the Unvalidated variant rather than erroring.
func ValidateModelPayload(raw map[string]interface{}) (*ModelPayload, error) {
	rawBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrGatewayResponseInvalid, "failed to re-encode model reply")
	}

	switch {
	case hasQuestionsArray(raw):
		if validatesAgainst(TextWithQuestionsSchema, rawBytes) {
			var payload TextWithQuestionsPayload
			if err := json.Unmarshal(rawBytes, &payload); err == nil {
				return &ModelPayload{Validated: true, TextWithQuestions: &payload}, nil
			}
		}
	case hasVerificationMarkers(raw):
		if validatesAgainst(AnswerVerificationSchema, rawBytes) {
			var payload AnswerVerificationPayload
			if err := json.Unmarshal(rawBytes, &payload); err == nil {
				return &ModelPayload{Validated: true, AnswerVerification: &payload}, nil
			}
		}
	default:
		if validatesAgainst(TextResponseSchema, rawBytes) {
			var payload TextPayload
			if err := json.Unmarshal(rawBytes, &payload); err == nil {
				return &ModelPayload{Validated: true, Text: &payload}, nil
			}
		}
	}

	// Permissive fallback: structurally close but strictly invalid payloads
	// pass through unvalidated so minor prompt/schema drift does not break
	// the pipeline.
	return &ModelPayload{Validated: false, Unvalidated: raw}, nil
}

func hasQuestionsArray(raw map[string]interface{}) bool {
	questions, ok := raw["questions"]
	if !ok {
		return false
	}
	_, isArray := questions.([]interface{})
	return isArray
}

func hasVerificationMarkers(raw map[string]interface{}) bool {
	correct, ok := raw["correct"]
	if !ok {
		return false
	}
	if _, isBool := correct.(bool); !isBool {
		return false
	}
	_, hasFeedback := raw["feedback"]
	return hasFeedback
}

func validatesAgainst(schema string, document []byte) bool {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(document),
	)
	return err == nil && result.Valid()
}
