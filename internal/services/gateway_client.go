package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"exercisesapp/internal/config"
	"exercisesapp/internal/observability"
	contextutils "exercisesapp/internal/utils"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Gateway is the interface consumed by services that talk to the external
// chat-completion endpoint. Satisfied by GatewayClient; tests substitute fakes.
type Gateway interface {
	SendMessage(ctx context.Context, userText, systemText string, extra *SamplingParams) (*ModelPayload, error)
}

// SamplingParams are per-call overrides for the default model parameters.
// Nil fields fall back to the client defaults.
type SamplingParams struct {
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
}

// ResponseFormat is the strict JSON-schema response descriptor attached to
// gateway requests.
type ResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema *JSONSchemaSpec `json:"json_schema,omitempty"`
}

// JSONSchemaSpec names a JSON schema for the response_format descriptor.
type JSONSchemaSpec struct {
	Name   string          `json:"name"`
	Strict bool            `json:"strict"`
	Schema json.RawMessage `json:"schema"`
}

// TextResponseFormat returns the response descriptor for plain text replies.
func TextResponseFormat() *ResponseFormat {
	return &ResponseFormat{
		Type:       "json_schema",
		JSONSchema: &JSONSchemaSpec{Name: "text_response", Strict: true, Schema: json.RawMessage(TextResponseSchema)},
	}
}

// TextWithQuestionsResponseFormat returns the response descriptor for
// generated exercises.
func TextWithQuestionsResponseFormat() *ResponseFormat {
	return &ResponseFormat{
		Type:       "json_schema",
		JSONSchema: &JSONSchemaSpec{Name: "text_with_questions", Strict: true, Schema: json.RawMessage(TextWithQuestionsSchema)},
	}
}

// AnswerVerificationResponseFormat returns the response descriptor for
// graded answers.
func AnswerVerificationResponseFormat() *ResponseFormat {
	return &ResponseFormat{
		Type:       "json_schema",
		JSONSchema: &JSONSchemaSpec{Name: "answer_verification", Strict: true, Schema: json.RawMessage(AnswerVerificationSchema)},
	}
}

// gatewayMessage is one role-tagged message in the request payload.
type gatewayMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// gatewayRequest is the chat-completion request body.
type gatewayRequest struct {
	Messages         []gatewayMessage `json:"messages"`
	Model            string           `json:"model"`
	ResponseFormat   *ResponseFormat  `json:"response_format,omitempty"`
	Temperature      float64          `json:"temperature,omitempty"`
	MaxTokens        int              `json:"max_tokens,omitempty"`
	TopP             float64          `json:"top_p,omitempty"`
	FrequencyPenalty float64          `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64          `json:"presence_penalty,omitempty"`
}

// gatewayResponse is the chat-completion response envelope. Content may be a
// JSON string or an embedded object, so it stays raw until parsing.
type gatewayResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GatewayClient wraps the external chat-completion endpoint with request
// construction, bounded retry with exponential backoff, per-attempt timeout,
// and reply validation. Instances are cheap; construct one per use case.
type GatewayClient struct {
	cfg            config.GatewayConfig
	responseFormat *ResponseFormat
	httpClient     *http.Client
	logger         *observability.Logger

	// sleep is swapped in tests to avoid real backoff waits
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGatewayClient creates a gateway client with the given response format.
// A nil format omits the response_format descriptor from requests.
func NewGatewayClient(cfg config.GatewayConfig, format *ResponseFormat, logger *observability.Logger) *GatewayClient {
	cfg.ApplyDefaults()
	return &GatewayClient{
		cfg:            cfg,
		responseFormat: format,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanOptions(trace.WithSpanKind(trace.SpanKindClient)),
			),
		},
		logger: logger,
		sleep:  sleepWithContext,
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SendMessage sends a [system, user] message pair to the gateway and returns
// the validated reply. Failures other than HTTP 400/401 are retried with
// exponential backoff up to the configured retry limit.
func (c *GatewayClient) SendMessage(ctx context.Context, userText, systemText string, extra *SamplingParams) (result0 *ModelPayload, err error) {
	ctx, span := observability.TraceGatewayFunction(ctx, "SendMessage",
		attribute.String("gateway.model", c.cfg.DefaultModel),
		attribute.Int("gateway.retry_limit", c.cfg.RetryLimit),
	)
	defer observability.FinishSpan(span, &err)

	if strings.TrimSpace(userText) == "" {
		return nil, contextutils.WrapError(contextutils.ErrInvalidInput, "user message cannot be empty")
	}
	if c.cfg.Endpoint == "" || c.cfg.APIKey == "" {
		return nil, contextutils.WrapError(contextutils.ErrGatewayNotConfigured, "gateway endpoint and api key are required")
	}

	body, err := json.Marshal(c.buildRequest(userText, systemText, extra))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to encode gateway request")
	}

	raw, err := c.callWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}

	return c.parseResponse(ctx, raw)
}

// buildRequest merges default and per-call sampling parameters; per-call wins.
func (c *GatewayClient) buildRequest(userText, systemText string, extra *SamplingParams) gatewayRequest {
	req := gatewayRequest{
		Messages: []gatewayMessage{
			{Role: "system", Content: systemText},
			{Role: "user", Content: userText},
		},
		Model:            c.cfg.DefaultModel,
		ResponseFormat:   c.responseFormat,
		Temperature:      c.cfg.Temperature,
		MaxTokens:        c.cfg.MaxTokens,
		TopP:             c.cfg.TopP,
		FrequencyPenalty: c.cfg.FrequencyPenalty,
		PresencePenalty:  c.cfg.PresencePenalty,
	}
	if extra != nil {
		if extra.Temperature != nil {
			req.Temperature = *extra.Temperature
		}
		if extra.MaxTokens != nil {
			req.MaxTokens = *extra.MaxTokens
		}
		if extra.TopP != nil {
			req.TopP = *extra.TopP
		}
		if extra.FrequencyPenalty != nil {
			req.FrequencyPenalty = *extra.FrequencyPenalty
		}
		if extra.PresencePenalty != nil {
			req.PresencePenalty = *extra.PresencePenalty
		}
	}
	return req
}

// callWithRetry performs the HTTP call, retrying retryable failures with
// backoff of 2^attempt seconds. HTTP 400 and 401 are never retried.
func (c *GatewayClient) callWithRetry(ctx context.Context, body []byte) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.cfg.RetryLimit; attempt++ {
		raw, err := c.performCall(ctx, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if !contextutils.IsRetryable(err) {
			break
		}

		if attempt+1 < c.cfg.RetryLimit {
			backoff := time.Duration(1<<uint(attempt+1)) * time.Second
			c.logger.Warn(ctx, "Gateway call failed, retrying", map[string]interface{}{
				"attempt": attempt + 1,
				"backoff": backoff.String(),
				"error":   err.Error(),
			})
			if sleepErr := c.sleep(ctx, backoff); sleepErr != nil {
				return nil, contextutils.WrapError(contextutils.ErrGatewayRequestFailed, "gateway retry canceled")
			}
		}
	}

	return nil, lastErr
}

// performCall runs a single attempt under the per-attempt timeout.
func (c *GatewayClient) performCall(ctx context.Context, body []byte) ([]byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, contextutils.WrapError(err, "failed to build gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and network failures are retryable
		return nil, contextutils.WrapErrorf(contextutils.ErrGatewayRequestFailed, "gateway call failed: %v", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn(ctx, "Failed to close gateway response body", map[string]interface{}{"error": closeErr.Error()})
		}
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrGatewayRequestFailed, "failed to read gateway response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newUpstreamError(resp.StatusCode, raw)
	}

	return raw, nil
}

// newUpstreamError builds an error for a non-2xx gateway status. 400 and 401
// are marked fatal so the retry loop stops immediately.
func newUpstreamError(status int, body []byte) error {
	message := fmt.Sprintf("gateway returned HTTP %d", status)
	var errBody struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errBody); err == nil {
		if errBody.Error.Message != "" {
			message = fmt.Sprintf("%s: %s", message, errBody.Error.Message)
		} else if errBody.Message != "" {
			message = fmt.Sprintf("%s: %s", message, errBody.Message)
		}
	}

	severity := contextutils.SeverityError
	if status == http.StatusBadRequest || status == http.StatusUnauthorized {
		severity = contextutils.SeverityFatal
	}
	return contextutils.NewAppError(contextutils.ErrorCodeGatewayRequestFailed, severity, "Model gateway request failed", message)
}

// parseResponse extracts choices[0].message.content and narrows it into a
// ModelPayload. String content that looks JSON-like is parsed and validated;
// structured content is validated directly; plain text is wrapped into a
// text payload with a default language tag.
func (c *GatewayClient) parseResponse(ctx context.Context, raw []byte) (*ModelPayload, error) {
	var envelope gatewayResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, contextutils.WrapErrorf(contextutils.ErrGatewayResponseInvalid, "gateway response is not valid JSON: %v", err)
	}
	if len(envelope.Choices) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrGatewayResponseInvalid, "gateway response has no choices")
	}

	content := envelope.Choices[0].Message.Content
	if len(content) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrGatewayResponseInvalid, "gateway response has no message content")
	}

	// String content: JSON-like strings get parsed and validated, anything
	// else is wrapped as plain text.
	var asString string
	if err := json.Unmarshal(content, &asString); err == nil {
		trimmed := strings.TrimSpace(asString)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var parsed map[string]interface{}
			if parseErr := json.Unmarshal([]byte(trimmed), &parsed); parseErr == nil {
				return ValidateModelPayload(parsed)
			}
			c.logger.Warn(ctx, "Gateway content looked like JSON but failed to parse, treating as plain text")
		}
		return &ModelPayload{Validated: true, Text: &TextPayload{Text: asString, LanguageOfResponse: "en"}}, nil
	}

	// Structured content: validate the object directly.
	var asObject map[string]interface{}
	if err := json.Unmarshal(content, &asObject); err == nil {
		return ValidateModelPayload(asObject)
	}

	return nil, contextutils.WrapError(contextutils.ErrGatewayResponseInvalid, "gateway message content has unexpected type")
}
