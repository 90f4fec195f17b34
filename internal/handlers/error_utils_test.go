package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	contextutils "exercisesapp/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGinContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)
	return c, recorder
}

func decodeErrorBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code contextutils.ErrorCode
		want int
	}{
		{contextutils.ErrorCodeInvalidInput, http.StatusBadRequest},
		{contextutils.ErrorCodeMissingRequired, http.StatusBadRequest},
		{contextutils.ErrorCodeInvalidFormat, http.StatusBadRequest},
		{contextutils.ErrorCodeUnauthorized, http.StatusUnauthorized},
		{contextutils.ErrorCodeInvalidCredentials, http.StatusUnauthorized},
		{contextutils.ErrorCodeForbidden, http.StatusForbidden},
		{contextutils.ErrorCodeRecordNotFound, http.StatusNotFound},
		{contextutils.ErrorCodeQuestionNotFound, http.StatusNotFound},
		{contextutils.ErrorCodeTextNotFound, http.StatusNotFound},
		{contextutils.ErrorCodeRecordExists, http.StatusConflict},
		{contextutils.ErrorCodeTimeout, http.StatusRequestTimeout},
		{contextutils.ErrorCodeServiceUnavailable, http.StatusServiceUnavailable},
		{contextutils.ErrorCodeGatewayRequestFailed, http.StatusServiceUnavailable},
		{contextutils.ErrorCodeGatewayNotConfigured, http.StatusServiceUnavailable},
		{contextutils.ErrorCodeGatewayResponseInvalid, http.StatusInternalServerError},
		{contextutils.ErrorCodeSchemaMismatch, http.StatusInternalServerError},
		{contextutils.ErrorCodeDatabaseQuery, http.StatusInternalServerError},
		{contextutils.ErrorCodeInternalError, http.StatusInternalServerError},
		{contextutils.ErrorCode("UNKNOWN_CODE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestHandleAppError(t *testing.T) {
	t.Run("app error maps to its status", func(t *testing.T) {
		c, recorder := newTestGinContext(t)

		HandleAppError(c, contextutils.ErrQuestionNotFound)

		assert.Equal(t, http.StatusNotFound, recorder.Code)
		body := decodeErrorBody(t, recorder)
		assert.Equal(t, string(contextutils.ErrorCodeQuestionNotFound), body["code"])
		assert.Equal(t, "Question not found", body["message"])
		require.Len(t, c.Errors, 1)
	})

	t.Run("wrapped app error keeps its code", func(t *testing.T) {
		c, recorder := newTestGinContext(t)

		wrapped := contextutils.WrapError(contextutils.ErrForbidden, "visibility change rejected")
		HandleAppError(c, wrapped)

		assert.Equal(t, http.StatusForbidden, recorder.Code)
		body := decodeErrorBody(t, recorder)
		assert.Equal(t, string(contextutils.ErrorCodeForbidden), body["code"])
	})

	t.Run("plain error becomes internal server error", func(t *testing.T) {
		c, recorder := newTestGinContext(t)

		HandleAppError(c, errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, recorder.Code)
		body := decodeErrorBody(t, recorder)
		assert.Equal(t, string(contextutils.ErrorCodeInternalError), body["code"])
		assert.Equal(t, "boom", body["details"])
	})
}

func TestHandleValidationError(t *testing.T) {
	c, recorder := newTestGinContext(t)

	HandleValidationError(c, "visibility", "secret", "must be public or private")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	body := decodeErrorBody(t, recorder)
	assert.Equal(t, string(contextutils.ErrorCodeInvalidInput), body["code"])
	assert.Equal(t, "Invalid visibility", body["message"])
	assert.Contains(t, body["details"], "must be public or private")
}

func TestStandardizeHTTPError(t *testing.T) {
	c, recorder := newTestGinContext(t)

	StandardizeHTTPError(c, http.StatusUnauthorized, "Authentication required", "")

	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	body := decodeErrorBody(t, recorder)
	assert.Equal(t, string(contextutils.ErrorCodeUnauthorized), body["code"])
	assert.Equal(t, "Authentication required", body["message"])
	assert.Equal(t, "Authentication required", body["error"])
}
