// Package handlers exposes the JSON API surface over gin.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	contextutils "exercisesapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// StandardizeHTTPError creates consistent HTTP error responses with
// structured error information.
func StandardizeHTTPError(c *gin.Context, statusCode int, message, details string) {
	var errorCode contextutils.ErrorCode
	var severity contextutils.SeverityLevel

	switch statusCode {
	case http.StatusBadRequest:
		errorCode = contextutils.ErrorCodeInvalidInput
		severity = contextutils.SeverityWarn
	case http.StatusUnauthorized:
		errorCode = contextutils.ErrorCodeUnauthorized
		severity = contextutils.SeverityWarn
	case http.StatusForbidden:
		errorCode = contextutils.ErrorCodeForbidden
		severity = contextutils.SeverityWarn
	case http.StatusNotFound:
		errorCode = contextutils.ErrorCodeRecordNotFound
		severity = contextutils.SeverityInfo
	case http.StatusConflict:
		errorCode = contextutils.ErrorCodeRecordExists
		severity = contextutils.SeverityInfo
	case http.StatusServiceUnavailable:
		errorCode = contextutils.ErrorCodeServiceUnavailable
		severity = contextutils.SeverityError
	default:
		errorCode = contextutils.ErrorCodeInternalError
		severity = contextutils.SeverityError
	}

	appErr := contextutils.NewAppError(errorCode, severity, message, details)
	c.JSON(statusCode, appErr.ToJSON())
}

// StandardizeAppError sends a structured error response using AppError.
func StandardizeAppError(c *gin.Context, err *contextutils.AppError) {
	c.JSON(mapErrorCodeToHTTPStatus(err.Code), err.ToJSON())
}

// HandleValidationError handles input validation errors consistently.
func HandleValidationError(c *gin.Context, field string, value interface{}, reason string) {
	appErr := contextutils.NewAppError(
		contextutils.ErrorCodeInvalidInput,
		contextutils.SeverityWarn,
		fmt.Sprintf("Invalid %s", field),
		fmt.Sprintf("Value '%v' is invalid: %s", value, reason),
	)
	StandardizeAppError(c, appErr)
}

// HandleAppError handles any error and sends the appropriate HTTP response.
func HandleAppError(c *gin.Context, err error) {
	_ = c.Error(err)
	var appErr *contextutils.AppError
	if errors.As(err, &appErr) {
		StandardizeAppError(c, appErr)
		return
	}
	StandardizeHTTPError(c, http.StatusInternalServerError, "Internal server error", err.Error())
}

// mapErrorCodeToHTTPStatus maps AppError codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code contextutils.ErrorCode) int {
	switch code {
	// 4xx client errors
	case contextutils.ErrorCodeInvalidInput, contextutils.ErrorCodeMissingRequired,
		contextutils.ErrorCodeInvalidFormat:
		return http.StatusBadRequest

	case contextutils.ErrorCodeUnauthorized, contextutils.ErrorCodeInvalidCredentials:
		return http.StatusUnauthorized

	case contextutils.ErrorCodeForbidden:
		return http.StatusForbidden

	case contextutils.ErrorCodeRecordNotFound, contextutils.ErrorCodeQuestionNotFound,
		contextutils.ErrorCodeTextNotFound:
		return http.StatusNotFound

	case contextutils.ErrorCodeRecordExists:
		return http.StatusConflict

	case contextutils.ErrorCodeTimeout:
		return http.StatusRequestTimeout

	// 5xx server errors
	case contextutils.ErrorCodeServiceUnavailable, contextutils.ErrorCodeGatewayRequestFailed,
		contextutils.ErrorCodeGatewayNotConfigured:
		return http.StatusServiceUnavailable

	case contextutils.ErrorCodeDatabaseConnection, contextutils.ErrorCodeDatabaseQuery,
		contextutils.ErrorCodeGatewayResponseInvalid, contextutils.ErrorCodeSchemaMismatch,
		contextutils.ErrorCodeInternalError:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
