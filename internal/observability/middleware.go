package observability

import (
	"errors"

	contextutils "exercisesapp/internal/utils"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddlewareWithErrorHandling wraps the otelgin middleware and marks the
// request span as errored for 4xx/5xx responses, pulling the message from
// any AppError attached to the gin context.
func GinMiddlewareWithErrorHandling(serviceName string) gin.HandlerFunc {
	otelMiddleware := otelgin.Middleware(serviceName)
	return func(c *gin.Context) {
		otelMiddleware(c)
		c.Next()

		span := trace.SpanFromContext(c.Request.Context())
		if span == nil {
			return
		}
		statusCode := c.Writer.Status()
		if statusCode < 400 {
			return
		}

		errorMsg := "client error"
		if statusCode >= 500 {
			errorMsg = "server error"
		}
		for _, ginErr := range c.Errors {
			var appErr *contextutils.AppError
			if errors.As(ginErr.Err, &appErr) {
				errorMsg = appErr.Message
				span.SetAttributes(attribute.String("error.code", string(appErr.Code)))
				break
			}
			errorMsg = ginErr.Error()
		}

		span.RecordError(errors.New(errorMsg), trace.WithStackTrace(true))
		span.SetStatus(codes.Error, errorMsg)
		span.SetAttributes(attribute.Int("http.status_code", statusCode))
	}
}
