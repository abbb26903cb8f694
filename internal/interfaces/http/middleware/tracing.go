package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
}

// Tracing starts one otelgin span per request.
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// TraceAttributes enriches the active span with the request ID, the webhook
// platform, and after the handlers ran, the authenticated user and error
// status. Must sit after Tracing in the chain so the span is still open.
func TraceAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if requestID := GetRequestID(c); requestID != "" {
				span.SetAttributes(attribute.String("request_id", requestID))
			}
			if platform := c.Param("platform"); platform != "" {
				span.SetAttributes(attribute.String("platform", platform))
			}
		}

		c.Next()

		if span.IsRecording() {
			if userID := GetJWTUserID(c); userID != "" {
				span.SetAttributes(attribute.String("user_id", userID))
			}
			if status := c.Writer.Status(); status >= 400 {
				span.SetStatus(codes.Error, c.Request.Method+" "+c.FullPath())
			}
		}
	}
}
