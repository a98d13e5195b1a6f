package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracing starts a server span per request through otelgin.
// The span name is "METHOD route", e.g. "POST /api/v1/reviews/:id/approve".
func Tracing(serviceName string, enabled bool, opts ...otelgin.Option) gin.HandlerFunc {
	if !enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return otelgin.Middleware(serviceName, opts...)
}

// SpanRequestID tags the active span with the request id. It must run after Tracing.
func SpanRequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if id := GetRequestID(c); id != "" && span.IsRecording() {
			span.SetAttributes(attribute.String("request_id", id))
		}
		c.Next()
	}
}
