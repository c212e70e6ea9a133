package tracing

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"surveyrelay/pkg/logging"
)

// GinMiddleware starts a server span per request and copies its trace id into
// the logging context.
func GinMiddleware(serviceName string) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		otelgin.Middleware(serviceName),
		func(c *gin.Context) {
			if traceID := TraceID(c.Request.Context()); traceID != "" {
				c.Request = c.Request.WithContext(logging.WithTraceID(c.Request.Context(), traceID))
			}
			c.Next()
		},
	}
}
