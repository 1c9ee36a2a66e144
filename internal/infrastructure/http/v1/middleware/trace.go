package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "entigraph/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Trace middleware adds request tracing context, taking the ids from the
// request headers when present.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		trace := appctx.NewTraceContext(c.GetHeader(HeaderTraceID), c.GetHeader(HeaderRequestID))

		c.Request = c.Request.WithContext(appctx.WithTrace(c.Request.Context(), trace))

		c.Set("request_id", trace.RequestID)
		c.Header(HeaderRequestID, trace.RequestID)
		if trace.TraceID != "" {
			c.Set("trace_id", trace.TraceID)
			c.Header(HeaderTraceID, trace.TraceID)
		}

		c.Next()
	}
}
