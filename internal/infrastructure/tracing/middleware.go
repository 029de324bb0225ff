package tracing

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TraceHeader carries the trace id across process boundaries
const TraceHeader = "X-Trace-ID"

// HTTPMiddleware opens one span per request and echoes the trace id
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := WithTraceID(c.Request.Context(), TraceID(c.GetHeader(TraceHeader)))

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+route)
		c.Request = c.Request.WithContext(ctx)
		c.Header(TraceHeader, string(span.TraceID))

		c.Next()

		status := c.Writer.Status()
		span.With(zap.Int("status", status))

		var err error
		if len(c.Errors) > 0 {
			err = c.Errors.Last()
		} else if status >= http.StatusInternalServerError {
			err = fmt.Errorf("status %d", status)
		}
		tracer.Finish(span, err)
	}
}
