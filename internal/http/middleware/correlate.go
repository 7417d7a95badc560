package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/ctxutil"
)

const headerTraceID = "X-Trace-Id"

// Correlate assigns every request a request id and a trace id. The trace id comes from
// the active span when otelgin has started one, so logs and traces line up.
func Correlate() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := strings.TrimSpace(c.GetHeader(ctxutil.HeaderRequestID))
		if reqID == "" {
			reqID = uuid.NewString()
		}
		var traceID string
		if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		} else if h := strings.TrimSpace(c.GetHeader(headerTraceID)); h != "" {
			traceID = h
		} else {
			traceID = reqID
		}

		ctx := ctxutil.WithRequestInfo(c.Request.Context(), &ctxutil.RequestInfo{
			TraceID:   traceID,
			RequestID: reqID,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Header(headerTraceID, traceID)
		c.Header(ctxutil.HeaderRequestID, reqID)
		c.Next()
	}
}
