package ctxutil

import (
	"context"
	"net/http"
)

// HeaderRequestID carries the correlation id on inbound and outbound calls.
const HeaderRequestID = "X-Request-Id"

type requestKey struct{}

type RequestInfo struct {
	TraceID   string
	RequestID string
}

func WithRequestInfo(ctx context.Context, ri *RequestInfo) context.Context {
	return context.WithValue(ctx, requestKey{}, ri)
}

func GetRequestInfo(ctx context.Context) *RequestInfo {
	if ri, ok := ctx.Value(requestKey{}).(*RequestInfo); ok {
		return ri
	}
	return nil
}

// LogFields returns the correlation ids in ctx as logger key/value pairs.
func LogFields(ctx context.Context) []interface{} {
	ri := GetRequestInfo(Default(ctx))
	if ri == nil {
		return nil
	}
	var out []interface{}
	if ri.TraceID != "" {
		out = append(out, "trace_id", ri.TraceID)
	}
	if ri.RequestID != "" {
		out = append(out, "request_id", ri.RequestID)
	}
	return out
}

// Propagate copies the request id from ctx onto an outbound request so the crawler and
// retrieval service can correlate their logs with ours.
func Propagate(ctx context.Context, req *http.Request) {
	if ri := GetRequestInfo(Default(ctx)); ri != nil && ri.RequestID != "" {
		req.Header.Set(HeaderRequestID, ri.RequestID)
	}
}
