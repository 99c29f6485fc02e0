package log

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// contextKey is the private key type for storing RequestContext.
type contextKey string

const requestContextKey contextKey = "tripwatch_request_context"

// RequestContext carries request tracing information through the call tree
// so that every log line of one logical operation can be reassembled later.
type RequestContext struct {
	RequestID string    // 10-char short id, e.g. mgrn0zfqda
	PlanID    string    // recovery plan this request belongs to, if any
	Provider  string    // provider the request targets, if any
	StartTime time.Time // request start time
}

var (
	randSource = rand.NewSource(time.Now().UnixNano())
	randMutex  sync.Mutex
	// base36 charset (lowercase letters + digits)
	base36Chars = "0123456789abcdefghijklmnopqrstuvwxyz"
)

// GenerateRequestID generates a 10-character random request id.
// base36 keeps ids short and copy-pastable from dashboard to grep.
func GenerateRequestID() string {
	randMutex.Lock()
	defer randMutex.Unlock()

	b := make([]byte, 10)
	for i := range b {
		b[i] = base36Chars[randSource.Int63()%36]
	}
	return string(b)
}

// WithRequestContext injects a RequestContext into the Context.
// Typically called by middleware at the start of a request.
func WithRequestContext(ctx context.Context, requestID, planID, provider string) context.Context {
	reqCtx := &RequestContext{
		RequestID: requestID,
		PlanID:    planID,
		Provider:  provider,
		StartTime: time.Now(),
	}
	return context.WithValue(ctx, requestContextKey, reqCtx)
}

// GetRequestContext extracts the RequestContext from the Context.
// Returns a default empty RequestContext when absent, never nil.
func GetRequestContext(ctx context.Context) *RequestContext {
	if ctx == nil {
		return &RequestContext{RequestID: "unknown"}
	}

	if reqCtx, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return reqCtx
	}

	return &RequestContext{RequestID: "unknown"}
}

// GetRequestID extracts the request id from the Context.
func GetRequestID(ctx context.Context) string {
	return GetRequestContext(ctx).RequestID
}

// GetElapsedTime returns how long the request has been running, in milliseconds.
func GetElapsedTime(ctx context.Context) int64 {
	reqCtx := GetRequestContext(ctx)
	if reqCtx.StartTime.IsZero() {
		return 0
	}
	return time.Since(reqCtx.StartTime).Milliseconds()
}
