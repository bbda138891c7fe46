package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type requestIDContextKey struct{}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(requestIDContextKey{}).(string)
	return requestID
}

// requestIDMiddleware tags every request with an identifier: the caller's
// X-Request-Id when present, a fresh UUID otherwise. The identifier rides the
// context into the access log and is echoed on the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), requestIDContextKey{}, requestID)))
	})
}

// accessLogQuiet lists endpoints polled by infrastructure. Logging every
// liveness probe and metrics scrape would drown the question traffic, so
// those are only logged when they fail.
var accessLogQuiet = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		tracker := &responseTracker{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(tracker, r)

		if _, quiet := accessLogQuiet[r.URL.Path]; quiet && tracker.status < 400 {
			return
		}

		attrs := []any{
			"request_id", requestIDFromContext(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", tracker.status,
			"bytes", tracker.bytes,
			"duration_ms", time.Since(started).Milliseconds(),
		}
		switch {
		case tracker.status >= 500:
			slog.Error("http_request", attrs...)
		case tracker.status >= 400:
			slog.Warn("http_request", attrs...)
		default:
			slog.Info("http_request", attrs...)
		}
	})
}

// responseTracker captures the status code and body size for the access log.
// It forwards Flush so token streaming over SSE keeps working behind it.
type responseTracker struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (t *responseTracker) WriteHeader(status int) {
	t.status = status
	t.ResponseWriter.WriteHeader(status)
}

func (t *responseTracker) Write(b []byte) (int, error) {
	n, err := t.ResponseWriter.Write(b)
	t.bytes += n
	return n, err
}

func (t *responseTracker) Flush() {
	if flusher, ok := t.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
