package errors

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// maxLoggedBody bounds how much of a failed JSON request is echoed into logs
const maxLoggedBody = 500

// ErrorMiddleware recovers panics and writes one access log line per request
type ErrorMiddleware struct {
	handler       *ErrorHandler
	logger        *slog.Logger
	quietPaths    map[string]struct{}
	slowThreshold time.Duration
}

// NewErrorMiddleware creates a new error handling middleware. Requests to
// quietPaths are only logged when they fail.
func NewErrorMiddleware(handler *ErrorHandler, logger *slog.Logger, quietPaths ...string) *ErrorMiddleware {
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = struct{}{}
	}
	return &ErrorMiddleware{
		handler:       handler,
		logger:        logger.With(slog.String("component", "http")),
		quietPaths:    quiet,
		slowThreshold: 2 * time.Second,
	}
}

// Handler returns the middleware handler function
func (m *ErrorMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		var requestBody []byte
		if r.Body != nil && r.ContentLength > 0 && r.ContentLength < 64*1024 && isJSON(r) {
			requestBody, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(requestBody))
		}

		start := time.Now()
		defer func() {
			if rec := recover(); rec != nil {
				m.handler.HandlePanic(ww, r, rec)
			}
			m.logRequest(r, ww, time.Since(start), requestBody)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (m *ErrorMiddleware) logRequest(r *http.Request, ww middleware.WrapResponseWriter, duration time.Duration, body []byte) {
	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
	}

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400 || duration > m.slowThreshold:
		level = slog.LevelWarn
	default:
		if _, quiet := m.quietPaths[r.URL.Path]; quiet {
			return
		}
	}

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.Int("bytes", ww.BytesWritten()),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	}
	if r.URL.RawQuery != "" {
		attrs = append(attrs, slog.String("query", r.URL.RawQuery))
	}
	if status >= 400 && len(body) > 0 {
		logged := sanitizeRequestBody(body)
		if len(logged) > maxLoggedBody {
			logged = logged[:maxLoggedBody] + "..."
		}
		attrs = append(attrs, slog.String("request_body", logged))
	}

	m.logger.LogAttrs(r.Context(), level, "http request", attrs...)
}

// sanitizeRequestBody redacts credential-like fields of a JSON body
func sanitizeRequestBody(body []byte) string {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}
	for _, field := range []string{"password", "token", "secret", "api_key", "apiKey"} {
		if _, exists := data[field]; exists {
			data[field] = "[REDACTED]"
		}
	}
	sanitized, _ := json.Marshal(data)
	return string(sanitized)
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}
