package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "petakeu/internal/errors"
	"petakeu/internal/infrastructure"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func TestRequestID(t *testing.T) {
	var seenReqID, seenTraceID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenReqID = GetRequestID(r.Context())
		seenTraceID = infrastructure.GetTraceID(r.Context())
	}))

	t.Run("generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, seenReqID)
		assert.Equal(t, seenReqID, seenTraceID)
		assert.Equal(t, seenReqID, rec.Header().Get(RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "client-id-1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "client-id-1", seenReqID)
		assert.Equal(t, "client-id-1", seenTraceID)
		assert.Equal(t, "client-id-1", rec.Header().Get(RequestIDHeader))
	})
}

func TestGetRequestIDFallsBackToTraceID(t *testing.T) {
	ctx := infrastructure.WithTraceID(context.Background(), "trace-9")
	assert.Equal(t, "trace-9", GetRequestID(ctx))
	assert.Empty(t, GetRequestID(context.Background()))
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(0.001, 2, testLogger())
	handler := RequestID(limiter.Handler(http.HandlerFunc(okHandler)))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/regions", nil))
		codes = append(codes, rec.Code)
		if rec.Code == http.StatusTooManyRequests {
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, float64(http.StatusTooManyRequests), body["status"])
			assert.NotEmpty(t, body["trace_id"])
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestTimeout(t *testing.T) {
	t.Run("slow handler", func(t *testing.T) {
		handler := Timeout(20*time.Millisecond, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/slow", nil))

		assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
		assert.Contains(t, rec.Body.String(), "/errors/timeout")
	})

	t.Run("fast handler", func(t *testing.T) {
		handler := Timeout(time.Second, testLogger())(http.HandlerFunc(okHandler))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fast", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", rec.Body.String())
	})
}

func TestCORS(t *testing.T) {
	handler := CORS(CORSConfig{
		AllowedOrigins: []string{"http://localhost:5173"},
		Logger:         testLogger(),
	})(http.HandlerFunc(okHandler))

	tests := []struct {
		name       string
		method     string
		origin     string
		wantOrigin string
		wantStatus int
	}{
		{"allowed origin", http.MethodGet, "http://localhost:5173", "http://localhost:5173", http.StatusOK},
		{"foreign origin", http.MethodGet, "http://evil.example", "", http.StatusOK},
		{"preflight", http.MethodOptions, "http://localhost:5173", "http://localhost:5173", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/uploads", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Scenario")
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestValidateJSON(t *testing.T) {
	errorHandler := apierrors.NewErrorHandler(testLogger(), false)
	mw := NewValidationMiddleware(testLogger(), errorHandler, 64)

	var received string
	handler := mw.ValidateJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		w.WriteHeader(http.StatusCreated)
	}))

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"valid", `{"period":"2025-09"}`, http.StatusCreated},
		{"malformed", `{"period":`, http.StatusBadRequest},
		{"too large", `{"regionIds":["` + strings.Repeat("x", 80) + `"]}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			received = ""
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/reports/export", bytes.NewBufferString(tt.body))
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusCreated {
				assert.Equal(t, tt.body, received)
			}
		})
	}
}

func TestContentTypeValidator(t *testing.T) {
	errorHandler := apierrors.NewErrorHandler(testLogger(), false)
	handler := ContentTypeValidator(errorHandler, "application/json")(http.HandlerFunc(okHandler))

	tests := []struct {
		name        string
		method      string
		contentType string
		wantStatus  int
	}{
		{"json", http.MethodPost, "application/json; charset=utf-8", http.StatusOK},
		{"missing", http.MethodPost, "", http.StatusBadRequest},
		{"wrong", http.MethodPost, "text/plain", http.StatusUnsupportedMediaType},
		{"get skipped", http.MethodGet, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/reports/export", strings.NewReader("{}"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestQueryParamValidator(t *testing.T) {
	v := NewQueryParamValidator(testLogger(), apierrors.NewErrorHandler(testLogger(), false))

	t.Run("enum", func(t *testing.T) {
		rec := httptest.NewRecorder()
		value, ok := v.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/?scenario=high", nil),
			"scenario", []string{"normal", "high", "low"}, "normal")
		assert.True(t, ok)
		assert.Equal(t, "high", value)

		rec = httptest.NewRecorder()
		_, ok = v.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/?scenario=extreme", nil),
			"scenario", []string{"normal", "high", "low"}, "normal")
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("int", func(t *testing.T) {
		rec := httptest.NewRecorder()
		value, ok := v.ValidateInt(rec, httptest.NewRequest(http.MethodGet, "/?limit=20", nil), "limit", 1, 100, 50)
		assert.True(t, ok)
		assert.Equal(t, 20, value)

		rec = httptest.NewRecorder()
		_, ok = v.ValidateInt(rec, httptest.NewRequest(http.MethodGet, "/?limit=500", nil), "limit", 1, 100, 50)
		assert.False(t, ok)
	})
}

func TestOTelMiddleware(t *testing.T) {
	providers, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), testLogger())
	require.NoError(t, err)
	defer providers.Shutdown(context.Background())

	otelMW, err := NewOTelMiddleware(providers)
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(otelMW.Handler)
	r.Get("/api/uploads/{id}", okHandler)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/uploads/abc", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	metrics := httptest.NewRecorder()
	providers.PrometheusHTTP.ServeHTTP(metrics, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metrics.Body.String(), `route="/api/uploads/{id}"`)
}

func TestGetRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", GetRealIP(req))

	req.Header.Set("X-Real-IP", "192.168.1.5")
	assert.Equal(t, "192.168.1.5", GetRealIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	assert.Equal(t, "203.0.113.7", GetRealIP(req))
}
