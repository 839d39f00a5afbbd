package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Muhammad-NSQ/Dlens/internal/license"
)

func TestRequestID(t *testing.T) {
	t.Run("generates an ID when missing", func(t *testing.T) {
		var captured string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = GetRequestID(r.Context())
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.NotEmpty(t, captured)
		assert.Equal(t, captured, rec.Header().Get("X-Request-ID"))
	})

	t.Run("preserves an incoming ID", func(t *testing.T) {
		var captured string
		handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			captured = GetRequestID(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "incoming-id")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "incoming-id", captured)
	})
}

func TestRecoverer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Recoverer(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	require.NotPanics(t, func() {
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestSecurityHeaders(t *testing.T) {
	handler := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestTierGate(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("blocks free tier", func(t *testing.T) {
		features := license.NewFeatureManager()
		gate := NewTierGate(features, license.TierPro, logger)

		rec := httptest.NewRecorder()
		gate.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	})

	t.Run("allows pro tier", func(t *testing.T) {
		features := license.NewFeatureManager()
		features.SetTier(license.TierPro)
		gate := NewTierGate(features, license.TierPro, logger)

		rec := httptest.NewRecorder()
		gate.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("enterprise satisfies pro requirement", func(t *testing.T) {
		features := license.NewFeatureManager()
		features.SetTier(license.TierEnterprise)
		gate := NewTierGate(features, license.TierPro, logger)

		rec := httptest.NewRecorder()
		gate.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("downgrade closes the gate", func(t *testing.T) {
		features := license.NewFeatureManager()
		features.SetTier(license.TierPro)
		gate := NewTierGate(features, license.TierPro, logger)

		features.Downgrade()
		rec := httptest.NewRecorder()
		gate.Handler(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports", nil))
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	})
}
