package errors

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIErrorImplementsError(t *testing.T) {
	err := New(http.StatusBadRequest, "TEST_CODE", "test message")
	assert.Equal(t, "test message", err.Error())
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Equal(t, "TEST_CODE", err.ErrorCode)
}

func TestAPIErrorRender(t *testing.T) {
	apiErr := New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "slow down")

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	require.NoError(t, render.Render(w, r, apiErr))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		terminal  bool
	}{
		{"network", ErrNetworkError, true, false},
		{"wrapped network", fmt.Errorf("sync failed: %w", ErrNetworkError), true, false},
		{"rejected", ErrLicenseRejected, false, true},
		{"integrity", ErrIntegrityFailure, false, true},
		{"expired", ErrLicenseExpired, false, true},
		{"not activated", ErrLicenseNotActivated, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
			assert.Equal(t, tt.terminal, IsTerminal(tt.err))
		})
	}
}
