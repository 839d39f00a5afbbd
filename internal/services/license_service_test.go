package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Muhammad-NSQ/Dlens/internal/license"
	"github.com/Muhammad-NSQ/Dlens/internal/security"
)

const testSecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestService(t *testing.T, serverURL string) (LicenseService, *license.StateManager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	cache := license.NewCache(filepath.Join(dir, "license_cache.dat"), testSecret, logger)
	client := license.NewClient(
		license.ClientConfig{ServerURL: serverURL, RequestTimeout: 5 * time.Second},
		nil,
		cache,
		testSecret,
		security.NewFingerprintManager(),
		logger,
	)
	manager := license.NewStateManager(client, license.StateConfig{
		SyncInterval: time.Hour,
		GracePeriod:  7 * 24 * time.Hour,
		StatePath:    filepath.Join(dir, "license_state.json"),
	}, testSecret, logger)

	return NewLicenseService(manager, client, logger), manager
}

func licenseAuthority(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"tier":       "pro",
			"expires_at": time.Now().Add(90 * 24 * time.Hour).UTC().Format(time.RFC3339),
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLicenseServiceGetStatus(t *testing.T) {
	t.Run("not activated", func(t *testing.T) {
		svc, _ := newTestService(t, "")

		resp, err := svc.GetStatus(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 200, resp.Status)
		assert.Equal(t, "not_activated", resp.LicenseStatus)
		assert.Equal(t, "free", resp.Tier)
		assert.Equal(t, "/license/not-activated", resp.Type)
		assert.NotEmpty(t, resp.Message)
	})

	t.Run("active after activation", func(t *testing.T) {
		server := licenseAuthority(t)
		svc, _ := newTestService(t, server.URL)

		resp, err := svc.Activate(context.Background(), "DLENS-SVC-0001")
		require.NoError(t, err)
		assert.Equal(t, "active", resp.LicenseStatus)
		assert.Equal(t, "pro", resp.Tier)
		assert.Greater(t, resp.DaysLeft, 80)
	})
}

func TestLicenseServiceActivateFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()
	svc, manager := newTestService(t, server.URL)

	_, err := svc.Activate(context.Background(), "DLENS-SVC-0002")
	require.Error(t, err)
	assert.Equal(t, license.StateUnactivated, manager.State())
}

func TestLicenseServiceDeactivate(t *testing.T) {
	server := licenseAuthority(t)
	svc, manager := newTestService(t, server.URL)

	_, err := svc.Activate(context.Background(), "DLENS-SVC-0003")
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background()))
	assert.Equal(t, license.StateUnactivated, manager.State())

	resp, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "not_activated", resp.LicenseStatus)
	assert.Equal(t, "free", resp.Tier)
}

func TestLicenseServiceValidateWithContext(t *testing.T) {
	t.Run("unactivated is invalid", func(t *testing.T) {
		svc, _ := newTestService(t, "")
		valid, err := svc.ValidateWithContext(context.Background())
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("cancelled context", func(t *testing.T) {
		svc, _ := newTestService(t, "")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := svc.ValidateWithContext(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
