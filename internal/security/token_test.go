package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidationTokenSameDay(t *testing.T) {
	token := CreateValidationToken("DLENS-PRO-001", "hw-digest", testSecret)
	assert.Len(t, token, 64)
	assert.True(t, VerifyValidationToken(token, "DLENS-PRO-001", "hw-digest", testSecret))
}

func TestValidationTokenExpiresNextDay(t *testing.T) {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	stale := CreateValidationTokenForDate("DLENS-PRO-001", "hw-digest", testSecret, yesterday)

	assert.False(t, VerifyValidationToken(stale, "DLENS-PRO-001", "hw-digest", testSecret))
}

func TestValidationTokenBinding(t *testing.T) {
	token := CreateValidationToken("DLENS-PRO-001", "hw-digest", testSecret)

	tests := []struct {
		name       string
		licenseKey string
		hardwareID string
		secret     string
	}{
		{"wrong key", "DLENS-PRO-002", "hw-digest", testSecret},
		{"wrong hardware", "DLENS-PRO-001", "other-hw", testSecret},
		{"wrong secret", "DLENS-PRO-001", "hw-digest", "ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, VerifyValidationToken(token, tt.licenseKey, tt.hardwareID, tt.secret))
		})
	}
}

func TestValidationTokenDeterministicPerDate(t *testing.T) {
	date := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	a := CreateValidationTokenForDate("K", "H", testSecret, date)
	b := CreateValidationTokenForDate("K", "H", testSecret, date.Add(5*time.Hour))
	assert.Equal(t, a, b, "tokens within the same UTC date must match")

	c := CreateValidationTokenForDate("K", "H", testSecret, date.AddDate(0, 0, 1))
	assert.NotEqual(t, a, c)
}
