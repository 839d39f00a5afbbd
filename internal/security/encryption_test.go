package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
	}{
		{"short", "x"},
		{"json record", `{"license_key":"DLENS-PRO-001","tier":"pro"}`},
		{"long", strings.Repeat("license material ", 200)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := EncryptEnvelope([]byte(tt.plaintext), testSecret)
			require.NoError(t, err)
			require.Equal(t, uint8(1), env.Version)
			require.Len(t, env.Salt, 32)
			require.Len(t, env.Nonce, 12)
			require.Len(t, env.Integrity, 32)

			plaintext, err := DecryptEnvelope(env, testSecret)
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, string(plaintext))
		})
	}
}

func TestEncryptRejectsBadInput(t *testing.T) {
	_, err := EncryptEnvelope(nil, testSecret)
	assert.Error(t, err)

	_, err = EncryptEnvelope([]byte("data"), "short")
	assert.Error(t, err)
}

func TestDecryptWrongSecret(t *testing.T) {
	env, err := EncryptEnvelope([]byte("secret data"), testSecret)
	require.NoError(t, err)

	other := strings.Repeat("f", 64)
	_, err = DecryptEnvelope(env, other)
	assert.Error(t, err)
}

func TestDecryptNilAndBadVersion(t *testing.T) {
	_, err := DecryptEnvelope(nil, testSecret)
	assert.Error(t, err)

	env, err := EncryptEnvelope([]byte("data"), testSecret)
	require.NoError(t, err)
	env.Version = 2
	_, err = DecryptEnvelope(env, testSecret)
	assert.Error(t, err)
}

// Every single-bit mutation across the ciphertext and integrity digest
// must make decryption fail.
func TestSingleBitFlipDetected(t *testing.T) {
	env, err := EncryptEnvelope([]byte(`{"license_key":"DLENS-PRO-001"}`), testSecret)
	require.NoError(t, err)

	regions := []struct {
		name string
		data []byte
	}{
		{"ciphertext", env.Ciphertext},
		{"integrity", env.Integrity},
		{"salt", env.Salt},
		{"nonce", env.Nonce},
	}

	for _, region := range regions {
		t.Run(region.name, func(t *testing.T) {
			for byteIdx := range region.data {
				for bit := 0; bit < 8; bit++ {
					region.data[byteIdx] ^= 1 << bit
					_, err := DecryptEnvelope(env, testSecret)
					assert.Error(t, err,
						"flip of %s byte %d bit %d went undetected", region.name, byteIdx, bit)
					region.data[byteIdx] ^= 1 << bit
				}
			}

			// Restored envelope decrypts again
			_, err := DecryptEnvelope(env, testSecret)
			require.NoError(t, err)
		})
	}
}

func TestSecureCompare(t *testing.T) {
	assert.True(t, SecureCompare([]byte("abc"), []byte("abc")))
	assert.False(t, SecureCompare([]byte("abc"), []byte("abd")))
	assert.False(t, SecureCompare([]byte("abc"), []byte("abcd")))
}
