package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// SecureKeyLength is the hex-encoded length of the machine secret
const SecureKeyLength = 64

// KeyStore produces and persists the per-machine secret used as the
// symmetric key for cache encryption and as the HMAC key for validation
// tokens. The key is created once and never rotated automatically;
// losing it invalidates every previously cached license.
type KeyStore struct {
	keyFile string
}

// NewKeyStore creates a key store backed by the given file path
func NewKeyStore(keyFile string) *KeyStore {
	return &KeyStore{keyFile: keyFile}
}

// GetOrCreate returns the machine secret, generating and persisting a
// new one on first use. A stored key that fails validation is replaced:
// equivalent to key loss, which fails closed on all cached material.
func (ks *KeyStore) GetOrCreate() (string, error) {
	data, err := os.ReadFile(ks.keyFile)
	if err == nil {
		key := strings.TrimSpace(string(data))
		if validSecureKey(key) {
			return key, nil
		}
		slog.Warn("stored machine key is malformed, generating a new one",
			slog.String("path", ks.keyFile),
		)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}

	return ks.create()
}

func (ks *KeyStore) create() (string, error) {
	raw := make([]byte, SecureKeyLength/2)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate machine key: %w", err)
	}
	key := hex.EncodeToString(raw)

	if err := os.MkdirAll(filepath.Dir(ks.keyFile), 0700); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}

	if err := os.WriteFile(ks.keyFile, []byte(key), 0600); err != nil {
		return "", fmt.Errorf("failed to persist machine key: %w", err)
	}

	slog.Info("machine key generated",
		slog.String("path", ks.keyFile),
	)

	return key, nil
}

// validSecureKey checks length and hex encoding of a stored key
func validSecureKey(key string) bool {
	if len(key) != SecureKeyLength {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}
