package license

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Muhammad-NSQ/Dlens/internal/security"
)

// Cache is the at-rest storage for the license record: one encrypted,
// tamper-evident file per installation. Save is atomic; Load fails
// closed, returning an absent record for any integrity or structural
// failure so downstream treats tampering the same as "never activated".
type Cache struct {
	path   string
	secret string
	logger *slog.Logger
}

// NewCache creates an encrypted cache backed by the given file,
// encrypted under the machine secret.
func NewCache(path, secret string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		path:   path,
		secret: secret,
		logger: logger.With(slog.String("component", "license_cache")),
	}
}

// Save serializes and encrypts the record, then writes it with a
// temp-file-and-rename so a crash mid-write never leaves a half-written
// cache.
func (c *Cache) Save(record *Record) error {
	plaintext, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal license record: %w", err)
	}

	env, err := security.EncryptEnvelope(plaintext, c.secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt license record: %w", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal cache envelope: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".license_cache-*")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp cache file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set cache file permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp cache file: %w", err)
	}

	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	c.logger.Debug("license cache saved",
		slog.String("path", c.path),
		slog.Int("size_bytes", len(data)),
	)

	return nil
}

// Load reads and decrypts the cached record. It returns (nil, nil) when
// no trustworthy record exists: missing file, unreadable file, malformed
// envelope, integrity mismatch, or decryption failure. Partially trusted
// data is never returned.
func (c *Cache) Load() (*Record, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("license cache unreadable",
				slog.String("path", c.path),
				slog.String("error", err.Error()),
			)
		}
		return nil, nil
	}

	var env security.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("license cache envelope malformed, discarding",
			slog.String("path", c.path),
		)
		return nil, nil
	}

	plaintext, err := security.DecryptEnvelope(&env, c.secret)
	if err != nil {
		c.logger.Warn("license cache failed integrity check, discarding",
			slog.String("path", c.path),
			slog.String("error", err.Error()),
		)
		return nil, nil
	}

	var record Record
	if err := json.Unmarshal(plaintext, &record); err != nil {
		c.logger.Warn("license record malformed, discarding",
			slog.String("path", c.path),
		)
		return nil, nil
	}

	return &record, nil
}

// Delete removes the cache file. Idempotent: deleting an absent cache
// is not an error.
func (c *Cache) Delete() error {
	err := os.Remove(c.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	if err == nil {
		c.logger.Info("license cache deleted",
			slog.String("path", c.path),
		)
	}
	return nil
}

// Exists reports whether a cache file is present on disk
func (c *Cache) Exists() bool {
	info, err := os.Stat(c.path)
	return err == nil && info.Mode().IsRegular()
}

// Path returns the cache file location
func (c *Cache) Path() string {
	return c.path
}
