package security

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStoreCreatesAndPersists(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "secure", "machine.key")
	ks := NewKeyStore(keyFile)

	key, err := ks.GetOrCreate()
	require.NoError(t, err)
	require.Len(t, key, SecureKeyLength)

	_, err = hex.DecodeString(key)
	require.NoError(t, err, "key must be valid hex")

	// Subsequent calls return the same key
	again, err := ks.GetOrCreate()
	require.NoError(t, err)
	assert.Equal(t, key, again)

	// A fresh store over the same file also returns it
	other := NewKeyStore(keyFile)
	fromDisk, err := other.GetOrCreate()
	require.NoError(t, err)
	assert.Equal(t, key, fromDisk)
}

func TestKeyStoreFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits not enforced on windows")
	}

	keyFile := filepath.Join(t.TempDir(), "secure", "machine.key")
	ks := NewKeyStore(keyFile)

	_, err := ks.GetOrCreate()
	require.NoError(t, err)

	info, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(keyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestKeyStoreReplacesMalformedKey(t *testing.T) {
	dir := t.TempDir()
	keyFile := filepath.Join(dir, "machine.key")

	tests := []struct {
		name    string
		content string
	}{
		{"too short", "abcdef"},
		{"not hex", "zz" + string(make([]byte, SecureKeyLength-2))},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, os.WriteFile(keyFile, []byte(tt.content), 0600))

			ks := NewKeyStore(keyFile)
			key, err := ks.GetOrCreate()
			require.NoError(t, err)
			assert.Len(t, key, SecureKeyLength)
			assert.NotEqual(t, tt.content, key)
		})
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	fm := NewFingerprintManager()

	first := fm.HardwareID()
	require.Len(t, first, 64)

	_, err := hex.DecodeString(first)
	require.NoError(t, err)

	assert.Equal(t, first, fm.HardwareID())

	// A separate manager on the same machine derives the same digest
	other := NewFingerprintManager()
	assert.Equal(t, first, other.HardwareID())
}

func TestFingerprintMatches(t *testing.T) {
	fm := NewFingerprintManager()
	assert.True(t, fm.Matches(fm.HardwareID()))
	assert.False(t, fm.Matches("wrong-id"))
}

func TestFingerprintComponents(t *testing.T) {
	fm := NewFingerprintManager()
	components := fm.Components()

	for _, field := range []string{"mac_address", "hostname", "cpu_info", "os", "platform"} {
		assert.Contains(t, components, field)
		assert.NotEmpty(t, components[field])
	}
}
