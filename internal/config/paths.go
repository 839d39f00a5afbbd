package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths is the single source of truth for the files this application owns:
// one encrypted cache file, one machine key file, and one state snapshot,
// all under a per-user configuration directory.
type Paths struct {
	ConfigDir string
	SecureDir string
	CacheFile string
	KeyFile   string
	StateFile string
	LogsDir   string
}

const (
	appDirName     = "dlens"
	secureDirName  = "secure"
	cacheFileName  = "license_cache.dat"
	keyFileName    = "machine.key"
	stateFileName  = "license_state.json"
	secureDirPerm  = 0700
	secureFilePerm = 0600
)

// GetPaths resolves application paths under baseDir, or under the
// OS-specific per-user config directory when baseDir is empty.
func GetPaths(baseDir string) (*Paths, error) {
	if baseDir == "" {
		userDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve user config dir: %w", err)
		}
		baseDir = filepath.Join(userDir, appDirName)
	}

	secureDir := filepath.Join(baseDir, secureDirName)

	return &Paths{
		ConfigDir: baseDir,
		SecureDir: secureDir,
		CacheFile: filepath.Join(baseDir, cacheFileName),
		KeyFile:   filepath.Join(secureDir, keyFileName),
		StateFile: filepath.Join(baseDir, stateFileName),
		LogsDir:   filepath.Join(baseDir, "logs"),
	}, nil
}

// EnsureDirs creates the config and secure directories with restrictive
// permissions. The secure directory is always 0700.
func (p *Paths) EnsureDirs() error {
	if err := os.MkdirAll(p.ConfigDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.MkdirAll(p.SecureDir, secureDirPerm); err != nil {
		return fmt.Errorf("failed to create secure dir: %w", err)
	}
	return nil
}

// FileExists reports whether the given path exists and is a regular file
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
