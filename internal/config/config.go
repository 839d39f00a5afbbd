package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server  ServerConfig  `yaml:"server" envconfig:"SERVER"`
	License LicenseConfig `yaml:"license" envconfig:"LICENSE"`
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Paths   PathsConfig   `yaml:"paths" envconfig:"PATHS"`
}

// ServerConfig contains HTTP server configuration for the host-facing API
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// LicenseConfig contains license client and state manager configuration
type LicenseConfig struct {
	// ServerURL is the base URL of the remote license authority.
	// Empty means offline mode: validation uses only the local cache.
	ServerURL string `yaml:"server_url" envconfig:"SERVER_URL" validate:"omitempty,url"`

	// SyncInterval is how often the state manager reconciles with the
	// authority. Retries after transient errors wait the same interval.
	SyncInterval time.Duration `yaml:"sync_interval" envconfig:"SYNC_INTERVAL" validate:"min=1s"`

	// GracePeriodDays is the window before expiry during which the
	// license stays valid but status reporting warns the user.
	GracePeriodDays int `yaml:"grace_period_days" envconfig:"GRACE_PERIOD_DAYS" validate:"min=0,max=90"`

	// RequestTimeout bounds a single call to the license authority.
	RequestTimeout time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT" validate:"min=1s"`

	// ActivationRPS and ActivationBurst rate-limit activation attempts
	// on the host-facing API.
	ActivationRPS   float64 `yaml:"activation_rps" envconfig:"ACTIVATION_RPS"`
	ActivationBurst int     `yaml:"activation_burst" envconfig:"ACTIVATION_BURST" validate:"min=1"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Output   string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration.
// Empty fields are resolved against the per-user config directory.
type PathsConfig struct {
	ConfigDir string `yaml:"config_dir" envconfig:"CONFIG_DIR"`
	CacheFile string `yaml:"cache_file" envconfig:"CACHE_FILE"`
	KeyFile   string `yaml:"key_file" envconfig:"KEY_FILE"`
	StateFile string `yaml:"state_file" envconfig:"STATE_FILE"`
}

// Default returns the configuration baseline. File and environment
// overlays replace individual fields; unset fields keep these values.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8745,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		License: LicenseConfig{
			SyncInterval:    time.Hour,
			GracePeriodDays: 7,
			RequestTimeout:  30 * time.Second,
			ActivationRPS:   1,
			ActivationBurst: 5,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Output:   "console",
			FilePath: "logs/dlens.log",
		},
	}
}

// Load builds the configuration in three layers: defaults, then the YAML
// config file if present, then DLENS_-prefixed environment variables.
func Load() (*Config, error) {
	cfg := Default()

	configFile := getConfigFilePath()
	if _, err := os.Stat(configFile); err == nil {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process("DLENS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.resolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// resolvePaths fills empty path fields from the per-user config directory
func (c *Config) resolvePaths() error {
	paths, err := GetPaths(c.Paths.ConfigDir)
	if err != nil {
		return err
	}

	c.Paths.ConfigDir = paths.ConfigDir
	if c.Paths.CacheFile == "" {
		c.Paths.CacheFile = paths.CacheFile
	}
	if c.Paths.KeyFile == "" {
		c.Paths.KeyFile = paths.KeyFile
	}
	if c.Paths.StateFile == "" {
		c.Paths.StateFile = paths.StateFile
	}

	return nil
}

// Validate checks configuration values using struct tags
func (c *Config) Validate() error {
	validate := validator.New()
	return validate.Struct(c)
}

// getConfigFilePath returns the config file location, overridable via env
func getConfigFilePath() string {
	if path := os.Getenv("DLENS_CONFIG_FILE"); path != "" {
		return path
	}
	return "dlens.yaml"
}
