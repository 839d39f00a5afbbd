// Package config provides typed application configuration loaded from a
// YAML file overlaid with DLENS_-prefixed environment variables, plus the
// centralized path resolution for every file the license client owns.
package config
