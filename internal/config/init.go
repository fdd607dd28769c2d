package config

import (
	"os"
	"path/filepath"
)

// DefaultPath returns the config file location used when no -config flag is
// given: app.yml inside $BACKEND_CONFIG_DIR, or the working directory.
func DefaultPath() string {
	dir := os.Getenv("BACKEND_CONFIG_DIR")
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "app.yml")
}

// Init loads the configuration from DefaultPath.
func Init() (*Config, error) {
	return LoadConfig(DefaultPath())
}
