package shared

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override configuration values.
const (
	EnvConfigPath = "EVENTUALLY_CONFIG"
	EnvDBPath     = "EVENTUALLY_DB_PATH"
	EnvLogLevel   = "EVENTUALLY_LOG_LEVEL"
)

// LoadEnv loads variables from the given dotenv files (default ".env") without overriding ones already set.
//
// Missing files are ignored.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}
	return nil
}

// ConfigPath returns the config file location from the environment, or fallback.
func ConfigPath(fallback string) string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	return fallback
}

// ApplyEnv overrides config values with any environment variables that are set.
func ApplyEnv(c *Config) {
	if path := os.Getenv(EnvDBPath); path != "" {
		c.Database.Path = path
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Log.Level = level
	}
}
