package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig   `toml:"database"`
	Log       LogConfig        `toml:"log"`
	Journal   JournalConfig    `toml:"journal"`
	Server    ServerConfig     `toml:"server"`
	Relations []RelationConfig `toml:"relations"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// JournalConfig controls persistence of pivot events.
type JournalConfig struct {
	Enabled bool `toml:"enabled"`
}

// ServerConfig contains HTTP API listener settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the listen address as host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RelationConfig declares one many-to-many relation.
type RelationConfig struct {
	Name      string `toml:"name"`       // Logical relation name used in events (e.g. "articles")
	OwnerType string `toml:"owner_type"` // Morph type of the owning side (e.g. "user")
	Touch     bool   `toml:"touch"`      // Default for touching the owner's timestamp
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects relations without a name or owner type and duplicate relation declarations.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Relations))
	for i, rel := range c.Relations {
		if rel.Name == "" || rel.OwnerType == "" {
			return fmt.Errorf("%w: relation #%d needs name and owner_type", ErrInvalidConfig, i+1)
		}
		key := rel.OwnerType + "." + rel.Name
		if seen[key] {
			return fmt.Errorf("%w: relation %s declared twice", ErrInvalidConfig, key)
		}
		seen[key] = true
	}
	return nil
}

// Relation looks up a declared relation by name, optionally narrowed by owner type.
func (c *Config) Relation(name, ownerType string) (RelationConfig, error) {
	var match *RelationConfig
	for i := range c.Relations {
		rel := c.Relations[i]
		if rel.Name != name || (ownerType != "" && rel.OwnerType != ownerType) {
			continue
		}
		if match != nil {
			return RelationConfig{}, fmt.Errorf("%w: %s is declared for several owner types, pass one explicitly", ErrUnknownRelation, name)
		}
		match = &rel
	}
	if match == nil {
		return RelationConfig{}, fmt.Errorf("%w: %s", ErrUnknownRelation, name)
	}
	return *match, nil
}
