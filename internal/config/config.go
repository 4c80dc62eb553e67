// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `json:"host" yaml:"host"`
		Port int    `json:"port" yaml:"port"`
	} `json:"server" yaml:"server"`

	Database struct {
		// Badger directory, relative to the workspace root unless absolute
		Path     string `json:"path" yaml:"path"`
		InMemory bool   `json:"in_memory" yaml:"in_memory"`
	} `json:"database" yaml:"database"`

	History struct {
		SnapshotInterval int `json:"snapshot_interval" yaml:"snapshot_interval"`
		CacheSize        int `json:"cache_size" yaml:"cache_size"`
		CompressionLevel int `json:"compression_level" yaml:"compression_level"` // 1=fastest, 4=best
	} `json:"history" yaml:"history"`

	Workspace struct {
		Ignore   []string `json:"ignore" yaml:"ignore"`
		Debounce string   `json:"debounce" yaml:"debounce"` // e.g. "500ms"
	} `json:"workspace" yaml:"workspace"`

	Environment string `json:"environment" yaml:"environment"` // development, production
	LogLevel    string `json:"log_level" yaml:"log_level"`     // debug, info, warn, error
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{
		Environment: "development",
		LogLevel:    "info",
	}
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 8080
	cfg.Database.Path = filepath.Join(".lvcs", "db")
	cfg.History.SnapshotInterval = 50
	cfg.History.CacheSize = 16
	cfg.History.CompressionLevel = 2
	cfg.Workspace.Ignore = []string{".git", "node_modules", "vendor", "dist", "build"}
	cfg.Workspace.Debounce = "500ms"
	return cfg
}

// ConfigPath is the environment-specific config file, chosen by LVCS_ENV.
func ConfigPath() string {
	env := os.Getenv("LVCS_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load reads path over the defaults. JSON or YAML is chosen by extension.
// With an empty path the LVCS_ENV file is used if it exists, and the
// defaults otherwise.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	if err := cfg.loadFromFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if isYAML(path) {
		return yaml.Unmarshal(data, c)
	}
	return json.Unmarshal(data, c)
}

// Save writes the configuration, in the format its extension names.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.History.SnapshotInterval <= 0 {
		return fmt.Errorf("snapshot interval must be positive")
	}
	if c.History.CompressionLevel < 1 || c.History.CompressionLevel > 4 {
		return fmt.Errorf("compression level %d out of range 1-4", c.History.CompressionLevel)
	}
	if _, err := c.DebounceDuration(); err != nil {
		return err
	}
	return nil
}

// DebounceDuration parses Workspace.Debounce.
func (c *Config) DebounceDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Workspace.Debounce)
	if err != nil {
		return 0, fmt.Errorf("workspace debounce: %w", err)
	}
	return d, nil
}

// DatabasePath resolves Database.Path against the workspace root.
func (c *Config) DatabasePath(workspaceRoot string) string {
	if filepath.IsAbs(c.Database.Path) {
		return c.Database.Path
	}
	return filepath.Join(workspaceRoot, c.Database.Path)
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
