// Package config handles workspace configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Registry backend modes.
const (
	ModeSQLite = "sqlite"
	ModeHTTP   = "http"
)

// Config represents workspace configuration stored in .oar/config.yaml.
type Config struct {
	// Registry selects the backing store.
	Registry RegistryConfig `yaml:"registry" json:"registry"`
	// Similarity names the string metric used for ISSN multi-hit
	// tie-breaks: jaro-winkler, jaro, sorensen-dice or levenshtein.
	Similarity string `yaml:"similarity,omitempty" json:"similarity,omitempty"`
	// Force makes imports overwrite conflicting registry values by default.
	Force bool `yaml:"force,omitempty" json:"force,omitempty"`
	// LogLevel sets the minimum log level: debug, info, warn or error.
	LogLevel string `yaml:"log_level,omitempty" json:"log_level,omitempty"`
}

// RegistryConfig selects and parameterizes the registry backend.
type RegistryConfig struct {
	Mode string `yaml:"mode" json:"mode"`                     // sqlite or http
	Path string `yaml:"path,omitempty" json:"path,omitempty"` // sqlite database path, relative to the workspace root
	URL  string `yaml:"url,omitempty" json:"url,omitempty"`   // http API base URL
}

const (
	OarDir     = ".oar"
	ConfigFile = "config.yaml"
	EnvFile    = ".env"
	DBFile     = "registry.db"
)

// OarPath returns the path to the .oar directory from a root path.
func OarPath(root string) string {
	return filepath.Join(root, OarDir)
}

// ConfigPath returns the path to config.yaml from a root path.
func ConfigPath(root string) string {
	return filepath.Join(root, OarDir, ConfigFile)
}

// DBPath returns the sqlite database path for the workspace, honoring a
// configured override.
func (c *Config) DBPath(root string) string {
	if c.Registry.Path != "" {
		if filepath.IsAbs(c.Registry.Path) {
			return c.Registry.Path
		}
		return filepath.Join(root, c.Registry.Path)
	}
	return filepath.Join(root, OarDir, DBFile)
}

// IsWorkspace checks if the given path contains an oar workspace.
func IsWorkspace(root string) bool {
	info, err := os.Stat(OarPath(root))
	return err == nil && info.IsDir()
}

// FindWorkspace walks up from the given path to find an oar workspace.
// Returns the workspace root path or an error if not found.
func FindWorkspace(start string) (string, error) {
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	for {
		if IsWorkspace(abs) {
			return abs, nil
		}

		parent := filepath.Dir(abs)
		if parent == abs {
			return "", fmt.Errorf("not in an oar workspace (no .oar directory found)")
		}
		abs = parent
	}
}

// Default returns the configuration used when config.yaml is absent.
func Default() *Config {
	return &Config{
		Registry: RegistryConfig{Mode: ModeSQLite},
		LogLevel: "info",
	}
}

// Load reads configuration from the workspace at the given root. A missing
// config file yields the defaults. Secrets such as OAR_API_TOKEN are read
// from .oar/.env into the environment.
func Load(root string) (*Config, error) {
	// Missing .env is fine; the token may come from the real environment
	_ = godotenv.Load(filepath.Join(root, OarDir, EnvFile))

	data, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to the workspace at the given root.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(ConfigPath(root), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate checks mode-specific requirements.
func (c *Config) Validate() error {
	switch c.Registry.Mode {
	case ModeSQLite, "":
	case ModeHTTP:
		if c.Registry.URL == "" {
			return fmt.Errorf("registry mode %q requires a url", ModeHTTP)
		}
	default:
		return fmt.Errorf("unknown registry mode %q (valid: %s, %s)", c.Registry.Mode, ModeSQLite, ModeHTTP)
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}
	return nil
}

// APIToken returns the registry API token from the environment.
func APIToken() string {
	return os.Getenv("OAR_API_TOKEN")
}
