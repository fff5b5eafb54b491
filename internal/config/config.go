// Package config handles reading tasktide.yaml and environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no config path is given.
const DefaultPath = "tasktide.yaml"

// Config is the top-level structure for tasktide.yaml.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Backend  BackendConfig `yaml:"backend"`
	Auth     AuthConfig    `yaml:"auth"`
	Cache    CacheConfig   `yaml:"cache"`
	LogLevel string        `yaml:"log_level"` // debug | info | warn | error
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port         string `yaml:"port"`
	CookieSecure bool   `yaml:"cookie_secure"`
}

// BackendConfig points at the hosted data API.
type BackendConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
}

// AuthConfig controls credential hashing and token signing.
type AuthConfig struct {
	JWTSecret  string `yaml:"jwt_secret"`
	BcryptCost int    `yaml:"bcrypt_cost"`
}

// CacheConfig controls the local SQLite cache.
type CacheConfig struct {
	Path      string   `yaml:"path"`
	Freshness Duration `yaml:"freshness"`
}

// Duration wraps time.Duration so YAML values like "5m" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// Default returns a Config populated with sensible defaults. The backend URL
// and JWT secret have no defaults and must come from the file or environment.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			CookieSecure: true,
		},
		Auth: AuthConfig{
			BcryptCost: 12,
		},
		Cache: CacheConfig{
			Path:      "tasktide.db",
			Freshness: Duration(5 * time.Minute),
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path (when it exists), applies environment
// overrides, and validates the result. A missing file is not an error; a
// malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		// Environment-only configuration.
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = envOrDefault("PORT", c.Server.Port)
	if v := os.Getenv("COOKIE_SECURE"); v != "" {
		c.Server.CookieSecure = v != "false"
	}
	c.Backend.URL = envOrDefault("BACKEND_URL", c.Backend.URL)
	c.Backend.ServiceKey = envOrDefault("BACKEND_SERVICE_KEY", c.Backend.ServiceKey)
	c.Auth.JWTSecret = envOrDefault("JWT_SECRET", c.Auth.JWTSecret)
	if v := os.Getenv("BCRYPT_COST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			c.Auth.BcryptCost = parsed
		}
	}
	c.Cache.Path = envOrDefault("CACHE_PATH", c.Cache.Path)
	if v := os.Getenv("CACHE_FRESHNESS"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.Cache.Freshness = Duration(parsed)
		}
	}
	c.LogLevel = envOrDefault("LOG_LEVEL", c.LogLevel)
}

func (c *Config) validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend url is required (backend.url or BACKEND_URL)")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("jwt secret is required (auth.jwt_secret or JWT_SECRET)")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("jwt secret must be at least 32 characters for HMAC-SHA256 security")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 14 {
		return fmt.Errorf("bcrypt cost must be between 4 and 14, got %d", c.Auth.BcryptCost)
	}
	if c.Cache.Freshness <= 0 {
		return fmt.Errorf("cache freshness must be positive, got %s", c.Cache.Freshness)
	}
	return nil
}

// SlogLevel maps the configured log level onto a slog.Level. Unknown values
// fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
