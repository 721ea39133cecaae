// Package config loads server configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/girandola/config.yaml",
}

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Auth     AuthConfig     `koanf:"auth"`
	Security SecurityConfig `koanf:"security"`
	Logging  LoggingConfig  `koanf:"logging"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	// PublicURL is the externally visible base URL, used for OAuth redirects.
	PublicURL string `koanf:"public_url" validate:"omitempty,url"`
	StaticDir string `koanf:"static_dir"`
}

type DatabaseConfig struct {
	Driver    string `koanf:"driver" validate:"oneof=sqlite postgres badger"`
	Path      string `koanf:"path" validate:"required_if=Driver sqlite"`
	URL       string `koanf:"url" validate:"required_if=Driver postgres"`
	BadgerDir string `koanf:"badger_dir"`
}

type AuthConfig struct {
	// SessionSecret seeds every derived key. Empty means an ephemeral
	// secret is generated at startup and sessions do not survive restarts.
	SessionSecret      string        `koanf:"session_secret" validate:"omitempty,min=16"`
	SessionTTL         time.Duration `koanf:"session_ttl" validate:"gt=0"`
	CookieName         string        `koanf:"cookie_name" validate:"required"`
	CookieSecure       bool          `koanf:"cookie_secure"`
	GoogleIssuer       string        `koanf:"google_issuer" validate:"required,url"`
	GoogleClientID     string        `koanf:"google_client_id"`
	GoogleClientSecret string        `koanf:"google_client_secret"`
}

// GoogleEnabled reports whether Google sign-in is configured.
func (a AuthConfig) GoogleEnabled() bool {
	return a.GoogleClientID != ""
}

type SecurityConfig struct {
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json text"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			PublicURL:       "http://localhost:8080",
			StaticDir:       "./static",
		},
		Database: DatabaseConfig{
			Path:      "./data/girandola.db",
			BadgerDir: "./data/badger",
		},
		Auth: AuthConfig{
			SessionTTL:   30 * 24 * time.Hour,
			CookieName:   "girandola_session",
			CookieSecure: false,
			GoogleIssuer: "https://accounts.google.com",
		},
		Security: SecurityConfig{
			CORSOrigins:       []string{"*"},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration: defaults, then the config file (if any),
// then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := splitList(k, "security.cors_origins"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// With no explicit driver, a database URL selects postgres.
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
		if cfg.Database.URL != "" {
			cfg.Database.Driver = DriverPostgres
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks struct constraints.
func (c *Config) Validate() error {
	return validate.Struct(c)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// splitList turns a comma-separated env value into a slice.
func splitList(k *koanf.Koanf, path string) error {
	s, ok := k.Get(path).(string)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if err := k.Set(path, out); err != nil {
		return fmt.Errorf("failed to set %s: %w", path, err)
	}
	return nil
}

// legacyEnv maps the environment names used by earlier deployments.
var legacyEnv = map[string]string{
	"port":                 "server.port",
	"public_url":           "server.public_url",
	"static_path":          "server.static_dir",
	"db_driver":            "database.driver",
	"db_path":              "database.path",
	"database_url":         "database.url",
	"badger_dir":           "database.badger_dir",
	"session_secret":       "auth.session_secret",
	"google_client_id":     "auth.google_client_id",
	"google_client_secret": "auth.google_client_secret",
	"cors_origins":         "security.cors_origins",
	"log_level":            "logging.level",
	"log_format":           "logging.format",
}

// envTransformFunc maps env names to config paths. GIRANDOLA_SECTION_KEY
// becomes section.key; a few unprefixed legacy names are also accepted.
// Anything else is dropped.
//
//	GIRANDOLA_SERVER_PORT -> server.port
//	GIRANDOLA_AUTH_SESSION_TTL -> auth.session_ttl
//	DB_PATH -> database.path
func envTransformFunc(key string) string {
	key = strings.ToLower(key)
	if rest, ok := strings.CutPrefix(key, "girandola_"); ok {
		section, field, found := strings.Cut(rest, "_")
		if !found {
			return ""
		}
		switch section {
		case "server", "database", "auth", "security", "logging":
			return section + "." + field
		}
		return ""
	}
	return legacyEnv[key]
}
