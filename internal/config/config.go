// Package config loads the immutable startup snapshot from an optional
// YAML file, layered environment variables, and built-in defaults.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix scopes the environment override layer. A variable like
// TOLLGATE_SERVER__PORT=9090 overrides server.port.
const EnvPrefix = "TOLLGATE_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Dispatch  DispatchConfig  `koanf:"dispatch"`
	Log       LogConfig       `koanf:"log"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Audit     AuditConfig     `koanf:"audit"`
	Auth      AuthConfig      `koanf:"auth"`
}

type ServerConfig struct {
	Port    int       `koanf:"port"`
	Timeout string    `koanf:"timeout"` // per-request deadline, e.g. "30s"; "0" disables
	TLS     TLSConfig `koanf:"tls"`
}

type TLSConfig struct {
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

// Enabled reports whether both halves of the TLS material are configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

type DispatchConfig struct {
	MaxDepth    int  `koanf:"max_depth"`   // trailing segments tolerated as positional args
	Pretty      bool `koanf:"pretty"`      // indent response JSON
	Debug       bool `koanf:"debug"`       // attach exception detail to server faults
	Passthrough bool `koanf:"passthrough"` // hand handlers the raw request
	Compress    bool `koanf:"compress"`    // gzip responses
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

// SlogLevel maps the configured verbosity onto slog. Unknown values fall
// back to info.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type RateLimitConfig struct {
	Enabled    bool    `koanf:"enabled"`
	RPS        float64 `koanf:"rps"`
	Burst      int     `koanf:"burst"`
	MaxClients int     `koanf:"max_clients"`
}

type AuditConfig struct {
	Type   string            `koanf:"type"` // none, memory, sqlite
	Memory MemoryAuditConfig `koanf:"memory"`
	SQLite SQLiteAuditConfig `koanf:"sqlite"`
}

type MemoryAuditConfig struct {
	Size int `koanf:"size"`
}

type SQLiteAuditConfig struct {
	Path string `koanf:"path"`
}

// AuthConfig carries the global credential map: username to accepted
// passwords. Values support ${VAR} substitution so secrets stay out of
// the file.
type AuthConfig struct {
	Users map[string][]string `koanf:"users"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load builds the snapshot. A missing file at the given path is an error;
// an empty path skips the file layer entirely and relies on environment
// variables and defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Environment variables override file values.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	for user, passwords := range cfg.Auth.Users {
		for i := range passwords {
			passwords[i] = substituteEnvVars(passwords[i])
		}
		cfg.Auth.Users[user] = passwords
	}

	return &cfg, nil
}

// Default returns the built-in configuration without reading a file.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		// Defaults alone cannot fail to unmarshal.
		panic(err)
	}
	return cfg
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":            8080,
		"server.timeout":         "30s",
		"dispatch.max_depth":     1,
		"log.level":              "info",
		"rate_limit.rps":         10.0,
		"rate_limit.burst":       20,
		"rate_limit.max_clients": 4096,
		"audit.type":             "none",
		"audit.memory.size":      256,
		"audit.sqlite.path":      "./data/audit.db",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}
}

// RequestTimeout parses the per-request deadline. Unset or unparsable
// values fall back to 30 seconds; an explicit "0" disables the deadline.
func (c *Config) RequestTimeout() time.Duration {
	if c.Server.Timeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(c.Server.Timeout)
	if err != nil || d < 0 {
		return 30 * time.Second
	}
	return d
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
