// ABOUTME: Configuration loading and parsing for chatline client and reference server
// ABOUTME: Supports YAML and TOML files with environment variable expansion and duration parsing

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the complete chatline configuration.
// The client reads Backend and Logging; the reference server reads the rest.
type Config struct {
	Backend   BackendConfig   `yaml:"backend" toml:"backend"`
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Responder ResponderConfig `yaml:"responder" toml:"responder"`
	Dedupe    DedupeConfig    `yaml:"dedupe" toml:"dedupe"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// BackendConfig describes the chat backend the client talks to.
type BackendConfig struct {
	URL string `yaml:"url" toml:"url"`

	// RequestTimeout bounds non-streaming requests only. The reply stream
	// has no timeout of its own.
	RequestTimeout    time.Duration `yaml:"-" toml:"-"`
	RequestTimeoutRaw string        `yaml:"request_timeout" toml:"request_timeout"`
}

// ServerConfig holds the reference server's listen address.
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds the reference server's SQLite location.
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ResponderConfig tunes the reference server's echo responder.
type ResponderConfig struct {
	ChunkDelay    time.Duration `yaml:"-" toml:"-"`
	ChunkDelayRaw string        `yaml:"chunk_delay" toml:"chunk_delay"`
}

// DedupeConfig tunes idempotency-key tracking on the reference server.
type DedupeConfig struct {
	TTL     time.Duration `yaml:"-" toml:"-"`
	TTLRaw  string        `yaml:"ttl" toml:"ttl"`
	MaxSize int           `yaml:"max_size" toml:"max_size"`
}

// LoggingConfig holds logging configuration.
// Format is one of "text", "json" or "auto" (text on a terminal, json otherwise).
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns a configuration suitable for talking to a backend on localhost.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:            "http://127.0.0.1:5000",
			RequestTimeout: 30 * time.Second,
		},
		Server: ServerConfig{
			HTTPAddr: "127.0.0.1:5000",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(DataDir(), "chatline.db"),
		},
		Responder: ResponderConfig{
			ChunkDelay: 20 * time.Millisecond,
		},
		Dedupe: DedupeConfig{
			TTL:     5 * time.Minute,
			MaxSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Values missing from the file keep their Default() value.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads the file at path, falling back to Default() when the
// file does not exist. Any other error is returned.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Path returns the configuration file path.
// Priority: CHATLINE_CONFIG env var > XDG_CONFIG_HOME/chatline/config.yaml > ~/.config/chatline/config.yaml
func Path() string {
	if envPath := os.Getenv("CHATLINE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chatline", "config.yaml")
}

// DataDir returns the chatline data directory.
// Priority: XDG_DATA_HOME/chatline > ~/.local/share/chatline
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "chatline")
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return fmt.Errorf("backend.url is required")
	}
	u, err := url.Parse(c.Backend.URL)
	if err != nil {
		return fmt.Errorf("backend.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("backend.url must use http or https scheme")
	}

	if c.Backend.RequestTimeout < 0 {
		return fmt.Errorf("backend.request_timeout must not be negative")
	}

	if c.Dedupe.MaxSize < 0 {
		return fmt.Errorf("dedupe.max_size must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not one of auto, text, json", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Backend.RequestTimeoutRaw != "" {
		cfg.Backend.RequestTimeout, err = time.ParseDuration(cfg.Backend.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Backend.RequestTimeoutRaw, err)
		}
	}

	if cfg.Responder.ChunkDelayRaw != "" {
		cfg.Responder.ChunkDelay, err = time.ParseDuration(cfg.Responder.ChunkDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing chunk_delay %q: %w", cfg.Responder.ChunkDelayRaw, err)
		}
	}

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
	}

	return nil
}
