// Package config loads dwntodo settings.
//
// Settings come from, in increasing precedence: built-in defaults, a
// config file (YAML, or JSON with comments when the name ends in .json
// or .jsonc), DWNTODO_* environment variables, and command-line flags
// (applied by the caller).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	// AppName is the configuration directory name.
	AppName = "dwntodo"

	// FileName is the config file looked up in Dir when no path is given.
	FileName = "config.yaml"

	// DefaultEndpoint is a DWN node on the local machine.
	DefaultEndpoint = "http://127.0.0.1:5173"

	// DefaultSchema tags every todo record.
	DefaultSchema = "http://127.0.0.1:5173"

	EnvConfig   = "DWNTODO_CONFIG"
	EnvEndpoint = "DWNTODO_ENDPOINT"
	EnvSchema   = "DWNTODO_SCHEMA"
	EnvLogLevel = "DWNTODO_LOG_LEVEL"
)

// Config is the resolved configuration.
type Config struct {
	// Endpoint is the DWN node URL.
	Endpoint string `yaml:"endpoint"`

	// Schema filters and tags todo records.
	Schema string `yaml:"schema"`

	// DataFormat is the record content type.
	DataFormat string `yaml:"data_format"`

	// Timeout bounds each request to the node. Zero disables it.
	Timeout time.Duration `yaml:"timeout"`

	// LogFile receives the diagnostic log while the TUI runs.
	LogFile string `yaml:"log_file"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Theme is classic, neon or mono.
	Theme string `yaml:"theme"`

	// Color is auto, always or never.
	Color string `yaml:"color"`

	// Dir holds the identity and the default config file.
	Dir string `yaml:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Endpoint:   DefaultEndpoint,
		Schema:     DefaultSchema,
		DataFormat: "application/json",
		LogLevel:   "info",
		Theme:      "classic",
		Color:      "auto",
		Dir:        DefaultDir(nil),
	}
}

// DefaultDir returns the default configuration directory: XDG_CONFIG_HOME
// if set, otherwise $HOME/.config. getenv may be nil.
func DefaultDir(getenv func(string) string) string {
	if getenv == nil {
		getenv = os.Getenv
	}
	if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home := getenv("HOME")
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			// Fallback to current directory if home can't be determined
			return AppName
		}
	}
	return filepath.Join(home, ".config", AppName)
}

// Load reads the config file at path. An empty path falls back to
// DWNTODO_CONFIG, then to Dir/config.yaml if it exists; with neither,
// defaults are used. Environment overrides are applied last.
func Load(path string, getenv func(string) string) (*Config, error) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if path == "" {
		path = getenv(EnvConfig)
	}
	cfg := Default()
	cfg.Dir = DefaultDir(getenv)

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.Dir, FileName)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := parseInto(cfg, data, path); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// no config file is fine
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data as the config format implied by name.
func Parse(data []byte, name string) (*Config, error) {
	cfg := Default()
	if err := parseInto(cfg, data, name); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseInto(cfg *Config, data []byte, name string) error {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc":
		// JSON is YAML once the comments and trailing commas are gone.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", name, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(EnvEndpoint); v != "" {
		c.Endpoint = v
	}
	if v := getenv(EnvSchema); v != "" {
		c.Schema = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the fields a run depends on.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: endpoint %q must be an http(s) URL", c.Endpoint)
	}
	if strings.TrimSpace(c.Schema) == "" {
		return errors.New("config: schema is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("config: timeout %s is negative", c.Timeout)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.Theme) {
	case "classic", "neon", "mono":
	default:
		return fmt.Errorf("config: unknown theme %q", c.Theme)
	}
	switch strings.ToLower(c.Color) {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("config: color must be auto, always or never, got %q", c.Color)
	}
	return nil
}

// Level returns the configured slog level.
func (c *Config) Level() slog.Level {
	l, _ := ParseLevel(c.LogLevel)
	return l
}

// ParseLevel maps a level name to slog.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: log level %q: %w", s, err)
	}
	return l, nil
}

// LogPath is where the TUI writes its diagnostic log.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.Dir, AppName+".log")
}
