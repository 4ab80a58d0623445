// Package config resolves the server's runtime configuration from (in
// ascending priority) built-in defaults, an optional YAML file,
// environment variables, and finally CLI flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable the server needs at startup.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	Shell      string `yaml:"shell"`
	Cmd        string `yaml:"cmd"`
	DefaultDir string `yaml:"default_dir"`

	HistorySize int  `yaml:"history_size"`
	Unsecure    bool `yaml:"unsecure"`

	LogEnabled bool   `yaml:"log_enabled"`
	LogDir     string `yaml:"log_dir"`

	MotdArt string `yaml:"motd_art"`

	DBPath     string `yaml:"db_path"`
	NoPersist  bool   `yaml:"no_persist"`
	ConfigPath string `yaml:"-"`
}

// Defaults returns a Config populated with built-in defaults, before any
// file, environment, or flag overrides are applied.
func Defaults() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Host:        "0.0.0.0",
		Port:        8080,
		Shell:       "/bin/bash",
		DefaultDir:  home,
		HistorySize: 50_000,
		Unsecure:    false,
		LogEnabled:  false,
		LogDir:      filepath.Join(home, ".config", "ptyfan", "log"),
		MotdArt:     "butterfly",
		DBPath:      filepath.Join(home, ".config", "ptyfan", "ptyfan.db"),
		NoPersist:   false,
		ConfigPath:  filepath.Join(home, ".config", "ptyfan", "config.yaml"),
	}
}

// LoadFile overlays cfg with values found in a YAML file at path. A
// missing file is not an error — the caller is expected to have already
// applied defaults.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: reading %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parsing %q: %w", path, err)
	}
	return nil
}

// Save writes cfg to its ConfigPath as YAML, creating parent directories
// as needed.
func (c *Config) Save() error {
	dir := filepath.Dir(c.ConfigPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: creating directory %q: %w", dir, err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(c.ConfigPath, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %q: %w", c.ConfigPath, err)
	}
	return nil
}

// ApplyEnv overlays cfg with the WEBTERM_* environment variables,
// consulted between the YAML file and CLI flags.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("WEBTERM_HOST"); ok {
		c.Host = v
	}
	if v, ok := os.LookupEnv("WEBTERM_PORT"); ok {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid WEBTERM_PORT %q: %w", v, err)
		}
		c.Port = p
	}
	if v, ok := os.LookupEnv("WEBTERM_SHELL"); ok {
		c.Shell = v
	}
	if v, ok := os.LookupEnv("WEBTERM_CMD"); ok {
		c.Cmd = v
	}
	if v, ok := os.LookupEnv("WEBTERM_DIR"); ok {
		c.DefaultDir = v
	}
	if v, ok := os.LookupEnv("WEBTERM_HISTORY_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid WEBTERM_HISTORY_SIZE %q: %w", v, err)
		}
		c.HistorySize = n
	}
	if v, ok := os.LookupEnv("WEBTERM_UNSECURE"); ok {
		c.Unsecure = parseBool(v)
	}
	if v, ok := os.LookupEnv("WEBTERM_LOG_ENABLED"); ok {
		c.LogEnabled = parseBool(v)
	}
	if v, ok := os.LookupEnv("WEBTERM_LOG_DIR"); ok {
		c.LogDir = v
	}
	if v, ok := os.LookupEnv("WEBTERM_MOTD_ART"); ok {
		c.MotdArt = v
	}
	if v, ok := os.LookupEnv("WEBTERM_DB_PATH"); ok {
		c.DBPath = v
	}
	if v, ok := os.LookupEnv("WEBTERM_NO_PERSIST"); ok {
		c.NoPersist = parseBool(v)
	}
	return nil
}

// Validate checks the invariants the server depends on at startup.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d: must be between 1 and 65535", c.Port)
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("config: history_size must be positive, got %d", c.HistorySize)
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
