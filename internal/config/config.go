package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the tunable runtime settings for the terminal.
type Config struct {
	WorkspaceRoot         string `yaml:"workspace_root"`
	ListenAddr            string `yaml:"listen_addr"`
	CommandTimeoutSeconds int    `yaml:"command_timeout_seconds"`
	MaxOutputBytes        int    `yaml:"max_output_bytes"`
	HistoryPath           string `yaml:"history_path"`
	LogPath               string `yaml:"log_path"`
	LogMaxSizeMB          int    `yaml:"log_max_size_mb"`
	LogMaxBackups         int    `yaml:"log_max_backups"`
}

// LoadUserConfig loads configuration from ~/.webterm/config.yaml.
// Checks WEBTERM_CONFIG_PATH environment variable first.
// If the file doesn't exist, returns defaults.
func LoadUserConfig() (Config, error) {
	configPath := os.Getenv("WEBTERM_CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := Config{}
		cfg.applyDefaults()
		return cfg, nil
	}

	return Load(configPath)
}

// Load reads the YAML configuration from disk and injects sane defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills in optional values to keep the YAML file concise.
func (c *Config) applyDefaults() {
	if c.WorkspaceRoot == "" {
		c.WorkspaceRoot = "."
	}
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8321"
	}
	if c.CommandTimeoutSeconds <= 0 {
		c.CommandTimeoutSeconds = 10
	}
	if c.MaxOutputBytes <= 0 {
		c.MaxOutputBytes = 64 * 1024
	}
	if c.HistoryPath == "" {
		c.HistoryPath = filepath.Join(GetConfigDir(), "history.db")
	}
	if c.LogMaxSizeMB <= 0 {
		c.LogMaxSizeMB = 10
	}
	if c.LogMaxBackups < 0 {
		c.LogMaxBackups = 0
	}
}

func (c Config) validate() error {
	if c.CommandTimeoutSeconds > 300 {
		return fmt.Errorf("command_timeout_seconds cannot exceed 300 (5 minutes)")
	}
	if c.MaxOutputBytes < 1024 {
		return fmt.Errorf("max_output_bytes must be at least 1024")
	}
	if c.MaxOutputBytes > 16*1024*1024 {
		return fmt.Errorf("max_output_bytes cannot exceed 16MiB")
	}
	if strings.TrimSpace(c.HistoryPath) == "" {
		return fmt.Errorf("history_path must be set")
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	return nil
}

// CommandTimeout exposes the configured per-request duration.
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutSeconds) * time.Second
}

// OverrideWorkspaceRoot swaps the workspace root at runtime (flag wins
// over file).
func (c *Config) OverrideWorkspaceRoot(root string) {
	if c == nil {
		return
	}
	if trimmed := strings.TrimSpace(root); trimmed != "" {
		c.WorkspaceRoot = trimmed
	}
}

// EnsureDefaultConfig writes a default config file when none exists yet,
// so a first run leaves an editable file behind. An existing file is
// never touched.
func EnsureDefaultConfig() error {
	configPath := os.Getenv("WEBTERM_CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}
	if _, err := os.Stat(configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	var cfg Config
	cfg.applyDefaults()
	return Save(cfg)
}

// Save writes the config to the user's config file.
func Save(c Config) error {
	configPath := os.Getenv("WEBTERM_CONFIG_PATH")
	if configPath == "" {
		configPath = filepath.Join(GetConfigDir(), "config.yaml")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func GetConfigDir() string {
	if configDir := os.Getenv("WEBTERM_CONFIG_DIR"); configDir != "" {
		return configDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".webterm"
	}
	return filepath.Join(home, ".webterm")
}
