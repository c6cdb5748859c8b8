package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// ============================================================================
// Config types
// ============================================================================

// Config represents the CLI configuration stored in ~/.portal/config.toml.
type Config struct {
	Default ConfigDefault `toml:"default"`
	Auth    ConfigAuth    `toml:"auth"`
}

// ConfigDefault holds connection settings.
type ConfigDefault struct {
	BaseURL        string `toml:"base_url"`
	Codec          string `toml:"codec"`
	RequestTimeout string `toml:"request_timeout"`
}

// ConfigAuth holds the portal session credential and the identity the
// CLI registers as.
type ConfigAuth struct {
	Token  string `toml:"token"`
	UserID string `toml:"user_id"`
}

// timeout parses request_timeout, falling back to def.
func (c *Config) timeout(def time.Duration) (time.Duration, error) {
	if c.Default.RequestTimeout == "" {
		return def, nil
	}
	d, err := time.ParseDuration(c.Default.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid default.request_timeout %q: %w", c.Default.RequestTimeout, err)
	}
	return d, nil
}

// ============================================================================
// Config helpers
// ============================================================================

// configDir returns the path to ~/.portal, creating it if needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".portal")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return dir, nil
}

// configPath returns the full path to the config file.
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// loadConfig reads and parses the config file.
// If the file does not exist, it returns a zero-value Config.
func loadConfig() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

// loadEffectiveConfig is loadConfig with PORTAL_* environment
// overrides applied. Nothing is written back.
func loadEffectiveConfig() (*Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	applyEnv(cfg, os.Getenv)
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if v := getenv("PORTAL_BASE_URL"); v != "" {
		cfg.Default.BaseURL = v
	}
	if v := getenv("PORTAL_CODEC"); v != "" {
		cfg.Default.Codec = v
	}
	if v := getenv("PORTAL_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}
	if v := getenv("PORTAL_USER_ID"); v != "" {
		cfg.Auth.UserID = v
	}
}

// saveConfig writes the config struct back to disk as TOML.
func saveConfig(cfg *Config) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// setConfigValue sets a config field using dot notation (e.g. "auth.user_id").
func setConfigValue(cfg *Config, key, value string) error {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 {
		return fmt.Errorf("key must use dot notation: section.field (e.g. default.base_url)")
	}
	section, field := parts[0], parts[1]

	switch section {
	case "default":
		switch field {
		case "base_url":
			cfg.Default.BaseURL = value
		case "codec":
			if value != "json" && value != "cbor" {
				return fmt.Errorf("codec must be json or cbor, got %q", value)
			}
			cfg.Default.Codec = value
		case "request_timeout":
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("request_timeout must be a duration such as 15s: %w", err)
			}
			cfg.Default.RequestTimeout = value
		default:
			return fmt.Errorf("unknown field %q in section [default]", field)
		}
	case "auth":
		switch field {
		case "token":
			cfg.Auth.Token = value
		case "user_id":
			cfg.Auth.UserID = value
		default:
			return fmt.Errorf("unknown field %q in section [auth]", field)
		}
	default:
		return fmt.Errorf("unknown config section %q (valid: default, auth)", section)
	}
	return nil
}

// ============================================================================
// Root command
// ============================================================================

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "portal",
	Short: "HR portal realtime CLI",
	Long:  "Command-line client for the HR portal's realtime layer.\nChat, manage groups, read notifications and watch live events.",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log connection diagnostics to stderr")
}

func main() {
	// A missing .env is fine; it only supplies PORTAL_* defaults.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
