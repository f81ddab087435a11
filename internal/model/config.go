package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig identifies the notification gateway to sync against.
type ServerConfig struct {
	// BaseURL is the root URL of the school-administration API
	// (e.g., https://school.example.com).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds a single gateway request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// PollConfig controls the background refresh loop.
type PollConfig struct {
	// ListIntervalSec is how often (in seconds) the full notification
	// list is re-pulled.
	ListIntervalSec int `mapstructure:"list_interval_sec" yaml:"list_interval_sec"`

	// CountIntervalSec is how often the lightweight unread-count
	// endpoint is polled between list pulls.
	CountIntervalSec int `mapstructure:"count_interval_sec" yaml:"count_interval_sec"`

	// PageSize is the list window size; records that fall outside it
	// are evicted from the cache on the next refresh.
	PageSize int `mapstructure:"page_size" yaml:"page_size"`
}

// MailConfig configures the optional IMAP inbox watcher that turns
// unseen school messages into notifications.
type MailConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	Host            string `mapstructure:"host" yaml:"host"`
	Port            string `mapstructure:"port" yaml:"port"`
	Username        string `mapstructure:"username" yaml:"username"`
	TLS             bool   `mapstructure:"tls" yaml:"tls"`
	PollIntervalSec int    `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme string `mapstructure:"theme" yaml:"theme"`

	// BellLimit is how many recent notifications the bell dropdown shows.
	BellLimit int `mapstructure:"bell_limit" yaml:"bell_limit"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Poll    PollConfig    `mapstructure:"poll" yaml:"poll"`
	Mail    MailConfig    `mapstructure:"mail" yaml:"mail"`
	Display DisplayConfig `mapstructure:"display" yaml:"display"`

	// DBPath is where the offline snapshot database lives. Empty means
	// the default under the config directory.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/notify/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "notify", "config.yaml")
}

// DefaultDBPath returns the default snapshot database path next to the
// config file.
func DefaultDBPath() string {
	return filepath.Join(filepath.Dir(DefaultConfigPath()), "snapshot.db")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			TimeoutSec: 30,
		},
		Poll: PollConfig{
			ListIntervalSec:  30,
			CountIntervalSec: 30,
			PageSize:         20,
		},
		Mail: MailConfig{
			PollIntervalSec: 120,
		},
		Display: DisplayConfig{
			Theme:     "default",
			BellLimit: 5,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("server.timeout_sec", 30)
	v.SetDefault("poll.list_interval_sec", 30)
	v.SetDefault("poll.count_interval_sec", 30)
	v.SetDefault("poll.page_size", 20)
	v.SetDefault("mail.poll_interval_sec", 120)
	v.SetDefault("display.theme", "default")
	v.SetDefault("display.bell_limit", 5)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("poll", cfg.Poll)
	v.Set("mail", cfg.Mail)
	v.Set("display", cfg.Display)
	v.Set("db_path", cfg.DBPath)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
