// Package config loads the Dormindo daemon configuration from
// ~/.dormindo/config.yaml, an optional .env file and DORMINDO_* variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	golobby "github.com/golobby/config/v3"
	"github.com/golobby/config/v3/pkg/feeder"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Gateway kinds accepted by media.gateway.
const (
	GatewayMPRIS     = "mpris"
	GatewayPlayerctl = "playerctl"
	GatewaySimulated = "simulated"
)

// Config holds the daemon configuration.
type Config struct {
	Daemon        DaemonConfig        `yaml:"daemon"`
	Media         MediaConfig         `yaml:"media"`
	Notifications NotificationsConfig `yaml:"notifications"`
	History       HistoryConfig       `yaml:"history"`
	Timer         TimerConfig         `yaml:"timer"`
}

type DaemonConfig struct {
	// Listen is the address the HTTP API binds to.
	Listen string `yaml:"listen" env:"DORMINDO_LISTEN"`
	// DBPath is the SQLite database file.
	DBPath string `yaml:"db_path" env:"DORMINDO_DB_PATH"`
	// LogLevel is one of error, warning, info, debug.
	LogLevel string `yaml:"log_level" env:"DORMINDO_LOG_LEVEL"`
	// AllowedOrigins lists browser origins allowed to call the API.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type MediaConfig struct {
	// Gateway selects the media session backend: mpris, playerctl or simulated.
	Gateway string `yaml:"gateway" env:"DORMINDO_MEDIA_GATEWAY"`
	// Player narrows control to one player (MPRIS bus name suffix or playerctl name).
	Player string `yaml:"player" env:"DORMINDO_MEDIA_PLAYER"`
	// StopTimeout bounds the media stop issued when a timer expires.
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

type NotificationsConfig struct {
	// Desktop posts the countdown through org.freedesktop.Notifications.
	Desktop  bool           `yaml:"desktop" env:"DORMINDO_DESKTOP_NOTIFICATIONS"`
	Pushover PushoverConfig `yaml:"pushover"`
}

type PushoverConfig struct {
	Token     string `yaml:"token" env:"PUSHOVER_TOKEN"`
	Recipient string `yaml:"recipient" env:"PUSHOVER_RECIPIENT"`
}

// Enabled reports whether both pushover credentials are present.
func (p PushoverConfig) Enabled() bool {
	return p.Token != "" && p.Recipient != ""
}

type HistoryConfig struct {
	// RetentionDays is how long finished runs are kept. 0 keeps them forever.
	RetentionDays int `yaml:"retention_days" env:"DORMINDO_HISTORY_RETENTION_DAYS"`
	// PruneEvery is how often the retention job runs.
	PruneEvery time.Duration `yaml:"prune_every"`
}

type TimerConfig struct {
	TickInterval       time.Duration `yaml:"tick_interval"`
	PausedPollInterval time.Duration `yaml:"paused_poll_interval"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			Listen:   "127.0.0.1:7470",
			DBPath:   filepath.Join(DefaultDir(), "dormindo.db"),
			LogLevel: "info",
		},
		Media: MediaConfig{
			Gateway:     GatewayMPRIS,
			StopTimeout: 5 * time.Second,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
		History: HistoryConfig{
			RetentionDays: 30,
			PruneEvery:    6 * time.Hour,
		},
		Timer: TimerConfig{
			TickInterval:       time.Second,
			PausedPollInterval: 500 * time.Millisecond,
		},
	}
}

// DefaultDir returns ~/.dormindo, or .dormindo when the home dir is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".dormindo"
	}
	return filepath.Join(home, ".dormindo")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load reads the YAML file at path on top of the defaults and then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func applyEnv(cfg *Config) error {
	return golobby.New().AddFeeder(feeder.Env{}).AddStruct(cfg).Feed()
}

// Save writes cfg to path, creating parent directories if needed.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Daemon.Listen == "" {
		return fmt.Errorf("daemon.listen must not be empty")
	}
	if c.Daemon.DBPath == "" {
		return fmt.Errorf("daemon.db_path must not be empty")
	}

	validGateways := map[string]bool{
		GatewayMPRIS:     true,
		GatewayPlayerctl: true,
		GatewaySimulated: true,
	}
	if !validGateways[c.Media.Gateway] {
		return fmt.Errorf("invalid media.gateway %q, must be: mpris, playerctl, or simulated", c.Media.Gateway)
	}
	if c.Media.StopTimeout <= 0 {
		return fmt.Errorf("media.stop_timeout must be positive")
	}

	if c.History.RetentionDays < 0 {
		return fmt.Errorf("history.retention_days must not be negative")
	}
	if c.History.RetentionDays > 0 && c.History.PruneEvery <= 0 {
		return fmt.Errorf("history.prune_every must be positive when retention is enabled")
	}

	if c.Timer.TickInterval <= 0 || c.Timer.PausedPollInterval <= 0 {
		return fmt.Errorf("timer intervals must be positive")
	}
	return nil
}

// GetLogLevel maps daemon.log_level to a zerolog level. Unknown values
// fall back to info.
func (c *Config) GetLogLevel() zerolog.Level {
	switch strings.ToLower(c.Daemon.LogLevel) {
	case "error":
		return zerolog.ErrorLevel
	case "warning", "warn":
		return zerolog.WarnLevel
	case "debug":
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}
