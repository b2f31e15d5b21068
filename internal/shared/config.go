package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Remote   RemoteConfig   `toml:"remote"`
	Sync     SyncConfig     `toml:"sync"`
	Player   PlayerConfig   `toml:"player"`
	Session  SessionConfig  `toml:"session"`
	Library  LibraryConfig  `toml:"library"`
	Server   ServerConfig   `toml:"server"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig contains local store settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// RemoteConfig contains settings for the remote music API.
type RemoteConfig struct {
	BaseURL   string   `toml:"base_url"`
	Timeout   Duration `toml:"timeout"`
	RateLimit float64  `toml:"rate_limit"` // requests per second, 0 disables pacing
	Burst     int      `toml:"burst"`
}

// SyncConfig contains cadence, batching and retry settings for reconciliation.
type SyncConfig struct {
	Interval       Duration `toml:"interval"`
	RetryInterval  Duration `toml:"retry_interval"`
	Debounce       Duration `toml:"debounce"`
	ProbeInterval  Duration `toml:"probe_interval"`
	RetryAttempts  int      `toml:"retry_attempts"`
	RetryBaseDelay Duration `toml:"retry_base_delay"`
	Batches        Batches  `toml:"batches"`
}

// Batches holds per-entity batch sizes. Binary uploads are heavier than lyrics, so their batches are smaller.
type Batches struct {
	Lyrics    int `toml:"lyrics"`
	Uploads   int `toml:"uploads"`
	Playlists int `toml:"playlists"`
	Social    int `toml:"social"`
}

// PlayerConfig contains initial playback settings.
type PlayerConfig struct {
	Volume  float64 `toml:"volume"`
	Repeat  string  `toml:"repeat"`
	Shuffle bool    `toml:"shuffle"`
	TempDir string  `toml:"temp_dir"`
}

// SessionConfig points at the persisted bearer credential.
type SessionConfig struct {
	Path string `toml:"path"`
}

// LibraryConfig contains local media import settings.
type LibraryConfig struct {
	WatchDir string `toml:"watch_dir"`
}

// ServerConfig contains control server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a [time.Duration] decoded from a TOML string such as "300s" or "1m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks the values that would otherwise stall the sync loop or the player.
func (c *Config) Validate() error {
	if c.Sync.Interval.Duration <= 0 || c.Sync.RetryInterval.Duration <= 0 {
		return fmt.Errorf("%w: sync intervals must be positive", ErrInvalidConfig)
	}
	if c.Sync.RetryAttempts < 1 {
		return fmt.Errorf("%w: sync.retry_attempts must be at least 1", ErrInvalidConfig)
	}
	b := c.Sync.Batches
	if b.Lyrics < 1 || b.Uploads < 1 || b.Playlists < 1 || b.Social < 1 {
		return fmt.Errorf("%w: batch sizes must be at least 1", ErrInvalidConfig)
	}
	if c.Player.Volume < 0 || c.Player.Volume > 1 {
		return fmt.Errorf("%w: player.volume must be within [0, 1]", ErrInvalidConfig)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	// Check if file already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
