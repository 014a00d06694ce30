// Package config loads ~/.chatfetch/config.toml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

// Config represents the global ~/.chatfetch/config.toml.
type Config struct {
	DefaultSession string        `toml:"default_session"`
	LogLevel       string        `toml:"log_level"`
	Remote         RemoteConfig  `toml:"remote"`
	Retry          RetryConfig   `toml:"retry"`
	Sync           SyncConfig    `toml:"sync"`
	Store          StoreConfig   `toml:"store"`
	Metrics        MetricsConfig `toml:"metrics"`
	AMQP           AMQPConfig    `toml:"amqp"`
}

// RemoteConfig points at the history gateway.
type RemoteConfig struct {
	BaseURL  string   `toml:"base_url"`
	Token    string   `toml:"token"`
	PageSize int      `toml:"page_size"`
	Timeout  Duration `toml:"timeout"`
	// MaxInFlight sizes the semaphore shared by every remote call of the daemon.
	MaxInFlight int `toml:"max_in_flight"`
}

type RetryConfig struct {
	MaxAttempts    int      `toml:"max_attempts"`
	InitialBackoff Duration `toml:"initial_backoff"`
	MaxBackoff     Duration `toml:"max_backoff"`
}

type SyncConfig struct {
	Concurrency int      `toml:"concurrency"`
	MaxMessages int      `toml:"max_messages"`
	MaxAgeDays  int      `toml:"max_age_days"`
	RunTimeout  Duration `toml:"run_timeout"`
}

// StoreConfig selects the cache backend.
type StoreConfig struct {
	Driver        string `toml:"driver"`
	MongoURI      string `toml:"mongo_uri"`
	MongoDatabase string `toml:"mongo_database"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `toml:"listen"`
}

// AMQPConfig enables event publishing when URL is set.
type AMQPConfig struct {
	URL        string `toml:"url"`
	Exchange   string `toml:"exchange"`
	RoutingKey string `toml:"routing_key"`
	Queue      string `toml:"queue"`
}

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Duration is a time.Duration written as a string such as "30s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Load reads config from the given path. Returns zero config and error if file missing.
//
// Variables from a .env file in the working directory are loaded first, and
// ${VAR} references in the file are expanded before decoding.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(os.ExpandEnv(string(data)), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.setDefaults()
	return &cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Default returns a config with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Remote.PageSize == 0 {
		c.Remote.PageSize = 100
	}
	if c.Remote.Timeout.Duration == 0 {
		c.Remote.Timeout.Duration = 30 * time.Second
	}
	if c.Remote.MaxInFlight == 0 {
		c.Remote.MaxInFlight = 4
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 5
	}
	if c.Retry.InitialBackoff.Duration == 0 {
		c.Retry.InitialBackoff.Duration = 500 * time.Millisecond
	}
	if c.Retry.MaxBackoff.Duration == 0 {
		c.Retry.MaxBackoff.Duration = 30 * time.Second
	}
	if c.Sync.Concurrency == 0 {
		c.Sync.Concurrency = 4
	}
	if c.Sync.RunTimeout.Duration == 0 {
		c.Sync.RunTimeout.Duration = 30 * time.Minute
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverSQLite
	}
	if c.Store.MongoDatabase == "" {
		c.Store.MongoDatabase = "chatfetch"
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "chatfetch"
	}
}

// Validate reports settings the daemon cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.Store.Driver {
	case DriverSQLite:
	case DriverMongo:
		if c.Store.MongoURI == "" {
			errs = append(errs, errors.New("store.mongo_uri is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if c.Remote.BaseURL == "" {
		errs = append(errs, errors.New("remote.base_url is required"))
	}
	if c.Sync.MaxMessages < 0 || c.Sync.MaxAgeDays < 0 {
		errs = append(errs, errors.New("sync limits must not be negative"))
	}
	return errors.Join(errs...)
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
