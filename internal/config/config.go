// Package config loads blsync settings from defaults, an optional config
// file and BLSYNC_ environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. BLSYNC_SYNC_INTERVAL.
const EnvPrefix = "BLSYNC"

// Config is the full blsync configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	DBPath   string `mapstructure:"db_path"`
	LockPath string `mapstructure:"lock_path"`

	Remote RemoteConfig `mapstructure:"remote"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Log    LogConfig    `mapstructure:"log"`
	Server ServerConfig `mapstructure:"server"`
}

// RemoteConfig points the client at a list service.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig controls the sync scheduler.
type SyncConfig struct {
	Interval                time.Duration `mapstructure:"interval"`
	Debounce                time.Duration `mapstructure:"debounce"`
	RetryBackoff            time.Duration `mapstructure:"retry_backoff"`
	SubscriptionConcurrency int           `mapstructure:"subscription_concurrency"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// ServerConfig configures the list service.
type ServerConfig struct {
	Addr    string   `mapstructure:"addr"`
	Storage string   `mapstructure:"storage"`
	DSN     string   `mapstructure:"dsn"`
	S3      S3Config `mapstructure:"s3"`
}

// S3Config configures the s3 storage backend.
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Prefix       string `mapstructure:"prefix"`
	Region       string `mapstructure:"region"`
	Endpoint     string `mapstructure:"endpoint"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

var storageKinds = map[string]bool{"sqlite": true, "postgres": true, "s3": true}

// DefaultDataDir returns ~/.local/share/blsync.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "blsync"), nil
}

func setDefaults(v *viper.Viper, dataDir string) {
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("db_path", "")
	v.SetDefault("lock_path", "")

	v.SetDefault("remote.base_url", "http://localhost:8787")
	v.SetDefault("remote.timeout", 30*time.Second)

	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.debounce", 2*time.Second)
	v.SetDefault("sync.retry_backoff", 3*time.Second)
	v.SetDefault("sync.subscription_concurrency", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("server.addr", ":8787")
	v.SetDefault("server.storage", "sqlite")
	v.SetDefault("server.dsn", "")
	v.SetDefault("server.s3.bucket", "")
	v.SetDefault("server.s3.prefix", "")
	v.SetDefault("server.s3.region", "us-east-1")
	v.SetDefault("server.s3.endpoint", "")
	v.SetDefault("server.s3.access_key", "")
	v.SetDefault("server.s3.secret_key", "")
	v.SetDefault("server.s3.use_path_style", false)
}

// Load reads configuration. With an empty path, blsync.{yaml,toml,json} is
// looked up in the data dir and a missing file is not an error.
func Load(path string) (*Config, error) {
	dataDir, err := DefaultDataDir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, dataDir)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("blsync")
		v.AddConfigPath(v.GetString("data_dir"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.fillPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fillPaths derives file locations left empty from the data dir.
func (c *Config) fillPaths() {
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "blacklist.db")
	}
	if c.LockPath == "" {
		c.LockPath = filepath.Join(c.DataDir, "sync.lock")
	}
	if c.Server.Storage == "sqlite" && c.Server.DSN == "" {
		c.Server.DSN = filepath.Join(c.DataDir, "lists.db")
	}
}

// Validate rejects settings the daemon or server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must be set"))
	}
	for name, d := range map[string]time.Duration{
		"remote.timeout":     c.Remote.Timeout,
		"sync.interval":      c.Sync.Interval,
		"sync.debounce":      c.Sync.Debounce,
		"sync.retry_backoff": c.Sync.RetryBackoff,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.Sync.SubscriptionConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("sync.subscription_concurrency must be positive, got %d", c.Sync.SubscriptionConcurrency))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log.format %q: valid formats are text, json", c.Log.Format))
	}
	if !storageKinds[c.Server.Storage] {
		errs = append(errs, fmt.Errorf("unknown server.storage %q: valid kinds are sqlite, postgres, s3", c.Server.Storage))
	}
	return errors.Join(errs...)
}
