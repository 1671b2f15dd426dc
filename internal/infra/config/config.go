package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`

	Port string `mapstructure:"port" yaml:"port"`
}

type DownloadConfig struct {
	OutDir         string `mapstructure:"out_dir" yaml:"out_dir"`
	SegmentSize    int64  `mapstructure:"segment_size" yaml:"segment_size"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`

	// MaxSpeed caps the aggregate download speed in bytes/sec. 0 = unlimited.
	MaxSpeed int64 `mapstructure:"max_speed" yaml:"max_speed"`

	// LowestSpeed aborts a connection whose speed stays at or below this
	// value (bytes/sec) once StartupGrace has passed. 0 = disabled.
	LowestSpeed  int64         `mapstructure:"lowest_speed" yaml:"lowest_speed"`
	StartupGrace time.Duration `mapstructure:"startup_grace" yaml:"startup_grace"`

	// PieceCheck enables realtime piece checksum validation when the
	// download declares per-segment hashes.
	PieceCheck bool   `mapstructure:"piece_check" yaml:"piece_check"`
	Retries    int    `mapstructure:"retries" yaml:"retries"`
	Proxy      string `mapstructure:"proxy" yaml:"proxy"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type StoreConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
}

func Load(path string) (*Config, error) {
	v := viper.New()

	// Set Defaults
	v.SetDefault("port", "8080")
	v.SetDefault("download.out_dir", "./downloads")
	v.SetDefault("download.segment_size", int64(4*1024*1024))
	v.SetDefault("download.max_connections", 4)
	v.SetDefault("download.startup_grace", "10s")
	v.SetDefault("download.retries", 3)
	v.SetDefault("log.path", "gofetch.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "gofetch.db")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}

		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// Support Environment Variables
	v.SetEnvPrefix("GOFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Download.SegmentSize <= 0 {
		c.Download.SegmentSize = 4 * 1024 * 1024
	}

	if c.Download.MaxConnections <= 0 {
		c.Download.MaxConnections = 4
	}

	if c.Download.StartupGrace <= 0 {
		c.Download.StartupGrace = 10 * time.Second
	}

	if c.Download.MaxSpeed < 0 || c.Download.LowestSpeed < 0 {
		return fmt.Errorf("speed limits must not be negative")
	}

	if c.Download.MaxSpeed > 0 && c.Download.LowestSpeed >= c.Download.MaxSpeed {
		return fmt.Errorf("lowest_speed (%d) must be below max_speed (%d)",
			c.Download.LowestSpeed, c.Download.MaxSpeed)
	}

	if c.Download.OutDir == "" {
		c.Download.OutDir = "./downloads"
	}

	switch c.Store.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store driver: %s", c.Store.Driver)
	}

	if c.Store.Driver == "postgres" && c.Store.PostgresDSN == "" {
		return fmt.Errorf("store driver postgres requires postgres_dsn")
	}

	return nil
}
