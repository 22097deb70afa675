// Package config provides YAML/env-based configuration loading for the
// bindnode and bindctl binaries, built on a layered viper loader.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root application configuration for a bindrpc process.
type Config struct {
	// AppName is a logical name for this process, used only in log lines.
	AppName string `mapstructure:"app_name"`

	// DataDir is unused by the transport core itself but kept for parity
	// with the demo binaries' need for a place to write local state.
	DataDir string `mapstructure:"data_dir"`

	// Log holds logging configuration.
	Log LogConfig `mapstructure:"log"`

	// Transport holds transport-core tuning knobs.
	Transport TransportCoreConfig `mapstructure:"transport"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TransportCoreConfig holds the transport-level settings bindnode reads.
type TransportCoreConfig struct {
	// TransmitWindowBytes and AckThresholdBytes are loaded and validated
	// (both positive, threshold not above the window). They are not applied
	// to the transport: flowctl always uses its own TransmitWindowBytes and
	// AckThresholdBytes constants.
	TransmitWindowBytes int64 `mapstructure:"transmit_window_bytes"`
	AckThresholdBytes   int64 `mapstructure:"ack_threshold_bytes"`

	// PingIntervalSeconds is loaded but not read by either binary; bindnode
	// sends a single ping during its self-test and no periodic pings.
	PingIntervalSeconds int `mapstructure:"ping_interval_seconds"`

	// ListenAddress is the host:port bindnode's HTTP server binds to serve
	// /metrics.
	ListenAddress string `mapstructure:"listen_address"`

	// AllowedUIDs restricts which server uids bindnode's self-test client
	// accepts during the setup handshake; empty means allow all
	// (development default).
	AllowedUIDs []int32 `mapstructure:"allowed_uids"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "bindnode",
		DataDir: "./data",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/bindrpc.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Transport: TransportCoreConfig{
			TransmitWindowBytes: 128 * 1024,
			AckThresholdBytes:   16 * 1024,
			PingIntervalSeconds: 30,
			ListenAddress:       "127.0.0.1:8737",
		},
	}
}

// Load reads configuration from the provided path (if non-empty), otherwise
// it searches common locations and supports environment overrides.
// Environment variables use the prefix BINDRPC and `.`/`-` are replaced
// with `_`. Example: BINDRPC_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("BINDRPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("transport.transmit_window_bytes", cfg.Transport.TransmitWindowBytes)
	v.SetDefault("transport.ack_threshold_bytes", cfg.Transport.AckThresholdBytes)
	v.SetDefault("transport.ping_interval_seconds", cfg.Transport.PingIntervalSeconds)
	v.SetDefault("transport.listen_address", cfg.Transport.ListenAddress)

	if path == "" {
		if envPath := os.Getenv("BINDRPC_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("bindrpc")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".bindrpc"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if c.Transport.TransmitWindowBytes <= 0 {
		return fmt.Errorf("invalid transport.transmit_window_bytes: %d", c.Transport.TransmitWindowBytes)
	}
	if c.Transport.AckThresholdBytes <= 0 {
		return fmt.Errorf("invalid transport.ack_threshold_bytes: %d", c.Transport.AckThresholdBytes)
	}
	if c.Transport.AckThresholdBytes > c.Transport.TransmitWindowBytes {
		return fmt.Errorf("transport.ack_threshold_bytes (%d) must not exceed transport.transmit_window_bytes (%d)",
			c.Transport.AckThresholdBytes, c.Transport.TransmitWindowBytes)
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
