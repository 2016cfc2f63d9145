// Package config loads runtime settings with viper.
// Priority order: environment variables > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	ServerAddr string `mapstructure:"server_addr"`
	Offline    bool   `mapstructure:"offline"`
	ListenAddr string `mapstructure:"listen_addr"`
	LogLevel   string `mapstructure:"log_level"`
	SQLitePath string `mapstructure:"sqlite_path"`
	PlayerName string `mapstructure:"player_name"`

	HeartbeatInterval           time.Duration `mapstructure:"heartbeat_interval"`
	BackgroundHeartbeatInterval time.Duration `mapstructure:"background_heartbeat_interval"`
	ConnectTimeout              time.Duration `mapstructure:"connect_timeout"`
	BackoffBase                 time.Duration `mapstructure:"backoff_base"`
	MaxAttempts                 int           `mapstructure:"max_attempts"`

	InterpolationDelay time.Duration `mapstructure:"interpolation_delay"`
	InterpolationRate  time.Duration `mapstructure:"interpolation_rate"`
	SnapshotHorizon    time.Duration `mapstructure:"snapshot_horizon"`

	OutboxMaxRetries int `mapstructure:"outbox_max_retries"`
}

// Load reads the optional config file and the TACMAP_* environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("tacmap")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/tacmap")
	}

	v.SetEnvPrefix("TACMAP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("server_addr", "ws://localhost:8080/ws")
	v.SetDefault("offline", false)
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("sqlite_path", "tacmap.db")
	v.SetDefault("player_name", "Player")

	v.SetDefault("heartbeat_interval", "5s")
	v.SetDefault("background_heartbeat_interval", "30s")
	v.SetDefault("connect_timeout", "10s")
	v.SetDefault("backoff_base", "1s")
	v.SetDefault("max_attempts", 5)

	v.SetDefault("interpolation_delay", "100ms")
	v.SetDefault("interpolation_rate", "16ms")
	v.SetDefault("snapshot_horizon", "2s")

	v.SetDefault("outbox_max_retries", 3)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}
