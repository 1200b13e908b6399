// Package config loads the TOML daemon configuration and writes back the
// auto-restart policy when it changes at runtime.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/craftherd/internal/logger"
	"github.com/loykin/craftherd/internal/restart"
)

// ServerConfig describes the supervised game server.
type ServerConfig struct {
	TargetPath  string `toml:"target_path" mapstructure:"target_path"`
	Port        int    `toml:"port" mapstructure:"port"`
	MaxMemoryGB int    `toml:"max_memory_gb" mapstructure:"max_memory_gb"`
	Artifact    string `toml:"artifact" mapstructure:"artifact"`
	JavaBin     string `toml:"java_bin" mapstructure:"java_bin"`
}

// RosterConfig tunes roster polling.
type RosterConfig struct {
	PollInterval       time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	MinRequestInterval time.Duration `toml:"min_request_interval" mapstructure:"min_request_interval"`
}

// MetricsConfig tunes the periodic sampling and the publication throttle.
type MetricsConfig struct {
	Interval time.Duration `toml:"interval" mapstructure:"interval"`
	Throttle time.Duration `toml:"throttle" mapstructure:"throttle"`
}

// HistoryConfig selects the lifecycle history store. An empty DSN disables
// history.
type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

// HTTPConfig describes the embedded control API listener.
type HTTPConfig struct {
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

// FileConfig represents the top-level TOML structure.
type FileConfig struct {
	Server      ServerConfig   `toml:"server" mapstructure:"server"`
	AutoRestart restart.Config `toml:"autorestart" mapstructure:"autorestart"`
	Roster      RosterConfig   `toml:"roster" mapstructure:"roster"`
	Metrics     MetricsConfig  `toml:"metrics" mapstructure:"metrics"`
	Log         logger.Config  `toml:"log" mapstructure:"log"`
	History     HistoryConfig  `toml:"history" mapstructure:"history"`
	HTTP        HTTPConfig     `toml:"http" mapstructure:"http"`
}

// Defaults applied when the file omits a value.
const (
	DefaultPort        = 25565
	DefaultMaxMemoryGB = 4
	DefaultHTTPListen  = "127.0.0.1:8420"
)

// Load reads and validates the TOML configuration at path.
func Load(path string) (*FileConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	fc.applyDefaults()
	if err := fc.Validate(); err != nil {
		return nil, err
	}
	return &fc, nil
}

func (fc *FileConfig) applyDefaults() {
	if fc.Server.Port == 0 {
		fc.Server.Port = DefaultPort
	}
	if fc.Server.MaxMemoryGB == 0 {
		fc.Server.MaxMemoryGB = DefaultMaxMemoryGB
	}
	if fc.HTTP.Listen == "" {
		fc.HTTP.Listen = DefaultHTTPListen
	}
}

// Validate rejects configurations the daemon cannot run with.
func (fc *FileConfig) Validate() error {
	if fc.Server.TargetPath == "" {
		return fmt.Errorf("server.target_path is required")
	}
	if fc.Server.Port < 1 || fc.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1,65535], got %d", fc.Server.Port)
	}
	if fc.Server.MaxMemoryGB < 1 {
		return fmt.Errorf("server.max_memory_gb must be positive, got %d", fc.Server.MaxMemoryGB)
	}
	// A present autorestart section must hold valid bounds even when disabled,
	// so enabling it later cannot surprise.
	if fc.AutoRestart.DelaySeconds != 0 || fc.AutoRestart.MaxCrashes != 0 {
		if err := fc.AutoRestart.Validate(); err != nil {
			return fmt.Errorf("autorestart: %w", err)
		}
	} else if fc.AutoRestart.Enabled {
		return fmt.Errorf("autorestart: enabled without delay_seconds/max_crashes")
	}
	return nil
}

// SaveAutoRestart persists a changed auto-restart policy back into the TOML
// file, preserving the other sections.
func SaveAutoRestart(path string, cfg restart.Config) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	v.Set("autorestart.enabled", cfg.Enabled)
	v.Set("autorestart.delay_seconds", cfg.DelaySeconds)
	v.Set("autorestart.max_crashes", cfg.MaxCrashes)
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
