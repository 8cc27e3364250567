// Package config provides Viper-based configuration loading for the arrow game client.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the game server endpoints. These are the only network
// options the client has.
type ServerConfig struct {
	// Address is the server host name or IP address.
	Address string `mapstructure:"address"`
	// ReliablePort is the TCP port of the reliable channel.
	ReliablePort int `mapstructure:"reliable_port"`
	// UnreliablePort is the UDP port of the unreliable channel.
	UnreliablePort int `mapstructure:"unreliable_port"`
}

// ReliableAddr returns the "host:port" address of the reliable channel.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (s ServerConfig) ReliableAddr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.ReliablePort))
}

// UnreliableAddr returns the "host:port" address of the unreliable channel.
func (s ServerConfig) UnreliableAddr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.UnreliablePort))
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
	// File, when set, additionally writes JSON logs to a rolling file.
	File string `mapstructure:"file"`
	// MaxSizeMB is the size at which the log file is rotated.
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files kept.
	MaxBackups int `mapstructure:"max_backups"`
}

// ClientConfig holds tick loop settings.
type ClientConfig struct {
	// TickInterval is the period of the tick loop.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// SpawnX and SpawnY are where replicated actors are created.
	SpawnX float32 `mapstructure:"spawn_x"`
	SpawnY float32 `mapstructure:"spawn_y"`
}

// InputConfig selects the local input source. At most one of Script and
// Timeline may be set; with neither, the local player stands still.
type InputConfig struct {
	Script string `mapstructure:"script"`
	// ScriptInstructionLimit bounds Lua opcodes per input call; 0 uses the default.
	ScriptInstructionLimit int    `mapstructure:"script_instruction_limit"`
	Timeline               string `mapstructure:"timeline"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Client  ClientConfig  `mapstructure:"client"`
	Input   InputConfig   `mapstructure:"input"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateClient(c.Client); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateInput(c.Input); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Address == "" {
		errs = append(errs, "server.address must not be empty")
	}
	if s.ReliablePort < 1 || s.ReliablePort > 65535 {
		errs = append(errs, fmt.Sprintf("server.reliable_port must be 1-65535, got %d", s.ReliablePort))
	}
	if s.UnreliablePort < 1 || s.UnreliablePort > 65535 {
		errs = append(errs, fmt.Sprintf("server.unreliable_port must be 1-65535, got %d", s.UnreliablePort))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	if l.File != "" && (l.MaxSizeMB < 1 || l.MaxBackups < 0) {
		return fmt.Errorf("logging.max_size_mb must be >= 1 and logging.max_backups >= 0, got %d and %d", l.MaxSizeMB, l.MaxBackups)
	}
	return nil
}

func validateClient(c ClientConfig) error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("client.tick_interval must be positive, got %s", c.TickInterval)
	}
	return nil
}

func validateInput(i InputConfig) error {
	if i.Script != "" && i.Timeline != "" {
		return errors.New("input.script and input.timeline are mutually exclusive")
	}
	if i.ScriptInstructionLimit < 0 {
		return fmt.Errorf("input.script_instruction_limit must be >= 0, got %d", i.ScriptInstructionLimit)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path uses defaults and environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with ARROW_ prefix
	v.SetEnvPrefix("ARROW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.reliable_port", 9000)
	v.SetDefault("server.unreliable_port", 9001)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 3)

	v.SetDefault("client.tick_interval", "16ms")
	v.SetDefault("client.spawn_x", 0)
	v.SetDefault("client.spawn_y", 0)

	v.SetDefault("input.script", "")
	v.SetDefault("input.script_instruction_limit", 0)
	v.SetDefault("input.timeline", "")
}
