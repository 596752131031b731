// Package config loads the midibridge command configuration from YAML and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leandrodaf/midibridge/internal/logger"
	"github.com/leandrodaf/midibridge/sdk/contracts"
	"github.com/spf13/viper"
)

// Config is the root configuration of the command.
type Config struct {
	// ClientName is registered with the OS MIDI service
	ClientName string `mapstructure:"client_name"`

	// Log holds logging configuration
	Log logger.Config `mapstructure:"log"`

	// MIDI tunes connections
	MIDI MIDIConfig `mapstructure:"midi"`
}

// MIDIConfig tunes connections opened by the command.
type MIDIConfig struct {
	// ReceiveTimeout bounds a single receive; zero waits forever
	ReceiveTimeout time.Duration `mapstructure:"receive_timeout"`
	// MaxPayload is the frame capacity of a send, in bytes
	MaxPayload int `mapstructure:"max_payload"`
	// HandlerQueue is the depth of the push handler queue
	HandlerQueue int `mapstructure:"handler_queue"`
	// Loopback swaps the OS transport for the in-process loopback one
	Loopback bool `mapstructure:"loopback"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		ClientName: contracts.DefaultClientName,
		Log: logger.Config{
			Level:   "info",
			Format:  "console",
			Outputs: []string{"stderr"},
			Rotation: logger.RotationConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		MIDI: MIDIConfig{
			MaxPayload:   contracts.DefaultMaxPayload,
			HandlerQueue: contracts.DefaultHandlerQueue,
		},
	}
}

// Load reads configuration from path (if non-empty), otherwise from
// MIDIBRIDGE_CONFIG or the first midibridge.yaml found in ., ./configs and
// ~/.midibridge. A missing file is not an error. Environment variables use
// the prefix MIDIBRIDGE with `.` and `-` replaced by `_`, for example
// MIDIBRIDGE_LOG_LEVEL=debug.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MIDIBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("client_name", cfg.ClientName)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("midi.receive_timeout", cfg.MIDI.ReceiveTimeout)
	v.SetDefault("midi.max_payload", cfg.MIDI.MaxPayload)
	v.SetDefault("midi.handler_queue", cfg.MIDI.HandlerQueue)
	v.SetDefault("midi.loopback", cfg.MIDI.Loopback)

	if path == "" {
		path = os.Getenv("MIDIBRIDGE_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("midibridge")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".midibridge"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if _, ok := contracts.ParseLogLevel(strings.ToLower(strings.TrimSpace(c.Log.Level))); !ok {
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "":
		c.Log.Format = "console"
	case "console", "json":
	default:
		return fmt.Errorf("invalid log.format: %q", c.Log.Format)
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stderr"}
	}
	if strings.TrimSpace(c.ClientName) == "" {
		c.ClientName = contracts.DefaultClientName
	}
	if c.MIDI.ReceiveTimeout < 0 {
		return fmt.Errorf("invalid midi.receive_timeout: %s", c.MIDI.ReceiveTimeout)
	}
	if c.MIDI.MaxPayload <= 0 {
		return fmt.Errorf("invalid midi.max_payload: %d", c.MIDI.MaxPayload)
	}
	if c.MIDI.HandlerQueue <= 0 {
		return fmt.Errorf("invalid midi.handler_queue: %d", c.MIDI.HandlerQueue)
	}
	return nil
}

// ClientOptions turns the MIDI settings into client options.
func (c *Config) ClientOptions() []contracts.Option {
	return []contracts.Option{
		contracts.WithCoreMIDIConfig(contracts.CoreMIDIConfig{ClientName: c.ClientName}),
		contracts.WithReceiveTimeout(c.MIDI.ReceiveTimeout),
		contracts.WithMaxPayload(c.MIDI.MaxPayload),
		contracts.WithHandlerQueue(c.MIDI.HandlerQueue),
	}
}
