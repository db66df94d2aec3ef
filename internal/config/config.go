// Package config provides configuration types and defaults for agent-q.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration options for agent-q.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Responder ResponderConfig `mapstructure:"responder"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
}

// ServerConfig holds the HTTP listener options.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// KeepaliveInterval is the gap between SSE keepalive comments, in
	// seconds.
	KeepaliveInterval int `mapstructure:"keepalive_interval"`
}

// QueueConfig holds queue and worker options.
type QueueConfig struct {
	// MaxSize caps the number of queued (not yet dispatched) messages.
	MaxSize int `mapstructure:"max_size"`

	// ProcessingTimeout is the per-message wall-clock budget, in seconds.
	ProcessingTimeout int `mapstructure:"processing_timeout"`

	// RetentionTTL removes terminal messages this many seconds after they
	// finish. 0 keeps them forever.
	RetentionTTL int `mapstructure:"retention_ttl"`
}

// ResponderConfig selects and configures the answer provider.
type ResponderConfig struct {
	// Kind is "script" (default) or "cli".
	Kind string `mapstructure:"kind"`

	// Command is the executable for the cli provider.
	Command string `mapstructure:"command"`

	// Args are prepended before the prompt argument (cli provider).
	Args []string `mapstructure:"args"`

	// WorkDir is the working directory for the cli provider.
	WorkDir string `mapstructure:"work_dir"`
}

// LogConfig holds logging options.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// TracingConfig holds OpenTelemetry exporter options.
type TracingConfig struct {
	// Exporter is "none" (default), "stdout" or "otlp".
	Exporter string `mapstructure:"exporter"`

	// Endpoint is the OTLP collector address when exporter is "otlp".
	Endpoint string `mapstructure:"endpoint"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8000,
			KeepaliveInterval: 30,
		},
		Queue: QueueConfig{
			MaxSize:           1000,
			ProcessingTimeout: 60,
			RetentionTTL:      0,
		},
		Responder: ResponderConfig{
			Kind: "script",
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Exporter: "none",
		},
	}
}

// envBindings maps config keys to the environment variables that override
// them. The names match the deployment surface, not viper's automatic
// SERVER_HOST style.
var envBindings = map[string]string{
	"server.host":               "HOST",
	"server.port":               "PORT",
	"server.keepalive_interval": "KEEPALIVE_INTERVAL",
	"queue.max_size":            "MAX_QUEUE_SIZE",
	"queue.processing_timeout":  "PROCESSING_TIMEOUT",
	"queue.retention_ttl":       "RETENTION_TTL",
	"responder.kind":            "RESPONDER",
	"responder.command":         "RESPONDER_COMMAND",
	"log.level":                 "LOG_LEVEL",
	"tracing.exporter":          "TRACING_EXPORTER",
	"tracing.endpoint":          "TRACING_ENDPOINT",
}

// BindDefaults seeds viper with the default values and environment
// bindings. Call once before ReadInConfig.
func BindDefaults(v *viper.Viper) {
	defaults := Default()
	v.SetDefault("server.host", defaults.Server.Host)
	v.SetDefault("server.port", defaults.Server.Port)
	v.SetDefault("server.keepalive_interval", defaults.Server.KeepaliveInterval)
	v.SetDefault("queue.max_size", defaults.Queue.MaxSize)
	v.SetDefault("queue.processing_timeout", defaults.Queue.ProcessingTimeout)
	v.SetDefault("queue.retention_ttl", defaults.Queue.RetentionTTL)
	v.SetDefault("responder.kind", defaults.Responder.Kind)
	v.SetDefault("responder.command", defaults.Responder.Command)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", defaults.Tracing.Endpoint)

	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}
}

// Load unmarshals the viper state into a validated Config.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Queue.MaxSize < 1 {
		return fmt.Errorf("queue max_size must be positive, got %d", c.Queue.MaxSize)
	}
	if c.Queue.ProcessingTimeout < 1 {
		return fmt.Errorf("processing_timeout must be positive, got %d", c.Queue.ProcessingTimeout)
	}
	if c.Queue.RetentionTTL < 0 {
		return fmt.Errorf("retention_ttl must not be negative, got %d", c.Queue.RetentionTTL)
	}
	if c.Server.KeepaliveInterval < 1 {
		return fmt.Errorf("keepalive_interval must be positive, got %d", c.Server.KeepaliveInterval)
	}
	switch c.Responder.Kind {
	case "script", "cli":
	default:
		return fmt.Errorf("unknown responder kind %q", c.Responder.Kind)
	}
	switch c.Tracing.Exporter {
	case "none", "stdout", "otlp":
	default:
		return fmt.Errorf("unknown tracing exporter %q", c.Tracing.Exporter)
	}
	return nil
}

// ProcessingTimeout returns the per-message budget as a duration.
func (c Config) ProcessingTimeout() time.Duration {
	return time.Duration(c.Queue.ProcessingTimeout) * time.Second
}

// KeepaliveInterval returns the SSE keepalive gap as a duration.
func (c Config) KeepaliveInterval() time.Duration {
	return time.Duration(c.Server.KeepaliveInterval) * time.Second
}

// RetentionTTL returns the terminal-message lifetime as a duration.
// Zero means retention is disabled.
func (c Config) RetentionTTL() time.Duration {
	return time.Duration(c.Queue.RetentionTTL) * time.Second
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
