package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ryaneggz/agent-q/internal/log"
)

// DefaultConfigTemplate returns the commented starter config file.
func DefaultConfigTemplate() string {
	return `# agent-q configuration
# Every setting can also be supplied through the environment; the variable
# name is listed next to each key.

server:
  host: 0.0.0.0          # HOST
  port: 8000             # PORT
  keepalive_interval: 30 # KEEPALIVE_INTERVAL, seconds between SSE keepalives

queue:
  max_size: 1000         # MAX_QUEUE_SIZE, cap on waiting messages
  processing_timeout: 60 # PROCESSING_TIMEOUT, seconds per message
  retention_ttl: 0       # RETENTION_TTL, seconds to keep finished messages (0 = forever)

responder:
  kind: script           # RESPONDER: script or cli
  # command: my-agent    # RESPONDER_COMMAND, executable for the cli responder
  # args: ["--stream"]
  # work_dir: /tmp

log:
  level: info            # LOG_LEVEL: debug, info, warn, error

tracing:
  exporter: none         # TRACING_EXPORTER: none, stdout, otlp
  # endpoint: jaeger.internal:4317  # TRACING_ENDPOINT
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "created default config", "path", configPath)
	return nil
}

// Save persists the config to path as YAML, overwriting what is there.
func Save(configPath string, cfg Config) error {
	doc := map[string]any{
		"server": map[string]any{
			"host":               cfg.Server.Host,
			"port":               cfg.Server.Port,
			"keepalive_interval": cfg.Server.KeepaliveInterval,
		},
		"queue": map[string]any{
			"max_size":           cfg.Queue.MaxSize,
			"processing_timeout": cfg.Queue.ProcessingTimeout,
			"retention_ttl":      cfg.Queue.RetentionTTL,
		},
		"responder": map[string]any{
			"kind":     cfg.Responder.Kind,
			"command":  cfg.Responder.Command,
			"args":     cfg.Responder.Args,
			"work_dir": cfg.Responder.WorkDir,
		},
		"log": map[string]any{
			"level": cfg.Log.Level,
		},
		"tracing": map[string]any{
			"exporter": cfg.Tracing.Exporter,
			"endpoint": cfg.Tracing.Endpoint,
		},
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
