package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ryaneggz/agent-q/internal/api"
	"github.com/ryaneggz/agent-q/internal/engine"
	"github.com/ryaneggz/agent-q/internal/log"
	"github.com/ryaneggz/agent-q/internal/responder"
	"github.com/ryaneggz/agent-q/internal/responder/cli"
	"github.com/ryaneggz/agent-q/internal/responder/script"
	"github.com/ryaneggz/agent-q/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the broker HTTP server",
	Long: `Run the broker: accept prompt submissions over HTTP, dispatch them
one at a time in priority order, and stream output via server-sent events.

Example:
  agent-q serve                  # Listen on the configured address
  agent-q serve --addr :9000     # Override the listen address`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	tracer, err := tracing.NewProvider(tracing.Config{
		Exporter: cfg.Tracing.Exporter,
		Endpoint: cfg.Tracing.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	resp, err := buildResponder()
	if err != nil {
		return err
	}

	eng := engine.New(engine.Options{
		MaxQueueSize:      cfg.Queue.MaxSize,
		ProcessingTimeout: cfg.ProcessingTimeout(),
		RetentionTTL:      cfg.RetentionTTL(),
		Responder:         resp,
		Tracer:            tracer,
	})
	eng.Start()

	addr := viper.GetString("server.addr")
	if addr == "" {
		addr = cfg.Addr()
	}

	server, err := api.NewServer(api.ServerConfig{
		Addr:    addr,
		Handler: api.NewHandler(api.HandlerConfig{Engine: eng, KeepaliveInterval: cfg.KeepaliveInterval()}),
		Tracer:  tracer,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("agent-q listening on port %d\n", server.Port())
	fmt.Println("Press Ctrl+C to stop")

	select {
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.ErrorErr(log.CatAPI, "error stopping API server", err)
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.ErrorErr(log.CatWorker, "error shutting down engine", err)
	}
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.ErrorErr(log.CatConfig, "error shutting down tracing", err)
	}

	fmt.Println("Broker stopped")
	return nil
}

// buildResponder constructs the configured answer provider.
func buildResponder() (responder.Responder, error) {
	switch responder.Kind(cfg.Responder.Kind) {
	case responder.KindScript:
		return script.New(), nil
	case responder.KindCLI:
		return cli.New(cli.Config{
			Command: cfg.Responder.Command,
			Args:    cfg.Responder.Args,
			WorkDir: cfg.Responder.WorkDir,
		}), nil
	}
	return nil, fmt.Errorf("%w: %s", responder.ErrUnknownKind, cfg.Responder.Kind)
}
