package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ryaneggz/agent-q/internal/log"
	"github.com/ryaneggz/agent-q/internal/tracing"
)

// Server wraps the Handler with an http.Server for lifecycle management.
type Server struct {
	handler  *Handler
	server   *http.Server
	listener net.Listener
	port     int // Actual port after binding (useful when using :0)
}

// ServerConfig configures the API server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., ":8000" or "localhost:0").
	Addr string
	// Handler serves the routes (required).
	Handler *Handler
	// Tracer wraps requests in spans when set.
	Tracer *tracing.Provider
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration
}

// NewServer creates a new API server. If Addr uses port 0 the OS assigns an
// available port; use Port() after NewServer to get the actual one.
func NewServer(cfg ServerConfig) (*Server, error) {
	readTimeout := cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}

	// Create listener first to get the actual port (important for :0)
	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Addr, err)
	}

	port := 0
	if tcpAddr, ok := listener.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	var routes http.Handler = cfg.Handler.Routes()
	if cfg.Tracer != nil && cfg.Tracer.Enabled() {
		routes = tracing.Middleware(cfg.Tracer.Tracer(), routes)
	}

	return &Server{
		handler:  cfg.Handler,
		listener: listener,
		port:     port,
		server: &http.Server{
			Handler:           routes,
			ReadTimeout:       readTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			// No WriteTimeout: SSE connections are long-lived
		},
	}, nil
}

// Start starts the HTTP server. It blocks until the server is stopped or
// fails.
func (s *Server) Start() error {
	log.Info(log.CatAPI, "starting API server", "addr", s.listener.Addr().String(), "port", s.port)
	return s.server.Serve(s.listener)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	log.Info(log.CatAPI, "stopping API server")
	return s.server.Shutdown(ctx)
}

// Port returns the actual port the server is listening on.
func (s *Server) Port() int {
	return s.port
}
