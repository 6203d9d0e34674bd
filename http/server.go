// Package http serves the model registry over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/iclim/ml-app/config"
	"github.com/iclim/ml-app/monitoring"
	"github.com/iclim/ml-app/registry"
)

type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

func DefaultServerConfig() ServerConfig {
	return ServerConfigFrom(config.Default().HTTP)
}

func ServerConfigFrom(cfg config.HTTPConfig) ServerConfig {
	return ServerConfig{
		Port:           cfg.Port,
		Timeout:        cfg.Timeout,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	}
}

// Deps are the collaborators of the server. Metrics and Events are
// optional.
type Deps struct {
	Registry *registry.Registry
	Catalog  map[string]int
	Metrics  *monitoring.Metrics
	Events   http.Handler
	Logger   *zap.Logger
}

func NewServer(cfg ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewHandler(cfg, deps),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			ErrorLog:          zap.NewStdLog(logger),
		},
		config: cfg,
		logger: logger,
	}
}

// NewHandler assembles the routes and middleware without a listener.
func NewHandler(cfg ServerConfig, deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	api := http.NewServeMux()
	RegisterHandlers(api, NewHandlers(deps.Registry, deps.Catalog, deps.Metrics, logger))
	bounded := Chain(
		TimeoutMiddleware(cfg.Timeout),
		RequestSizeMiddleware(cfg.MaxBodyBytes),
	)(api)

	root := http.NewServeMux()
	root.Handle("/", bounded)
	if deps.Metrics != nil {
		root.Handle("GET /metrics", deps.Metrics.Handler())
	}
	if deps.Events != nil {
		root.Handle("GET "+APIPrefix+"/events", deps.Events)
	}

	chain := Chain(
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggerMiddleware(logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(cfg.AllowedOrigins),
	)
	return chain(root)
}

// Serve blocks on listener until Stop is called.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("starting HTTP server", zap.String("addr", listener.Addr().String()))
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}
