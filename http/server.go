package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"bodytype/monitoring"
	"bodytype/service"
)

// Server is the prediction HTTP server.
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig holds the listener and request limits.
type ServerConfig struct {
	Addr           string        `yaml:"addr" env:"ADDR"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
}

// DefaultServerConfig returns the settings used when config.yaml is silent.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:           ":8080",
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   15 * time.Second,
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"*"},
	}
}

// NewServer wires handlers for svc behind the middleware chain.
func NewServer(config ServerConfig, svc *service.Service, metrics *monitoring.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:              config.Addr,
			Handler:           NewHandler(config, svc, metrics, logger),
			ReadTimeout:       config.ReadTimeout,
			ReadHeaderTimeout: config.ReadTimeout,
			WriteTimeout:      config.WriteTimeout,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		logger: logger,
	}
}

// NewHandler returns the routed and wrapped handler without a listener.
func NewHandler(config ServerConfig, svc *service.Service, metrics *monitoring.Metrics, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	RegisterHandlers(mux, svc, metrics, logger, config.AllowedOrigins)

	chain := Chain(
		RecoveryMiddleware(logger),
		LoggerMiddleware(logger, metrics),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		TimeoutMiddleware(config.RequestTimeout),
		RequestSizeMiddleware(config.MaxBodyBytes),
	)
	return chain(mux)
}

// Start listens until Stop is called.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on listener until Stop is called.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info("http server listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("websocket", "/api/ws/predict"),
	)
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests, giving up when ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
