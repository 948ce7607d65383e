package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/R3E-Network/ledger_gateway/internal/sync"
	"github.com/R3E-Network/ledger_gateway/pkg/logger"
)

// ServerConfig holds listener settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server runs the HTTP API as a lifecycle-managed service.
type Server struct {
	cfg     ServerConfig
	handler http.Handler
	log     *logger.Logger

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
	done   chan struct{}
}

func NewServer(cfg ServerConfig, handler http.Handler, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("http-server")
	}
	return &Server{cfg: cfg, handler: handler, log: log}
}

func (s *Server) Name() string { return "http-server" }

// Addr is the bound listener address once started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start binds the listener and serves in the background.
func (s *Server) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("http server stopped")
		}
	}()

	s.server = srv
	s.addr = ln.Addr()
	s.done = done
	s.log.WithField("addr", ln.Addr().String()).Info("http server listening")
	return nil
}

// Stop shuts the server down gracefully, waiting for in-flight requests
// until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.server, s.done
	s.server = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	err := srv.Shutdown(ctx)
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("http server stopped")
	return err
}
