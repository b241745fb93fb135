package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"

	"github.com/netprobe/internal/config"
	"github.com/netprobe/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves Prometheus metrics and health endpoints.
type Server struct {
	server *http.Server
	log    *logger.Logger
	ready  atomic.Bool
}

// NewServer creates a new metrics/health HTTP server for m.
func NewServer(cfg config.Metrics, m *Metrics, l *logger.Logger) *Server {
	s := &Server{log: l}
	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle(cfg.Path, promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	// Liveness probe
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Readiness probe
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.server = &http.Server{
		Addr:    cfg.Address,
		Handler: mux,
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetReady flips the /readyz answer.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.log.Info(fmt.Sprintf("[metrics] starting server on %s", ln.Addr()))
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error(fmt.Sprintf("[metrics] server failed - %v", err))
		}
	}()
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
