package resolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/smolgroot/skypier-blackhole/pkg/config"
	"github.com/smolgroot/skypier-blackhole/pkg/logging"
	"github.com/smolgroot/skypier-blackhole/pkg/telemetry"

	"github.com/miekg/dns"
)

// DrainTimeout is T_drain, the grace period given to in-flight queries
// during a graceful shutdown (spec.md §4.7).
const DrainTimeout = 5 * time.Second

// Server owns the UDP and TCP listener loops that feed a Handler.
type Server struct {
	cfg       *config.Config
	handler   *Handler
	logger    *logging.Logger
	metrics   *telemetry.Metrics
	udpServer *dns.Server
	tcpServer *dns.Server
	running   bool
	mu        sync.RWMutex
}

// NewServer wires a Server to serve on cfg.Server.Addr().
func NewServer(cfg *config.Config, handler *Handler, logger *logging.Logger, metrics *telemetry.Metrics) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

// Start runs the UDP and TCP servers until ctx is cancelled, at which point
// it performs a graceful shutdown bounded by DrainTimeout.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true

	addr := s.cfg.Server.Addr()
	wrapped := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		s.handler.ServeDNS(context.Background(), w, r)
	})

	s.udpServer = &dns.Server{Addr: addr, Net: "udp", Handler: wrapped}
	s.tcpServer = &dns.Server{Addr: addr, Net: "tcp", Handler: wrapped}
	s.mu.Unlock()

	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("starting udp listener", "address", addr)
		if err := s.udpServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("udp server: %w", err)
		}
	}()
	go func() {
		s.logger.Info("starting tcp listener", "address", addr)
		if err := s.tcpServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("tcp server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DrainTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		return err
	}
}

// Shutdown gracefully stops both listeners, waiting up to ctx's deadline for
// in-flight queries to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	var errs []error
	if s.udpServer != nil {
		if err := s.udpServer.ShutdownContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("udp shutdown: %w", err))
		}
	}
	if s.tcpServer != nil {
		if err := s.tcpServer.ShutdownContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tcp shutdown: %w", err))
		}
	}

	s.running = false

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	s.logger.Info("server shut down")
	return nil
}

// IsRunning reports whether the server's listeners are active.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
