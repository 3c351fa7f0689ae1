// Package server hosts the chat relay handler on a plain HTTP listener and
// drains in-flight requests on shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

const (
	DefaultShutdownGrace     = 10 * time.Second
	defaultReadHeaderTimeout = 10 * time.Second
	defaultIdleTimeout       = 120 * time.Second
)

// Server is the long-running HTTP host.
type Server struct {
	addr          string
	handler       http.Handler
	shutdownGrace time.Duration

	httpServer *http.Server
	ready      chan struct{}
	listenAddr string

	mu        sync.RWMutex
	isRunning bool
}

// New builds a server for handler on addr. A non-positive grace falls back to
// DefaultShutdownGrace.
func New(addr string, handler http.Handler, grace time.Duration) *Server {
	if grace <= 0 {
		grace = DefaultShutdownGrace
	}
	return &Server{
		addr:          addr,
		handler:       handler,
		shutdownGrace: grace,
		ready:         make(chan struct{}),
	}
}

// Start listens and blocks until ctx is cancelled, SIGINT or SIGTERM arrives,
// or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return errors.New("server is already running")
	}
	if s.handler == nil {
		s.mu.Unlock()
		return errors.New("server: handler must not be nil")
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.isRunning = true
	s.listenAddr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	s.mu.Unlock()
	close(s.ready)

	errChan := make(chan error, 1)
	go func() {
		slog.Info("chat relay listening", "address", s.listenAddr)
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errChan:
		s.setRunning(false)
		return err
	}
	return s.shutdown()
}

// shutdown lets in-flight requests finish within the grace period and then
// closes whatever is still open.
func (s *Server) shutdown() error {
	defer s.setRunning(false)

	slog.Info("initiating graceful shutdown", "grace", s.shutdownGrace.String())
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownGrace)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("graceful shutdown incomplete, forcing close", "err", err)
		if closeErr := s.httpServer.Close(); closeErr != nil {
			return fmt.Errorf("force close: %w", closeErr)
		}
		return fmt.Errorf("server shutdown: %w", err)
	}
	slog.Info("chat relay stopped")
	return nil
}

// Addr blocks until the listener is bound and returns its address. It is
// mostly useful with a ":0" port.
func (s *Server) Addr(ctx context.Context) (string, error) {
	select {
	case <-s.ready:
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.listenAddr, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Server) setRunning(v bool) {
	s.mu.Lock()
	s.isRunning = v
	s.mu.Unlock()
}
