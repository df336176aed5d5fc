// Package server runs the HTTP listener with timeouts sized to the
// execution engine: a workflow may legitimately hold its request open
// for the whole execution budget, so the write timeout and the
// shutdown drain window must both outlast it.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lyzr/a2e/common/logger"
)

// headroom covers response marshaling and slow clients on top of the
// execution budget.
const headroom = 15 * time.Second

// Server wraps http.Server with signal-driven graceful shutdown.
type Server struct {
	httpServer *http.Server
	drain      time.Duration
	log        *logger.Logger
	name       string
}

// New creates a server whose write timeout and drain window extend
// past maxExecution, the engine's per-request execution duration cap.
func New(name string, port int, handler http.Handler, maxExecution time.Duration, log *logger.Logger) *Server {
	if maxExecution <= 0 {
		maxExecution = 30 * time.Second
	}
	budget := maxExecution + headroom

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: budget,
			IdleTimeout:  60 * time.Second,
		},
		drain: budget,
		log:   log,
		name:  name,
	}
}

// Start listens until a serve error or a termination signal. On
// SIGINT/SIGTERM, in-flight executions get the full drain window to
// finish before the listener is forced closed.
func (s *Server) Start() error {
	serverErrors := make(chan error, 1)

	go func() {
		s.log.Info(fmt.Sprintf("%s starting", s.name), "addr", s.httpServer.Addr, "drain", s.drain.String())
		serverErrors <- s.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.log.Info("shutdown signal received", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), s.drain)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.Error("graceful shutdown failed", "error", err)
			if err := s.httpServer.Close(); err != nil {
				return fmt.Errorf("could not stop server: %w", err)
			}
		}

		s.log.Info("shutdown complete")
	}

	return nil
}
