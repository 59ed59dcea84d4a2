package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/releasekpi/pkg/config"
	"github.com/ethpandaops/releasekpi/pkg/snapshot"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the query API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	Handler() http.Handler
}

// Compile-time interface check.
var _ Server = (*server)(nil)

// PanelDefaults are used when a panel request omits keys or a limit.
type PanelDefaults struct {
	Keys        []string
	MaxReleases int
}

type server struct {
	log        logrus.FieldLogger
	cfg        *config.APIConfig
	store      snapshot.Store
	panel      PanelDefaults
	limiters   []*rateLimiterMap
	router     http.Handler
	httpServer *http.Server
	wg         sync.WaitGroup
}

// NewServer creates a new read-only API server over a started snapshot
// store. The caller owns the store lifecycle.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.APIConfig,
	store snapshot.Store,
	panel PanelDefaults,
) Server {
	s := &server{
		log:   log.WithField("component", "api"),
		cfg:   cfg,
		store: store,
		panel: panel,
	}

	s.router = s.buildRouter()

	return s
}

// Handler returns the router, for embedding or tests.
func (s *server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
func (s *server) Start(_ context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	for _, l := range s.limiters {
		l.stop()
	}

	s.log.Info("API server stopped")

	return nil
}
