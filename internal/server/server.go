package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/nuntio/internal/common"
	"github.com/ternarybob/nuntio/internal/handlers"
)

// Server hosts the HTTP control layer
type Server struct {
	httpServer *http.Server
	logger     arbor.ILogger

	automationHandler *handlers.AutomationHandler
	apiHandler        *handlers.APIHandler
	wsHandler         *handlers.WebSocketHandler
}

// New creates the HTTP server with all routes and middleware wired
func New(config *common.Config, automationHandler *handlers.AutomationHandler, apiHandler *handlers.APIHandler, wsHandler *handlers.WebSocketHandler, logger arbor.ILogger) *Server {
	s := &Server{
		logger:            logger,
		automationHandler: automationHandler,
		apiHandler:        apiHandler,
		wsHandler:         wsHandler,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:           recoverPanics(accessLog(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")

	if s.wsHandler != nil {
		s.wsHandler.Close()
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return nil
}
