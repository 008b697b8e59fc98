package api_gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/chilli-trade-ledger/internal/api_gateway/handler"
	"github.com/chilli-trade-ledger/internal/api_gateway/middleware"
	"github.com/chilli-trade-ledger/internal/api_gateway/service"
	"github.com/chilli-trade-ledger/internal/config"
	"github.com/chilli-trade-ledger/internal/platform/metrics"
	"github.com/gin-gonic/gin"
)

// Server handles HTTP requests and manages the application's lifecycle
type Server struct {
	logger     *slog.Logger
	httpServer *http.Server
	httpRouter *gin.Engine
}

// Services bundles what the HTTP layer calls into
type Services struct {
	Auth      service.AuthService
	Workspace service.WorkspaceService
	Sessions  service.SessionService
	Feed      handler.ChangeFeed
}

// NewServer creates and configures a new HTTP server with the given services
func NewServer(log *slog.Logger, cfg *config.Config, svc Services, m *metrics.Metrics) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpRouter := gin.New()

	setupRouter(log, httpRouter, routes{
		auth:          handler.NewAuthHandler(log, svc.Auth),
		workspace:     handler.NewWorkspaceHandler(log, svc.Workspace),
		sessions:      handler.NewSessionHandler(log, svc.Sessions, svc.Feed),
		authenticator: svc.Auth,
		signInLimiter: middleware.NewRateLimiter(cfg.Auth.SignInRate, cfg.Auth.SignInBurst),
		metrics:       m,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		logger:     log,
		httpServer: httpServer,
		httpRouter: httpRouter,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server. Hijacked websocket connections
// are not tracked by Shutdown; the hub closes those.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.httpServer.WriteTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}
