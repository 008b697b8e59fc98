package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/chilli-trade-ledger/internal/api_gateway/handler"
	"github.com/chilli-trade-ledger/internal/api_gateway/middleware"
	"github.com/chilli-trade-ledger/internal/platform/metrics"
	"github.com/gin-gonic/gin"
)

// routes groups the handlers and guards the router needs
type routes struct {
	auth          *handler.AuthHandler
	workspace     *handler.WorkspaceHandler
	sessions      *handler.SessionHandler
	authenticator middleware.Authenticator
	signInLimiter *middleware.RateLimiter
	metrics       *metrics.Metrics
}

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, rt routes) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(rt.metrics.GinMiddleware())

	v1 := r.Group("/api/v1")
	{
		// Unauthenticated, throttled per client IP
		public := v1.Group("/auth", rt.signInLimiter.Middleware())
		{
			public.POST("/sign-up", rt.auth.SignUp)
			public.POST("/sign-in", rt.auth.SignIn)
		}

		authed := v1.Group("", middleware.Auth(logger, rt.authenticator))
		{
			authed.POST("/auth/sign-out", rt.auth.SignOut)
			authed.GET("/auth/me", rt.auth.Me)

			ws := authed.Group("/workspace")
			{
				ws.GET("", rt.workspace.Get)
				ws.DELETE("", rt.workspace.Reset)
				ws.PUT("/name", rt.workspace.Rename)
				ws.PUT("/:side/draft", rt.workspace.EditDraft)
				ws.POST("/:side/draft/entries", rt.workspace.AddEntry)
				ws.DELETE("/:side/draft/entries/:entryId", rt.workspace.RemoveEntry)
				ws.POST("/:side/records", rt.workspace.FinalizeDraft)
				ws.DELETE("/:side/records/:recordId", rt.workspace.RemoveRecord)
				ws.PUT("/:side/records/:recordId/payment", rt.workspace.UpdatePayment)
			}

			sessions := authed.Group("/sessions")
			{
				sessions.GET("", rt.sessions.List)
				sessions.POST("", rt.sessions.Save)
				sessions.GET("/changes", rt.sessions.Changes)
				sessions.POST("/:id/load", rt.sessions.Load)
				sessions.DELETE("/:id", rt.sessions.Delete)
			}
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
	r.GET("/metrics", gin.WrapH(rt.metrics.Handler()))
}
