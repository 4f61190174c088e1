package router

import (
	"github.com/gin-gonic/gin"

	"github.com/tailorlink/tailorlink-backend/internal/config"
	"github.com/tailorlink/tailorlink-backend/internal/http/handlers"
	"github.com/tailorlink/tailorlink-backend/internal/http/middleware"
	"github.com/tailorlink/tailorlink-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	escrowHandler *handlers.EscrowHandler,
	orderHandler *handlers.OrderHandler,
	milestoneHandler *handlers.MilestoneHandler,
	disputeHandler *handlers.DisputeHandler,
	cronHandler *handlers.CronHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	// Unknown body fields are rejected everywhere; money-moving requests
	// must not silently ignore typos.
	gin.EnableJsonDecoderDisallowUnknownFields()

	r := gin.Default()
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))
	r.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))

	api := r.Group("/api")

	// Public routes.
	api.GET("/health", healthHandler.Health)
	api.GET("/ws", wsHandler.Handle)
	api.GET("/escrow/breakdown", escrowHandler.Breakdown)

	// Scheduler routes, bearer-secret gated. The POST variant exists for
	// manual runs and is not registered in production.
	cron := api.Group("/cron")
	cron.Use(middleware.CronAuthMiddleware(cfg.CronSecret))
	{
		cron.GET("/auto-approve-milestones", cronHandler.AutoApproveMilestones)
		if cfg.Env != "production" {
			cron.POST("/auto-approve-milestones", cronHandler.AutoApproveMilestones)
		}
	}

	// Authenticated routes.
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/payments/escrow/initiate", escrowHandler.Initiate)
		protected.GET("/orders/:id/escrow", middleware.UUIDValidator("id"), orderHandler.EscrowStatus)
		protected.POST("/orders/:id/milestones", middleware.UUIDValidator("id"), milestoneHandler.Submit)
		protected.POST("/milestones/:id/approve", middleware.UUIDValidator("id"), milestoneHandler.Approve)

		protected.POST("/disputes", disputeHandler.Create)
		protected.GET("/disputes", disputeHandler.List)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.Get)
		protected.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.Resolve)

		protected.GET("/notifications", notificationHandler.List)
		protected.POST("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
	}

	return r
}
