package api

import (
	"notiflow/internal/metrics"
	"notiflow/internal/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(
	messageHandler *MessageHandler,
	webhookHandler *WebhookHandler,
	healthHandler *HealthHandler,
	jwtSecret string,
	env string,
) *gin.Engine {
	r := gin.New()

	devMode := env != "prod"

	// Global Middleware
	r.Use(
		middleware.CorsMiddleware(),
		middleware.RequestID(),
		middleware.GinZapLogger(),
		middleware.GinZapRecovery(),
		middleware.HttpMiddleware(),
		middleware.TraceMiddleware(),
	)
	r.SetTrustedProxies(nil)

	// Public Routes
	r.GET("/health", healthHandler.HealthCheck)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Webhook Routes (signature-authenticated, no JWT)
	webhooks := r.Group("/v1/webhooks")
	{
		webhooks.POST("/providers/:name", webhookHandler.ProviderEvent)
		webhooks.POST("/orders/:businessID", webhookHandler.OrderEvent)
	}

	// Management Routes (Control Plane)
	protected := r.Group("/v1")
	protected.Use(middleware.JWTMiddleware(jwtSecret, devMode))
	{
		protected.POST("/messages", messageHandler.SendMessage)
		protected.GET("/messages", messageHandler.ListMessages)
		protected.GET("/messages/:id", messageHandler.GetMessage)
		protected.POST("/jobs/:businessID/cancel", messageHandler.CancelJob)
	}
	return r
}
