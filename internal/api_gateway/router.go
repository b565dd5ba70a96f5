package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/payflow-orchestrator/internal/api_gateway/handler"
	"github.com/payflow-orchestrator/internal/api_gateway/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(logger *slog.Logger, r *gin.Engine, paymentHandler *handler.PaymentHandler) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	{
		payments := v1.Group("/payments")
		{
			payments.POST("", paymentHandler.Submit)
			payments.GET("", paymentHandler.List)
			payments.GET("/:id", paymentHandler.GetByID)
			payments.GET("/:id/attempts", paymentHandler.GetAttempts)
			payments.POST("/:id/retry", paymentHandler.Retry)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/metrics", paymentHandler.GetMetrics)
		}
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})
}
