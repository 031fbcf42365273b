package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"payhook/internal/shared/middleware"
	"payhook/pkg/container"
)

func SetupRouter(c *container.Container) *gin.Engine {
	router := gin.New()

	// Global middlewares
	router.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
	)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", healthCheckHandler(c))

		setupWebhookRoutes(v1, c)
		setupTransactionRoutes(v1, c)
		setupAdminRoutes(v1, c)
	}

	return router
}

// =====================================================
// WEBHOOK ROUTES (public; authenticated by signature)
// =====================================================
func setupWebhookRoutes(v1 *gin.RouterGroup, c *container.Container) {
	v1.POST("/webhooks/:provider", c.WebhookHandler.Ingest)
}

// =====================================================
// TRANSACTION ROUTES (merchant API)
// =====================================================
func setupTransactionRoutes(v1 *gin.RouterGroup, c *container.Container) {
	transactions := v1.Group("/transactions")
	transactions.Use(middleware.ServiceAuth(c.JWTManager))
	{
		transactions.POST("", c.TransactionHandler.Create)
		transactions.GET("/:id", c.TransactionHandler.GetByID)
	}
}

// =====================================================
// ADMIN ROUTES (operator dashboard)
// =====================================================
func setupAdminRoutes(v1 *gin.RouterGroup, c *container.Container) {
	admin := v1.Group("/admin")
	admin.Use(middleware.AdminAuth(c.JWTManager))
	{
		admin.GET("/webhooks", c.WebhookHandler.List)
		admin.GET("/webhooks/stats", c.WebhookHandler.GetStats)
		admin.GET("/webhooks/export", c.WebhookHandler.Export)
		admin.GET("/webhooks/:id", c.WebhookHandler.GetDetail)

		admin.GET("/transactions", c.TransactionHandler.List)
		admin.GET("/transactions/:id", c.TransactionHandler.GetDetail)
		admin.POST("/transactions/:id/transition", c.TransactionHandler.ManualTransition)
	}
}

// healthCheckHandler verifies the database connection
func healthCheckHandler(c *container.Container) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		pingCtx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
		defer cancel()

		if err := c.DB.Pool.Ping(pingCtx); err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}

		ctx.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"name":    c.Config.App.Name,
			"version": c.Config.App.Version,
		})
	}
}
