package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/quotecompare/backend/config"
	"github.com/quotecompare/backend/internal/infrastructure/metrics"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, logger zerolog.Logger, reg *metrics.Registry) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RequestLogger(logger))
	router.Use(RecoveryMiddleware())
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	if reg != nil {
		router.GET("/metrics", gin.WrapH(reg.Handler()))
	}

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(RateLimitMiddleware(cfg.RateLimit.PerIP))
	{
		v1.POST("/quotations/upload", handler.UploadQuotation)

		items := v1.Group("/items")
		{
			items.GET("", handler.ListItems)
			items.GET("/:id", handler.GetItem)
			items.PUT("/:id", handler.UpdateItem)
			items.PATCH("/:id", handler.UpdateItem)
		}

		v1.GET("/comparison", handler.Compare)

		exports := v1.Group("/export")
		{
			exports.GET("/csv", handler.ExportCSV)
			exports.GET("/xlsx", handler.ExportXLSX)
		}
	}

	return router
}
