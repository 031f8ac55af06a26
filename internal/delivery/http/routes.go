package http

import (
	"github.com/gin-gonic/gin"
	"github.com/marketlens/client/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Media.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware(cfg.Media.AllowedOrigins))

	router.GET("/health", handler.HealthCheck)
	router.GET("/storage-info", handler.StorageInfo)

	if cfg.Metrics.Enabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// Images are addressed by dataset-relative identifiers, e.g. train_images/abc.jpg.
	// The /images prefix lets the server stand in for the backend image route.
	router.GET("/:folder/:name", handler.ServeImage)
	router.GET("/images/:folder/:name", handler.ServeImage)

	return router
}
