package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/api/handlers"
	"github.com/yourusername/media-fetch-go/api/middleware"
	"github.com/yourusername/media-fetch-go/internal/app"
	"github.com/yourusername/media-fetch-go/internal/domain"
)

// SetupRouter sets up the HTTP router
func SetupRouter(
	cfg *domain.Config,
	orchestrator *app.Orchestrator,
	introspector app.Introspector,
	history domain.HistoryRepository,
	log *zap.Logger,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(cfg.Strategies.YTDLPBinary, cfg.Compress.FFmpegBinary)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		downloadHandler := handlers.NewDownloadHandler(orchestrator, history, log)
		downloads := v1.Group("/downloads")
		{
			downloads.POST("", downloadHandler.AddDownload)
			downloads.GET("", downloadHandler.ListDownloads)
			downloads.GET("/:id", downloadHandler.GetDownload)
			downloads.GET("/:id/progress", downloadHandler.GetProgress)
			downloads.GET("/:id/file", downloadHandler.GetFile)
			downloads.POST("/:id/cancel", downloadHandler.CancelDownload)
		}

		analyzeHandler := handlers.NewAnalyzeHandler(introspector, log)
		v1.POST("/analyze", analyzeHandler.Analyze)

		hist := v1.Group("/history")
		{
			hist.GET("", downloadHandler.GetHistory)
			hist.GET("/stats", downloadHandler.GetStats)
		}
	}

	return router
}
