package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/app"
	"github.com/yourusername/media-fetch-go/internal/domain"
)

// AnalyzeHandler exposes the format probe without downloading anything
type AnalyzeHandler struct {
	introspector app.Introspector
	logger       *zap.Logger
}

// NewAnalyzeHandler creates a new analyze handler
func NewAnalyzeHandler(introspector app.Introspector, logger *zap.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{introspector: introspector, logger: logger}
}

// AnalyzeRequest represents a probe request
type AnalyzeRequest struct {
	URL string `json:"url" binding:"required"`
}

// AnalyzeResponse lists what the source offers
type AnalyzeResponse struct {
	Platform domain.Platform      `json:"platform"`
	Metadata domain.MediaMetadata `json:"metadata"`
	Formats  []domain.MediaFormat `json:"formats"`
}

// Analyze handles POST /api/v1/analyze
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	platform := domain.Classify(req.URL)

	formats, meta, err := h.introspector.Analyze(c.Request.Context(), req.URL)
	if err != nil {
		h.logger.Warn("probe failed",
			zap.String("url", req.URL),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    "could not inspect this link",
			"platform": platform,
		})
		return
	}
	meta.Platform = platform

	c.JSON(http.StatusOK, AnalyzeResponse{
		Platform: platform,
		Metadata: meta,
		Formats:  formats,
	})
}
