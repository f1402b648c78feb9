package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/media-fetch-go/internal/app"
	"github.com/yourusername/media-fetch-go/internal/domain"
)

// DownloadHandler handles download-related HTTP requests
type DownloadHandler struct {
	orchestrator *app.Orchestrator
	history      domain.HistoryRepository
	logger       *zap.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(orchestrator *app.Orchestrator, history domain.HistoryRepository, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		orchestrator: orchestrator,
		history:      history,
		logger:       logger,
	}
}

// AddDownloadRequest represents a request to start a download
type AddDownloadRequest struct {
	URL  string `json:"url" binding:"required"`
	Tier string `json:"tier,omitempty"`
}

// AddDownload handles POST /api/v1/downloads
func (h *DownloadHandler) AddDownload(c *gin.Context) {
	var req AddDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tier := domain.QualityTier(req.Tier)
	if tier == "" {
		tier = domain.TierBest
	}

	id := h.orchestrator.Submit(c.Request.Context(), req.URL, tier, nil)

	status, _ := h.orchestrator.Registry().Get(id)
	c.JSON(http.StatusAccepted, status)
}

// GetDownload handles GET /api/v1/downloads/:id
func (h *DownloadHandler) GetDownload(c *gin.Context) {
	status, ok := h.orchestrator.Registry().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetProgress handles GET /api/v1/downloads/:id/progress
func (h *DownloadHandler) GetProgress(c *gin.Context) {
	status, ok := h.orchestrator.Registry().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}
	if status.Progress == nil {
		c.JSON(http.StatusOK, gin.H{"state": status.State})
		return
	}
	c.JSON(http.StatusOK, status.Progress)
}

// GetFile handles GET /api/v1/downloads/:id/file
func (h *DownloadHandler) GetFile(c *gin.Context) {
	status, ok := h.orchestrator.Registry().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}
	if status.State != domain.StateDelivered || status.Artifact == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "download not finished", "state": status.State})
		return
	}
	c.FileAttachment(status.Artifact.FilePath, status.Artifact.Metadata.Title)
}

// ListDownloads handles GET /api/v1/downloads
func (h *DownloadHandler) ListDownloads(c *gin.Context) {
	c.JSON(http.StatusOK, h.orchestrator.Registry().List())
}

// CancelDownload handles POST /api/v1/downloads/:id/cancel
func (h *DownloadHandler) CancelDownload(c *gin.Context) {
	id := c.Param("id")
	if !h.orchestrator.Registry().Cancel(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "download unknown or already finished"})
		return
	}
	h.logger.Info("download cancel requested", zap.String("id", id))
	c.JSON(http.StatusOK, gin.H{"status": "cancelling"})
}

// GetHistory handles GET /api/v1/history
func (h *DownloadHandler) GetHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	records, err := h.history.Recent(limit)
	if err != nil {
		h.logger.Error("Failed to read history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, records)
}

// GetStats handles GET /api/v1/history/stats
func (h *DownloadHandler) GetStats(c *gin.Context) {
	stats, err := h.history.Stats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
