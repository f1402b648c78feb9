package handlers

import (
	"net/http"
	"os/exec"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	ytdlpBinary  string
	ffmpegBinary string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(ytdlpBinary, ffmpegBinary string) *HealthHandler {
	return &HealthHandler{
		ytdlpBinary:  ytdlpBinary,
		ffmpegBinary: ffmpegBinary,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status string `json:"status"`
	Tools  struct {
		Extractor  bool `json:"extractor"`
		Transcoder bool `json:"transcoder"`
	} `json:"tools"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{Status: "ok"}
	response.Tools.Extractor = binaryAvailable(h.ytdlpBinary)
	response.Tools.Transcoder = binaryAvailable(h.ffmpegBinary)
	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if !binaryAvailable(h.ytdlpBinary) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "extraction binary not found",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func binaryAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
