// internal/api/handlers/health_handler.go
// 健康檢查 Handler

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler 健康檢查 Handler
type HealthHandler struct {
	version  string
	progress ProgressSource
}

// NewHealthHandler 建立 Health Handler
func NewHealthHandler(version string, progress ProgressSource) *HealthHandler {
	return &HealthHandler{
		version:  version,
		progress: progress,
	}
}

// Health 健康檢查
func (h *HealthHandler) Health(c *gin.Context) {
	state := "idle"
	if h.progress != nil && h.progress.Snapshot().Running {
		state = "running"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  h.version,
		"dispatch": state,
	})
}
