// internal/api/handlers/progress_handler.go
// 發送進度 API Handler

package handlers

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"bulk-mailer/internal/worker"
)

// ProgressSource 目前執行的進度
type ProgressSource interface {
	Snapshot() worker.ProgressSnapshot
}

// QuotaSource 帳號配額
type QuotaSource interface {
	Snapshot() map[string]int
	RemainingCapacity() int
	DailyLimit() int
}

// AccountUsage 單一帳號今日用量
type AccountUsage struct {
	Name      string `json:"name"`
	SentToday int    `json:"sent_today"`
	Remaining int    `json:"remaining"`
}

// ProgressResponse 進度回應
type ProgressResponse struct {
	Progress          worker.ProgressSnapshot `json:"progress"`
	DailyLimit        int                     `json:"daily_limit"`
	RemainingCapacity int                     `json:"remaining_capacity"`
	Accounts          []AccountUsage          `json:"accounts"`
}

// ProgressHandler 進度 Handler
type ProgressHandler struct {
	progress ProgressSource
	quota    QuotaSource
}

// NewProgressHandler 建立 Progress Handler
func NewProgressHandler(progress ProgressSource, quota QuotaSource) *ProgressHandler {
	return &ProgressHandler{
		progress: progress,
		quota:    quota,
	}
}

// GetProgress 取得目前進度與各帳號配額
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	counts := h.quota.Snapshot()
	limit := h.quota.DailyLimit()

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	slices.Sort(names)

	accounts := make([]AccountUsage, 0, len(names))
	for _, name := range names {
		accounts = append(accounts, AccountUsage{
			Name:      name,
			SentToday: counts[name],
			Remaining: max(limit-counts[name], 0),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": ProgressResponse{
			Progress:          h.progress.Snapshot(),
			DailyLimit:        limit,
			RemainingCapacity: h.quota.RemainingCapacity(),
			Accounts:          accounts,
		},
	})
}
