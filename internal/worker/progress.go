// internal/worker/progress.go
// 執行進度 - 供狀態 API 讀取

package worker

import (
	"sync"
	"time"

	"bulk-mailer/internal/models"
)

// ProgressSnapshot 進度快照
type ProgressSnapshot struct {
	Running   bool              `json:"running"`
	Summary   models.RunSummary `json:"summary"`
	Remaining int               `json:"remaining"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Progress 目前執行的統計 (mutex 保護)
type Progress struct {
	mu        sync.RWMutex
	running   bool
	summary   models.RunSummary
	updatedAt time.Time
}

// NewProgress 建立進度追蹤
func NewProgress() *Progress {
	return &Progress{}
}

// Start 開始新的一次執行
func (p *Progress) Start(summary models.RunSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.running = true
	p.summary = summary
	p.updatedAt = time.Now()
}

// Update 更新統計
func (p *Progress) Update(summary models.RunSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.summary = summary
	p.updatedAt = time.Now()
}

// Finish 執行結束
func (p *Progress) Finish(summary models.RunSummary) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.running = false
	p.summary = summary
	p.updatedAt = time.Now()
}

// Snapshot 取得快照
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return ProgressSnapshot{
		Running:   p.running,
		Summary:   p.summary,
		Remaining: p.summary.Remaining(),
		UpdatedAt: p.updatedAt,
	}
}
