// internal/models/summary.go
// 執行摘要資料模型

package models

import "time"

// RunSummary 一次發送作業的統計
type RunSummary struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	AlreadySent int       `json:"already_sent"`
	Pending     int       `json:"pending"`
	Sent        int       `json:"sent"`
	Failed      int       `json:"failed"`
	Skipped     int       `json:"skipped"`
	Exhausted   bool      `json:"exhausted"`
	Interrupted bool      `json:"interrupted"`
	LastEmail   string    `json:"last_email,omitempty"`
	LastAccount string    `json:"last_account,omitempty"`
	LastOutcome string    `json:"last_outcome,omitempty"`
}

// Processed 已處理 (成功 + 失敗) 的數量
func (s RunSummary) Processed() int {
	return s.Sent + s.Failed
}

// Remaining 尚未處理的收件人數量
func (s RunSummary) Remaining() int {
	return s.Pending - s.Sent - s.Failed
}
