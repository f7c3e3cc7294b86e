// internal/models/mail.go
// 郵件資料模型 - 收件人、外寄郵件與投遞紀錄

package models

import "time"

// DeliveryStatus 投遞結果
type DeliveryStatus string

const (
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// Valid 是否為可寫入帳本的狀態
func (s DeliveryStatus) Valid() bool {
	return s == DeliveryStatusSent || s == DeliveryStatusFailed
}

// Recipient 收件人 (由外部 CSV 提供，載入後不可變)
type Recipient struct {
	Email          string `json:"email"`
	Name           string `json:"name,omitempty"`
	AttachmentPath string `json:"attachment_path"`
}

// OutgoingMail 單封外寄郵件，交由 Transport 發送
type OutgoingMail struct {
	From           string
	To             string
	ToName         string
	Subject        string
	Body           string
	AttachmentPath string
}

// DeliveryRecord 投遞帳本紀錄 (只增不改)
type DeliveryRecord struct {
	Timestamp   time.Time      `json:"timestamp"`
	Email       string         `json:"email"`
	Name        string         `json:"name,omitempty"`
	AccountUsed string         `json:"account_used"`
	Status      DeliveryStatus `json:"status"`
	Detail      string         `json:"detail"` // 成功時為 message ID，失敗時為錯誤訊息
}

// DeliveryEvent 投遞事件 (發布到 RabbitMQ)
type DeliveryEvent struct {
	RunID     string         `json:"run_id"`
	Email     string         `json:"email"`
	Account   string         `json:"account"`
	Status    DeliveryStatus `json:"status"`
	Detail    string         `json:"detail,omitempty"`
	Timestamp string         `json:"timestamp"`
}

// NewDeliveryEvent 由帳本紀錄建立事件
func NewDeliveryEvent(runID string, rec DeliveryRecord) DeliveryEvent {
	return DeliveryEvent{
		RunID:     runID,
		Email:     rec.Email,
		Account:   rec.AccountUsed,
		Status:    rec.Status,
		Detail:    rec.Detail,
		Timestamp: rec.Timestamp.UTC().Format(time.RFC3339),
	}
}
