// internal/services/ledger.go
// 投遞帳本 - 只增不改的投遞結果紀錄，用於計算續傳清單

package services

import (
	"context"

	"bulk-mailer/internal/models"
)

// DeliveryLedger 投遞帳本介面
type DeliveryLedger interface {
	// AlreadySent 回傳狀態為 sent 的收件人信箱
	AlreadySent(ctx context.Context) (map[string]struct{}, error)

	// Append 新增一筆紀錄，回傳前必須已落地
	Append(ctx context.Context, rec models.DeliveryRecord) error

	// Close 關閉帳本
	Close() error
}
