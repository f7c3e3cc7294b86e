// internal/services/transport.go
// 郵件傳輸共用介面

package services

import (
	"context"

	"bulk-mailer/internal/models"
)

// Transport 郵件傳輸介面
// 每個寄件帳號持有一個 Transport (SMTP 連線、Gmail API、Graph API、SendGrid)
type Transport interface {
	// Send 發送郵件，回傳 message ID
	Send(ctx context.Context, mail *models.OutgoingMail) (string, error)

	// Close 釋放連線
	Close() error

	// Name 回傳服務名稱，用於 logging
	Name() string
}

// Dialer 依帳號憑證建立已登入的 Transport
type Dialer interface {
	Dial(ctx context.Context, cred models.AccountCredential) (Transport, error)
}
