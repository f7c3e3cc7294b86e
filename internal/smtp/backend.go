// internal/smtp/backend.go
// SMTP Backend 介面實作 - 處理 SMTP 連線認證與 Session 建立

package smtp

import (
	"log/slog"

	gosmtp "github.com/emersion/go-smtp"
)

// Backend 實作 smtp.Backend 介面
// 負責處理 SMTP 連線並建立 Session
type Backend struct {
	store          *Store            // 郵件落地儲存
	logger         *slog.Logger      // 日誌
	users          map[string]string // 帳號密碼 (空白表示接受任何認證)
	maxMessageSize int64
}

// NewBackend 建立 SMTP Backend
func NewBackend(store *Store, users map[string]string, maxMessageSize int64, logger *slog.Logger) *Backend {
	return &Backend{
		store:          store,
		logger:         logger,
		users:          users,
		maxMessageSize: maxMessageSize,
	}
}

// NewSession 建立新的 SMTP Session
// 實作 smtp.Backend 介面
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	b.logger.Debug("smtp connection", slog.String("remote", c.Conn().RemoteAddr().String()))

	return NewSession(b), nil
}
