// internal/smtp/session.go
// SMTP Session 處理 - 接收郵件並交由 Store 落地

package smtp

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
)

// ErrInvalidCredentials 帳號或密碼錯誤
var ErrInvalidCredentials = errors.New("invalid credentials")

// Session 實作 smtp.Session 與 smtp.AuthSession 介面
// 處理單一 SMTP 連線的郵件接收
type Session struct {
	backend *Backend

	username string   // 認證帳號
	from     string   // 寄件者地址
	to       []string // 收件者地址列表
}

// NewSession 建立新的 Session
func NewSession(backend *Backend) *Session {
	return &Session{
		backend: backend,
		to:      make([]string, 0),
	}
}

// AuthMechanisms 支援的認證機制
func (s *Session) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

// Auth 處理 PLAIN 認證
// 未設定帳號時接受所有認證
func (s *Session) Auth(mech string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if len(s.backend.users) > 0 {
			if expected, ok := s.backend.users[username]; !ok || expected != password {
				s.backend.logger.Warn("smtp auth rejected", slog.String("username", username))
				return ErrInvalidCredentials
			}
		}
		s.username = username
		return nil
	}), nil
}

// Mail 處理 MAIL FROM 指令
func (s *Session) Mail(from string, opts *gosmtp.MailOptions) error {
	if len(s.backend.users) > 0 && s.username == "" {
		return gosmtp.ErrAuthRequired
	}
	s.from = cleanEmail(from)
	return nil
}

// Rcpt 處理 RCPT TO 指令
func (s *Session) Rcpt(to string, opts *gosmtp.RcptOptions) error {
	s.to = append(s.to, cleanEmail(to))
	return nil
}

// Data 處理 DATA 指令，接收郵件內容
func (s *Session) Data(r io.Reader) error {
	buf := new(bytes.Buffer)
	size, err := buf.ReadFrom(r)
	if err != nil {
		return fmt.Errorf("failed to read mail data: %w", err)
	}

	// 檢查郵件大小
	if s.backend.maxMessageSize > 0 && size > s.backend.maxMessageSize {
		return fmt.Errorf("message too large: %d bytes (max: %d bytes)", size, s.backend.maxMessageSize)
	}

	msg, err := s.backend.store.Save(Envelope{
		Username: s.username,
		From:     s.from,
		To:       append([]string(nil), s.to...),
	}, buf.Bytes())
	if err != nil {
		s.backend.logger.Error("failed to store message", slog.String("error", err.Error()))
		return fmt.Errorf("failed to store message: %w", err)
	}

	s.backend.logger.Info("message received",
		slog.String("id", msg.ID),
		slog.String("from", msg.From),
		slog.Any("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.Int("attachments", len(msg.Attachments)),
		slog.Int64("bytes", size),
	)
	return nil
}

// Reset 重置 Session 狀態
func (s *Session) Reset() {
	s.from = ""
	s.to = make([]string, 0)
}

// Logout 處理 QUIT 指令
func (s *Session) Logout() error {
	return nil
}

// cleanEmail 清理郵件地址（移除角括號）
func cleanEmail(email string) string {
	email = strings.TrimSpace(email)
	email = strings.TrimPrefix(email, "<")
	email = strings.TrimSuffix(email, ">")
	return email
}
