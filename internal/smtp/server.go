// internal/smtp/server.go
// SMTP Server 核心 - 啟動與管理 SMTP 收件伺服器

package smtp

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	gosmtp "github.com/emersion/go-smtp"
)

// Options 伺服器設定
type Options struct {
	Addr           string
	Domain         string
	Dir            string
	MaxMessageSize int64             // bytes
	Users          map[string]string // 空白表示接受任何認證
}

// Server SMTP 伺服器
type Server struct {
	opts       Options
	store      *Store
	logger     *slog.Logger
	smtpServer *gosmtp.Server
}

// NewServer 建立 SMTP 伺服器
func NewServer(opts Options, logger *slog.Logger) *Server {
	if opts.Domain == "" {
		opts.Domain = "bulk-mailer.local"
	}

	s := &Server{
		opts:   opts,
		store:  NewStore(opts.Dir),
		logger: logger,
	}

	// 建立 Backend
	backend := NewBackend(s.store, opts.Users, opts.MaxMessageSize, logger)

	// 設定 SMTP 伺服器
	s.smtpServer = gosmtp.NewServer(backend)
	s.smtpServer.Addr = opts.Addr
	s.smtpServer.Domain = opts.Domain
	s.smtpServer.ReadTimeout = 30 * time.Second
	s.smtpServer.WriteTimeout = 30 * time.Second
	s.smtpServer.MaxMessageBytes = opts.MaxMessageSize
	s.smtpServer.MaxRecipients = 50
	s.smtpServer.AllowInsecureAuth = true // 僅供本機演練與測試

	return s
}

// Store 已接收郵件
func (s *Server) Store() *Store {
	return s.store
}

// Start 啟動 SMTP 伺服器（阻塞式）
func (s *Server) Start() error {
	s.logger.Info("smtp sink listening",
		slog.String("addr", s.opts.Addr),
		slog.String("dir", s.opts.Dir),
		slog.Int64("max_message_bytes", s.opts.MaxMessageSize),
	)

	if err := s.smtpServer.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
		return fmt.Errorf("SMTP server error: %w", err)
	}
	return nil
}

// Serve 在既有 listener 上提供服務（阻塞式）
func (s *Server) Serve(l net.Listener) error {
	if err := s.smtpServer.Serve(l); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
		return fmt.Errorf("SMTP server error: %w", err)
	}
	return nil
}

// Shutdown 優雅關機
func (s *Server) Shutdown() error {
	s.logger.Info("smtp sink shutting down")
	return s.smtpServer.Close()
}
