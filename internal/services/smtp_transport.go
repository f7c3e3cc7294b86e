// internal/services/smtp_transport.go
// SMTP 郵件傳輸 - 每個帳號維持一條已登入的 SMTP 連線

package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"

	"bulk-mailer/internal/models"
)

const (
	defaultSMTPHost = "smtp.gmail.com"
	defaultSMTPPort = 465
)

// SMTPTransport SMTP 郵件傳輸
// 實作 Transport interface
type SMTPTransport struct {
	client *gosmtp.Client
	host   string
}

// DialSMTP 建立 SMTP 連線並以 PLAIN 認證登入
func DialSMTP(ctx context.Context, cred models.AccountCredential) (*SMTPTransport, error) {
	host := cred.SMTPHost
	if host == "" {
		host = defaultSMTPHost
	}
	port := cred.SMTPPort
	if port == 0 {
		port = defaultSMTPPort
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	conn, err := dialContext(ctx, addr, cred.SMTPSecurity, host)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	var client *gosmtp.Client
	if cred.SMTPSecurity == models.SMTPSecurityStartTLS {
		client, err = gosmtp.NewClientStartTLS(conn, &tls.Config{ServerName: host})
		if err != nil {
			return nil, fmt.Errorf("failed to start TLS with %s: %w", addr, err)
		}
	} else {
		client = gosmtp.NewClient(conn)
	}

	if deadline, ok := ctx.Deadline(); ok {
		client.CommandTimeout = time.Until(deadline)
	}

	auth := sasl.NewPlainClient("", cred.Email, cred.AppPassword)
	if err := client.Auth(auth); err != nil {
		client.Close()
		return nil, fmt.Errorf("smtp login failed for %s: %w", cred.Email, err)
	}

	return &SMTPTransport{client: client, host: host}, nil
}

// dialContext 依加密方式建立 TCP 或 TLS 連線
func dialContext(ctx context.Context, addr string, security models.SMTPSecurity, host string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second}
	if security == "" || security == models.SMTPSecurityTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: host}}
		return tlsDialer.DialContext(ctx, "tcp", addr)
	}
	return dialer.DialContext(ctx, "tcp", addr)
}

// Name 回傳服務名稱
func (t *SMTPTransport) Name() string {
	return "SMTP " + t.host
}

// Send 發送郵件 (使用既有 SMTP 連線)
// 失敗時送出 RSET 結束交易，連線才能繼續給下一位收件人使用
func (t *SMTPTransport) Send(ctx context.Context, m *models.OutgoingMail) (string, error) {
	built, err := BuildMessage(m)
	if err != nil {
		return "", err
	}

	if deadline, ok := ctx.Deadline(); ok {
		t.client.SubmissionTimeout = time.Until(deadline)
	}

	if err := t.client.SendMail(m.From, []string{m.To}, bytes.NewReader(built.Raw)); err != nil {
		if resetErr := t.client.Reset(); resetErr != nil {
			return "", fmt.Errorf("smtp send failed: %w: %w (reset: %v)", ErrSessionReset, err, resetErr)
		}
		return "", fmt.Errorf("smtp send failed: %w", err)
	}
	return built.MessageID, nil
}

// Close 結束 SMTP 連線
func (t *SMTPTransport) Close() error {
	if err := t.client.Quit(); err != nil {
		return t.client.Close()
	}
	return nil
}
