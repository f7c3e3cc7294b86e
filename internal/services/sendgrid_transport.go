// internal/services/sendgrid_transport.go
// SendGrid 郵件傳輸

package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"bulk-mailer/internal/models"
)

// SendGridTransport SendGrid 郵件傳輸
// 實作 Transport interface
type SendGridTransport struct {
	client *sendgrid.Client
}

// DialSendGrid 建立 SendGrid 傳輸 (HTTP API 無需登入)
func DialSendGrid(_ context.Context, cred models.AccountCredential) (*SendGridTransport, error) {
	if cred.APIKey == "" {
		return nil, fmt.Errorf("%w: sendgrid requires api_key", ErrInvalidCredential)
	}
	return &SendGridTransport{client: sendgrid.NewSendClient(cred.APIKey)}, nil
}

// Name 回傳服務名稱
func (t *SendGridTransport) Name() string {
	return "SendGrid"
}

// Send 發送郵件 (使用 SendGrid API)
func (t *SendGridTransport) Send(ctx context.Context, m *models.OutgoingMail) (string, error) {
	content, err := ReadAttachment(m.AttachmentPath)
	if err != nil {
		return "", err
	}

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail("", m.From))
	message.Subject = m.Subject

	// 建立個人化設定 (收件人)
	personalization := mail.NewPersonalization()
	personalization.AddTos(mail.NewEmail(m.ToName, m.To))
	message.AddPersonalizations(personalization)

	message.AddContent(mail.NewContent("text/plain", m.Body))

	attachment := mail.NewAttachment()
	attachment.SetContent(base64.StdEncoding.EncodeToString(content))
	attachment.SetType(AttachmentContentType(m.AttachmentPath))
	attachment.SetFilename(filepath.Base(m.AttachmentPath))
	attachment.SetDisposition("attachment")
	message.AddAttachment(attachment)

	response, err := t.client.SendWithContext(ctx, message)
	if err != nil {
		return "", fmt.Errorf("failed to send email via SendGrid: %w", err)
	}

	// 檢查回應狀態 (2xx 表示成功)
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", fmt.Errorf("SendGrid API error (status %d): %s", response.StatusCode, response.Body)
	}

	if ids := response.Headers["X-Message-Id"]; len(ids) > 0 {
		return ids[0], nil
	}
	return "accepted", nil
}

// Close HTTP 傳輸無需關閉連線
func (t *SendGridTransport) Close() error {
	return nil
}
