// internal/services/message_builder.go
// MIME 郵件組裝 - 純文字內容加上單一附件

package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/emersion/go-message/mail"

	"bulk-mailer/internal/models"
)

// BuiltMessage 組裝完成的 MIME 郵件
type BuiltMessage struct {
	MessageID string
	Raw       []byte
}

// ReadAttachment 讀取附件，檔案不存在時回傳 ErrMissingAttachment
func ReadAttachment(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrMissingAttachment, path)
		}
		return nil, fmt.Errorf("failed to read attachment %s: %w", path, err)
	}
	return content, nil
}

// AttachmentContentType 依副檔名判斷附件類型
func AttachmentContentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// BuildMessage 使用 go-message 組裝 multipart/mixed 郵件
func BuildMessage(m *models.OutgoingMail) (*BuiltMessage, error) {
	content, err := ReadAttachment(m.AttachmentPath)
	if err != nil {
		return nil, err
	}

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: m.From}})
	h.SetAddressList("To", []*mail.Address{{Name: m.ToName, Address: m.To}})
	h.SetSubject(m.Subject)
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	messageID, err := h.MessageID()
	if err != nil {
		return nil, fmt.Errorf("failed to read message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail writer: %w", err)
	}

	// 內文
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create inline part: %w", err)
	}
	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(th)
	if err != nil {
		return nil, fmt.Errorf("failed to create text part: %w", err)
	}
	if _, err := io.WriteString(w, m.Body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	// 附件
	var ah mail.AttachmentHeader
	ah.SetContentType(AttachmentContentType(m.AttachmentPath), nil)
	ah.SetFilename(filepath.Base(m.AttachmentPath))
	aw, err := mw.CreateAttachment(ah)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment part: %w", err)
	}
	if _, err := aw.Write(content); err != nil {
		return nil, err
	}
	if err := aw.Close(); err != nil {
		return nil, err
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}

	return &BuiltMessage{MessageID: messageID, Raw: buf.Bytes()}, nil
}
