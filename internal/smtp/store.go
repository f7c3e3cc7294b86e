// internal/smtp/store.go
// 郵件落地 - 原始 .eml 與附件存放於 SINK_DIR/YYYY/MM/DD/<uuid>/

package smtp

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
)

// Envelope SMTP 信封資訊
type Envelope struct {
	Username string
	From     string
	To       []string
}

// StoredAttachment 已儲存的附件
type StoredAttachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	StoragePath string `json:"storage_path"`
}

// ReceivedMessage 已接收的郵件
type ReceivedMessage struct {
	ID          string             `json:"id"`
	Username    string             `json:"username,omitempty"`
	From        string             `json:"from"`
	To          []string           `json:"to"`
	Subject     string             `json:"subject"`
	MessageID   string             `json:"message_id,omitempty"`
	Body        string             `json:"body"`
	Attachments []StoredAttachment `json:"attachments"`
	Dir         string             `json:"dir"`
	ReceivedAt  time.Time          `json:"received_at"`
}

// Store 郵件落地儲存
type Store struct {
	root string
	now  func() time.Time

	mu       sync.Mutex
	received []ReceivedMessage
}

// NewStore 建立儲存
func NewStore(root string) *Store {
	return &Store{root: root, now: time.Now}
}

// Save 寫入原始郵件並拆出附件
func (s *Store) Save(env Envelope, raw []byte) (*ReceivedMessage, error) {
	now := s.now()
	id := uuid.New().String()
	dir := filepath.Join(s.root, now.Format("2006/01/02"), id)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create message directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "message.eml"), raw, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write message: %w", err)
	}

	msg := &ReceivedMessage{
		ID:         id,
		Username:   env.Username,
		From:       env.From,
		To:         env.To,
		Dir:        dir,
		ReceivedAt: now,
	}
	if err := parseInto(msg, raw, dir); err != nil {
		// 無法解析 MIME 時仍保留原始檔
		msg.Subject = "(No Subject)"
		msg.Body = string(raw)
	}

	s.mu.Lock()
	s.received = append(s.received, *msg)
	s.mu.Unlock()

	return msg, nil
}

// Received 已接收郵件的副本
func (s *Store) Received() []ReceivedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ReceivedMessage, len(s.received))
	copy(out, s.received)
	return out
}

// parseInto 使用 go-message 解析標頭、純文字內容與附件
func parseInto(msg *ReceivedMessage, raw []byte, dir string) error {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return err
	}
	defer mr.Close()

	msg.Subject, _ = mr.Header.Subject()
	msg.MessageID, _ = mr.Header.MessageID()

	if msg.From == "" {
		if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
			msg.From = addrs[0].Address
		}
	}
	if len(msg.To) == 0 {
		if addrs, err := mr.Header.AddressList("To"); err == nil {
			for _, addr := range addrs {
				msg.To = append(msg.To, addr.Address)
			}
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			if strings.HasPrefix(contentType, "text/plain") || contentType == "" {
				content, _ := io.ReadAll(part.Body)
				msg.Body = string(content)
			}

		case *mail.AttachmentHeader:
			filename, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			if filename == "" {
				filename = fmt.Sprintf("attachment_%d.bin", len(msg.Attachments)+1)
			}

			data, err := io.ReadAll(part.Body)
			if err != nil {
				return fmt.Errorf("failed to read attachment %s: %w", filename, err)
			}

			// 清理檔名，避免路徑穿越
			storagePath := filepath.Join(dir, filepath.Base(filename))
			if err := os.WriteFile(storagePath, data, 0o644); err != nil {
				return fmt.Errorf("failed to write attachment file: %w", err)
			}

			msg.Attachments = append(msg.Attachments, StoredAttachment{
				Filename:    filename,
				ContentType: contentType,
				SizeBytes:   int64(len(data)),
				StoragePath: storagePath,
			})
		}
	}
	return nil
}
