// internal/services/recipients.go
// 收件人清單載入 - CSV 欄位 email, name, pdf_path

package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"bulk-mailer/internal/models"
)

// ErrInvalidRecipients 收件人清單格式錯誤
var ErrInvalidRecipients = errors.New("invalid recipient list")

// LoadRecipients 讀取收件人 CSV
// 空白信箱略過，重複信箱保留第一筆；附件路徑原樣保留 (相對於工作目錄)
func LoadRecipients(path string) ([]models.Recipient, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipient list: %w", err)
	}
	defer f.Close()

	return parseRecipients(f)
}

func parseRecipients(r io.Reader) ([]models.Recipient, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: missing header: %v", ErrInvalidRecipients, err)
	}

	cols := map[string]int{}
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	emailCol, ok := cols["email"]
	if !ok {
		return nil, fmt.Errorf("%w: header must contain an email column", ErrInvalidRecipients)
	}
	nameCol, hasName := cols["name"]
	pathCol, hasPath := cols["pdf_path"]
	if !hasPath {
		pathCol, hasPath = cols["attachment_path"]
	}
	if !hasPath {
		return nil, fmt.Errorf("%w: header must contain a pdf_path or attachment_path column", ErrInvalidRecipients)
	}

	field := func(row []string, i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	var recipients []models.Recipient
	seen := make(map[string]struct{})
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRecipients, err)
		}

		email := field(row, emailCol)
		if email == "" {
			continue
		}
		if _, dup := seen[email]; dup {
			continue
		}
		seen[email] = struct{}{}

		rcpt := models.Recipient{
			Email:          email,
			AttachmentPath: field(row, pathCol),
		}
		if hasName {
			rcpt.Name = field(row, nameCol)
		}
		recipients = append(recipients, rcpt)
	}
	return recipients, nil
}
