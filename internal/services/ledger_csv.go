// internal/services/ledger_csv.go
// CSV 投遞帳本 - 每筆寫入後 fsync

package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bulk-mailer/internal/models"
)

var ledgerHeader = []string{"timestamp", "email", "name", "account_used", "status", "detail"}

// CSVLedger CSV 檔案帳本
type CSVLedger struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenCSVLedger 開啟 (或建立) CSV 帳本
// 既有檔案若最後一行不完整 (程序中斷)，截斷到最後一個換行，捨棄該行
func OpenCSVLedger(path string) (*CSVLedger, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}

	l := &CSVLedger{path: path, file: file}
	if info.Size() == 0 {
		if err := l.writeRow(ledgerHeader); err != nil {
			file.Close()
			return nil, err
		}
		return l, nil
	}

	keep, err := completeLength(file, info.Size())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", ErrLedgerRead, err)
	}
	if keep == info.Size() {
		return l, nil
	}

	// 被截斷的一行可能停在引號欄位內，保留它會吞掉之後所有紀錄
	if err := file.Truncate(keep); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	if keep == 0 {
		if err := l.writeRow(ledgerHeader); err != nil {
			file.Close()
			return nil, err
		}
	}
	return l, nil
}

// completeLength 回傳最後一個換行之後的位置 (不含不完整的尾行)
func completeLength(file *os.File, size int64) (int64, error) {
	buf := make([]byte, 4096)
	end := size
	for end > 0 {
		start := max(end-int64(len(buf)), 0)
		chunk := buf[:end-start]
		if _, err := file.ReadAt(chunk, start); err != nil {
			return 0, err
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			return start + int64(i) + 1, nil
		}
		end = start
	}
	return 0, nil
}

// AlreadySent 讀取全部紀錄，回傳已成功寄出的信箱
func (l *CSVLedger) AlreadySent(_ context.Context) (map[string]struct{}, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]struct{}{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLedgerRead, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	sent := make(map[string]struct{})
	first := true
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLedgerRead, err)
		}
		if first {
			first = false
			if len(row) > 0 && row[0] == ledgerHeader[0] {
				continue
			}
		}
		if len(row) < 5 {
			continue
		}
		if models.DeliveryStatus(strings.TrimSpace(row[4])) == models.DeliveryStatusSent {
			sent[strings.TrimSpace(row[1])] = struct{}{}
		}
	}
	return sent, nil
}

// Append 寫入一筆紀錄並 fsync
// 欄位內的換行改為空白，每筆紀錄恰好佔一行
func (l *CSVLedger) Append(_ context.Context, rec models.DeliveryRecord) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("%w: invalid status %q", ErrLedgerWrite, rec.Status)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return l.writeRow([]string{
		ts.Format(time.RFC3339),
		singleLine(rec.Email),
		singleLine(rec.Name),
		singleLine(rec.AccountUsed),
		string(rec.Status),
		singleLine(rec.Detail),
	})
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ")

func singleLine(v string) string {
	return lineBreaks.Replace(v)
}

// writeRow 整行寫入後 fsync
func (l *CSVLedger) writeRow(row []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("%w: ledger closed", ErrLedgerWrite)
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}

	if _, err := l.file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	return nil
}

// Close 關閉檔案
func (l *CSVLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
