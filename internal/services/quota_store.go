// internal/services/quota_store.go
// 配額持久化 - JSON 檔案 (原子寫入)

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"bulk-mailer/internal/models"
)

// QuotaStore 配額紀錄的持久化介面
type QuotaStore interface {
	// Load 讀取紀錄，尚無紀錄時回傳 ok=false
	Load(ctx context.Context) (rec models.QuotaRecord, ok bool, err error)

	// Save 寫入紀錄，回傳後必須已落地
	Save(ctx context.Context, rec models.QuotaRecord) error
}

// FileQuotaStore 以 JSON 檔儲存配額
type FileQuotaStore struct {
	path string
}

// NewFileQuotaStore 建立檔案配額儲存
func NewFileQuotaStore(path string) *FileQuotaStore {
	return &FileQuotaStore{path: path}
}

// Load 讀取配額檔
func (s *FileQuotaStore) Load(_ context.Context) (models.QuotaRecord, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.QuotaRecord{}, false, nil
		}
		return models.QuotaRecord{}, false, fmt.Errorf("%w: %v", ErrQuotaLoad, err)
	}
	rec, err := decodeQuotaRecord(data)
	if err != nil {
		return models.QuotaRecord{}, false, err
	}
	return rec, true, nil
}

// Save 以暫存檔 + fsync + rename 原子寫入
func (s *FileQuotaStore) Save(_ context.Context, rec models.QuotaRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQuotaPersist, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrQuotaPersist, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQuotaPersist, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrQuotaPersist, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrQuotaPersist, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrQuotaPersist, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrQuotaPersist, err)
	}
	return nil
}

// decodeQuotaRecord 解析並檢查格式版本
func decodeQuotaRecord(data []byte) (models.QuotaRecord, error) {
	var rec models.QuotaRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return models.QuotaRecord{}, fmt.Errorf("%w: malformed quota record: %v", ErrQuotaLoad, err)
	}
	if rec.Version != models.QuotaRecordVersion {
		return models.QuotaRecord{}, fmt.Errorf("%w: unsupported quota record version %d", ErrQuotaLoad, rec.Version)
	}
	if rec.Counts == nil {
		rec.Counts = make(map[string]int)
	}
	return rec, nil
}
