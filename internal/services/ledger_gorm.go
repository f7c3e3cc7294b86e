// internal/services/ledger_gorm.go
// SQL 投遞帳本 (GORM) - sqlite:// 或 postgres:// DSN

package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"bulk-mailer/internal/models"
)

// DeliveryRow 帳本資料表
type DeliveryRow struct {
	ID          uint      `gorm:"primaryKey"`
	Timestamp   time.Time `gorm:"not null;index"`
	Email       string    `gorm:"size:320;not null;index"`
	Name        string    `gorm:"size:255"`
	AccountUsed string    `gorm:"size:255"`
	Status      string    `gorm:"size:16;not null;index"`
	Detail      string    `gorm:"type:text"`
}

// TableName 指定資料表名稱
func (DeliveryRow) TableName() string {
	return "delivery_records"
}

// GormLedger GORM 帳本
type GormLedger struct {
	db *gorm.DB
}

// OpenGormLedger 依 DSN 開啟資料庫並自動遷移
func OpenGormLedger(dsn string, debug bool) (*GormLedger, error) {
	dialector, err := ledgerDialector(dsn)
	if err != nil {
		return nil, err
	}

	gormLogger := logger.Default
	if !debug {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to database: %v", ErrLedgerRead, err)
	}

	if err := db.AutoMigrate(&DeliveryRow{}); err != nil {
		return nil, fmt.Errorf("%w: failed to migrate database: %v", ErrLedgerWrite, err)
	}

	return &GormLedger{db: db}, nil
}

func ledgerDialector(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("%w: unsupported LEDGER_DSN scheme", ErrLedgerRead)
	}
}

// AlreadySent 查詢狀態為 sent 的信箱
func (l *GormLedger) AlreadySent(ctx context.Context) (map[string]struct{}, error) {
	var emails []string
	if err := l.db.WithContext(ctx).
		Model(&DeliveryRow{}).
		Where("status = ?", string(models.DeliveryStatusSent)).
		Distinct().
		Pluck("email", &emails).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerRead, err)
	}

	sent := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		sent[e] = struct{}{}
	}
	return sent, nil
}

// Append 新增一筆紀錄 (單筆 INSERT，交易提交後回傳)
func (l *GormLedger) Append(ctx context.Context, rec models.DeliveryRecord) error {
	if !rec.Status.Valid() {
		return fmt.Errorf("%w: invalid status %q", ErrLedgerWrite, rec.Status)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	row := &DeliveryRow{
		Timestamp:   ts.UTC(),
		Email:       rec.Email,
		Name:        rec.Name,
		AccountUsed: rec.AccountUsed,
		Status:      string(rec.Status),
		Detail:      rec.Detail,
	}
	if err := l.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrLedgerWrite, err)
	}
	return nil
}

// Close 關閉資料庫連線
func (l *GormLedger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// OpenLedger 依設定選擇帳本：DSN 優先，否則使用 CSV 檔
func OpenLedger(path, dsn string, debug bool) (DeliveryLedger, error) {
	if dsn != "" {
		return OpenGormLedger(dsn, debug)
	}
	return OpenCSVLedger(path)
}
