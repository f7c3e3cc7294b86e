// internal/models/quota.go
// 帳號每日配額資料模型

package models

// QuotaRecordVersion 目前的配額檔格式版本
const QuotaRecordVersion = 1

// QuotaDateLayout 配額日期格式 (日曆日)
const QuotaDateLayout = "2006-01-02"

// QuotaRecord 持久化的配額紀錄
// Counts 只在 Date 當日有效，日期不同時一律歸零
type QuotaRecord struct {
	Version int            `json:"version"`
	Date    string         `json:"date"`
	Counts  map[string]int `json:"counts"`
}

// NewQuotaRecord 建立指定日期的空白紀錄
func NewQuotaRecord(date string) QuotaRecord {
	return QuotaRecord{
		Version: QuotaRecordVersion,
		Date:    date,
		Counts:  make(map[string]int),
	}
}
