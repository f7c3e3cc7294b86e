// internal/config/config.go
// 設定模組 - 載入環境變數並於啟動時驗證

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ErrInvalidConfig 設定值不合法 (啟動時即為致命錯誤)
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	QuotaStoreFile  = "file"
	QuotaStoreRedis = "redis"
)

// 預設郵件內容，{name} 會被替換為收件人名稱
const (
	defaultSubject = "Your Document - {name}"
	defaultBody    = `Dear {name},

Please find your document attached.

If you have any questions, please don't hesitate to reach out.

Best regards,
Your Name
`
)

// Config 應用程式設定
type Config struct {
	// 環境
	Env string

	// 輸入檔案
	RecipientsCSV string
	AccountsFile  string

	// 投遞帳本
	LedgerPath string
	LedgerDSN  string // 設定時改用 SQL 帳本 (sqlite:// 或 postgres://)

	// 配額
	QuotaStore           string
	QuotaPath            string
	QuotaTimezone        string
	DailyLimitPerAccount int

	// Redis / KeyDB (QuotaStore=redis)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	QuotaRedisKey string

	// 發送節奏 (秒)
	MinDelaySeconds     float64
	MaxDelaySeconds     float64
	SessionSize         int
	LongPauseMinSeconds float64
	LongPauseMaxSeconds float64

	// 郵件內容
	SubjectTemplate string
	BodyTemplate    string

	// 傳輸
	TransientErrors    []string // 額外視為暫時性錯誤的字串
	LoginConcurrency   int
	SendTimeoutSeconds int

	// Encryption (32 bytes for AES-256)
	EncryptionKey string

	// RabbitMQ 投遞事件 (空白表示停用)
	RabbitMQURL         string
	DeliveryEventsQueue string

	// 狀態 API (空白表示停用)
	StatusPort      string
	StatusJWTSecret string

	// 日誌
	LogFormat string
	LogLevel  string
	SentryDSN string

	// SMTP Sink
	SinkPort           string
	SinkDir            string
	SinkMaxMessageSize int               // MB
	SinkUsers          map[string]string // 空白表示接受任何認證
}

// Load 載入設定
func Load() (*Config, error) {
	// 嘗試載入 .env 檔案 (開發環境)
	_ = godotenv.Load()

	body := getEnv("BODY_TEMPLATE", defaultBody)
	if path := os.Getenv("BODY_TEMPLATE_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: read BODY_TEMPLATE_FILE: %v", ErrInvalidConfig, err)
		}
		body = string(data)
	}

	return &Config{
		Env: getEnv("APP_ENV", "development"),

		RecipientsCSV: getEnv("RECIPIENTS_CSV", "renamed_pdfs/email_list.csv"),
		AccountsFile:  getEnv("ACCOUNTS_FILE", "credentials/accounts.yaml"),

		LedgerPath: getEnv("LEDGER_PATH", "send_log.csv"),
		LedgerDSN:  getEnv("LEDGER_DSN", ""),

		QuotaStore:           strings.ToLower(getEnv("QUOTA_STORE", QuotaStoreFile)),
		QuotaPath:            getEnv("QUOTA_PATH", "credentials/send_progress.json"),
		QuotaTimezone:        getEnv("QUOTA_TIMEZONE", "Local"),
		DailyLimitPerAccount: getEnvAsInt("DAILY_LIMIT_PER_ACCOUNT", 400),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		QuotaRedisKey: getEnv("QUOTA_REDIS_KEY", "bulk-mailer:quota"),

		MinDelaySeconds:     getEnvAsFloat("MIN_DELAY_SECONDS", 20),
		MaxDelaySeconds:     getEnvAsFloat("MAX_DELAY_SECONDS", 60),
		SessionSize:         getEnvAsInt("SESSION_SIZE", 100),
		LongPauseMinSeconds: getEnvAsFloat("LONG_PAUSE_MIN_SECONDS", 300),
		LongPauseMaxSeconds: getEnvAsFloat("LONG_PAUSE_MAX_SECONDS", 600),

		SubjectTemplate: getEnv("SUBJECT_TEMPLATE", defaultSubject),
		BodyTemplate:    body,

		TransientErrors:    getEnvAsSlice("TRANSIENT_ERRORS", []string{}),
		LoginConcurrency:   getEnvAsInt("LOGIN_CONCURRENCY", 4),
		SendTimeoutSeconds: getEnvAsInt("SEND_TIMEOUT_SECONDS", 120),

		EncryptionKey: getEnv("ENCRYPTION_KEY", ""),

		RabbitMQURL:         getEnv("RABBITMQ_URL", ""),
		DeliveryEventsQueue: getEnv("DELIVERY_EVENTS_QUEUE", "delivery-events"),

		StatusPort:      getEnv("STATUS_PORT", ""),
		StatusJWTSecret: getEnv("STATUS_JWT_SECRET", ""),

		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		SentryDSN: getEnv("SENTRY_DSN", ""),

		SinkPort:           getEnv("SINK_PORT", "2525"),
		SinkDir:            getEnv("SINK_DIR", "sink"),
		SinkMaxMessageSize: getEnvAsInt("SINK_MAX_MESSAGE_SIZE_MB", 25),
		SinkUsers:          getEnvAsPairs("SINK_USERS"),
	}, nil
}

// Validate 驗證設定值，任何不一致皆回傳 ErrInvalidConfig
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.RecipientsCSV == "" {
		fail("RECIPIENTS_CSV is required")
	}
	if c.AccountsFile == "" {
		fail("ACCOUNTS_FILE is required")
	}
	if c.LedgerPath == "" && c.LedgerDSN == "" {
		fail("LEDGER_PATH or LEDGER_DSN is required")
	}
	if c.DailyLimitPerAccount < 1 {
		fail("DAILY_LIMIT_PER_ACCOUNT must be >= 1, got %d", c.DailyLimitPerAccount)
	}
	if c.MinDelaySeconds < 0 || c.MaxDelaySeconds < 0 {
		fail("delays must not be negative")
	}
	if c.MinDelaySeconds > c.MaxDelaySeconds {
		fail("MIN_DELAY_SECONDS (%g) must be <= MAX_DELAY_SECONDS (%g)", c.MinDelaySeconds, c.MaxDelaySeconds)
	}
	if c.SessionSize < 1 {
		fail("SESSION_SIZE must be >= 1, got %d", c.SessionSize)
	}
	if c.LongPauseMinSeconds < 0 || c.LongPauseMaxSeconds < 0 {
		fail("long pauses must not be negative")
	}
	if c.LongPauseMinSeconds > c.LongPauseMaxSeconds {
		fail("LONG_PAUSE_MIN_SECONDS (%g) must be <= LONG_PAUSE_MAX_SECONDS (%g)", c.LongPauseMinSeconds, c.LongPauseMaxSeconds)
	}
	if strings.TrimSpace(c.SubjectTemplate) == "" {
		fail("SUBJECT_TEMPLATE must not be empty")
	}
	if c.LoginConcurrency < 1 {
		fail("LOGIN_CONCURRENCY must be >= 1, got %d", c.LoginConcurrency)
	}
	if c.SendTimeoutSeconds < 1 {
		fail("SEND_TIMEOUT_SECONDS must be >= 1, got %d", c.SendTimeoutSeconds)
	}
	switch c.QuotaStore {
	case QuotaStoreFile:
		if c.QuotaPath == "" {
			fail("QUOTA_PATH is required when QUOTA_STORE=file")
		}
	case QuotaStoreRedis:
		if c.RedisAddr == "" || c.QuotaRedisKey == "" {
			fail("REDIS_ADDR and QUOTA_REDIS_KEY are required when QUOTA_STORE=redis")
		}
	default:
		fail("QUOTA_STORE must be %q or %q, got %q", QuotaStoreFile, QuotaStoreRedis, c.QuotaStore)
	}
	if _, err := c.Location(); err != nil {
		fail("QUOTA_TIMEZONE: %v", err)
	}
	if c.EncryptionKey != "" && len(c.EncryptionKey) != 32 {
		fail("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.EncryptionKey))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		fail("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Location 配額日期使用的時區
func (c *Config) Location() (*time.Location, error) {
	if c.QuotaTimezone == "" || c.QuotaTimezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.QuotaTimezone)
}

// MinDelay 最短間隔
func (c *Config) MinDelay() time.Duration { return seconds(c.MinDelaySeconds) }

// MaxDelay 最長間隔
func (c *Config) MaxDelay() time.Duration { return seconds(c.MaxDelaySeconds) }

// LongPauseMin 長休息下限
func (c *Config) LongPauseMin() time.Duration { return seconds(c.LongPauseMinSeconds) }

// LongPauseMax 長休息上限
func (c *Config) LongPauseMax() time.Duration { return seconds(c.LongPauseMaxSeconds) }

// SendTimeout 單次發送逾時
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// getEnv 取得環境變數，若不存在則回傳預設值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt 取得環境變數並轉換為整數
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		// 無法解析時回傳 -1，交由 Validate 回報
		return -1
	}
	return defaultValue
}

// getEnvAsFloat 取得環境變數並轉換為浮點數
func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		return -1
	}
	return defaultValue
}

// getEnvAsSlice 取得環境變數並轉換為字串切片（以逗號分隔）
func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

// getEnvAsPairs 取得 user:pass 形式的清單（以逗號分隔）
func getEnvAsPairs(key string) map[string]string {
	pairs := make(map[string]string)
	for _, item := range getEnvAsSlice(key, nil) {
		if user, pass, ok := strings.Cut(item, ":"); ok && user != "" {
			pairs[user] = pass
		}
	}
	return pairs
}
