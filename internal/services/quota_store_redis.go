// internal/services/quota_store_redis.go
// 配額持久化 - Redis / KeyDB (多台主機共用配額)

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"bulk-mailer/internal/models"
)

// 配額只在當日有效，保留兩天即可
const quotaRedisTTL = 48 * time.Hour

// RedisQuotaStore 以 Redis key 儲存配額 JSON
type RedisQuotaStore struct {
	client *redis.Client
	key    string
}

// NewRedisQuotaStore 建立 Redis 配額儲存並測試連線
func NewRedisQuotaStore(ctx context.Context, addr, password string, db int, key string) (*RedisQuotaStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 測試連接
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQuotaStore{client: client, key: key}, nil
}

// Load 讀取配額紀錄
func (s *RedisQuotaStore) Load(ctx context.Context) (models.QuotaRecord, bool, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
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

// Save 寫入配額紀錄
func (s *RedisQuotaStore) Save(ctx context.Context, rec models.QuotaRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQuotaPersist, err)
	}
	if err := s.client.Set(ctx, s.key, data, quotaRedisTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrQuotaPersist, err)
	}
	return nil
}

// Close 關閉連接
func (s *RedisQuotaStore) Close() error {
	return s.client.Close()
}
