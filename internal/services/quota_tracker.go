// internal/services/quota_tracker.go
// 帳號每日配額追蹤 - 計數在日曆日變更時歸零，每次變更都同步寫入儲存

package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"bulk-mailer/internal/models"
)

// AccountQuotaTracker 帳號每日發送計數
type AccountQuotaTracker struct {
	mu         sync.Mutex
	store      QuotaStore
	dailyLimit int
	loc        *time.Location
	now        func() time.Time

	date   string
	counts map[string]int
	known  map[string]struct{}
}

// NewAccountQuotaTracker 建立配額追蹤器
func NewAccountQuotaTracker(store QuotaStore, dailyLimit int, loc *time.Location) *AccountQuotaTracker {
	if loc == nil {
		loc = time.Local
	}
	t := &AccountQuotaTracker{
		store:      store,
		dailyLimit: dailyLimit,
		loc:        loc,
		now:        time.Now,
		counts:     make(map[string]int),
		known:      make(map[string]struct{}),
	}
	t.date = t.today()
	return t
}

// Load 讀取持久化的配額，日期不是今天時全部歸零
// 已登記的帳號會被清除，需重新 Register
func (t *AccountQuotaTracker) Load(ctx context.Context) error {
	rec, ok, err := t.store.Load(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.date = t.today()
	t.counts = make(map[string]int)
	t.known = make(map[string]struct{})
	if ok && rec.Date == t.date {
		for name, n := range rec.Counts {
			t.counts[name] = n
		}
	}
	return nil
}

// Register 登記帳號 (計入剩餘容量)，尚無計數者為 0
func (t *AccountQuotaTracker) Register(names ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, name := range names {
		t.known[name] = struct{}{}
	}
}

// Available 回傳尚未達到每日上限的帳號 (依名稱排序)
func (t *AccountQuotaTracker) Available(names []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	available := make([]string, 0, len(names))
	for _, name := range names {
		if t.counts[name] < t.dailyLimit {
			available = append(available, name)
		}
	}
	slices.Sort(available)
	return available
}

// RecordSend 計數 +1 並在回傳前寫入儲存
// 寫入失敗時計數不變，回傳 ErrQuotaPersist
func (t *AccountQuotaTracker) RecordSend(ctx context.Context, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	t.known[name] = struct{}{}
	t.counts[name]++

	if err := t.store.Save(ctx, t.recordLocked()); err != nil {
		t.counts[name]--
		return fmt.Errorf("record send for %s: %w", name, err)
	}
	return nil
}

// RemainingCapacity 所有已登記帳號的剩餘額度總和
func (t *AccountQuotaTracker) RemainingCapacity() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	total := 0
	for name := range t.known {
		total += max(t.dailyLimit-t.counts[name], 0)
	}
	return total
}

// Count 帳號今日已發送數量
func (t *AccountQuotaTracker) Count(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	return t.counts[name]
}

// DailyLimit 每日上限
func (t *AccountQuotaTracker) DailyLimit() int {
	return t.dailyLimit
}

// Snapshot 已登記帳號的計數副本
func (t *AccountQuotaTracker) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rollover()
	out := make(map[string]int, len(t.known))
	for name := range t.known {
		out[name] = t.counts[name]
	}
	return out
}

func (t *AccountQuotaTracker) today() string {
	return t.now().In(t.loc).Format(models.QuotaDateLayout)
}

// rollover 跨日時歸零 (需持有鎖)
func (t *AccountQuotaTracker) rollover() {
	if today := t.today(); today != t.date {
		t.date = today
		t.counts = make(map[string]int)
	}
}

func (t *AccountQuotaTracker) recordLocked() models.QuotaRecord {
	rec := models.NewQuotaRecord(t.date)
	for name, n := range t.counts {
		rec.Counts[name] = n
	}
	return rec
}
