package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bulk-mailer/internal/models"
)

type failingQuotaStore struct{}

func (failingQuotaStore) Load(context.Context) (models.QuotaRecord, bool, error) {
	return models.QuotaRecord{}, false, nil
}

func (failingQuotaStore) Save(context.Context, models.QuotaRecord) error {
	return errors.Join(ErrQuotaPersist, errors.New("disk full"))
}

func newTestTracker(t *testing.T, limit int, now time.Time) (*AccountQuotaTracker, *FileQuotaStore) {
	t.Helper()
	store := NewFileQuotaStore(filepath.Join(t.TempDir(), "credentials", "send_progress.json"))
	tracker := NewAccountQuotaTracker(store, limit, time.UTC)
	tracker.now = func() time.Time { return now }
	require.NoError(t, tracker.Load(context.Background()))
	return tracker, store
}

func TestQuotaTracker_LoadMissingStoreStartsEmpty(t *testing.T) {
	t.Parallel()

	tracker, _ := newTestTracker(t, 3, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	tracker.Register("alice", "bob")

	require.Equal(t, 0, tracker.Count("alice"))
	require.Equal(t, 6, tracker.RemainingCapacity())
	require.Equal(t, []string{"alice", "bob"}, tracker.Available([]string{"bob", "alice"}))
}

func TestQuotaTracker_RecordSendPersistsAndSurvivesReload(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker, store := newTestTracker(t, 2, now)
	tracker.Register("alice", "bob")
	ctx := context.Background()

	require.NoError(t, tracker.RecordSend(ctx, "alice"))
	require.NoError(t, tracker.RecordSend(ctx, "alice"))
	require.Equal(t, []string{"bob"}, tracker.Available([]string{"alice", "bob"}))
	require.Equal(t, 2, tracker.RemainingCapacity())

	rec, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, models.QuotaRecordVersion, rec.Version)
	require.Equal(t, "2026-03-01", rec.Date)
	require.Equal(t, 2, rec.Counts["alice"])

	reloaded := NewAccountQuotaTracker(store, 2, time.UTC)
	reloaded.now = func() time.Time { return now.Add(time.Hour) }
	require.NoError(t, reloaded.Load(ctx))
	require.Equal(t, 2, reloaded.Count("alice"))
}

func TestQuotaTracker_ResetsOnNewDay(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	tracker, store := newTestTracker(t, 2, now)
	tracker.Register("alice")
	ctx := context.Background()

	require.NoError(t, tracker.RecordSend(ctx, "alice"))
	require.NoError(t, tracker.RecordSend(ctx, "alice"))
	require.Empty(t, tracker.Available([]string{"alice"}))

	// 跨日後不需重新載入即歸零
	tracker.now = func() time.Time { return now.Add(2 * time.Minute) }
	require.Equal(t, 0, tracker.Count("alice"))
	require.Equal(t, []string{"alice"}, tracker.Available([]string{"alice"}))

	// 隔天重新載入也會歸零
	reloaded := NewAccountQuotaTracker(store, 2, time.UTC)
	reloaded.now = func() time.Time { return now.Add(24 * time.Hour) }
	require.NoError(t, reloaded.Load(ctx))
	require.Equal(t, 0, reloaded.Count("alice"))
}

func TestQuotaTracker_DateUsesConfiguredTimezone(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+8", 8*60*60)
	store := NewFileQuotaStore(filepath.Join(t.TempDir(), "q.json"))
	tracker := NewAccountQuotaTracker(store, 5, loc)
	tracker.now = func() time.Time { return time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC) }
	require.NoError(t, tracker.RecordSend(context.Background(), "alice"))

	rec, _, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2026-03-02", rec.Date)
}

func TestQuotaTracker_PersistFailureIsFatalAndDoesNotCount(t *testing.T) {
	t.Parallel()

	tracker := NewAccountQuotaTracker(failingQuotaStore{}, 2, time.UTC)
	tracker.Register("alice")

	err := tracker.RecordSend(context.Background(), "alice")
	require.ErrorIs(t, err, ErrQuotaPersist)
	require.Equal(t, 0, tracker.Count("alice"))
}

func TestQuotaTracker_CapacityIgnoresUnregisteredAndClamps(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "q.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":1,"date":"2026-03-01","counts":{"alice":5,"retired":1}}`), 0o644))

	tracker := NewAccountQuotaTracker(NewFileQuotaStore(path), 3, time.UTC)
	tracker.now = func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }
	require.NoError(t, tracker.Load(context.Background()))
	tracker.Register("alice", "bob")

	require.Equal(t, 3, tracker.RemainingCapacity())
	require.Equal(t, map[string]int{"alice": 5, "bob": 0}, tracker.Snapshot())
}

func TestFileQuotaStore_CorruptFileIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed json", content: `{"date":`},
		{name: "unknown version", content: `{"version":9,"date":"2026-03-01","counts":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "q.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			tracker := NewAccountQuotaTracker(NewFileQuotaStore(path), 3, time.UTC)
			require.ErrorIs(t, tracker.Load(context.Background()), ErrQuotaLoad)
		})
	}
}

func TestFileQuotaStore_SaveLeavesNoTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := NewFileQuotaStore(filepath.Join(dir, "q.json"))
	rec := models.NewQuotaRecord("2026-03-01")
	rec.Counts["alice"] = 1
	require.NoError(t, store.Save(context.Background(), rec))
	require.NoError(t, store.Save(context.Background(), rec))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "q.json", entries[0].Name())
}
