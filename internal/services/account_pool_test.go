package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bulk-mailer/internal/models"
)

type stubTransport struct {
	name   string
	closed int
}

func (s *stubTransport) Send(context.Context, *models.OutgoingMail) (string, error) {
	return "id-" + s.name, nil
}

func (s *stubTransport) Close() error {
	s.closed++
	return nil
}

func (s *stubTransport) Name() string { return "stub " + s.name }

type stubDialer struct {
	mu     sync.Mutex
	fail   map[string]bool
	dialed map[string]int
	last   map[string]*stubTransport
}

func newStubDialer(failing ...string) *stubDialer {
	d := &stubDialer{fail: map[string]bool{}, dialed: map[string]int{}, last: map[string]*stubTransport{}}
	for _, f := range failing {
		d.fail[f] = true
	}
	return d
}

func (d *stubDialer) Dial(_ context.Context, cred models.AccountCredential) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.dialed[cred.Email]++
	if d.fail[cred.Email] {
		return nil, errors.New("535 authentication failed")
	}
	t := &stubTransport{name: cred.DefaultName()}
	d.last[cred.Email] = t
	return t, nil
}

func testCreds(emails ...string) []models.AccountCredential {
	creds := make([]models.AccountCredential, len(emails))
	for i, e := range emails {
		creds[i] = models.AccountCredential{Email: e, Provider: models.ProviderSMTP, AppPassword: "pw"}
	}
	return creds
}

func newPoolTracker(t *testing.T, limit int) *AccountQuotaTracker {
	t.Helper()
	tracker := NewAccountQuotaTracker(NewFileQuotaStore(filepath.Join(t.TempDir(), "q.json")), limit, time.UTC)
	require.NoError(t, tracker.Load(context.Background()))
	return tracker
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewAccountPool_DropsFailedLogins(t *testing.T) {
	t.Parallel()

	dialer := newStubDialer("bad@gmail.com")
	tracker := newPoolTracker(t, 10)

	pool, err := NewAccountPool(context.Background(), testCreds("b@gmail.com", "bad@gmail.com", "a@gmail.com"), dialer, tracker, 2, discardLogger())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, pool.Names())
	require.Equal(t, 2, pool.Len())
	require.Equal(t, 20, tracker.RemainingCapacity())
}

func TestNewAccountPool_NoAccounts(t *testing.T) {
	t.Parallel()

	dialer := newStubDialer("a@gmail.com", "b@gmail.com")
	_, err := NewAccountPool(context.Background(), testCreds("a@gmail.com", "b@gmail.com"), dialer, newPoolTracker(t, 10), 4, discardLogger())
	require.ErrorIs(t, err, ErrNoAccounts)

	_, err = NewAccountPool(context.Background(), nil, dialer, newPoolTracker(t, 10), 4, discardLogger())
	require.ErrorIs(t, err, ErrNoAccounts)
}

func TestAccountPool_SelectLowestCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := newPoolTracker(t, 10)
	pool, err := NewAccountPool(ctx, testCreds("a@gmail.com", "b@gmail.com"), newStubDialer(), tracker, 1, discardLogger())
	require.NoError(t, err)

	for range 2 {
		require.NoError(t, tracker.RecordSend(ctx, "a"))
	}
	for range 5 {
		require.NoError(t, tracker.RecordSend(ctx, "b"))
	}

	acc, ok := pool.Select()
	require.True(t, ok)
	require.Equal(t, "a", acc.Name)
	require.Equal(t, "a@gmail.com", acc.Address)
}

func TestAccountPool_SelectTieBreaksByName(t *testing.T) {
	t.Parallel()

	pool, err := NewAccountPool(context.Background(), testCreds("zed@gmail.com", "amy@gmail.com"), newStubDialer(), newPoolTracker(t, 3), 2, discardLogger())
	require.NoError(t, err)

	acc, ok := pool.Select()
	require.True(t, ok)
	require.Equal(t, "amy", acc.Name)
}

func TestAccountPool_SelectNeverReturnsExhaustedAccount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	tracker := newPoolTracker(t, 2)
	pool, err := NewAccountPool(ctx, testCreds("a@gmail.com", "b@gmail.com"), newStubDialer(), tracker, 2, discardLogger())
	require.NoError(t, err)

	sent := map[string]int{}
	for {
		acc, ok := pool.Select()
		if !ok {
			break
		}
		require.Less(t, tracker.Count(acc.Name), 2)
		require.NoError(t, tracker.RecordSend(ctx, acc.Name))
		sent[acc.Name]++
	}
	require.Equal(t, map[string]int{"a": 2, "b": 2}, sent)
	require.Equal(t, 0, tracker.RemainingCapacity())
}

func TestAccountPool_Reconnect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dialer := newStubDialer()
	tracker := newPoolTracker(t, 5)
	pool, err := NewAccountPool(ctx, testCreds("a@gmail.com"), dialer, tracker, 1, discardLogger())
	require.NoError(t, err)
	require.NoError(t, tracker.RecordSend(ctx, "a"))

	first := dialer.last["a@gmail.com"]
	acc, err := pool.Reconnect(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 1, first.closed)
	require.Same(t, dialer.last["a@gmail.com"], acc.Transport)
	require.Equal(t, 2, dialer.dialed["a@gmail.com"])
	require.Equal(t, 1, tracker.Count("a"))

	_, err = pool.Reconnect(ctx, "ghost")
	require.ErrorIs(t, err, ErrUnknownAccount)

	dialer.fail["a@gmail.com"] = true
	_, err = pool.Reconnect(ctx, "a")
	require.ErrorContains(t, err, "authentication failed")
}

func TestAccountPool_CloseAllIsIdempotent(t *testing.T) {
	t.Parallel()

	dialer := newStubDialer()
	pool, err := NewAccountPool(context.Background(), testCreds("a@gmail.com", "b@gmail.com"), dialer, newPoolTracker(t, 5), 2, discardLogger())
	require.NoError(t, err)

	require.NoError(t, pool.CloseAll())
	require.NoError(t, pool.CloseAll())
	require.Equal(t, 1, dialer.last["a@gmail.com"].closed)
	require.Equal(t, 1, dialer.last["b@gmail.com"].closed)
}
