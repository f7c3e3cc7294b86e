// internal/services/account_pool.go
// 寄件帳號池 - 每個帳號持有一個已登入的 Transport，選擇計數最低的帳號發送

package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"bulk-mailer/internal/models"
)

// Account 帳號池中的寄件帳號
type Account struct {
	Name      string
	Address   string
	Transport Transport

	cred models.AccountCredential
}

// AccountPool 寄件帳號池
type AccountPool struct {
	mu       sync.Mutex
	dialer   Dialer
	tracker  *AccountQuotaTracker
	logger   *slog.Logger
	accounts map[string]*Account
	names    []string
	closed   bool
}

// NewAccountPool 並行登入所有帳號，登入失敗的帳號會被移除
// 全部失敗時回傳 ErrNoAccounts
func NewAccountPool(
	ctx context.Context,
	creds []models.AccountCredential,
	dialer Dialer,
	tracker *AccountQuotaTracker,
	concurrency int,
	logger *slog.Logger,
) (*AccountPool, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	transports := make([]Transport, len(creds))
	g := new(errgroup.Group)
	g.SetLimit(concurrency)

	for i, cred := range creds {
		g.Go(func() error {
			t, err := dialer.Dial(ctx, cred)
			if err != nil {
				logger.Warn("account login failed",
					slog.String("account", cred.DefaultName()),
					slog.String("email", cred.Email),
					slog.String("error", err.Error()),
				)
				return nil
			}
			transports[i] = t
			return nil
		})
	}
	_ = g.Wait()

	pool := &AccountPool{
		dialer:   dialer,
		tracker:  tracker,
		logger:   logger,
		accounts: make(map[string]*Account, len(creds)),
	}

	for i, cred := range creds {
		if transports[i] == nil {
			continue
		}
		name := cred.DefaultName()
		if _, dup := pool.accounts[name]; dup {
			logger.Warn("duplicate account name dropped", slog.String("account", name))
			_ = transports[i].Close()
			continue
		}
		pool.accounts[name] = &Account{
			Name:      name,
			Address:   cred.Email,
			Transport: transports[i],
			cred:      cred,
		}
		pool.names = append(pool.names, name)
	}

	if len(pool.names) == 0 {
		return nil, ErrNoAccounts
	}

	slices.Sort(pool.names)
	tracker.Register(pool.names...)

	for _, name := range pool.names {
		acc := pool.accounts[name]
		logger.Info("account logged in",
			slog.String("account", name),
			slog.String("email", acc.Address),
			slog.String("transport", acc.Transport.Name()),
			slog.Int("sent_today", tracker.Count(name)),
			slog.Int("daily_limit", tracker.DailyLimit()),
		)
	}

	return pool, nil
}

// Select 回傳尚有額度且計數最低的帳號 (同分時依名稱排序)
func (p *AccountPool) Select() (*Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var (
		best      *Account
		bestCount int
	)
	for _, name := range p.tracker.Available(p.names) {
		count := p.tracker.Count(name)
		if best == nil || count < bestCount {
			best, bestCount = p.accounts[name], count
		}
	}
	return best, best != nil
}

// Reconnect 重新登入帳號並替換 Transport，不影響配額
func (p *AccountPool) Reconnect(ctx context.Context, name string) (*Account, error) {
	p.mu.Lock()
	acc, ok := p.accounts[name]
	p.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, name)
	}

	_ = acc.Transport.Close()

	t, err := p.dialer.Dial(ctx, acc.cred)
	if err != nil {
		return nil, fmt.Errorf("reconnect %s: %w", name, err)
	}

	p.mu.Lock()
	acc.Transport = t
	p.mu.Unlock()

	p.logger.Info("account reconnected", slog.String("account", name))
	return acc, nil
}

// CloseAll 關閉所有連線，可重複呼叫
func (p *AccountPool) CloseAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, name := range p.names {
		if err := p.accounts[name].Transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Names 帳號名稱 (已排序)
func (p *AccountPool) Names() []string {
	return slices.Clone(p.names)
}

// Len 帳號數量
func (p *AccountPool) Len() int {
	return len(p.names)
}
