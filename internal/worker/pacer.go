// internal/worker/pacer.go
// 發送節奏 - 每封之間隨機間隔，每 SessionSize 封再加一次長休息

package worker

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"
)

// PacingOptions 節奏設定
type PacingOptions struct {
	MinDelay     time.Duration
	MaxDelay     time.Duration
	SessionSize  int
	LongPauseMin time.Duration
	LongPauseMax time.Duration
}

// Pacer 發送節奏控制
// 成功與失敗都計入 session 計數
type Pacer struct {
	opts    PacingOptions
	logger  *slog.Logger
	session int

	randFloat func() float64
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewPacer 建立節奏控制
func NewPacer(opts PacingOptions, logger *slog.Logger) *Pacer {
	return &Pacer{
		opts:      opts,
		logger:    logger,
		randFloat: rand.Float64,
		sleep:     sleepContext,
	}
}

// Wait 處理完一位收件人後呼叫
// 先等待短間隔，session 計數達到上限時再加一次長休息；ctx 取消時立即回傳
func (p *Pacer) Wait(ctx context.Context) error {
	delay := p.uniform(p.opts.MinDelay, p.opts.MaxDelay)
	p.logger.Debug("pacing delay", slog.Duration("delay", delay))
	if err := p.sleep(ctx, delay); err != nil {
		return err
	}

	p.session++
	if p.opts.SessionSize > 0 && p.session >= p.opts.SessionSize {
		p.session = 0
		pause := p.uniform(p.opts.LongPauseMin, p.opts.LongPauseMax)
		p.logger.Info("session complete, taking a long pause",
			slog.Int("session_size", p.opts.SessionSize),
			slog.Duration("pause", pause.Round(time.Second)),
		)
		if err := p.sleep(ctx, pause); err != nil {
			return err
		}
	}
	return nil
}

// uniform 於 [lo, hi] 取均勻分布
func (p *Pacer) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(p.randFloat()*float64(hi-lo))
}

// sleepContext 可被取消的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
