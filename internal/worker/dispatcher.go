// internal/worker/dispatcher.go
// 發送引擎 - 依序處理待寄收件人：選帳號、發送 (斷線時重連重試一次)、記錄結果、控制節奏

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"bulk-mailer/internal/models"
	"bulk-mailer/internal/services"
)

// NamePlaceholder 主旨與內文中的收件人名稱佔位字串
const NamePlaceholder = "{name}"

// AccountPool 發送引擎需要的帳號池操作
type AccountPool interface {
	Select() (*services.Account, bool)
	Reconnect(ctx context.Context, name string) (*services.Account, error)
}

// QuotaRecorder 發送成功後記錄配額
type QuotaRecorder interface {
	RecordSend(ctx context.Context, name string) error
}

// Options 發送引擎設定
type Options struct {
	SubjectTemplate string
	BodyTemplate    string
	SendTimeout     time.Duration
	Pacing          PacingOptions
}

// Dispatcher 發送引擎
// 單一 goroutine 依序發送，同一時間只有一封郵件在傳輸中
type Dispatcher struct {
	pool       AccountPool
	quota      QuotaRecorder
	ledger     services.DeliveryLedger
	classifier *services.TransientClassifier
	publisher  services.EventPublisher
	progress   *Progress
	pacer      *Pacer
	logger     *slog.Logger
	opts       Options
}

// NewDispatcher 建立發送引擎
func NewDispatcher(
	pool AccountPool,
	quota QuotaRecorder,
	ledger services.DeliveryLedger,
	classifier *services.TransientClassifier,
	publisher services.EventPublisher,
	progress *Progress,
	logger *slog.Logger,
	opts Options,
) *Dispatcher {
	if classifier == nil {
		classifier = services.NewTransientClassifier()
	}
	if publisher == nil {
		publisher = services.NoopPublisher{}
	}
	if progress == nil {
		progress = NewProgress()
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 2 * time.Minute
	}
	return &Dispatcher{
		pool:       pool,
		quota:      quota,
		ledger:     ledger,
		classifier: classifier,
		publisher:  publisher,
		progress:   progress,
		pacer:      NewPacer(opts.Pacing, logger),
		logger:     logger,
		opts:       opts,
	}
}

// Run 發送所有尚未成功的收件人
// 額度用盡與中斷都不是錯誤；只有帳本或配額寫入失敗會回傳錯誤
func (d *Dispatcher) Run(ctx context.Context, recipients []models.Recipient) (models.RunSummary, error) {
	summary := models.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}

	sent, err := d.ledger.AlreadySent(ctx)
	if err != nil {
		return summary, fmt.Errorf("compute pending set: %w", err)
	}

	pending := make([]models.Recipient, 0, len(recipients))
	for _, r := range recipients {
		if _, done := sent[r.Email]; done {
			summary.AlreadySent++
			continue
		}
		pending = append(pending, r)
	}
	summary.Pending = len(pending)

	d.logger.Info("dispatch started",
		slog.String("run_id", summary.RunID),
		slog.Int("recipients", len(recipients)),
		slog.Int("already_sent", summary.AlreadySent),
		slog.Int("pending", summary.Pending),
	)
	d.progress.Start(summary)
	defer func() { d.progress.Finish(summary) }()

	for i, r := range pending {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}

		acc, ok := d.pool.Select()
		if !ok {
			summary.Exhausted = true
			summary.Skipped = len(pending) - i
			break
		}

		rec, err := d.deliver(ctx, acc, r)
		if err != nil {
			return summary, err
		}

		switch rec.Status {
		case models.DeliveryStatusSent:
			summary.Sent++
		default:
			summary.Failed++
		}
		summary.LastEmail = rec.Email
		summary.LastAccount = rec.AccountUsed
		summary.LastOutcome = string(rec.Status)
		d.progress.Update(summary)
		d.publish(ctx, summary.RunID, rec)

		d.logger.Info("recipient processed",
			slog.String("progress", fmt.Sprintf("%d/%d", i+1, len(pending))),
			slog.String("email", rec.Email),
			slog.String("account", rec.AccountUsed),
			slog.String("status", string(rec.Status)),
			slog.String("detail", rec.Detail),
		)

		// 最後一位、已無額度或已要求停止時不需等待
		if i == len(pending)-1 || ctx.Err() != nil {
			continue
		}
		if _, ok := d.pool.Select(); !ok {
			continue
		}
		if err := d.pacer.Wait(ctx); err != nil {
			summary.Interrupted = true
			break
		}
	}

	d.logSummary(summary)
	return summary, nil
}

// deliver 發送單一收件人並寫入配額與帳本
// 停止要求不會中斷進行中的發送與紀錄
func (d *Dispatcher) deliver(ctx context.Context, acc *services.Account, r models.Recipient) (models.DeliveryRecord, error) {
	durable := context.WithoutCancel(ctx)

	rec := models.DeliveryRecord{
		Email:       r.Email,
		Name:        r.Name,
		AccountUsed: acc.Address,
	}

	mail := &models.OutgoingMail{
		From:           acc.Address,
		To:             r.Email,
		ToName:         r.Name,
		Subject:        render(d.opts.SubjectTemplate, r.Name),
		Body:           render(d.opts.BodyTemplate, r.Name),
		AttachmentPath: r.AttachmentPath,
	}

	messageID, sendErr := d.send(durable, acc, mail)

	rec.Timestamp = time.Now()
	if sendErr == nil {
		if err := d.quota.RecordSend(durable, acc.Name); err != nil {
			return rec, fmt.Errorf("record quota for %s: %w", r.Email, err)
		}
		rec.Status = models.DeliveryStatusSent
		rec.Detail = messageID
	} else {
		rec.Status = models.DeliveryStatusFailed
		rec.Detail = sendErr.Error()
	}

	if err := d.ledger.Append(durable, rec); err != nil {
		return rec, fmt.Errorf("append ledger for %s: %w", r.Email, err)
	}
	return rec, nil
}

// send 檢查附件後發送；暫時性錯誤時重新連線並重試一次
func (d *Dispatcher) send(ctx context.Context, acc *services.Account, mail *models.OutgoingMail) (string, error) {
	if err := checkAttachment(mail.AttachmentPath); err != nil {
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer cancel()

	messageID, err := acc.Transport.Send(sendCtx, mail)
	if err == nil || !d.classifier.IsTransient(err) {
		return messageID, err
	}

	d.logger.Warn("transient send error, reconnecting",
		slog.String("account", acc.Name),
		slog.String("email", mail.To),
		slog.String("error", err.Error()),
	)

	reconnected, rerr := d.pool.Reconnect(sendCtx, acc.Name)
	if rerr != nil {
		return "", rerr
	}

	retryCtx, retryCancel := context.WithTimeout(ctx, d.opts.SendTimeout)
	defer retryCancel()
	return reconnected.Transport.Send(retryCtx, mail)
}

// publish 發布投遞事件，失敗只記錄
func (d *Dispatcher) publish(ctx context.Context, runID string, rec models.DeliveryRecord) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := d.publisher.Publish(pubCtx, models.NewDeliveryEvent(runID, rec)); err != nil {
		d.logger.Warn("failed to publish delivery event",
			slog.String("email", rec.Email),
			slog.String("error", err.Error()),
		)
	}
}

func (d *Dispatcher) logSummary(s models.RunSummary) {
	d.logger.Info("dispatch finished",
		slog.String("run_id", s.RunID),
		slog.Int("sent", s.Sent),
		slog.Int("failed", s.Failed),
		slog.Int("skipped", s.Skipped),
		slog.Int("remaining", s.Remaining()),
		slog.Int("already_sent", s.AlreadySent),
		slog.Bool("interrupted", s.Interrupted),
		slog.Duration("elapsed", time.Since(s.StartedAt).Round(time.Second)),
	)
	if s.Exhausted {
		d.logger.Warn("all accounts have reached today's limit; re-run tomorrow to continue",
			slog.Int("skipped", s.Skipped),
		)
	}
}

// render 替換名稱佔位字串
func render(template, name string) string {
	return strings.ReplaceAll(template, NamePlaceholder, name)
}

// checkAttachment 附件不存在時回傳 ErrMissingAttachment
func checkAttachment(path string) error {
	if path == "" {
		return fmt.Errorf("%w: no attachment path", services.ErrMissingAttachment)
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", services.ErrMissingAttachment, path)
		}
		return fmt.Errorf("attachment %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", services.ErrMissingAttachment, path)
	}
	return nil
}
