// cmd/dispatcher/app.go
// 組裝發送作業所需的元件

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bulk-mailer/internal/api/routes"
	"bulk-mailer/internal/config"
	"bulk-mailer/internal/services"
	"bulk-mailer/internal/worker"
)

// app 跨多次執行共用的元件
// 帳號池與帳本每次執行重新建立，配額每次執行開始時重新載入
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	enc        *services.EncryptionService
	quotaStore services.QuotaStore
	tracker    *services.AccountQuotaTracker
	classifier *services.TransientClassifier
	publisher  services.EventPublisher
	progress   *worker.Progress
	status     *http.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:        cfg,
		logger:     logger,
		classifier: services.NewTransientClassifier(cfg.TransientErrors...),
		publisher:  services.NoopPublisher{},
		progress:   worker.NewProgress(),
	}

	if cfg.EncryptionKey != "" {
		enc, err := services.NewEncryptionService(cfg.EncryptionKey)
		if err != nil {
			return nil, err
		}
		a.enc = enc
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// 初始化配額儲存
	switch cfg.QuotaStore {
	case config.QuotaStoreRedis:
		logger.Info("connecting to Redis quota store", slog.String("addr", cfg.RedisAddr))
		store, err := services.NewRedisQuotaStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.QuotaRedisKey)
		if err != nil {
			return nil, err
		}
		a.quotaStore = store
	default:
		a.quotaStore = services.NewFileQuotaStore(cfg.QuotaPath)
	}
	a.tracker = services.NewAccountQuotaTracker(a.quotaStore, cfg.DailyLimitPerAccount, loc)

	// 投遞事件僅供下游參考，連線失敗不影響發送
	if cfg.RabbitMQURL != "" {
		publisher, err := services.NewQueuePublisher(cfg.RabbitMQURL, cfg.DeliveryEventsQueue)
		if err != nil {
			logger.Warn("delivery events disabled", slog.String("error", err.Error()))
		} else {
			a.publisher = publisher
			logger.Info("publishing delivery events", slog.String("queue", cfg.DeliveryEventsQueue))
		}
	}

	if cfg.StatusPort != "" {
		a.startStatusServer()
	}

	return a, nil
}

// startStatusServer 啟動唯讀的進度 API
func (a *app) startStatusServer() {
	if a.cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	routes.RegisterRoutes(router, &routes.Dependencies{
		Version:   version,
		JWTSecret: a.cfg.StatusJWTSecret,
		Progress:  a.progress,
		Quota:     a.tracker,
	})

	a.status = &http.Server{
		Addr:              ":" + a.cfg.StatusPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		a.logger.Info("status API listening", slog.String("port", a.cfg.StatusPort))
		if err := a.status.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("status API stopped", slog.String("error", err.Error()))
		}
	}()

	if a.cfg.StatusJWTSecret == "" {
		a.logger.Warn("status API has no STATUS_JWT_SECRET; progress is readable without a token")
	}
}

// RunOnce 執行一次完整的發送作業
// 中斷與額度用盡皆視為正常結束
func (a *app) RunOnce(ctx context.Context) error {
	cfg := a.cfg

	if err := a.tracker.Load(ctx); err != nil {
		return err
	}

	creds, err := services.LoadCredentials(cfg.AccountsFile, a.enc)
	if err != nil {
		return err
	}

	recipients, err := services.LoadRecipients(cfg.RecipientsCSV)
	if err != nil {
		return err
	}

	ledger, err := services.OpenLedger(cfg.LedgerPath, cfg.LedgerDSN, cfg.LogLevel == "debug")
	if err != nil {
		return err
	}
	defer func() {
		if err := ledger.Close(); err != nil {
			a.logger.Warn("failed to close ledger", slog.String("error", err.Error()))
		}
	}()

	a.logger.Info("logging in sender accounts", slog.Int("accounts", len(creds)))
	pool, err := services.NewAccountPool(ctx, creds, services.NewProviderDialer(), a.tracker, cfg.LoginConcurrency, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.CloseAll(); err != nil {
			a.logger.Warn("failed to close sender connections", slog.String("error", err.Error()))
		}
	}()

	dispatcher := worker.NewDispatcher(pool, a.tracker, ledger, a.classifier, a.publisher, a.progress, a.logger, worker.Options{
		SubjectTemplate: cfg.SubjectTemplate,
		BodyTemplate:    cfg.BodyTemplate,
		SendTimeout:     cfg.SendTimeout(),
		Pacing: worker.PacingOptions{
			MinDelay:     cfg.MinDelay(),
			MaxDelay:     cfg.MaxDelay(),
			SessionSize:  cfg.SessionSize,
			LongPauseMin: cfg.LongPauseMin(),
			LongPauseMax: cfg.LongPauseMax(),
		},
	})

	if _, err := dispatcher.Run(ctx, recipients); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return nil
}

// Close 釋放跨執行共用的資源
func (a *app) Close() {
	if a.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.status.Shutdown(ctx); err != nil {
			a.logger.Warn("status API forced to shutdown", slog.String("error", err.Error()))
		}
	}
	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("failed to close event publisher", slog.String("error", err.Error()))
	}
	if closer, ok := a.quotaStore.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			a.logger.Warn("failed to close quota store", slog.String("error", err.Error()))
		}
	}
}
