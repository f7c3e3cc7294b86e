// cmd/smtp-sink/main.go
// 本機 SMTP 收件端入口程式
// 接收發送程式寄出的郵件並存檔，供演練與測試使用

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"bulk-mailer/internal/config"
	"bulk-mailer/internal/logger"
	"bulk-mailer/internal/smtp"
)

func main() {
	// 載入設定
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Format:      cfg.LogFormat,
		Level:       cfg.LogLevel,
		SentryDSN:   cfg.SentryDSN,
		Environment: cfg.Env,
	})
	defer sentry.Flush(2 * time.Second)

	log.Info("========================================")
	log.Info("    Bulk Mailer - SMTP Sink")
	log.Info("========================================")

	// 建立 SMTP 伺服器
	server := smtp.NewServer(smtp.Options{
		Addr:           ":" + cfg.SinkPort,
		Dir:            cfg.SinkDir,
		MaxMessageSize: int64(cfg.SinkMaxMessageSize) * 1024 * 1024,
		Users:          cfg.SinkUsers,
	}, log)

	// 啟動 SMTP 伺服器（非同步）
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	log.Info("SMTP sink started",
		slog.String("port", cfg.SinkPort),
		slog.String("dir", cfg.SinkDir),
		slog.Bool("auth_required", len(cfg.SinkUsers) > 0),
	)

	// 等待中斷信號
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-errCh:
		if err != nil {
			log.Error("SMTP sink failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	log.Info("shutting down SMTP sink...")

	// 優雅關機
	if err := server.Shutdown(); err != nil {
		log.Warn("error while shutting down SMTP sink", slog.String("error", err.Error()))
	}

	log.Info("SMTP sink stopped", slog.Int("received", len(server.Store().Received())))
}
