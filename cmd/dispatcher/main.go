// cmd/dispatcher/main.go
// 大量寄信程式入口
// 預設執行一次後結束；指定 -schedule 時依 cron 排程重複執行

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"

	"bulk-mailer/internal/api/middlewares"
	"bulk-mailer/internal/api/routes"
	"bulk-mailer/internal/config"
	"bulk-mailer/internal/logger"
	"bulk-mailer/internal/services"
)

// version 由 -ldflags "-X main.version=..." 注入
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	schedule := flag.String("schedule", "", "cron expression (5 fields); run repeatedly instead of once")
	encryptSecret := flag.String("encrypt-secret", "", "print the sealed form of a secret for the accounts file and exit")
	issueToken := flag.String("issue-token", "", "print a status API token for the given subject and exit")
	flag.Parse()

	// 載入設定
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	log := logger.New(logger.Options{
		Format:      cfg.LogFormat,
		Level:       cfg.LogLevel,
		SentryDSN:   cfg.SentryDSN,
		Environment: cfg.Env,
	})
	defer sentry.Flush(2 * time.Second)

	if err := cfg.Validate(); err != nil {
		log.Error("configuration rejected", slog.String("error", err.Error()))
		return 1
	}

	switch {
	case *encryptSecret != "":
		return printSealed(cfg, *encryptSecret)
	case *issueToken != "":
		return printToken(cfg, *issueToken)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Error("failed to start", slog.String("error", err.Error()))
		return 1
	}
	defer a.Close()

	if *schedule == "" {
		if err := a.RunOnce(ctx); err != nil {
			reportRunError(log, err)
			return 1
		}
		return 0
	}

	if err := runScheduled(ctx, a, *schedule, log); err != nil {
		log.Error("scheduler stopped", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

// runScheduled 立即執行一次，之後依排程執行直到收到中斷信號
// 上一次尚未結束時跳過該次排程
func runScheduled(ctx context.Context, a *app, expr string, log *slog.Logger) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return fmt.Errorf("invalid -schedule %q: %w", expr, err)
	}

	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		if err := a.RunOnce(ctx); err != nil {
			reportRunError(log, err)
		}
		log.Info("next scheduled run", slog.Time("at", sched.Next(time.Now())))
	}))

	c := cron.New()
	c.Schedule(sched, job)

	var first sync.WaitGroup
	first.Add(1)
	go func() {
		defer first.Done()
		job.Run()
	}()
	c.Start()
	log.Info("scheduler started", slog.String("schedule", expr))

	<-ctx.Done()
	log.Info("shutting down scheduler...")
	<-c.Stop().Done()
	first.Wait()
	return nil
}

func reportRunError(log *slog.Logger, err error) {
	switch {
	case errors.Is(err, services.ErrCredentialsTemplateCreated):
		log.Error("accounts file was missing; a template was written, fill it in and run again",
			slog.String("error", err.Error()))
	case errors.Is(err, services.ErrNoAccounts):
		log.Error("no sender account could log in", slog.String("error", err.Error()))
	default:
		log.Error("dispatch aborted", slog.String("error", err.Error()))
	}
}

func printSealed(cfg *config.Config, secret string) int {
	enc, err := services.NewEncryptionService(cfg.EncryptionKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ENCRYPTION_KEY: %v\n", err)
		return 1
	}
	sealed, err := enc.Seal(secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seal: %v\n", err)
		return 1
	}
	fmt.Println(sealed)
	return 0
}

func printToken(cfg *config.Config, subject string) int {
	if cfg.StatusJWTSecret == "" {
		fmt.Fprintln(os.Stderr, "STATUS_JWT_SECRET is not set")
		return 1
	}
	token, err := middlewares.IssueToken(cfg.StatusJWTSecret, subject, []string{routes.PermissionProgressRead}, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}
