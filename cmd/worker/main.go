package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-payments/internal/common"
	"github.com/noah-isme/backend-payments/internal/config"
	"github.com/noah-isme/backend-payments/internal/obs"
	"github.com/noah-isme/backend-payments/internal/tasks"
)

func main() {
	cfg := config.MustLoad()
	logger := obs.NewLogger(envOrDefault("LOG_FORMAT", "json"), envOrDefault("LOG_LEVEL", "info"))

	obs.MustRegisterDomainMetrics("payments", nil)

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{"default": 1},
		Logger:      asynqLogger{logger: logger},
	})

	receipts := &tasks.ReceiptHandler{
		Mail:   mailSender(),
		To:     envOrDefault("RECEIPT_EMAIL_TO", "billing@example.com"),
		Logger: logger,
	}

	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeReceiptEmail, receipts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info().Msg("worker shutting down")
		srv.Shutdown()
	}()

	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("payments worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped")
	}
}

// mailSender returns the configured email backend.
// TODO: wire a real SMTP sender once the provider account exists.
func mailSender() common.EmailSender {
	return common.NopEmailSender{}
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// asynqLogger adapts zerolog to the queue server's logger interface.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...interface{}) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
