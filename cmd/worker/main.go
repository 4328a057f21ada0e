package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/checkfox/go_lead_adapter/internal/client"
	"github.com/checkfox/go_lead_adapter/internal/config"
	"github.com/checkfox/go_lead_adapter/internal/database"
	"github.com/checkfox/go_lead_adapter/internal/logger"
	"github.com/checkfox/go_lead_adapter/internal/queue"
	"github.com/checkfox/go_lead_adapter/internal/repository"
	"github.com/checkfox/go_lead_adapter/internal/services"
	"github.com/checkfox/go_lead_adapter/internal/worker"
)

func fatal(ctx context.Context, msg string, err error) {
	logger.LogError(ctx, msg, err)
	os.Exit(1)
}

func main() {
	logger.Init()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fatal(ctx, "Failed to load configuration", err)
	}
	logger.Configure(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info(ctx, "Worker starting",
		"poll_interval", cfg.Worker.PollInterval,
		"concurrency", cfg.Worker.Concurrency,
		"max_retry_attempts", cfg.Retry.MaxAttempts,
		"queue_type", cfg.Queue.Type)

	db, err := database.InitFromConfig(ctx, cfg)
	if err != nil {
		fatal(ctx, "Failed to connect to database", err)
	}
	defer db.Close()

	// the API applies migrations too; running them here lets either start first
	if err := database.RunMigrations(ctx, db); err != nil {
		fatal(ctx, "Failed to run migrations", err)
	}

	var rdb *redis.Client
	if cfg.Queue.Type == queue.TypeRedis {
		rdb, err = queue.OpenRedis(ctx, cfg.Queue.RedisURL)
		if err != nil {
			fatal(ctx, "Failed to connect to Redis", err)
		}
		defer rdb.Close()
	}

	jobQueue, err := queue.Open(cfg.Queue, db.DB, rdb)
	if err != nil {
		fatal(ctx, "Failed to initialize queue", err)
	}
	defer jobQueue.Close()

	extractor, err := services.NewExtractorFromConfig(cfg.Extraction)
	if err != nil {
		fatal(ctx, "Invalid extraction settings", err)
	}

	recordStore := client.NewRecordStoreClient(
		client.NewBearerHTTPClient(ctx, cfg.RecordStore.Token, cfg.RecordStore.Timeout),
		cfg.RecordStore.URL,
		cfg.RecordStore.BoardID,
	)
	messaging := client.NewMessagingClient(
		client.NewBearerHTTPClient(ctx, cfg.Messaging.Token, cfg.Messaging.Timeout),
		cfg.Messaging.URL,
	)

	backoffDelays := worker.DefaultBackoffDelays(cfg.Retry.BackoffBase, cfg.Retry.MaxAttempts)
	logger.Info(ctx, "Retry configuration",
		"max_attempts", cfg.Retry.MaxAttempts,
		"backoff_base", cfg.Retry.BackoffBase,
		"backoff_delays", backoffDelays,
		"name_policy", extractor.NamePolicy())

	processor := worker.NewProcessor(worker.ProcessorConfig{
		Queue:               jobQueue,
		LeadRepo:            repository.NewLeadRepository(db.DB),
		DeliveryAttemptRepo: repository.NewDeliveryAttemptRepository(db.DB),
		StatusRepo:          repository.NewMessageStatusRepository(db.DB, services.MergeRecipientStatus),
		Extractor:           extractor,
		Mapper:              services.NewMessageMapper(cfg),
		Fetcher:             recordStore,
		Sender:              messaging,
		PollInterval:        cfg.Worker.PollInterval,
		Concurrency:         cfg.Worker.Concurrency,
		MaxAttempts:         cfg.Retry.MaxAttempts,
		BackoffDelays:       backoffDelays,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- processor.Start(workerCtx)
	}()

	logger.Info(ctx, "Worker started successfully",
		"record_store", recordStore.String(),
		"messaging", messaging.String())

	select {
	case err := <-workerErrors:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.LogError(ctx, "Worker error", err)
		}

	case sig := <-sigChan:
		logger.Info(ctx, "Received shutdown signal", "signal", sig.String())
		cancel()

		shutdownTimeout := time.NewTimer(30 * time.Second)
		defer shutdownTimeout.Stop()

		select {
		case <-workerErrors:
			logger.Info(ctx, "Worker stopped gracefully")
		case <-shutdownTimeout.C:
			logger.Warn(ctx, "Worker shutdown timeout exceeded, forcing exit")
		}
	}

	logger.Info(ctx, "Worker shutdown complete")
}
