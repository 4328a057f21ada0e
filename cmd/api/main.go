package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/checkfox/go_lead_adapter/internal/config"
	"github.com/checkfox/go_lead_adapter/internal/database"
	"github.com/checkfox/go_lead_adapter/internal/dedup"
	"github.com/checkfox/go_lead_adapter/internal/handlers"
	"github.com/checkfox/go_lead_adapter/internal/logger"
	"github.com/checkfox/go_lead_adapter/internal/queue"
	"github.com/checkfox/go_lead_adapter/internal/repository"
	"github.com/checkfox/go_lead_adapter/internal/services"
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

	logger.Info(ctx, "API Server starting",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
		"auth_enabled", cfg.Auth.Enabled,
		"queue_type", cfg.Queue.Type,
		"status_dedup", cfg.Dedup.Enabled)

	db, err := database.InitFromConfig(ctx, cfg)
	if err != nil {
		fatal(ctx, "Failed to connect to database", err)
	}
	defer db.Close()

	if err := database.RunMigrations(ctx, db); err != nil {
		fatal(ctx, "Failed to run migrations", err)
	}
	logger.Info(ctx, "Database migrations completed")

	var rdb *redis.Client
	if cfg.Queue.Type == queue.TypeRedis || cfg.Dedup.Enabled {
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

	leadRepo := repository.NewLeadRepository(db.DB)
	deliveryAttemptRepo := repository.NewDeliveryAttemptRepository(db.DB)
	statusRepo := repository.NewMessageStatusRepository(db.DB, services.MergeRecipientStatus)

	var statusDedup handlers.Deduplicator
	if cfg.Dedup.Enabled {
		filter := dedup.NewFilter(rdb, cfg.Dedup.TTL)
		logger.Info(ctx, "Status callback deduplication enabled", "ttl", filter.TTL())
		statusDedup = filter
	}

	router := handlers.NewRouter(cfg, handlers.Routes{
		Webhook: handlers.NewWebhookHandler(leadRepo, jobQueue),
		Status:  handlers.NewStatusHandler(statusRepo, leadRepo, statusDedup),
		Stats:   handlers.NewStatsHandler(leadRepo, deliveryAttemptRepo, statusRepo, jobQueue),
		Health: handlers.NewHealthHandler(map[string]handlers.HealthChecker{
			"database":   db,
			"migrations": database.NewMigrationCheck(db, database.EmbeddedMigrations()),
			"queue":      jobQueue,
		}),
	})

	addr := fmt.Sprintf("%s:%s", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info(ctx, "HTTP server listening", "address", addr)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		fatal(ctx, "Server error", err)

	case sig := <-sigChan:
		logger.Info(ctx, "Received shutdown signal", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.LogError(ctx, "Server shutdown error", err)
			server.Close()
		}

		logger.Info(ctx, "Server shutdown complete")
	}
}
