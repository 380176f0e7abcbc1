// Command change-relay republishes the database change feed of every team
// to the Kafka change topic, for devices configured with the kafka feed.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roster-sync/internal/config"
	"github.com/roster-sync/internal/kafka"
	"github.com/roster-sync/internal/postgres"
	"github.com/roster-sync/internal/remote"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	statsEvery := flag.Duration("stats", 30*time.Second, "Interval between throughput log lines")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := postgres.Connect(ctx, &cfg.Postgres)
	if err != nil {
		logger.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	repo := postgres.NewRepository(pool, cfg.Remote.NotifyChannel, logger)
	defer repo.Close()

	publisher, err := kafka.NewPublisher(&cfg.Kafka, logger)
	if err != nil {
		logger.Error("failed to create Kafka producer", "error", err)
		os.Exit(1)
	}

	listener := postgres.NewListener(pool, repo, cfg.Remote.NotifyChannel, cfg.Sync.EventBuffer, cfg.Remote.ReconnectDelay, logger)
	sub, err := listener.Subscribe(ctx, "", remote.AllTables)
	if err != nil {
		logger.Error("failed to subscribe to changes", "error", err)
		os.Exit(1)
	}
	if err := listener.Start(ctx); err != nil {
		logger.Error("failed to start change listener", "error", err)
		os.Exit(1)
	}

	logger.Info("relaying changes",
		"channel", cfg.Remote.NotifyChannel,
		"brokers", cfg.Kafka.Brokers,
		"topic", cfg.Kafka.Topic,
	)

	go func() {
		ticker := time.NewTicker(*statsEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				succeeded, failed := publisher.Counts()
				logger.Info("relay stats", "published", succeeded, "failed", failed)
			}
		}
	}()

	n, err := publisher.Forward(ctx, sub)
	if err != nil && ctx.Err() == nil {
		logger.Error("relay stopped", "error", err)
	}

	logger.Info("shutting down relay...", "forwarded", n)
	if err := listener.Stop(); err != nil {
		logger.Error("failed to stop change listener", "error", err)
	}
	if err := publisher.Close(); err != nil {
		logger.Error("failed to close Kafka producer", "error", err)
	}
	succeeded, failed := publisher.Counts()
	logger.Info("relay stopped", "published", succeeded, "failed", failed)
}
