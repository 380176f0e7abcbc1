package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roster-sync/internal/config"
	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/handler"
	"github.com/roster-sync/internal/kafka"
	"github.com/roster-sync/internal/postgres"
	"github.com/roster-sync/internal/push"
	"github.com/roster-sync/internal/redis"
	"github.com/roster-sync/internal/remote"
	"github.com/roster-sync/internal/service"
	"github.com/roster-sync/internal/store"
	"github.com/roster-sync/internal/websocket"
	"github.com/roster-sync/internal/worker"
)

// teamSyncer is what the service and the handler need from the sync manager
type teamSyncer interface {
	service.TeamSync
	handler.SyncState
}

// offlineSync stands in for the sync manager when syncing is disabled
type offlineSync struct{}

func (offlineSync) Start(context.Context, string) error { return nil }
func (offlineSync) Stop() error                         { return nil }
func (offlineSync) TeamID() string                      { return "" }
func (offlineSync) IsRunning() bool                     { return false }

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Warn("failed to load config file, using defaults", "error", err)
		cfg = config.DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Remote data service
	var (
		rw       remote.ReadWriter
		feed     remote.ChangeFeed
		listener *postgres.Listener
		consumer *kafka.Consumer
	)
	switch cfg.Remote.Driver {
	case config.DriverMemory:
		mem := remote.NewMemory()
		rw, feed = mem, mem
		logger.Info("using in-memory remote")
	default:
		logger.Info("connecting to PostgreSQL", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		pool, err := postgres.Connect(ctx, &cfg.Postgres)
		if err != nil {
			logger.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		repo := postgres.NewRepository(pool, cfg.Remote.NotifyChannel, logger)
		defer repo.Close()
		logger.Info("connected to PostgreSQL")

		if cfg.Remote.Migrate {
			if err := repo.RunMigrations(ctx); err != nil {
				logger.Error("failed to run migrations", "error", err)
				os.Exit(1)
			}
		}
		rw = repo

		if cfg.Remote.ChangeFeed == config.FeedPostgres {
			listener = postgres.NewListener(pool, repo, cfg.Remote.NotifyChannel, cfg.Sync.EventBuffer, cfg.Remote.ReconnectDelay, logger)
			if err := listener.Start(ctx); err != nil {
				logger.Error("failed to start change listener", "error", err)
				os.Exit(1)
			}
			feed = listener
		}
	}

	if cfg.Remote.ChangeFeed == config.FeedKafka {
		// Every device reads the whole topic, so each needs its own group
		kafkaCfg := cfg.Kafka
		kafkaCfg.GroupID = cfg.Kafka.GroupID + "-" + cfg.Snapshot.DeviceID
		logger.Info("initializing Kafka consumer",
			"brokers", kafkaCfg.Brokers,
			"topic", kafkaCfg.Topic,
			"group_id", kafkaCfg.GroupID,
		)
		consumer, err = kafka.NewConsumer(&kafkaCfg, cfg.Sync.EventBuffer, logger)
		if err != nil {
			logger.Error("failed to create Kafka consumer", "error", err)
			os.Exit(1)
		}
		startCtx, startCancel := context.WithTimeout(ctx, 30*time.Second)
		err = consumer.Start(startCtx)
		startCancel()
		if err != nil {
			logger.Warn("Kafka consumer not ready, continuing", "error", err)
		}
		feed = consumer
	}
	svc := remote.Combine(rw, feed)

	// Local store and write-through queue
	st := store.New(store.WithLogger(logger))
	pusher := push.NewPusher(svc, &cfg.Push, logger)

	// Snapshot persistence
	var persist *worker.PersistWorker
	if cfg.Snapshot.Enabled {
		logger.Info("connecting to Redis", "addr", cfg.Redis.Addr)
		client, err := redis.NewClient(&cfg.Redis)
		if err != nil {
			logger.Warn("failed to connect to Redis, running without snapshots", "error", err)
		} else {
			snapshots := redis.NewSnapshotStore(client, cfg.Snapshot.DeviceID, cfg.Snapshot.TTL, logger)
			defer snapshots.Close()
			persist = worker.NewPersistWorker(st, snapshots, &cfg.Snapshot, logger)
			if err := persist.Restore(ctx); err != nil {
				logger.Warn("failed to restore snapshot", "error", err)
			}
		}
	}

	// Workers
	var (
		teamSync teamSyncer = offlineSync{}
		manager  *worker.SyncManager
	)
	if cfg.Sync.Enabled {
		manager = worker.NewSyncManager(svc, st, &cfg.Sync, logger)
		teamSync = manager
	}
	releases := worker.NewReleaseWorker(st, pusher, &cfg.Release, logger)
	rosterService := service.NewRosterService(st, pusher, teamSync, releases, logger)

	if err := pusher.Start(ctx); err != nil {
		logger.Error("failed to start pusher", "error", err)
		os.Exit(1)
	}
	if cfg.Release.Enabled {
		if err := releases.Start(ctx); err != nil {
			logger.Error("failed to start release worker", "error", err)
			os.Exit(1)
		}
	}
	if persist != nil {
		if err := persist.Start(ctx); err != nil {
			logger.Error("failed to start persist worker", "error", err)
			os.Exit(1)
		}
	}

	// Session bootstrap
	if err := bootstrapSession(ctx, rosterService, cfg.Session); err != nil {
		logger.Warn("session bootstrap incomplete, serving cached data", "error", err)
	}

	// WebSocket hub follows the store
	wsHub := websocket.NewHub(logger)
	unwatch := wsHub.Watch(st)
	go wsHub.Run()
	logger.Info("WebSocket hub initialized")

	httpHandler := handler.NewHandler(rosterService, wsHub, pusher, teamSync, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", "error", err)
	}

	unwatch()
	wsHub.Stop()

	if manager != nil {
		if err := manager.Stop(); err != nil {
			logger.Error("failed to stop sync manager", "error", err)
		}
	}
	if err := releases.Stop(); err != nil {
		logger.Error("failed to stop release worker", "error", err)
	}

	// Drain queued writes before the feed goes away
	if err := pusher.Flush(shutdownCtx); err != nil {
		logger.Warn("pending remote writes not flushed", "error", err)
	}
	if err := pusher.Stop(); err != nil {
		logger.Error("failed to stop pusher", "error", err)
	}

	// Persist the final state
	if persist != nil {
		if err := persist.RunOnce(shutdownCtx); err != nil {
			logger.Error("failed to save final snapshot", "error", err)
		}
		if err := persist.Stop(); err != nil {
			logger.Error("failed to stop persist worker", "error", err)
		}
	}

	if consumer != nil {
		if err := consumer.Stop(); err != nil {
			logger.Error("failed to stop Kafka consumer", "error", err)
		}
	}
	if listener != nil {
		if err := listener.Stop(); err != nil {
			logger.Error("failed to stop change listener", "error", err)
		}
	}

	logger.Info("server stopped")
}

// bootstrapSession signs in the configured identity when the restored
// snapshot has none, then switches to the configured team
func bootstrapSession(ctx context.Context, svc *service.RosterService, cfg config.SessionConfig) error {
	if !svc.Store().Session().LoggedIn {
		if cfg.Email == "" && cfg.Phone == "" {
			return nil
		}
		if err := svc.SignIn(ctx, domain.Session{Email: cfg.Email, Phone: cfg.Phone}); err != nil {
			return err
		}
	}
	teamID := cfg.TeamID
	if teamID == "" {
		teamID = svc.Store().ActiveTeamID()
	}
	if teamID == "" {
		return nil
	}
	return svc.SwitchTeam(ctx, teamID)
}
