package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roster-sync/internal/config"
	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/store"
)

// ReleasePusher writes released games, events and invitations through
type ReleasePusher interface {
	PushGame(g domain.Game)
	PushEvent(e domain.Event)
	PushNotifications(ns ...domain.AppNotification)
}

// ReleaseWorker periodically sends the invitations of scheduled games and
// events whose release time has passed
type ReleaseWorker struct {
	store   *store.Store
	pusher  ReleasePusher
	config  *config.ReleaseConfig
	logger  *slog.Logger
	now     func() time.Time
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewReleaseWorker creates a new release worker
func NewReleaseWorker(
	st *store.Store,
	pusher ReleasePusher,
	cfg *config.ReleaseConfig,
	logger *slog.Logger,
) *ReleaseWorker {
	return &ReleaseWorker{
		store:  st,
		pusher: pusher,
		config: cfg,
		logger: logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins the periodic release check
func (w *ReleaseWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("release worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop stops the periodic release check
func (w *ReleaseWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("release worker stopped")
	return nil
}

// IsRunning returns whether the worker is running
func (w *ReleaseWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *ReleaseWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	// Check once on start so releases that fell due while the app was
	// closed go out immediately.
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single release check
func (w *ReleaseWorker) RunOnce(ctx context.Context) store.ReleaseResult {
	res := w.store.ReleaseScheduledInvites(w.now())
	if res.Empty() {
		return res
	}
	for _, g := range res.Games {
		w.pusher.PushGame(g)
	}
	for _, e := range res.Events {
		w.pusher.PushEvent(e)
	}
	w.pusher.PushNotifications(res.Notifications...)

	w.logger.Info("released scheduled invites",
		"games", len(res.Games),
		"events", len(res.Events),
		"notifications", len(res.Notifications),
	)
	return res
}
