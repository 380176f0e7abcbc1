package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roster-sync/internal/config"
	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/store"
)

// SnapshotStore persists the encoded local store
type SnapshotStore interface {
	Save(ctx context.Context, data []byte, version uint64) error
	Load(ctx context.Context) ([]byte, error)
}

// PersistWorker periodically writes the local store to the snapshot store
// when it changed since the last write
type PersistWorker struct {
	store     *store.Store
	snapshots SnapshotStore
	config    *config.SnapshotConfig
	logger    *slog.Logger
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
	saved     uint64
}

// NewPersistWorker creates a new persist worker
func NewPersistWorker(
	st *store.Store,
	snapshots SnapshotStore,
	cfg *config.SnapshotConfig,
	logger *slog.Logger,
) *PersistWorker {
	return &PersistWorker{
		store:     st,
		snapshots: snapshots,
		config:    cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Restore loads the persisted snapshot into the store. A missing snapshot
// leaves the store empty.
func (w *PersistWorker) Restore(ctx context.Context) error {
	data, err := w.snapshots.Load(ctx)
	if errors.Is(err, domain.ErrSnapshotNotFound) {
		w.logger.Info("no snapshot found, starting empty")
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	if err := w.store.RestoreSnapshot(data); err != nil {
		return fmt.Errorf("restoring snapshot: %w", err)
	}

	w.mu.Lock()
	w.saved = w.store.Version()
	w.mu.Unlock()

	w.logger.Info("snapshot restored", "bytes", len(data), "teams", len(w.store.Teams()))
	return nil
}

// Start begins periodic persistence
func (w *PersistWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info("persist worker started", "interval", w.config.Interval)

	go w.run(ctx)
	return nil
}

// Stop writes a final snapshot and stops the worker
func (w *PersistWorker) Stop() error {
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

	w.logger.Info("persist worker stopped")
	return nil
}

// IsRunning returns whether the worker is running
func (w *PersistWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *PersistWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			if err := w.RunOnce(context.WithoutCancel(ctx)); err != nil {
				w.logger.Error("failed to write final snapshot", "error", err)
			}
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("failed to write snapshot", "error", err)
			}
		}
	}
}

// RunOnce writes a snapshot if the store changed since the last write
func (w *PersistWorker) RunOnce(ctx context.Context) error {
	version := w.store.Version()

	w.mu.Lock()
	unchanged := version == w.saved
	w.mu.Unlock()
	if unchanged {
		return nil
	}

	data, err := w.store.MarshalSnapshot()
	if err != nil {
		return err
	}
	if err := w.snapshots.Save(ctx, data, version); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	w.mu.Lock()
	w.saved = version
	w.mu.Unlock()

	w.logger.Debug("snapshot written", "version", version, "bytes", len(data))
	return nil
}
