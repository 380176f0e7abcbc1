// Package push writes local mutations through to the remote data service.
// Every helper enqueues one job; jobs run in order on a single goroutine,
// failures are logged and never retried or rolled back.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roster-sync/internal/config"
	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/remote"
)

type job struct {
	name   string
	teamID string
	fn     func(ctx context.Context) error
	done   chan struct{}
}

// Stats counts job outcomes since the pusher was created
type Stats struct {
	Pushed  int64 `json:"pushed"`
	Failed  int64 `json:"failed"`
	Dropped int64 `json:"dropped"`
}

// Pusher is the write-through queue
type Pusher struct {
	remote  remote.Writer
	config  *config.PushConfig
	logger  *slog.Logger
	jobs    chan job
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool

	onSessionExpired func()

	pushed  atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
}

// NewPusher creates a new pusher
func NewPusher(w remote.Writer, cfg *config.PushConfig, logger *slog.Logger) *Pusher {
	return &Pusher{
		remote: w,
		config: cfg,
		logger: logger,
		jobs:   make(chan job, cfg.QueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// OnSessionExpired registers the hook called when the remote rejects the
// session. Must be called before Start.
func (p *Pusher) OnSessionExpired(fn func()) {
	p.onSessionExpired = fn
}

// Start begins processing the queue
func (p *Pusher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.mu.Unlock()

	p.logger.Info("pusher started", "queue_size", p.config.QueueSize)

	go p.run(ctx)
	return nil
}

// Stop runs the jobs already queued and stops the pusher
func (p *Pusher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)
	<-p.doneCh

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("pusher stopped", "pushed", p.pushed.Load(), "failed", p.failed.Load())
	return nil
}

// IsRunning returns whether the pusher is running
func (p *Pusher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stats returns the job counters
func (p *Pusher) Stats() Stats {
	return Stats{
		Pushed:  p.pushed.Load(),
		Failed:  p.failed.Load(),
		Dropped: p.dropped.Load(),
	}
}

// Flush waits until every job queued before the call has run
func (p *Pusher) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case p.jobs <- job{name: "flush", done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pusher) run(ctx context.Context) {
	defer close(p.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			p.drain(context.WithoutCancel(ctx))
			return
		case j := <-p.jobs:
			p.exec(ctx, j)
		}
	}
}

func (p *Pusher) drain(ctx context.Context) {
	for {
		select {
		case j := <-p.jobs:
			p.exec(ctx, j)
		default:
			return
		}
	}
}

func (p *Pusher) exec(ctx context.Context, j job) {
	if j.done != nil {
		close(j.done)
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	err := j.fn(jobCtx)
	switch {
	case err == nil:
		p.pushed.Add(1)
	case errors.Is(err, domain.ErrTeamExists):
		p.pushed.Add(1)
		p.logger.Info("team already exists", "job", j.name, "team_id", j.teamID)
	case errors.Is(err, domain.ErrSessionExpired):
		p.failed.Add(1)
		p.logger.Warn("session expired during push", "job", j.name, "team_id", j.teamID)
		if p.onSessionExpired != nil {
			p.onSessionExpired()
		}
	case errors.Is(err, domain.ErrTableMissing):
		p.failed.Add(1)
		p.logger.Warn("remote table missing", "job", j.name, "team_id", j.teamID, "error", err)
	default:
		p.failed.Add(1)
		p.logger.Error("push failed", "job", j.name, "team_id", j.teamID, "error", err)
	}
}

func (p *Pusher) enqueue(name, teamID string, fn func(ctx context.Context) error) {
	select {
	case p.jobs <- job{name: name, teamID: teamID, fn: fn}:
	default:
		p.dropped.Add(1)
		p.logger.Warn("push queue full, dropping job", "job", name, "team_id", teamID)
	}
}

func (p *Pusher) upsert(name, teamID string, rows ...remote.Row) {
	if len(rows) == 0 {
		return
	}
	p.enqueue(name, teamID, func(ctx context.Context) error {
		if err := p.remote.Upsert(ctx, rows...); err != nil {
			return fmt.Errorf("upserting %s: %w", rows[0].Table(), err)
		}
		return nil
	})
}

// deleteOp is one filtered delete of a multi-table removal
type deleteOp struct {
	table  remote.Table
	filter remote.Filter
}

// remove runs the deletes in order, stopping at the first failure
func (p *Pusher) remove(name, teamID string, ops ...deleteOp) {
	p.enqueue(name, teamID, func(ctx context.Context) error {
		for _, op := range ops {
			if err := p.remote.Delete(ctx, op.table, op.filter); err != nil {
				return fmt.Errorf("deleting from %s: %w", op.table, err)
			}
		}
		return nil
	})
}

func byID(teamID, id string) remote.Filter {
	return remote.Eq("id", id).And("team_id", teamID)
}

func byColumn(teamID, column, value string) remote.Filter {
	return remote.Eq(column, value).And("team_id", teamID)
}
