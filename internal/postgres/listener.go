package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/remote"
)

// notification is the payload published by the change trigger
type notification struct {
	Table      remote.Table    `json:"table"`
	Op         remote.Op       `json:"op"`
	TeamID     string          `json:"team_id"`
	ID         string          `json:"id"`
	Old        json.RawMessage `json:"old,omitempty"`
	New        json.RawMessage `json:"new,omitempty"`
	CommitTime time.Time       `json:"commit_time"`
}

// Listener is a remote.ChangeFeed over LISTEN/NOTIFY. One dedicated
// connection listens for the whole process and fans notifications out to
// per-team subscriptions. After a reconnect every subscription receives an
// OpReset event, since notifications sent while disconnected are lost.
type Listener struct {
	pool       *pgxpool.Pool
	repo       *Repository
	channel    string
	retryDelay time.Duration
	logger     *slog.Logger

	fanout  *remote.Fanout
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewListener creates a new listener
func NewListener(pool *pgxpool.Pool, repo *Repository, channel string, buffer int, retryDelay time.Duration, logger *slog.Logger) *Listener {
	return &Listener{
		pool:       pool,
		repo:       repo,
		channel:    channel,
		retryDelay: retryDelay,
		logger:     logger,
		fanout:     remote.NewFanout(buffer),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Start begins listening
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil
	}
	l.running = true
	l.mu.Unlock()

	l.logger.Info("change listener started", "channel", l.channel)

	go l.run(ctx)
	return nil
}

// Stop stops listening and closes every subscription
func (l *Listener) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	close(l.stopCh)
	<-l.doneCh

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
	l.fanout.CloseAll()

	l.logger.Info("change listener stopped")
	return nil
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	connected := false
	for {
		err := l.listen(ctx, connected)
		if ctx.Err() != nil {
			return
		}
		connected = true
		l.logger.Warn("change listener disconnected, retrying", "error", err, "retry_delay", l.retryDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(l.retryDelay):
		}
	}
}

// listen holds one connection until it fails. reconnect marks every
// connection after the first, which starts with a reset broadcast.
func (l *Listener) listen(ctx context.Context, reconnect bool) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return fmt.Errorf("listening on %s: %w", l.channel, mapError(err))
	}
	if reconnect {
		l.dispatch(remote.ChangeEvent{Op: remote.OpReset, CommitTime: time.Now()})
	}

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, err := l.resolve(ctx, n.Payload)
		if err != nil {
			l.logger.Warn("dropping change notification", "error", err)
			continue
		}
		l.dispatch(ev)
	}
}

// resolve turns a trigger payload into a change event, reading the row back
// when the payload was too large to carry it
func (l *Listener) resolve(ctx context.Context, payload string) (remote.ChangeEvent, error) {
	n, err := decodeNotification(payload)
	if err != nil {
		return remote.ChangeEvent{}, err
	}
	ev := n.event()
	if ev.Op == remote.OpDelete || len(ev.New) > 0 {
		return ev, nil
	}
	doc, err := l.repo.Fetch(ctx, n.Table, n.ID)
	if err != nil {
		return ev, fmt.Errorf("reading back %s row %s: %w", n.Table, n.ID, err)
	}
	ev.New = doc
	return ev, nil
}

func decodeNotification(payload string) (notification, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return notification{}, fmt.Errorf("decoding notification: %v: %w", err, domain.ErrMalformedEvent)
	}
	if !n.Table.Known() || n.ID == "" {
		return notification{}, fmt.Errorf("notification for %q row %q: %w", n.Table, n.ID, domain.ErrMalformedEvent)
	}
	switch n.Op {
	case remote.OpInsert, remote.OpUpdate, remote.OpDelete:
	default:
		return notification{}, fmt.Errorf("notification op %q: %w", n.Op, domain.ErrMalformedEvent)
	}
	return n, nil
}

func (n notification) event() remote.ChangeEvent {
	return remote.ChangeEvent{
		Table:      n.Table,
		Op:         n.Op,
		TeamID:     n.TeamID,
		Old:        n.Old,
		New:        n.New,
		CommitTime: n.CommitTime,
	}
}

// Subscribe opens a change stream for the team's rows in the given tables.
// An empty teamID follows every team.
func (l *Listener) Subscribe(ctx context.Context, teamID string, tables []remote.Table) (remote.Subscription, error) {
	return l.fanout.Subscribe(ctx, teamID, tables)
}

func (l *Listener) dispatch(ev remote.ChangeEvent) {
	if dropped := l.fanout.Dispatch(ev); dropped > 0 {
		l.logger.Warn("subscription buffer full, dropping change event",
			"table", ev.Table,
			"team_id", ev.TeamID,
			"subscriptions", dropped,
		)
	}
}
