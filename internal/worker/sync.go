package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roster-sync/internal/config"
	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/remote"
	"github.com/roster-sync/internal/store"
)

// SyncManager keeps the local store in step with the remote service for
// the active team: one full load per team switch, then one multiplexed
// change subscription merged into the store.
type SyncManager struct {
	remote remote.Service
	store  *store.Store
	loader *Loader
	config *config.SyncConfig
	logger *slog.Logger

	mu      sync.Mutex
	teamID  string
	gen     uint64
	running bool
	sub     remote.Subscription
	cancel  context.CancelFunc
	doneCh  chan struct{}
}

// NewSyncManager creates a new sync manager
func NewSyncManager(
	svc remote.Service,
	st *store.Store,
	cfg *config.SyncConfig,
	logger *slog.Logger,
) *SyncManager {
	return &SyncManager{
		remote: svc,
		store:  st,
		loader: NewLoader(svc, logger),
		config: cfg,
		logger: logger,
	}
}

// session is what Stop has to tear down
type session struct {
	sub    remote.Subscription
	cancel context.CancelFunc
	doneCh chan struct{}
}

func (s session) close() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.sub != nil {
		_ = s.sub.Close()
	}
	if s.doneCh != nil {
		<-s.doneCh
	}
}

// detachLocked clears the sync identity and returns the previous session
func (m *SyncManager) detachLocked() session {
	prev := session{sub: m.sub, cancel: m.cancel, doneCh: m.doneCh}
	m.gen++
	m.teamID = ""
	m.running = false
	m.sub = nil
	m.cancel = nil
	m.doneCh = nil
	return prev
}

// Start syncs the given team. It is a no-op when that team is already being
// synced and replaces any subscription for another team. The subscription
// is opened before the load so no change committed during the load is
// missed; events queued meanwhile are merged after the install.
func (m *SyncManager) Start(ctx context.Context, teamID string) error {
	m.mu.Lock()
	if m.running && m.teamID == teamID {
		m.mu.Unlock()
		return nil
	}
	prev := m.detachLocked()
	gen := m.gen
	m.teamID = teamID
	m.mu.Unlock()
	prev.close()

	sub, err := m.remote.Subscribe(ctx, teamID, remote.AllTables)
	if err != nil {
		m.abandon(gen)
		return fmt.Errorf("subscribing to team %s: %w", teamID, err)
	}

	loadCtx, cancelLoad := context.WithTimeout(ctx, m.config.LoadTimeout)
	data, err := m.loader.LoadTeam(loadCtx, teamID)
	cancelLoad()
	if err != nil {
		_ = sub.Close()
		m.abandon(gen)
		return err
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		_ = sub.Close()
		m.logger.Info("discarding superseded team load", "team_id", teamID)
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	doneCh := make(chan struct{})
	m.sub = sub
	m.cancel = cancel
	m.doneCh = doneCh
	m.running = true
	m.mu.Unlock()

	changed := m.store.InstallTeam(data)
	m.logger.Info("team sync started",
		"team_id", teamID,
		"players", len(data.Players),
		"games", len(data.Games),
		"events", len(data.Events),
		"changed", changed,
	)

	go m.run(runCtx, gen, teamID, sub, doneCh)
	return nil
}

// abandon clears the identity set by a Start that failed, unless a later
// Start or Stop already replaced it
func (m *SyncManager) abandon(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen {
		m.teamID = ""
	}
}

// Stop closes the subscription and clears the sync identity
func (m *SyncManager) Stop() error {
	m.mu.Lock()
	if !m.running && m.teamID == "" {
		m.mu.Unlock()
		return nil
	}
	prev := m.detachLocked()
	m.mu.Unlock()

	prev.close()
	m.logger.Info("team sync stopped")
	return nil
}

// TeamID returns the team being synced, or "" when idle
func (m *SyncManager) TeamID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.teamID
}

// IsRunning returns whether a subscription is live
func (m *SyncManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Reload performs a full load of the synced team on demand
func (m *SyncManager) Reload(ctx context.Context) error {
	teamID := m.TeamID()
	if teamID == "" {
		return domain.ErrNoActiveTeam
	}
	return m.reload(ctx, teamID)
}

func (m *SyncManager) reload(ctx context.Context, teamID string) error {
	loadCtx, cancel := context.WithTimeout(ctx, m.config.LoadTimeout)
	defer cancel()

	data, err := m.loader.LoadTeam(loadCtx, teamID)
	if err != nil {
		return err
	}
	m.store.InstallTeam(data)
	return nil
}

func (m *SyncManager) refetchPayments(ctx context.Context, teamID string) {
	loadCtx, cancel := context.WithTimeout(ctx, m.config.LoadTimeout)
	defer cancel()

	periods, err := m.loader.LoadPayments(loadCtx, teamID)
	if err != nil {
		m.logger.Warn("failed to refetch payments", "team_id", teamID, "error", err)
		return
	}
	m.store.ReplacePayments(teamID, periods)
}

// run drains the subscription until it is closed or the session is torn down
func (m *SyncManager) run(ctx context.Context, gen uint64, teamID string, sub remote.Subscription, doneCh chan struct{}) {
	defer close(doneCh)

	// Payment changes arrive as bursts across three tables; a one-slot
	// channel coalesces them into a single refetch.
	refetch := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-refetch:
			m.refetchPayments(ctx, teamID)
		case ev, ok := <-sub.Events():
			if !ok {
				m.subscriptionClosed(gen, teamID)
				return
			}
			if isPaymentTable(ev.Table) && ev.Op != remote.OpReset {
				select {
				case refetch <- struct{}{}:
				default:
				}
				continue
			}
			m.handle(ctx, teamID, ev)
		}
	}
}

func (m *SyncManager) subscriptionClosed(gen uint64, teamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return
	}
	m.running = false
	m.logger.Warn("change subscription closed by remote", "team_id", teamID)
}

func isPaymentTable(t remote.Table) bool {
	return t == remote.TablePaymentPeriods || t == remote.TablePlayerPayments || t == remote.TablePaymentEntries
}
