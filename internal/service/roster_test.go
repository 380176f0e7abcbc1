package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roster-sync/internal/config"
	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/push"
	"github.com/roster-sync/internal/remote"
	"github.com/roster-sync/internal/store"
	"github.com/roster-sync/internal/worker"
)

var testNow = time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)

type fakeSync struct {
	started []string
	stopped int
	err     error
}

func (f *fakeSync) Start(_ context.Context, teamID string) error {
	f.started = append(f.started, teamID)
	return f.err
}

func (f *fakeSync) Stop() error {
	f.stopped++
	return nil
}

type fakeReleaser struct {
	calls int
}

func (f *fakeReleaser) RunOnce(context.Context) store.ReleaseResult {
	f.calls++
	return store.ReleaseResult{}
}

type fixture struct {
	svc    *RosterService
	store  *store.Store
	remote *remote.Memory
	pusher *push.Pusher
	sync   *fakeSync
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	n := 0
	st := store.New(
		store.WithClock(func() time.Time { return testNow }),
		store.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
		store.WithLogger(logger),
	)
	mem := remote.NewMemory()
	p := push.NewPusher(mem, &config.PushConfig{QueueSize: 64, Timeout: time.Second}, logger)
	sync := &fakeSync{}
	svc := NewRosterService(st, p, sync, &fakeReleaser{}, logger)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(func() { _ = p.Stop() })
	return &fixture{svc: svc, store: st, remote: mem, pusher: p, sync: sync}
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	require.NoError(t, f.pusher.Flush(context.Background()))
}

func (f *fixture) seedTeam(t *testing.T) {
	t.Helper()
	_, err := f.svc.CreateTeam(context.Background(),
		domain.Team{ID: "team-a", Name: "Ice Hogs", Sport: domain.SportHockey},
		&domain.Player{ID: "p1", FirstName: "Sam", Email: "sam@example.com"})
	require.NoError(t, err)
	_, err = f.svc.AddPlayer(domain.Player{ID: "p2", FirstName: "Alex"})
	require.NoError(t, err)
}

func TestCreateTeam_PushesAndStartsSync(t *testing.T) {
	f := newFixture(t)
	f.seedTeam(t)
	f.flush(t)

	_, ok := f.remote.Get(remote.TableTeams, "team-a")
	assert.True(t, ok)
	raw, ok := f.remote.Get(remote.TablePlayers, "p1")
	require.True(t, ok)
	row, err := remote.Decode[remote.PlayerRow](raw)
	require.NoError(t, err)
	assert.True(t, row.IsAdmin())
	assert.Equal(t, []string{"team-a"}, f.sync.started)

	_, err = f.svc.CreateTeam(context.Background(), domain.Team{ID: "team-a"}, nil)
	assert.ErrorIs(t, err, domain.ErrTeamExists)

	_, err = f.svc.CreateTeam(context.Background(), domain.Team{ID: "team-b", Name: "Second"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"team-a"}, f.sync.started, "a second team does not take over")
	assert.Equal(t, "team-a", f.store.ActiveTeamID())
}

func TestSwitchTeam_StartsSync(t *testing.T) {
	f := newFixture(t)
	f.seedTeam(t)

	require.NoError(t, f.svc.SwitchTeam(context.Background(), "team-b"))
	assert.Equal(t, "team-b", f.store.ActiveTeamID())
	assert.Equal(t, []string{"team-a", "team-b"}, f.sync.started)

	f.sync.err = errors.New("remote unreachable")
	err := f.svc.SwitchTeam(context.Background(), "team-a")
	require.Error(t, err)
	assert.Equal(t, "team-a", f.store.ActiveTeamID(), "the cached team stays active")

	assert.ErrorIs(t, f.svc.SwitchTeam(context.Background(), ""), domain.ErrInvalidRequest)
}

func TestLeaveTeam(t *testing.T) {
	f := newFixture(t)
	f.seedTeam(t)
	_, err := f.svc.CreateTeam(context.Background(), domain.Team{ID: "team-b"}, nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.LeaveTeam(context.Background(), "team-a"))
	assert.Equal(t, "team-b", f.store.ActiveTeamID())
	assert.Equal(t, "team-b", f.sync.started[len(f.sync.started)-1])

	require.NoError(t, f.svc.LeaveTeam(context.Background(), "team-b"))
	assert.Empty(t, f.store.ActiveTeamID())
	assert.Equal(t, 1, f.sync.stopped)

	assert.ErrorIs(t, f.svc.LeaveTeam(context.Background(), "team-b"), domain.ErrTeamNotFound)
}

func TestRespondToGame_PushesResponseRow(t *testing.T) {
	f := newFixture(t)
	f.seedTeam(t)
	_, err := f.svc.AddGame(domain.Game{
		ID: "g1", Opponent: "Hawks", Date: "2025-03-01",
		InviteRelease: domain.ReleaseNone,
		Roster:        domain.Membership{Invited: []string{"p1", "p2"}},
	})
	require.NoError(t, err)

	rec, err := f.svc.RespondToGame("g1", "p2", domain.ResponseOut, "Work")
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseOut, rec.Response)
	f.flush(t)

	raw, ok := f.remote.Get(remote.TableGameResponses, "g1:p2")
	require.True(t, ok)
	row, err := remote.Decode[remote.GameResponseRow](raw)
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseOut, row.Response)
	assert.Equal(t, "Work", row.Note)

	_, err = f.svc.RespondToGame("missing", "p2", domain.ResponseIn, "")
	assert.ErrorIs(t, err, domain.ErrGameNotFound)
	_, err = f.svc.RespondToGame("g1", "p2", domain.Response("maybe"), "")
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestScheduleChanges_SurviveFullReload(t *testing.T) {
	f := newFixture(t)
	f.seedTeam(t)
	ctx := context.Background()

	_, err := f.svc.SetPlayerStatus("p2", true, false, "2025-04-01")
	require.NoError(t, err)
	for _, id := range []string{"g1", "g2"} {
		_, err = f.svc.AddGame(domain.Game{
			ID: id, Opponent: "Hawks", Date: "2025-03-01",
			InviteRelease: domain.ReleaseNone,
			Roster:        domain.Membership{Invited: []string{"p1", "p2"}},
		})
		require.NoError(t, err)
	}
	_, err = f.svc.RespondToGame("g2", "p1", domain.ResponseIn, "")
	require.NoError(t, err)
	_, err = f.svc.UpdateGame(domain.Game{
		ID: "g2", Opponent: "Hawks", Date: "2025-03-01",
		Roster: domain.Membership{Invited: []string{"p2"}},
	})
	require.NoError(t, err)
	_, err = f.svc.CreateTeam(ctx, domain.Team{ID: "team-b", Name: "Blades"}, nil)
	require.NoError(t, err)
	f.flush(t)

	_, ok := f.remote.Get(remote.TableGameResponses, "g2:p1")
	assert.False(t, ok, "uninvited player's response row is removed")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sm := worker.NewSyncManager(f.remote, f.store, &config.SyncConfig{LoadTimeout: time.Second, EventBuffer: 16}, logger)
	t.Cleanup(func() { _ = sm.Stop() })
	f.svc.sync = sm

	require.NoError(t, f.svc.SwitchTeam(ctx, "team-b"))
	require.NoError(t, f.svc.SwitchTeam(ctx, "team-a"))

	g1, ok := f.store.Game("g1")
	require.True(t, ok)
	assert.Equal(t, []string{"p2"}, g1.Roster.Out)
	assert.Equal(t, domain.ReasonInjured, g1.Roster.Note("p2"))

	g2, ok := f.store.Game("g2")
	require.True(t, ok)
	assert.Equal(t, []string{"p2"}, g2.Roster.Invited)
	assert.Empty(t, g2.Roster.In)
	assert.Equal(t, []string{"p2"}, g2.Roster.Out)

	_, err = f.svc.RespondToGame("g2", "p1", domain.ResponseIn, "")
	require.NoError(t, err)
	f.flush(t)
	raw, ok := f.remote.Get(remote.TableGames, "g2")
	require.True(t, ok)
	row, err := remote.Decode[remote.GameRow](raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2", "p1"}, row.InvitedPlayers)
}

func TestSetPlayerStatus_PushesCascadedResponses(t *testing.T) {
	f := newFixture(t)
	f.seedTeam(t)
	_, err := f.svc.AddGame(domain.Game{
		ID: "g1", Opponent: "Hawks", Date: "2025-03-01",
		InviteRelease: domain.ReleaseNone,
		Roster:        domain.Membership{Invited: []string{"p1", "p2"}},
	})
	require.NoError(t, err)

	p, err := f.svc.SetPlayerStatus("p2", true, false, "2025-04-01")
	require.NoError(t, err)
	assert.True(t, p.IsInjured)
	f.flush(t)

	raw, ok := f.remote.Get(remote.TableGameResponses, "g1:p2")
	require.True(t, ok)
	row, err := remote.Decode[remote.GameResponseRow](raw)
	require.NoError(t, err)
	assert.Equal(t, domain.ResponseOut, row.Response)
	assert.Equal(t, domain.ReasonInjured, row.Note)

	_, err = f.svc.SetPlayerStatus("nobody", true, false, "")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestRemovePlayer_DeletesRemoteRows(t *testing.T) {
	f := newFixture(t)
	f.seedTeam(t)
	f.flush(t)
	require.Equal(t, 2, f.remote.Len(remote.TablePlayers))

	require.NoError(t, f.svc.RemovePlayer("p2"))
	f.flush(t)
	assert.Equal(t, 1, f.remote.Len(remote.TablePlayers))
	assert.ErrorIs(t, f.svc.RemovePlayer("p2"), domain.ErrPlayerNotFound)
}

func TestPayments(t *testing.T) {
	f := newFixture(t)
	f.seedTeam(t)

	period, err := f.svc.AddPaymentPeriod(domain.PaymentPeriod{ID: "per1", Title: "Ice time", Amount: 400})
	require.NoError(t, err)
	require.Len(t, period.PlayerPayments, 2)

	pp, err := f.svc.RecordPayment("per1", "p1", domain.PaymentEntry{Amount: 400})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, pp.Status)

	_, err = f.svc.RecordPayment("per1", "p1", domain.PaymentEntry{Amount: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	f.flush(t)
	assert.Equal(t, 1, f.remote.Len(remote.TablePaymentEntries))

	require.NoError(t, f.svc.RemovePaymentPeriod("per1"))
	f.flush(t)
	assert.Equal(t, 0, f.remote.Len(remote.TablePaymentPeriods))
	assert.Equal(t, 0, f.remote.Len(remote.TablePlayerPayments))
	assert.Equal(t, 0, f.remote.Len(remote.TablePaymentEntries))

	assert.ErrorIs(t, f.svc.RemovePaymentPeriod("per1"), domain.ErrNotFound)
}

func TestNoActiveTeam(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AddPlayer(domain.Player{FirstName: "Jo"})
	assert.ErrorIs(t, err, domain.ErrNoActiveTeam)
	_, err = f.svc.SendChatMessage(domain.ChatMessage{Body: "hi"})
	assert.ErrorIs(t, err, domain.ErrNoActiveTeam)
	assert.ErrorIs(t, f.svc.RemoveGame("g1"), domain.ErrNoActiveTeam)
}

func TestSessionExpiredClearsSession(t *testing.T) {
	f := newFixture(t)
	f.seedTeam(t)
	require.NoError(t, f.svc.SignIn(context.Background(), domain.Session{Email: "sam@example.com"}))
	require.True(t, f.store.Session().LoggedIn)
	assert.Equal(t, "p1", f.store.Session().PlayerID)

	f.remote.FailTable(remote.TableChatMessages, fmt.Errorf("jwt expired: %w", domain.ErrSessionExpired))
	_, err := f.svc.SendChatMessage(domain.ChatMessage{SenderID: "p1", Body: "see you there"})
	require.NoError(t, err)
	f.flush(t)

	assert.False(t, f.store.Session().LoggedIn)
	d, ok := f.store.Active()
	require.True(t, ok)
	assert.Len(t, d.Chat, 1, "local data survives a session failure")
}

func TestContentRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.seedTeam(t)

	poll, err := f.svc.AddPoll(domain.Poll{Question: "Jersey colour?", Options: []domain.PollOption{{Text: "Red"}, {Text: "Blue"}}})
	require.NoError(t, err)
	_, err = f.svc.Vote(poll.ID, poll.Options[0].ID, "p1")
	require.NoError(t, err)

	link, err := f.svc.AddLink(domain.TeamLink{Title: "League site", URL: "https://example.com"})
	require.NoError(t, err)
	n, err := f.svc.Notify(domain.AppNotification{ToPlayerID: "p2", Type: domain.NotifyPaymentDue, Title: "Dues"})
	require.NoError(t, err)
	count, err := f.svc.MarkAllNotificationsRead("p2")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	f.flush(t)

	raw, ok := f.remote.Get(remote.TablePolls, poll.ID)
	require.True(t, ok)
	row, err := remote.Decode[remote.PollRow](raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, row.Options[0].Votes)

	raw, ok = f.remote.Get(remote.TableNotifications, n.ID)
	require.True(t, ok)
	nrow, err := remote.Decode[remote.NotificationRow](raw)
	require.NoError(t, err)
	assert.True(t, nrow.Read)

	require.NoError(t, f.svc.RemoveLink(link.ID))
	f.flush(t)
	_, ok = f.remote.Get(remote.TableTeamLinks, link.ID)
	assert.False(t, ok)
}

func TestCheckScheduledReleasesDelegates(t *testing.T) {
	f := newFixture(t)
	r := &fakeReleaser{}
	f.svc.releaser = r
	f.svc.CheckScheduledReleases(context.Background())
	assert.Equal(t, 1, r.calls)
}
