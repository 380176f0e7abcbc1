package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roster-sync/internal/config"
	"github.com/roster-sync/internal/domain"
)

type recordingPusher struct {
	mu            sync.Mutex
	games         []domain.Game
	events        []domain.Event
	notifications []domain.AppNotification
}

func (p *recordingPusher) PushGame(g domain.Game) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.games = append(p.games, g)
}

func (p *recordingPusher) PushEvent(e domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPusher) PushNotifications(ns ...domain.AppNotification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, ns...)
}

func (p *recordingPusher) gameCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.games)
}

func TestReleaseWorker_RunOnce(t *testing.T) {
	st := newTestStore(t)
	activate(t, st, "team-a")
	for _, id := range []string{"p1", "p2"} {
		_, ok := st.AddPlayer(domain.Player{ID: id, Status: domain.RosterActive})
		require.True(t, ok)
	}
	due := testNow.Add(-time.Minute)
	later := testNow.Add(time.Hour)
	_, _, ok := st.AddGame(domain.Game{ID: "g1", Date: "2025-03-01", InviteRelease: domain.ReleaseScheduled, InviteReleaseAt: &due,
		Roster: domain.Membership{Invited: []string{"p1", "p2"}}})
	require.True(t, ok)
	_, _, ok = st.AddEvent(domain.Event{ID: "e1", Date: "2025-03-02", InviteRelease: domain.ReleaseScheduled, InviteReleaseAt: &later,
		Roster: domain.Membership{Invited: []string{"p1"}}})
	require.True(t, ok)

	pusher := &recordingPusher{}
	w := NewReleaseWorker(st, pusher, &config.ReleaseConfig{Interval: time.Hour}, testLogger())
	w.now = func() time.Time { return testNow }

	res := w.RunOnce(context.Background())
	require.Len(t, res.Games, 1)
	assert.Empty(t, res.Events)
	assert.Len(t, res.Notifications, 2)
	assert.Equal(t, domain.ReleaseReleased, pusher.games[0].InviteRelease)
	assert.Len(t, pusher.notifications, 2)

	again := w.RunOnce(context.Background())
	assert.True(t, again.Empty())
	assert.Equal(t, 1, pusher.gameCount())

	w.now = func() time.Time { return later }
	res = w.RunOnce(context.Background())
	require.Len(t, res.Events, 1)
	assert.Len(t, pusher.notifications, 3)
}

func TestReleaseWorker_StartChecksImmediately(t *testing.T) {
	st := newTestStore(t)
	activate(t, st, "team-a")
	_, ok := st.AddPlayer(domain.Player{ID: "p1", Status: domain.RosterActive})
	require.True(t, ok)
	due := testNow.Add(-time.Minute)
	_, _, ok = st.AddGame(domain.Game{ID: "g1", Date: "2025-03-01", InviteRelease: domain.ReleaseScheduled, InviteReleaseAt: &due,
		Roster: domain.Membership{Invited: []string{"p1"}}})
	require.True(t, ok)

	pusher := &recordingPusher{}
	w := NewReleaseWorker(st, pusher, &config.ReleaseConfig{Interval: time.Hour}, testLogger())
	w.now = func() time.Time { return testNow }

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())
	assert.Eventually(t, func() bool { return pusher.gameCount() == 1 }, waitFor, tick)
	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())
}
