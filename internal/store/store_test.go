package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roster-sync/internal/domain"
)

var testNow = time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	n := 0
	return New(
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
}

// seedTeam creates an active team with players p1..pN
func seedTeam(t *testing.T, s *Store, players ...string) {
	t.Helper()
	_, ok := s.CreateTeam(domain.Team{ID: "team-a", Name: "Ice Hogs", Sport: domain.SportHockey}, nil)
	require.True(t, ok)
	for _, id := range players {
		_, ok := s.AddPlayer(domain.Player{ID: id, FirstName: id})
		require.True(t, ok)
	}
}

func game(id, date string, invited ...string) domain.Game {
	return domain.Game{
		ID:            id,
		Opponent:      "Hawks",
		Date:          date,
		InviteRelease: domain.ReleaseNone,
		Roster:        domain.Membership{Invited: invited},
	}
}

func event(id, date string, invited ...string) domain.Event {
	return domain.Event{
		ID:            id,
		Title:         "Practice",
		Date:          date,
		InviteRelease: domain.ReleaseNone,
		Roster:        domain.Membership{Invited: invited},
	}
}

func mustGame(t *testing.T, s *Store, id string) domain.Game {
	t.Helper()
	g, ok := s.Game(id)
	require.True(t, ok, "game %s", id)
	require.True(t, g.Roster.Valid(), "partition invariant for %s", id)
	return g
}

func mustEvent(t *testing.T, s *Store, id string) domain.Event {
	t.Helper()
	e, ok := s.Event(id)
	require.True(t, ok, "event %s", id)
	require.True(t, e.Roster.Valid(), "partition invariant for %s", id)
	return e
}

func TestSuspensionScenario(t *testing.T) {
	s := newTestStore(t)
	seedTeam(t, s, "p1", "p2")

	_, _, ok := s.AddGame(game("g1", "2025-03-01", "p1", "p2"))
	require.True(t, ok)
	_, ok = s.SetGameResponse("g1", "p1", domain.ResponseIn, "")
	require.True(t, ok)

	g := mustGame(t, s, "g1")
	assert.Equal(t, []string{"p1"}, g.Roster.In)
	assert.Equal(t, []string{"p2"}, g.Roster.Pending())

	records, ok := s.SetPlayerStatus("p2", false, true, "2025-03-05")
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, "g1", records[0].EntityID)
	assert.Equal(t, domain.ResponseOut, records[0].Response)
	assert.Equal(t, domain.ReasonSuspended, records[0].Note)

	g = mustGame(t, s, "g1")
	assert.Equal(t, []string{"p1"}, g.Roster.In)
	assert.Equal(t, []string{"p2"}, g.Roster.Out)
	assert.Empty(t, g.Roster.Pending())
	assert.Equal(t, domain.ReasonSuspended, g.Roster.Note("p2"))
}

func TestInjuryCascade(t *testing.T) {
	s := newTestStore(t)
	seedTeam(t, s, "p1")

	for _, g := range []domain.Game{
		game("g-within", "2025-02-22", "p1"),
		game("g-edge", "2025-02-23", "p1"),
		game("g-after", "2025-02-24", "p1"),
		game("g-manual", "2025-02-22", "p1"),
		game("g-past", "2025-02-10", "p1"),
	} {
		_, _, ok := s.AddGame(g)
		require.True(t, ok)
	}
	_, _, ok := s.AddEvent(event("e-within", "2025-02-21", "p1"))
	require.True(t, ok)

	s.SetGameResponse("g-within", "p1", domain.ResponseIn, "")
	s.SetGameResponse("g-manual", "p1", domain.ResponseOut, "Vacation")

	records, ok := s.SetPlayerStatus("p1", true, false, "2025-02-23")
	require.True(t, ok)
	assert.Len(t, records, 3)

	for _, id := range []string{"g-within", "g-edge"} {
		g := mustGame(t, s, id)
		assert.Equal(t, domain.ResponseOut, g.Roster.ResponseOf("p1"), id)
		assert.Equal(t, domain.ReasonInjured, g.Roster.Note("p1"), id)
	}
	e := mustEvent(t, s, "e-within")
	assert.Equal(t, domain.ReasonInjured, e.Roster.Note("p1"))

	assert.Equal(t, domain.ResponseInvited, mustGame(t, s, "g-after").Roster.ResponseOf("p1"))
	assert.Equal(t, domain.ResponseInvited, mustGame(t, s, "g-past").Roster.ResponseOf("p1"))
	assert.Equal(t, "Vacation", mustGame(t, s, "g-manual").Roster.Note("p1"))

	records, ok = s.SetPlayerStatus("p1", false, false, "")
	require.True(t, ok)
	assert.Len(t, records, 3)

	for _, id := range []string{"g-within", "g-edge", "g-after"} {
		g := mustGame(t, s, id)
		assert.Equal(t, domain.ResponseInvited, g.Roster.ResponseOf("p1"), id)
		assert.Empty(t, g.Roster.Note("p1"), id)
	}
	assert.Equal(t, domain.ResponseInvited, mustEvent(t, s, "e-within").Roster.ResponseOf("p1"))
	manual := mustGame(t, s, "g-manual")
	assert.Equal(t, domain.ResponseOut, manual.Roster.ResponseOf("p1"))
	assert.Equal(t, "Vacation", manual.Roster.Note("p1"))
}

func TestAddGame_SeedsUnavailablePlayers(t *testing.T) {
	s := newTestStore(t)
	seedTeam(t, s, "p1", "p2", "p3")

	s.SetPlayerStatus("p2", false, true, "")
	s.SetPlayerStatus("p3", true, false, "")
	p1, _ := s.Player("p1")
	p1.UnavailableDates = []string{"2025-03-01"}
	_, ok := s.UpdatePlayer(p1)
	require.True(t, ok)

	_, res, ok := s.AddGame(game("g1", "2025-03-01", "p1", "p2", "p3"))
	require.True(t, ok)
	g := mustGame(t, s, "g1")
	assert.Equal(t, []string{"p1", "p2", "p3"}, g.Roster.Out)
	require.Len(t, res.Responses, 3)
	for _, rec := range res.Responses {
		assert.Equal(t, domain.ResponseOut, rec.Response)
		assert.Equal(t, "g1", rec.EntityID)
		assert.Equal(t, testNow, rec.UpdatedAt)
	}
	assert.Equal(t, domain.ReasonSuspended, res.Responses[1].Note)
	assert.Equal(t, domain.ReasonUnavailable, g.Roster.Note("p1"))
	assert.Equal(t, domain.ReasonSuspended, g.Roster.Note("p2"))
	assert.Equal(t, domain.ReasonInjured, g.Roster.Note("p3"))

	_, _, ok = s.AddEvent(event("e1", "2025-03-02", "p2", "p3"))
	require.True(t, ok)
	e := mustEvent(t, s, "e1")
	assert.Equal(t, []string{"p2"}, e.Roster.Pending(), "suspension never applies to events")
	assert.Equal(t, []string{"p3"}, e.Roster.Out)
}

func TestAddGame_DefaultInviteAllAndImmediateRelease(t *testing.T) {
	s := newTestStore(t)
	seedTeam(t, s, "p1", "p2")
	_, ok := s.AddPlayer(domain.Player{ID: "sub", Status: domain.RosterReserve})
	require.True(t, ok)

	team, _ := s.Active()
	team.Team.Settings.DefaultInviteAll = true
	_, ok = s.UpdateTeam(team.Team)
	require.True(t, ok)

	g, res, ok := s.AddGame(domain.Game{ID: "g1", Opponent: "Hawks", Date: "2025-03-01"})
	require.True(t, ok)
	assert.Equal(t, []string{"p1", "p2"}, g.Roster.Invited)
	assert.Equal(t, domain.ReleaseNow, g.InviteRelease)
	require.NotNil(t, g.InvitesSentAt)
	notifs := res.Notifications
	require.Len(t, notifs, 2)
	assert.Equal(t, domain.NotifyGameInvite, notifs[0].Type)
	assert.Equal(t, "g1", notifs[0].GameID)
	assert.Len(t, s.NotificationsFor("p1"), 1)
}

func TestReleaseScheduledInvites_Idempotent(t *testing.T) {
	s := newTestStore(t)
	seedTeam(t, s, "p1", "p2")

	past := testNow.Add(-time.Hour)
	future := testNow.Add(time.Hour)
	due := game("g-due", "2025-03-01", "p1", "p2")
	due.InviteRelease = domain.ReleaseScheduled
	due.InviteReleaseAt = &past
	later := game("g-later", "2025-03-08", "p1")
	later.InviteRelease = domain.ReleaseScheduled
	later.InviteReleaseAt = &future
	practice := event("e-due", "2025-03-02", "p1")
	practice.InviteRelease = domain.ReleaseScheduled
	practice.InviteReleaseAt = &past

	for _, g := range []domain.Game{due, later} {
		_, res, ok := s.AddGame(g)
		require.True(t, ok)
		assert.Empty(t, res.Notifications)
	}
	_, _, ok := s.AddEvent(practice)
	require.True(t, ok)

	first := s.ReleaseScheduledInvites(testNow)
	require.Len(t, first.Games, 1)
	require.Len(t, first.Events, 1)
	assert.Len(t, first.Notifications, 3)
	assert.Equal(t, domain.ReleaseReleased, first.Games[0].InviteRelease)

	second := s.ReleaseScheduledInvites(testNow)
	assert.True(t, second.Empty())
	assert.Empty(t, second.Notifications)

	d, _ := s.Active()
	assert.Len(t, d.Notifications, 3)
	assert.Equal(t, domain.ReleaseScheduled, mustGame(t, s, "g-later").InviteRelease)

	_, _, ok = s.ReleaseGameInvites("g-due")
	assert.False(t, ok, "released is terminal")
}

func TestUpdateGame_KeepsResponsesAndRelease(t *testing.T) {
	s := newTestStore(t)
	seedTeam(t, s, "p1", "p2", "p3")
	s.SetPlayerStatus("p3", true, false, "")

	_, _, ok := s.AddGame(game("g1", "2025-03-01", "p1", "p2"))
	require.True(t, ok)
	_, _, ok = s.ReleaseGameInvites("g1")
	require.True(t, ok)
	s.SetGameResponse("g1", "p1", domain.ResponseIn, "")
	s.SetGameResponse("g1", "p2", domain.ResponseOut, "Work")

	update := game("g1", "2025-03-01", "p1", "p3")
	update.Location = "Rink 2"
	g, res, ok := s.UpdateGame(update)
	require.True(t, ok)
	assert.Empty(t, res.Notifications)
	assert.Equal(t, "Rink 2", g.Location)
	assert.Equal(t, domain.ReleaseNow, g.InviteRelease)
	assert.Equal(t, []string{"p1"}, g.Roster.In)
	assert.Equal(t, []string{"p3"}, g.Roster.Out)
	assert.Equal(t, domain.ReasonInjured, g.Roster.Note("p3"))
	assert.Empty(t, g.Roster.Note("p2"))
	assert.Equal(t, []string{"p2"}, res.Uninvited)
	require.Len(t, res.Responses, 1)
	assert.Equal(t, "p3", res.Responses[0].PlayerID)
	assert.Equal(t, domain.ResponseOut, res.Responses[0].Response)
}

func TestUpdateGame_ScheduledReleaseStaysScheduled(t *testing.T) {
	s := newTestStore(t)
	seedTeam(t, s, "p1")

	at := testNow.Add(time.Hour)
	g := game("g1", "2025-03-01", "p1")
	g.InviteRelease = domain.ReleaseScheduled
	g.InviteReleaseAt = &at
	_, _, ok := s.AddGame(g)
	require.True(t, ok)

	for _, next := range []domain.InviteRelease{domain.ReleaseNone, domain.ReleaseNow, domain.ReleaseReleased, ""} {
		update := game("g1", "2025-03-01", "p1")
		update.InviteRelease = next
		out, res, ok := s.UpdateGame(update)
		require.True(t, ok)
		assert.Equal(t, domain.ReleaseScheduled, out.InviteRelease, "update to %q", next)
		require.NotNil(t, out.InviteReleaseAt)
		assert.Equal(t, at, *out.InviteReleaseAt)
		assert.Nil(t, out.InvitesSentAt)
		assert.Empty(t, res.Notifications)
	}

	later := testNow.Add(2 * time.Hour)
	update := game("g1", "2025-03-01", "p1")
	update.InviteRelease = domain.ReleaseScheduled
	update.InviteReleaseAt = &later
	out, _, ok := s.UpdateGame(update)
	require.True(t, ok)
	assert.Equal(t, later, *out.InviteReleaseAt)
	assert.Empty(t, s.NotificationsFor("p1"))
}

func TestTeamSwitchRoundTrip(t *testing.T) {
	s := newTestStore(t)
	seedTeam(t, s)
	_, ok := s.AddPlayer(domain.Player{ID: "p1", Email: "sam@example.com"})
	require.True(t, ok)
	_, ok = s.CreateTeam(domain.Team{ID: "team-b", Name: "Blades"}, &domain.Player{ID: "pb", Email: "SAM@example.com"})
	require.True(t, ok)
	s.SetSession(domain.Session{Email: "sam@example.com", LoggedIn: true})

	assert.Equal(t, "team-a", s.ActiveTeamID())
	assert.Equal(t, "p1", s.Session().PlayerID)

	_, _, ok = s.AddGame(game("g1", "2025-03-01", "p1"))
	require.True(t, ok)
	s.SetGameResponse("g1", "p1", domain.ResponseIn, "")
	before, _ := s.Active()

	require.True(t, s.SwitchTeam("team-b"))
	assert.Equal(t, "pb", s.Session().PlayerID)
	cold, ok := s.Team("team-a")
	require.True(t, ok)
	assert.Equal(t, before, cold)

	assert.False(t, s.SwitchTeam("team-b"))
	require.True(t, s.SwitchTeam("team-a"))
	after, _ := s.Active()
	assert.Equal(t, before, after)
	assert.Equal(t, "p1", s.Session().PlayerID)
}

func TestSwitchTeam_UnknownCreatesPlaceholder(t *testing.T) {
	s := newTestStore(t)
	seedTeam(t, s)

	require.True(t, s.SwitchTeam("team-z"))
	d, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, "team-z", d.Team.ID)
	assert.NotNil(t, d.Players)
	assert.Len(t, s.Teams(), 2)
}

func TestRemovePlayer_Cascades(t *testing.T) {
	s := newTestStore(t)
	seedTeam(t, s, "p1", "p2")

	_, _, ok := s.AddGame(game("g1", "2025-03-01", "p1", "p2"))
	require.True(t, ok)
	s.SetGameResponse("g1", "p1", domain.ResponseIn, "")
	_, _, ok = s.AddEvent(event("e1", "2025-03-02", "p1"))
	require.True(t, ok)
	_, ok = s.AddChatMessage(domain.ChatMessage{SenderID: "p1", Body: "see you there"})
	require.True(t, ok)
	_, ok = s.AddNotification(domain.AppNotification{ToPlayerID: "p1", Title: "hi"})
	require.True(t, ok)
	_, ok = s.AddNotification(domain.AppNotification{ToPlayerID: "p2", Title: "hi"})
	require.True(t, ok)
	poll, ok := s.AddPoll(domain.Poll{Question: "Jerseys?", Options: []domain.PollOption{{Text: "Red"}}})
	require.True(t, ok)
	_, ok = s.Vote(poll.ID, poll.Options[0].ID, "p1")
	require.True(t, ok)
	_, ok = s.AddPaymentPeriod(domain.PaymentPeriod{Title: "Season", Amount: 10000})
	require.True(t, ok)

	require.True(t, s.RemovePlayer("p1"))
	assert.False(t, s.RemovePlayer("p1"))

	d, _ := s.Active()
	assert.Len(t, d.Players, 1)
	assert.Equal(t, []string{"p2"}, d.Games[0].Roster.Invited)
	assert.Empty(t, d.Games[0].Roster.In)
	assert.Empty(t, d.Events[0].Roster.Invited)
	assert.Empty(t, d.Chat[0].SenderID)
	require.Len(t, d.Notifications, 1)
	assert.Equal(t, "p2", d.Notifications[0].ToPlayerID)
	assert.Empty(t, d.Polls[0].Options[0].Votes)
	require.Len(t, d.PaymentPeriods[0].PlayerPayments, 1)
	assert.Equal(t, "p2", d.PaymentPeriods[0].PlayerPayments[0].PlayerID)
}

func TestRemoveTeam_LastTeamClearsSession(t *testing.T) {
	s := newTestStore(t)
	seedTeam(t, s, "p1")
	_, ok := s.CreateTeam(domain.Team{ID: "team-b"}, nil)
	require.True(t, ok)
	s.SetSession(domain.Session{Email: "sam@example.com", LoggedIn: true})

	require.True(t, s.RemoveTeam("team-a"))
	assert.Equal(t, "team-b", s.ActiveTeamID())
	assert.True(t, s.Session().LoggedIn)

	require.True(t, s.RemoveTeam("team-b"))
	assert.Empty(t, s.ActiveTeamID())
	assert.Equal(t, domain.Session{}, s.Session())
}

func TestPayments_StatusIsDerived(t *testing.T) {
	s := newTestStore(t)
	seedTeam(t, s, "p1", "p2")

	period, ok := s.AddPaymentPeriod(domain.PaymentPeriod{Title: "Ice time", Amount: 10000})
	require.True(t, ok)
	require.Len(t, period.PlayerPayments, 2)
	assert.Equal(t, domain.PaymentUnpaid, period.PlayerPayments[0].Status)

	pp, first, ok := s.AddPaymentEntry(period.ID, "p1", domain.PaymentEntry{Amount: 4000, Method: "cash"})
	require.True(t, ok)
	assert.Equal(t, domain.PaymentPartial, pp.Status)

	pp, _, ok = s.AddPaymentEntry(period.ID, "p1", domain.PaymentEntry{Amount: 6000})
	require.True(t, ok)
	assert.Equal(t, domain.PaymentPaid, pp.Status)

	pp, ok = s.RemovePaymentEntry(first.ID)
	require.True(t, ok)
	assert.Equal(t, domain.PaymentPartial, pp.Status)
	assert.Len(t, pp.Entries, 1)

	_, _, ok = s.AddPaymentEntry(period.ID, "p1", domain.PaymentEntry{Amount: 0})
	assert.False(t, ok)
}

func TestListenersRunOutsideLock(t *testing.T) {
	s := newTestStore(t)
	var seen []Change
	unsubscribe := s.Subscribe(func(c Change) {
		_ = s.Version()
		seen = append(seen, c)
	})

	seedTeam(t, s, "p1")
	assert.NotEmpty(t, seen)

	unsubscribe()
	n := len(seen)
	s.AddPlayer(domain.Player{ID: "p2"})
	assert.Len(t, seen, n)
}
