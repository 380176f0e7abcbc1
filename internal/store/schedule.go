package store

import (
	"fmt"
	"time"

	"github.com/roster-sync/internal/domain"
)

// ReleaseResult lists what a scheduled-release scan flipped
type ReleaseResult struct {
	Games         []domain.Game
	Events        []domain.Event
	Notifications []domain.AppNotification
}

// Empty reports whether the scan released nothing
func (r ReleaseResult) Empty() bool {
	return len(r.Games) == 0 && len(r.Events) == 0
}

// ScheduleResult lists what adding or updating a game or event wrote
// besides the entity itself: invite notifications, response rows seeded
// from availability and the players whose invitation was withdrawn.
type ScheduleResult struct {
	Notifications []domain.AppNotification
	Responses     []domain.ResponseRecord
	Uninvited     []string
}

// AddGame schedules a game on the active team. Invitees who are already
// unavailable on the game date are seeded into Out. A game created with
// immediate release sends its invitations right away.
func (s *Store) AddGame(g domain.Game) (domain.Game, ScheduleResult, bool) {
	var (
		out domain.Game
		res ScheduleResult
		ok  bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		if g.ID == "" {
			g.ID = s.newID()
		}
		if d.FindGame(g.ID) >= 0 {
			return nil
		}
		g.TeamID = d.Team.ID
		if g.CreatedAt.IsZero() {
			g.CreatedAt = s.now()
		}
		g.Roster = s.initialRoster(d, g.Roster)
		g.FillDefaults()
		e := gameEntry(&g)
		res.Responses = s.seedAvailability(d, e)
		if g.InviteRelease == domain.ReleaseNow {
			res.Notifications = s.sendInvites(d, e)
		}
		d.Games = append(d.Games, g.Clone())
		out, ok = g.Clone(), true
		return scheduleChanges(d.Team.ID, ScopeGames, g.ID, res.Notifications)
	})
	return out, res, ok
}

// AddEvent schedules an event on the active team
func (s *Store) AddEvent(ev domain.Event) (domain.Event, ScheduleResult, bool) {
	var (
		out domain.Event
		res ScheduleResult
		ok  bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		if ev.ID == "" {
			ev.ID = s.newID()
		}
		if d.FindEvent(ev.ID) >= 0 {
			return nil
		}
		ev.TeamID = d.Team.ID
		if ev.CreatedAt.IsZero() {
			ev.CreatedAt = s.now()
		}
		ev.Roster = s.initialRoster(d, ev.Roster)
		ev.FillDefaults()
		e := eventEntry(&ev)
		res.Responses = s.seedAvailability(d, e)
		if ev.InviteRelease == domain.ReleaseNow {
			res.Notifications = s.sendInvites(d, e)
		}
		d.Events = append(d.Events, ev.Clone())
		out, ok = ev.Clone(), true
		return scheduleChanges(d.Team.ID, ScopeEvents, ev.ID, res.Notifications)
	})
	return out, res, ok
}

// initialRoster invites the whole active roster when the team defaults to
// inviting everyone and no invite list was given.
func (s *Store) initialRoster(d *domain.TeamData, m domain.Membership) domain.Membership {
	m = m.Clone()
	if len(m.Invited) == 0 && d.Team.Settings.DefaultInviteAll {
		for _, p := range d.Players {
			if p.Status == domain.RosterActive {
				m.Invited = append(m.Invited, p.ID)
			}
		}
	}
	m.Normalize()
	return m
}

// UpdateGame replaces the schedule fields of a game. Responses of players
// who remain invited are kept, newly invited players are checked against
// their availability, and release state never moves backwards.
func (s *Store) UpdateGame(g domain.Game) (domain.Game, ScheduleResult, bool) {
	var (
		out domain.Game
		res ScheduleResult
		ok  bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		i := d.FindGame(g.ID)
		if i < 0 {
			return nil
		}
		cur := d.Games[i]
		g.TeamID = cur.TeamID
		g.CreatedAt = cur.CreatedAt
		roster := cur.Roster.Clone()
		if g.Roster.Invited != nil {
			roster.Restrict(g.Roster.Invited)
		}
		g.Roster = roster
		res.Uninvited = uninvited(cur.Roster, roster)
		keepRelease(&g.InviteRelease, &g.InviteReleaseAt, &g.InvitesSentAt, cur.InviteRelease, cur.InviteReleaseAt, cur.InvitesSentAt)
		g.FillDefaults()
		e := gameEntry(&g)
		res.Responses = s.seedAvailability(d, e)
		if g.InviteRelease == domain.ReleaseNow && g.InvitesSentAt == nil {
			res.Notifications = s.sendInvites(d, e)
		}
		d.Games[i] = g.Clone()
		out, ok = g.Clone(), true
		return scheduleChanges(d.Team.ID, ScopeGames, g.ID, res.Notifications)
	})
	return out, res, ok
}

// UpdateEvent replaces the schedule fields of an event
func (s *Store) UpdateEvent(ev domain.Event) (domain.Event, ScheduleResult, bool) {
	var (
		out domain.Event
		res ScheduleResult
		ok  bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		i := d.FindEvent(ev.ID)
		if i < 0 {
			return nil
		}
		cur := d.Events[i]
		ev.TeamID = cur.TeamID
		ev.CreatedAt = cur.CreatedAt
		roster := cur.Roster.Clone()
		if ev.Roster.Invited != nil {
			roster.Restrict(ev.Roster.Invited)
		}
		ev.Roster = roster
		res.Uninvited = uninvited(cur.Roster, roster)
		keepRelease(&ev.InviteRelease, &ev.InviteReleaseAt, &ev.InvitesSentAt, cur.InviteRelease, cur.InviteReleaseAt, cur.InvitesSentAt)
		ev.FillDefaults()
		e := eventEntry(&ev)
		res.Responses = s.seedAvailability(d, e)
		if ev.InviteRelease == domain.ReleaseNow && ev.InvitesSentAt == nil {
			res.Notifications = s.sendInvites(d, e)
		}
		d.Events[i] = ev.Clone()
		out, ok = ev.Clone(), true
		return scheduleChanges(d.Team.ID, ScopeEvents, ev.ID, res.Notifications)
	})
	return out, res, ok
}

// keepRelease stops an update from moving the release state machine
// backwards: once invitations are sent the stored state wins. A scheduled
// release stays scheduled; only its time may change here, and releasing it
// is left to the release operations.
func keepRelease(release *domain.InviteRelease, at, sent **time.Time, curRelease domain.InviteRelease, curAt, curSent *time.Time) {
	if curRelease.Sent() {
		*release, *at, *sent = curRelease, curAt, curSent
		return
	}
	if *release == "" || *release == domain.ReleaseReleased {
		*release = curRelease
	}
	if curRelease == domain.ReleaseScheduled {
		*release = domain.ReleaseScheduled
	}
	if *release == domain.ReleaseScheduled && *at == nil {
		*at = curAt
	}
	*sent = curSent
}

// uninvited returns the players invited in before but not in after
func uninvited(before, after domain.Membership) []string {
	var ids []string
	for _, id := range before.Invited {
		if !after.IsInvited(id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// RemoveGame deletes a game from the active team
func (s *Store) RemoveGame(gameID string) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		if d.Games, ok = removeByID(d.Games, gameID, gameIDOf); !ok {
			return nil
		}
		return []Change{{TeamID: d.Team.ID, Scope: ScopeGames, ID: gameID}}
	})
	return ok
}

// RemoveEvent deletes an event from the active team
func (s *Store) RemoveEvent(eventID string) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		if d.Events, ok = removeByID(d.Events, eventID, eventIDOf); !ok {
			return nil
		}
		return []Change{{TeamID: d.Team.ID, Scope: ScopeEvents, ID: eventID}}
	})
	return ok
}

// SetGameResponse records a player's check-in or check-out for a game.
// ResponseInvited returns the player to pending.
func (s *Store) SetGameResponse(gameID, playerID string, resp domain.Response, note string) (domain.ResponseRecord, bool) {
	var (
		rec domain.ResponseRecord
		ok  bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil || !resp.Valid() {
			return nil
		}
		i := d.FindGame(gameID)
		if i < 0 {
			return nil
		}
		at := s.now()
		d.Games[i].Roster.Set(playerID, resp, note, at)
		rec, ok = d.Games[i].Roster.Record(domain.KindGame, gameID, playerID, at), true
		return []Change{{TeamID: d.Team.ID, Scope: ScopeGames, ID: gameID}}
	})
	return rec, ok
}

// SetEventResponse records a player's confirm or decline for an event
func (s *Store) SetEventResponse(eventID, playerID string, resp domain.Response, note string) (domain.ResponseRecord, bool) {
	var (
		rec domain.ResponseRecord
		ok  bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil || !resp.Valid() {
			return nil
		}
		i := d.FindEvent(eventID)
		if i < 0 {
			return nil
		}
		at := s.now()
		d.Events[i].Roster.Set(playerID, resp, note, at)
		rec, ok = d.Events[i].Roster.Record(domain.KindEvent, eventID, playerID, at), true
		return []Change{{TeamID: d.Team.ID, Scope: ScopeEvents, ID: eventID}}
	})
	return rec, ok
}

// ReleaseGameInvites sends a game's invitations now. Releasing an already
// released game is a no-op.
func (s *Store) ReleaseGameInvites(gameID string) (domain.Game, []domain.AppNotification, bool) {
	var (
		out    domain.Game
		notifs []domain.AppNotification
		ok     bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		i := d.FindGame(gameID)
		if i < 0 || d.Games[i].InviteRelease.Sent() {
			return nil
		}
		notifs = s.release(d, gameEntry(&d.Games[i]))
		out, ok = d.Games[i].Clone(), true
		return scheduleChanges(d.Team.ID, ScopeGames, gameID, notifs)
	})
	return out, notifs, ok
}

// ReleaseEventInvites sends an event's invitations now
func (s *Store) ReleaseEventInvites(eventID string) (domain.Event, []domain.AppNotification, bool) {
	var (
		out    domain.Event
		notifs []domain.AppNotification
		ok     bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		i := d.FindEvent(eventID)
		if i < 0 || d.Events[i].InviteRelease.Sent() {
			return nil
		}
		notifs = s.release(d, eventEntry(&d.Events[i]))
		out, ok = d.Events[i].Clone(), true
		return scheduleChanges(d.Team.ID, ScopeEvents, eventID, notifs)
	})
	return out, notifs, ok
}

// ReleaseScheduledInvites flips every scheduled game and event of the
// active team whose release time is at or before now and whose invitations
// have not gone out, creating one invite notification per invited player.
// Calling it again releases nothing new.
func (s *Store) ReleaseScheduledInvites(now time.Time) ReleaseResult {
	var res ReleaseResult
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		for i := range d.Games {
			e := gameEntry(&d.Games[i])
			if !due(e, now) {
				continue
			}
			res.Notifications = append(res.Notifications, s.release(d, e)...)
			res.Games = append(res.Games, d.Games[i].Clone())
		}
		for i := range d.Events {
			e := eventEntry(&d.Events[i])
			if !due(e, now) {
				continue
			}
			res.Notifications = append(res.Notifications, s.release(d, e)...)
			res.Events = append(res.Events, d.Events[i].Clone())
		}
		if res.Empty() {
			return nil
		}
		changes := []Change{{TeamID: d.Team.ID, Scope: ScopeNotifications}}
		if len(res.Games) > 0 {
			changes = append(changes, Change{TeamID: d.Team.ID, Scope: ScopeGames})
		}
		if len(res.Events) > 0 {
			changes = append(changes, Change{TeamID: d.Team.ID, Scope: ScopeEvents})
		}
		return changes
	})
	return res
}

func due(e entry, now time.Time) bool {
	return *e.release == domain.ReleaseScheduled &&
		e.releaseAt != nil &&
		!e.releaseAt.After(now) &&
		*e.sentAt == nil
}

// release moves an entry to its terminal sent state: none becomes now and
// scheduled becomes released.
func (s *Store) release(d *domain.TeamData, e entry) []domain.AppNotification {
	if *e.release == domain.ReleaseScheduled {
		*e.release = domain.ReleaseReleased
	} else {
		*e.release = domain.ReleaseNow
	}
	return s.sendInvites(d, e)
}

// sendInvites stamps the entry as sent and appends one invite notification
// per invited player to the team.
func (s *Store) sendInvites(d *domain.TeamData, e entry) []domain.AppNotification {
	now := s.now()
	*e.sentAt = &now

	typ := domain.NotifyGameInvite
	title := fmt.Sprintf("New game: %s", e.title)
	if e.kind == domain.KindEvent {
		typ = domain.NotifyEventInvite
		title = fmt.Sprintf("New event: %s", e.title)
	}

	notifs := make([]domain.AppNotification, 0, len(e.roster.Invited))
	for _, playerID := range e.roster.Invited {
		n := domain.AppNotification{
			ID:         s.newID(),
			TeamID:     d.Team.ID,
			ToPlayerID: playerID,
			Type:       typ,
			Title:      title,
			Message:    e.date,
			CreatedAt:  now,
		}
		if e.kind == domain.KindGame {
			n.GameID = e.id
		} else {
			n.EventID = e.id
		}
		notifs = append(notifs, n)
	}
	d.Notifications = append(d.Notifications, notifs...)
	return notifs
}

func scheduleChanges(teamID string, scope Scope, id string, notifs []domain.AppNotification) []Change {
	changes := []Change{{TeamID: teamID, Scope: scope, ID: id}}
	if len(notifs) > 0 {
		changes = append(changes, Change{TeamID: teamID, Scope: ScopeNotifications})
	}
	return changes
}
