package store

import (
	"reflect"

	"github.com/roster-sync/internal/domain"
)

// The merge API applies remote state. Every call names the team the data
// belongs to and is dropped unless that team is still the active one, so a
// load or change event that completes after a team switch cannot clobber
// the new team. Merges are idempotent: applying the same row twice leaves
// the store as applying it once, and an echo of a local write reports no
// change.

// InstallTeam replaces the active team's data with a fully loaded copy
func (s *Store) InstallTeam(data domain.TeamData) bool {
	var ok bool
	s.mutate(func() []Change {
		cur := s.guard(data.Team.ID)
		if cur == nil {
			return nil
		}
		data = data.Clone()
		if data.Team.Name == "" && data.Team.CreatedAt.IsZero() {
			data.Team = cur.Team.Clone()
		}
		for i := range data.PaymentPeriods {
			data.PaymentPeriods[i].RecomputeAll()
		}
		if reflect.DeepEqual(*cur, data) {
			return nil
		}
		*cur = data
		s.session.PlayerID = s.resolvePlayerLocked(cur)
		ok = true
		return []Change{{TeamID: data.Team.ID, Scope: ScopeAll}}
	})
	return ok
}

// MergeTeam applies a teams row
func (s *Store) MergeTeam(team domain.Team) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.guard(team.ID)
		if d == nil || reflect.DeepEqual(d.Team, team) {
			return nil
		}
		d.Team = team.Clone()
		ok = true
		return []Change{{TeamID: team.ID, Scope: ScopeTeam, ID: team.ID}}
	})
	return ok
}

// MergePlayer applies a players row. A change to availability is cascaded
// locally; the writer of the row pushes the resulting responses itself.
func (s *Store) MergePlayer(teamID string, p domain.Player) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.guard(teamID)
		if d == nil {
			return nil
		}
		p.TeamID = teamID
		i := d.FindPlayer(p.ID)
		if i < 0 {
			d.Players = append(d.Players, p.Clone())
			ok = true
			return []Change{{TeamID: teamID, Scope: ScopePlayers, ID: p.ID}}
		}
		if reflect.DeepEqual(d.Players[i], p) {
			return nil
		}
		records := s.replacePlayer(d, i, p)
		ok = true
		return playerChanges(teamID, p.ID, records)
	})
	return ok
}

// DeletePlayer applies a players delete
func (s *Store) DeletePlayer(teamID, playerID string) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.guard(teamID)
		if d == nil {
			return nil
		}
		if d.Players, ok = removeByID(d.Players, playerID, playerIDOf); !ok {
			return nil
		}
		removePlayerEverywhere(d, playerID)
		return []Change{{TeamID: teamID, Scope: ScopeAll, ID: playerID}}
	})
	return ok
}

// MergeGame applies a games row. The row carries only the invite list, so
// the local membership sets are kept and restricted to that list rather
// than replaced with empty defaults.
func (s *Store) MergeGame(teamID string, g domain.Game) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.guard(teamID)
		if d == nil {
			return nil
		}
		g = g.Clone()
		g.TeamID = teamID
		g.FillDefaults()
		if i := d.FindGame(g.ID); i >= 0 {
			roster := d.Games[i].Roster.Clone()
			roster.Restrict(g.Roster.Invited)
			g.Roster = roster
			g.Roster.Normalize()
		}
		d.Games, ok = upsertByID(d.Games, g, gameIDOf)
		if !ok {
			return nil
		}
		return []Change{{TeamID: teamID, Scope: ScopeGames, ID: g.ID}}
	})
	return ok
}

// MergeEvent applies an events row
func (s *Store) MergeEvent(teamID string, ev domain.Event) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.guard(teamID)
		if d == nil {
			return nil
		}
		ev = ev.Clone()
		ev.TeamID = teamID
		ev.FillDefaults()
		if i := d.FindEvent(ev.ID); i >= 0 {
			roster := d.Events[i].Roster.Clone()
			roster.Restrict(ev.Roster.Invited)
			ev.Roster = roster
			ev.Roster.Normalize()
		}
		d.Events, ok = upsertByID(d.Events, ev, eventIDOf)
		if !ok {
			return nil
		}
		return []Change{{TeamID: teamID, Scope: ScopeEvents, ID: ev.ID}}
	})
	return ok
}

// DeleteGame applies a games delete
func (s *Store) DeleteGame(teamID, gameID string) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.guard(teamID)
		if d == nil {
			return nil
		}
		if d.Games, ok = removeByID(d.Games, gameID, gameIDOf); !ok {
			return nil
		}
		return []Change{{TeamID: teamID, Scope: ScopeGames, ID: gameID}}
	})
	return ok
}

// DeleteEvent applies an events delete
func (s *Store) DeleteEvent(teamID, eventID string) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.guard(teamID)
		if d == nil {
			return nil
		}
		if d.Events, ok = removeByID(d.Events, eventID, eventIDOf); !ok {
			return nil
		}
		return []Change{{TeamID: teamID, Scope: ScopeEvents, ID: eventID}}
	})
	return ok
}

// ApplyGameResponse folds a single game_responses row into its game. Rows
// for games not known locally are dropped; the next full load folds them.
// A row older than the one already applied for the player, or for a player
// the game does not invite, changes nothing.
func (s *Store) ApplyGameResponse(teamID string, rec domain.ResponseRecord) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.guard(teamID)
		if d == nil {
			return nil
		}
		i := d.FindGame(rec.EntityID)
		if i < 0 {
			s.logger.Debug("dropping response for unknown game", "team_id", teamID, "game_id", rec.EntityID)
			return nil
		}
		if ok = d.Games[i].Roster.Apply(rec); !ok {
			return nil
		}
		return []Change{{TeamID: teamID, Scope: ScopeGames, ID: rec.EntityID}}
	})
	return ok
}

// ApplyEventResponse folds a single event_responses row into its event
func (s *Store) ApplyEventResponse(teamID string, rec domain.ResponseRecord) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.guard(teamID)
		if d == nil {
			return nil
		}
		i := d.FindEvent(rec.EntityID)
		if i < 0 {
			s.logger.Debug("dropping response for unknown event", "team_id", teamID, "event_id", rec.EntityID)
			return nil
		}
		if ok = d.Events[i].Roster.Apply(rec); !ok {
			return nil
		}
		return []Change{{TeamID: teamID, Scope: ScopeEvents, ID: rec.EntityID}}
	})
	return ok
}

// RemoveGameResponse applies a game_responses delete: the player returns to
// pending but stays invited.
func (s *Store) RemoveGameResponse(teamID, gameID, playerID string) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.guard(teamID)
		if d == nil {
			return nil
		}
		i := d.FindGame(gameID)
		if i < 0 {
			return nil
		}
		before := d.Games[i].Roster.Clone()
		d.Games[i].Roster.Clear(playerID)
		d.Games[i].Roster.Normalize()
		if ok = !reflect.DeepEqual(before, d.Games[i].Roster); !ok {
			return nil
		}
		return []Change{{TeamID: teamID, Scope: ScopeGames, ID: gameID}}
	})
	return ok
}

// RemoveEventResponse applies an event_responses delete
func (s *Store) RemoveEventResponse(teamID, eventID, playerID string) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.guard(teamID)
		if d == nil {
			return nil
		}
		i := d.FindEvent(eventID)
		if i < 0 {
			return nil
		}
		before := d.Events[i].Roster.Clone()
		d.Events[i].Roster.Clear(playerID)
		d.Events[i].Roster.Normalize()
		if ok = !reflect.DeepEqual(before, d.Events[i].Roster); !ok {
			return nil
		}
		return []Change{{TeamID: teamID, Scope: ScopeEvents, ID: eventID}}
	})
	return ok
}

// ReplacePayments installs a refetched payments collection
func (s *Store) ReplacePayments(teamID string, periods []domain.PaymentPeriod) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.guard(teamID)
		if d == nil {
			return nil
		}
		next := make([]domain.PaymentPeriod, len(periods))
		for i, p := range periods {
			next[i] = p.Clone()
			next[i].RecomputeAll()
		}
		if reflect.DeepEqual(d.PaymentPeriods, next) {
			return nil
		}
		d.PaymentPeriods = next
		ok = true
		return []Change{{TeamID: teamID, Scope: ScopePayments}}
	})
	return ok
}

// UpsertChatMessage applies a chat_messages row
func (s *Store) UpsertChatMessage(teamID string, msg domain.ChatMessage) bool {
	return s.mergeInto(teamID, ScopeChat, msg.ID, func(d *domain.TeamData) bool {
		var ok bool
		d.Chat, ok = upsertByID(d.Chat, msg, chatIDOf)
		return ok
	})
}

// DeleteChatMessage applies a chat_messages delete
func (s *Store) DeleteChatMessage(teamID, id string) bool {
	return s.mergeInto(teamID, ScopeChat, id, func(d *domain.TeamData) bool {
		var ok bool
		d.Chat, ok = removeByID(d.Chat, id, chatIDOf)
		return ok
	})
}

// UpsertPhoto applies a photos row
func (s *Store) UpsertPhoto(teamID string, p domain.Photo) bool {
	return s.mergeInto(teamID, ScopePhotos, p.ID, func(d *domain.TeamData) bool {
		var ok bool
		d.Photos, ok = upsertByID(d.Photos, p, photoIDOf)
		return ok
	})
}

// DeletePhoto applies a photos delete
func (s *Store) DeletePhoto(teamID, id string) bool {
	return s.mergeInto(teamID, ScopePhotos, id, func(d *domain.TeamData) bool {
		var ok bool
		d.Photos, ok = removeByID(d.Photos, id, photoIDOf)
		return ok
	})
}

// UpsertNotification applies a notifications row
func (s *Store) UpsertNotification(teamID string, n domain.AppNotification) bool {
	return s.mergeInto(teamID, ScopeNotifications, n.ID, func(d *domain.TeamData) bool {
		var ok bool
		d.Notifications, ok = upsertByID(d.Notifications, n, notificationIDOf)
		return ok
	})
}

// DeleteNotification applies a notifications delete
func (s *Store) DeleteNotification(teamID, id string) bool {
	return s.mergeInto(teamID, ScopeNotifications, id, func(d *domain.TeamData) bool {
		var ok bool
		d.Notifications, ok = removeByID(d.Notifications, id, notificationIDOf)
		return ok
	})
}

// UpsertPoll applies a polls row
func (s *Store) UpsertPoll(teamID string, p domain.Poll) bool {
	p = p.Clone()
	return s.mergeInto(teamID, ScopePolls, p.ID, func(d *domain.TeamData) bool {
		var ok bool
		d.Polls, ok = upsertByID(d.Polls, p, pollIDOf)
		return ok
	})
}

// DeletePoll applies a polls delete
func (s *Store) DeletePoll(teamID, id string) bool {
	return s.mergeInto(teamID, ScopePolls, id, func(d *domain.TeamData) bool {
		var ok bool
		d.Polls, ok = removeByID(d.Polls, id, pollIDOf)
		return ok
	})
}

// UpsertLink applies a team_links row
func (s *Store) UpsertLink(teamID string, l domain.TeamLink) bool {
	return s.mergeInto(teamID, ScopeLinks, l.ID, func(d *domain.TeamData) bool {
		var ok bool
		d.Links, ok = upsertByID(d.Links, l, linkIDOf)
		return ok
	})
}

// DeleteLink applies a team_links delete
func (s *Store) DeleteLink(teamID, id string) bool {
	return s.mergeInto(teamID, ScopeLinks, id, func(d *domain.TeamData) bool {
		var ok bool
		d.Links, ok = removeByID(d.Links, id, linkIDOf)
		return ok
	})
}

func (s *Store) mergeInto(teamID string, scope Scope, id string, fn func(*domain.TeamData) bool) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.guard(teamID)
		if d == nil {
			return nil
		}
		if ok = fn(d); !ok {
			return nil
		}
		return []Change{{TeamID: teamID, Scope: scope, ID: id}}
	})
	return ok
}
