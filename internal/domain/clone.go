package domain

import (
	"maps"
	"slices"
)

// Clone returns a deep copy of the player
func (p Player) Clone() Player {
	c := p
	c.Roles = slices.Clone(p.Roles)
	c.UnavailableDates = slices.Clone(p.UnavailableDates)
	c.Stats = maps.Clone(p.Stats)
	if p.GameStats != nil {
		c.GameStats = make(map[string]map[string]int, len(p.GameStats))
		for k, v := range p.GameStats {
			c.GameStats[k] = maps.Clone(v)
		}
	}
	return c
}

// Clone returns a deep copy of the game
func (g Game) Clone() Game {
	c := g
	c.Roster = g.Roster.Clone()
	if g.Result != nil {
		r := *g.Result
		c.Result = &r
	}
	if g.InviteReleaseAt != nil {
		t := *g.InviteReleaseAt
		c.InviteReleaseAt = &t
	}
	if g.InvitesSentAt != nil {
		t := *g.InvitesSentAt
		c.InvitesSentAt = &t
	}
	return c
}

// Clone returns a deep copy of the event
func (e Event) Clone() Event {
	c := e
	c.Roster = e.Roster.Clone()
	if e.InviteReleaseAt != nil {
		t := *e.InviteReleaseAt
		c.InviteReleaseAt = &t
	}
	if e.InvitesSentAt != nil {
		t := *e.InvitesSentAt
		c.InvitesSentAt = &t
	}
	return c
}

// Clone returns a deep copy of the team
func (t Team) Clone() Team {
	c := t
	c.Settings.JerseyColors = slices.Clone(t.Settings.JerseyColors)
	c.Settings.PaymentMethods = slices.Clone(t.Settings.PaymentMethods)
	return c
}

// Clone returns a deep copy of the session
func (s Session) Clone() Session {
	c := s
	c.PendingTeamIDs = slices.Clone(s.PendingTeamIDs)
	return c
}

// Clone returns a deep copy of everything the team owns
func (d TeamData) Clone() TeamData {
	c := TeamData{
		Team:          d.Team.Clone(),
		Players:       make([]Player, len(d.Players)),
		Games:         make([]Game, len(d.Games)),
		Events:        make([]Event, len(d.Events)),
		Chat:          slices.Clone(d.Chat),
		Photos:        slices.Clone(d.Photos),
		Notifications: slices.Clone(d.Notifications),
		Links:         slices.Clone(d.Links),
	}
	for i, p := range d.Players {
		c.Players[i] = p.Clone()
	}
	for i, g := range d.Games {
		c.Games[i] = g.Clone()
	}
	for i, e := range d.Events {
		c.Events[i] = e.Clone()
	}
	c.PaymentPeriods = make([]PaymentPeriod, len(d.PaymentPeriods))
	for i, p := range d.PaymentPeriods {
		c.PaymentPeriods[i] = p.Clone()
	}
	c.Polls = make([]Poll, len(d.Polls))
	for i, p := range d.Polls {
		c.Polls[i] = p.Clone()
	}
	c.FillDefaults()
	return c
}
