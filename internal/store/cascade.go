package store

import (
	"time"

	"github.com/roster-sync/internal/domain"
)

// entry is a uniform view over a game or an event so availability and
// release rules are written once.
type entry struct {
	kind      domain.EntityKind
	id        string
	teamID    string
	date      string
	title     string
	release   *domain.InviteRelease
	releaseAt *time.Time
	sentAt    **time.Time
	roster    *domain.Membership
}

func gameEntry(g *domain.Game) entry {
	return entry{
		kind:      domain.KindGame,
		id:        g.ID,
		teamID:    g.TeamID,
		date:      g.Date,
		title:     "vs " + g.Opponent,
		release:   &g.InviteRelease,
		releaseAt: g.InviteReleaseAt,
		sentAt:    &g.InvitesSentAt,
		roster:    &g.Roster,
	}
}

func eventEntry(e *domain.Event) entry {
	return entry{
		kind:      domain.KindEvent,
		id:        e.ID,
		teamID:    e.TeamID,
		date:      e.Date,
		title:     e.Title,
		release:   &e.InviteRelease,
		releaseAt: e.InviteReleaseAt,
		sentAt:    &e.InvitesSentAt,
		roster:    &e.Roster,
	}
}

// applyAvailability reconciles one player's response on one game or event
// with their availability. An unavailable player is moved to Out with the
// reason tag; a player who is available again leaves Out only when the
// current note is a tag the cascade wrote. Manual declines are never touched.
func applyAvailability(m *domain.Membership, p domain.Player, date string, kind domain.EntityKind, at time.Time) bool {
	reason, unavailable := p.UnavailableOn(date, kind)
	current := m.ResponseOf(p.ID)
	note := m.Note(p.ID)

	if unavailable {
		if current == domain.ResponseOut && (note == reason || !domain.IsAutoReason(note)) {
			return false
		}
		m.Set(p.ID, domain.ResponseOut, reason, at)
		return true
	}
	if current == domain.ResponseOut && domain.IsAutoReason(note) {
		m.Set(p.ID, domain.ResponseInvited, "", at)
		return true
	}
	return false
}

// cascadeAvailability re-evaluates a player against every game and event
// dated today or later that they are invited to and returns the response
// rows that changed.
func (s *Store) cascadeAvailability(d *domain.TeamData, p domain.Player) []domain.ResponseRecord {
	today := s.today()
	at := s.now()
	var changed []domain.ResponseRecord

	visit := func(e entry) {
		if e.date < today || !e.roster.IsInvited(p.ID) {
			return
		}
		if applyAvailability(e.roster, p, e.date, e.kind, at) {
			changed = append(changed, e.roster.Record(e.kind, e.id, p.ID, at))
		}
	}
	for i := range d.Games {
		visit(gameEntry(&d.Games[i]))
	}
	for i := range d.Events {
		visit(eventEntry(&d.Events[i]))
	}
	return changed
}

// seedAvailability pre-declines invitees who are already unavailable when a
// game or event is created or its invite list or date changes, and returns
// the response rows it wrote.
func (s *Store) seedAvailability(d *domain.TeamData, e entry) []domain.ResponseRecord {
	at := s.now()
	var changed []domain.ResponseRecord
	for _, id := range e.roster.Invited {
		i := d.FindPlayer(id)
		if i < 0 {
			continue
		}
		if applyAvailability(e.roster, d.Players[i], e.date, e.kind, at) {
			changed = append(changed, e.roster.Record(e.kind, e.id, id, at))
		}
	}
	return changed
}

// removePlayerEverywhere drops every reference to a player across the team
func removePlayerEverywhere(d *domain.TeamData, playerID string) {
	for i := range d.Games {
		d.Games[i].Roster.Drop(playerID)
	}
	for i := range d.Events {
		d.Events[i].Roster.Drop(playerID)
	}
	for i := range d.Chat {
		if d.Chat[i].SenderID == playerID {
			d.Chat[i].SenderID = ""
		}
	}
	kept := d.Notifications[:0]
	for _, n := range d.Notifications {
		if n.ToPlayerID != playerID {
			kept = append(kept, n)
		}
	}
	d.Notifications = kept
	for i := range d.Polls {
		d.Polls[i].RemoveVoter(playerID)
	}
	for i := range d.PaymentPeriods {
		pp := d.PaymentPeriods[i].PlayerPayments[:0]
		for _, p := range d.PaymentPeriods[i].PlayerPayments {
			if p.PlayerID != playerID {
				pp = append(pp, p)
			}
		}
		d.PaymentPeriods[i].PlayerPayments = pp
	}
}
