package store

import (
	"github.com/roster-sync/internal/domain"
)

// AddPlayer adds a player to the active team, assigning an id when empty
func (s *Store) AddPlayer(p domain.Player) (domain.Player, bool) {
	var (
		out domain.Player
		ok  bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		if p.ID == "" {
			p.ID = s.newID()
		}
		if d.FindPlayer(p.ID) >= 0 {
			return nil
		}
		p.TeamID = d.Team.ID
		if p.Status == "" {
			p.Status = domain.RosterActive
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = s.now()
		}
		d.Players = append(d.Players, p.Clone())
		out, ok = p.Clone(), true
		return []Change{{TeamID: d.Team.ID, Scope: ScopePlayers, ID: p.ID}}
	})
	return out, ok
}

// UpdatePlayer replaces a player of the active team. When any availability
// field changed the player is re-evaluated against every upcoming game and
// event; the response rows that moved are returned for write-through.
func (s *Store) UpdatePlayer(p domain.Player) ([]domain.ResponseRecord, bool) {
	var (
		records []domain.ResponseRecord
		ok      bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		i := d.FindPlayer(p.ID)
		if i < 0 {
			return nil
		}
		records, ok = s.replacePlayer(d, i, p), true
		return playerChanges(d.Team.ID, p.ID, records)
	})
	return records, ok
}

// SetPlayerStatus updates the injury and suspension flags and their end
// date, then cascades the result into upcoming games and events.
func (s *Store) SetPlayerStatus(playerID string, injured, suspended bool, endDate string) ([]domain.ResponseRecord, bool) {
	var (
		records []domain.ResponseRecord
		ok      bool
	)
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		i := d.FindPlayer(playerID)
		if i < 0 {
			return nil
		}
		p := d.Players[i].Clone()
		p.IsInjured = injured
		p.IsSuspended = suspended
		p.StatusEndDate = endDate
		if !injured && !suspended {
			p.StatusEndDate = ""
		}
		records, ok = s.replacePlayer(d, i, p), true
		return playerChanges(d.Team.ID, playerID, records)
	})
	return records, ok
}

// replacePlayer stores p at index i and cascades availability if needed.
// Callers hold mu.
func (s *Store) replacePlayer(d *domain.TeamData, i int, p domain.Player) []domain.ResponseRecord {
	before := d.Players[i]
	p.TeamID = before.TeamID
	if p.CreatedAt.IsZero() {
		p.CreatedAt = before.CreatedAt
	}
	d.Players[i] = p.Clone()
	if !domain.AvailabilityChanged(before, p) {
		return nil
	}
	return s.cascadeAvailability(d, p)
}

func playerChanges(teamID, playerID string, records []domain.ResponseRecord) []Change {
	changes := []Change{{TeamID: teamID, Scope: ScopePlayers, ID: playerID}}
	var games, events bool
	for _, r := range records {
		if r.Kind == domain.KindGame {
			games = true
		} else {
			events = true
		}
	}
	if games {
		changes = append(changes, Change{TeamID: teamID, Scope: ScopeGames})
	}
	if events {
		changes = append(changes, Change{TeamID: teamID, Scope: ScopeEvents})
	}
	return changes
}

// RemovePlayer deletes a player from the active team and every reference to
// them: membership sets, chat authorship, notifications addressed to them,
// poll votes and player payments.
func (s *Store) RemovePlayer(playerID string) bool {
	var ok bool
	s.mutate(func() []Change {
		d := s.activeData()
		if d == nil {
			return nil
		}
		d.Players, ok = removeByID(d.Players, playerID, playerIDOf)
		if !ok {
			return nil
		}
		removePlayerEverywhere(d, playerID)
		if s.session.PlayerID == playerID {
			s.session.PlayerID = ""
		}
		return []Change{{TeamID: d.Team.ID, Scope: ScopeAll, ID: playerID}}
	})
	return ok
}
