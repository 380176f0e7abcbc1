package store

import (
	"slices"

	"github.com/roster-sync/internal/domain"
)

// CreateTeam adds a team and makes it active when no team is. The creator,
// if given, joins the roster as admin and becomes the session's player.
func (s *Store) CreateTeam(team domain.Team, creator *domain.Player) (domain.TeamData, bool) {
	var (
		out domain.TeamData
		ok  bool
	)
	s.mutate(func() []Change {
		if team.ID == "" {
			team.ID = s.newID()
		}
		if _, exists := s.teams[team.ID]; exists {
			return nil
		}
		now := s.now()
		if team.CreatedAt.IsZero() {
			team.CreatedAt = now
		}
		team.UpdatedAt = now
		d := s.addTeamLocked(domain.NewTeamData(team))
		if creator != nil {
			p := creator.Clone()
			if p.ID == "" {
				p.ID = s.newID()
			}
			p.TeamID = team.ID
			if p.Status == "" {
				p.Status = domain.RosterActive
			}
			if !p.HasRole(domain.RoleAdmin) {
				p.Roles = append(p.Roles, domain.RoleAdmin)
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			d.Players = append(d.Players, p)
		}
		changes := []Change{{TeamID: team.ID, Scope: ScopeTeam, ID: team.ID}}
		if s.active == "" {
			s.active = team.ID
			s.session.PlayerID = s.resolvePlayerLocked(d)
			changes = append(changes, Change{TeamID: team.ID, Scope: ScopeSession})
		}
		out, ok = d.Clone(), true
		return changes
	})
	return out, ok
}

// UpdateTeam replaces the name, sport and settings of a known team
func (s *Store) UpdateTeam(team domain.Team) (domain.Team, bool) {
	var (
		out domain.Team
		ok  bool
	)
	s.mutate(func() []Change {
		d, exists := s.teams[team.ID]
		if !exists {
			return nil
		}
		d.Team.Name = team.Name
		d.Team.Sport = team.Sport
		d.Team.Settings = team.Clone().Settings
		d.Team.UpdatedAt = s.now()
		out, ok = d.Team.Clone(), true
		return []Change{{TeamID: team.ID, Scope: ScopeTeam, ID: team.ID}}
	})
	return out, ok
}

// RemoveTeam deletes a team. When it was active another team, if any,
// becomes active; when no team remains the session identity is cleared.
func (s *Store) RemoveTeam(teamID string) bool {
	var ok bool
	s.mutate(func() []Change {
		if _, exists := s.teams[teamID]; !exists {
			return nil
		}
		ok = true
		delete(s.teams, teamID)
		s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == teamID })
		s.session.PendingTeamIDs = slices.DeleteFunc(s.session.PendingTeamIDs, func(id string) bool { return id == teamID })

		changes := []Change{{TeamID: teamID, Scope: ScopeTeam, ID: teamID}}
		if len(s.teams) == 0 {
			s.active = ""
			s.session = domain.Session{}
			return append(changes, Change{Scope: ScopeSession})
		}
		if s.active == teamID {
			s.active = s.order[0]
			s.session.PlayerID = s.resolvePlayerLocked(s.teams[s.active])
			changes = append(changes, Change{TeamID: s.active, Scope: ScopeSession})
		}
		return changes
	})
	return ok
}

// SwitchTeam makes teamID the active team. An unknown team gets an empty
// placeholder that a full load fills in. The session's player id is
// resolved by matching the session email or phone against the destination
// roster. It reports whether the active team changed.
func (s *Store) SwitchTeam(teamID string) bool {
	var ok bool
	s.mutate(func() []Change {
		if teamID == "" || teamID == s.active {
			return nil
		}
		d, exists := s.teams[teamID]
		if !exists {
			d = s.addTeamLocked(domain.NewTeamData(domain.Team{ID: teamID}))
		}
		s.active = teamID
		s.session.PlayerID = s.resolvePlayerLocked(d)
		ok = true
		return []Change{{TeamID: teamID, Scope: ScopeSession}}
	})
	return ok
}

// resolvePlayerLocked finds the session user on a roster
func (s *Store) resolvePlayerLocked(d *domain.TeamData) string {
	for _, p := range d.Players {
		if p.MatchesIdentity(s.session.Email, s.session.Phone) {
			return p.ID
		}
	}
	if d.FindPlayer(s.session.PlayerID) >= 0 {
		return s.session.PlayerID
	}
	return ""
}

// SetSession replaces the session identity and resolves the player id on
// the active team.
func (s *Store) SetSession(sess domain.Session) {
	s.mutate(func() []Change {
		s.session = sess.Clone()
		if d := s.activeData(); d != nil {
			if id := s.resolvePlayerLocked(d); id != "" {
				s.session.PlayerID = id
			}
		}
		return []Change{{TeamID: s.active, Scope: ScopeSession}}
	})
}

// SetPendingTeams records the teams a user belongs to while they pick one
func (s *Store) SetPendingTeams(teamIDs []string) {
	s.mutate(func() []Change {
		s.session.PendingTeamIDs = slices.Clone(teamIDs)
		return []Change{{TeamID: s.active, Scope: ScopeSession}}
	})
}

// ClearSession signs the user out after an authentication failure. Team
// data stays cached so the next sign-in starts warm.
func (s *Store) ClearSession() {
	s.mutate(func() []Change {
		if !s.session.LoggedIn && s.session.PlayerID == "" && s.session.Email == "" && s.session.Phone == "" {
			return nil
		}
		s.session = domain.Session{}
		return []Change{{TeamID: s.active, Scope: ScopeSession}}
	})
}

// Logout clears the session and forgets every team
func (s *Store) Logout() {
	s.mutate(func() []Change {
		s.session = domain.Session{}
		s.teams = make(map[string]*domain.TeamData)
		s.order = nil
		s.active = ""
		return []Change{{Scope: ScopeAll}}
	})
}
