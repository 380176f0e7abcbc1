package store

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/roster-sync/internal/domain"
)

// SchemaVersion is the persisted-state layout written by MarshalSnapshot.
// Version 1 kept a live copy of the active team at the top level next to
// the cold teams collection; version 2 keeps every team in the collection.
const SchemaVersion = 2

const (
	keySchemaVersion = "schema_version"
	keyActiveTeamID  = "active_team_id"
	keyTeams         = "teams"
	keySession       = "session"
)

// legacy version 1 keys, consumed by migrateV1
var legacySessionKeys = []string{
	"current_team_id",
	"current_user_email",
	"current_user_phone",
	"current_player_id",
	"is_logged_in",
	"pending_team_ids",
}

var legacyTeamKeys = []string{
	"team",
	"players",
	"games",
	"events",
	"chat",
	"payment_periods",
	"photos",
	"notifications",
	"polls",
	"links",
}

// MarshalSnapshot encodes the whole store. Keys this version does not know
// about, read by RestoreSnapshot, are written back untouched.
func (s *Store) MarshalSnapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	teams := make([]domain.TeamData, 0, len(s.order))
	for _, id := range s.order {
		teams = append(teams, s.teams[id].Clone())
	}

	doc := make(map[string]any, len(s.extra)+4)
	for k, v := range s.extra {
		doc[k] = v
	}
	doc[keySchemaVersion] = SchemaVersion
	doc[keyActiveTeamID] = s.active
	doc[keyTeams] = teams
	doc[keySession] = s.session

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// RestoreSnapshot replaces the store contents with a persisted snapshot,
// migrating older layouts. Missing fields are default-filled and payment
// statuses are recomputed.
func (s *Store) RestoreSnapshot(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}

	version := 1
	if v, ok := raw[keySchemaVersion]; ok {
		if err := json.Unmarshal(v, &version); err != nil {
			return fmt.Errorf("decoding snapshot schema version: %w", err)
		}
	}

	var (
		active  string
		teams   []domain.TeamData
		session domain.Session
	)
	if err := decodeKey(raw, keyActiveTeamID, &active); err != nil {
		return err
	}
	if err := decodeKey(raw, keyTeams, &teams); err != nil {
		return err
	}
	if err := decodeKey(raw, keySession, &session); err != nil {
		return err
	}

	if version < 2 {
		var err error
		if active, teams, session, err = migrateV1(raw, active, teams, session); err != nil {
			return err
		}
	}

	extra := maps.Clone(raw)
	for _, k := range []string{keySchemaVersion, keyActiveTeamID, keyTeams, keySession} {
		delete(extra, k)
	}

	s.mutate(func() []Change {
		s.teams = make(map[string]*domain.TeamData, len(teams))
		s.order = nil
		for _, d := range teams {
			if d.Team.ID == "" {
				continue
			}
			normalizeTeam(&d)
			s.addTeamLocked(d)
		}
		s.active = ""
		if _, ok := s.teams[active]; ok {
			s.active = active
		}
		s.session = session
		s.extra = extra
		return []Change{{TeamID: s.active, Scope: ScopeAll}}
	})
	return nil
}

// migrateV1 folds the legacy top-level live copy of the active team into
// that team's entry in the collection, where the live copy wins, and
// lifts the flat session fields into the session object.
func migrateV1(raw map[string]json.RawMessage, active string, teams []domain.TeamData, session domain.Session) (string, []domain.TeamData, domain.Session, error) {
	var legacy struct {
		CurrentTeamID    string   `json:"current_team_id"`
		CurrentUserEmail string   `json:"current_user_email"`
		CurrentUserPhone string   `json:"current_user_phone"`
		CurrentPlayerID  string   `json:"current_player_id"`
		IsLoggedIn       bool     `json:"is_logged_in"`
		PendingTeamIDs   []string `json:"pending_team_ids"`
	}
	flat := make(map[string]json.RawMessage)
	for _, k := range legacySessionKeys {
		if v, ok := raw[k]; ok {
			flat[k] = v
		}
	}
	if len(flat) > 0 {
		b, _ := json.Marshal(flat)
		if err := json.Unmarshal(b, &legacy); err != nil {
			return "", nil, domain.Session{}, fmt.Errorf("decoding legacy session: %w", err)
		}
		if active == "" {
			active = legacy.CurrentTeamID
		}
		session = domain.Session{
			Email:          legacy.CurrentUserEmail,
			Phone:          legacy.CurrentUserPhone,
			PlayerID:       legacy.CurrentPlayerID,
			LoggedIn:       legacy.IsLoggedIn,
			PendingTeamIDs: legacy.PendingTeamIDs,
		}
	}

	live := make(map[string]json.RawMessage)
	for _, k := range legacyTeamKeys {
		if v, ok := raw[k]; ok {
			live[k] = v
		}
	}
	for _, k := range legacySessionKeys {
		delete(raw, k)
	}
	for _, k := range legacyTeamKeys {
		delete(raw, k)
	}
	if active == "" || len(live) == 0 {
		return active, teams, session, nil
	}

	idx := -1
	for i := range teams {
		if teams[i].Team.ID == active {
			idx = i
			break
		}
	}
	if idx < 0 {
		teams = append(teams, domain.NewTeamData(domain.Team{ID: active}))
		idx = len(teams) - 1
	}

	// Decoding the live keys over the cold entry overwrites exactly the
	// fields the live copy carried.
	b, _ := json.Marshal(live)
	if err := json.Unmarshal(b, &teams[idx]); err != nil {
		return "", nil, domain.Session{}, fmt.Errorf("migrating legacy team %s: %w", active, err)
	}
	teams[idx].Team.ID = active
	return active, teams, session, nil
}

func decodeKey(raw map[string]json.RawMessage, key string, v any) error {
	b, ok := raw[key]
	if !ok || string(b) == "null" {
		return nil
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decoding snapshot %s: %w", key, err)
	}
	return nil
}

// normalizeTeam repairs data written by older or foreign writers
func normalizeTeam(d *domain.TeamData) {
	d.FillDefaults()
	for i := range d.Games {
		d.Games[i].TeamID = d.Team.ID
		d.Games[i].Roster.Normalize()
	}
	for i := range d.Events {
		d.Events[i].TeamID = d.Team.ID
		d.Events[i].Roster.Normalize()
	}
	for i := range d.PaymentPeriods {
		if d.PaymentPeriods[i].PlayerPayments == nil {
			d.PaymentPeriods[i].PlayerPayments = []domain.PlayerPayment{}
		}
		d.PaymentPeriods[i].RecomputeAll()
	}
	d.FillDefaults()
}
