package domain

import "time"

// Response is a player's answer to a game or event invitation
type Response string

const (
	ResponseIn      Response = "in"
	ResponseOut     Response = "out"
	ResponseInvited Response = "invited"
)

// Valid reports whether the response is one of the known values
func (r Response) Valid() bool {
	return r == ResponseIn || r == ResponseOut || r == ResponseInvited
}

func (r Response) rank() int {
	switch r {
	case ResponseIn:
		return 2
	case ResponseOut:
		return 1
	default:
		return 0
	}
}

// ResponseRecord is one flat response row keyed by (EntityID, PlayerID)
type ResponseRecord struct {
	Kind      EntityKind `json:"kind"`
	EntityID  string     `json:"entity_id"`
	PlayerID  string     `json:"player_id"`
	Response  Response   `json:"response"`
	Note      string     `json:"note,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// supersedes reports whether r wins over other for the same player.
// The ordering is total so folding is independent of row order.
func (r ResponseRecord) supersedes(other ResponseRecord) bool {
	if !r.UpdatedAt.Equal(other.UpdatedAt) {
		return r.UpdatedAt.After(other.UpdatedAt)
	}
	if r.Response.rank() != other.Response.rank() {
		return r.Response.rank() > other.Response.rank()
	}
	return r.Note > other.Note
}

// Fold projects flat response rows onto an invite list, producing the three
// membership sets. The invite list is authoritative: rows for players
// missing from it are ignored. The result does not depend on row order.
func Fold(invited []string, rows []ResponseRecord) Membership {
	m := Membership{Invited: dedupe(invited), In: []string{}, Out: []string{}}

	latest := make(map[string]ResponseRecord, len(rows))
	for _, row := range rows {
		if row.PlayerID == "" || !row.Response.Valid() || !m.IsInvited(row.PlayerID) {
			continue
		}
		if cur, ok := latest[row.PlayerID]; !ok || row.supersedes(cur) {
			latest[row.PlayerID] = row
		}
	}

	for _, id := range m.Invited {
		row, ok := latest[id]
		if !ok {
			continue
		}
		switch row.Response {
		case ResponseIn:
			m.In = append(m.In, id)
		case ResponseOut:
			m.Out = append(m.Out, id)
		}
		if row.Note != "" {
			if m.Notes == nil {
				m.Notes = make(map[string]string)
			}
			m.Notes[id] = row.Note
		}
		m.stamp(id, row.UpdatedAt)
	}
	return m
}

// Records converts membership sets back into response rows for an entity.
// Pending players are emitted with ResponseInvited.
func (m Membership) Records(kind EntityKind, entityID string, at time.Time) []ResponseRecord {
	records := make([]ResponseRecord, 0, len(m.Invited))
	for _, id := range m.Invited {
		records = append(records, ResponseRecord{
			Kind:      kind,
			EntityID:  entityID,
			PlayerID:  id,
			Response:  m.ResponseOf(id),
			Note:      m.Notes[id],
			UpdatedAt: at,
		})
	}
	return records
}

// Record returns the response row for a single player
func (m Membership) Record(kind EntityKind, entityID, playerID string, at time.Time) ResponseRecord {
	return ResponseRecord{
		Kind:      kind,
		EntityID:  entityID,
		PlayerID:  playerID,
		Response:  m.ResponseOf(playerID),
		Note:      m.Notes[playerID],
		UpdatedAt: at,
	}
}
