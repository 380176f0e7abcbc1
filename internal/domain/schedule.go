package domain

import (
	"slices"
	"time"
)

// EntityKind distinguishes games from events (practices and the like)
type EntityKind string

const (
	KindGame  EntityKind = "game"
	KindEvent EntityKind = "event"
)

// InviteRelease is the state of a game/event invitation.
// Valid transitions: none -> now, none -> scheduled -> released.
// now and released are terminal.
type InviteRelease string

const (
	ReleaseNone      InviteRelease = "none"
	ReleaseNow       InviteRelease = "now"
	ReleaseScheduled InviteRelease = "scheduled"
	ReleaseReleased  InviteRelease = "released"
)

// Sent reports whether invitations have gone out
func (r InviteRelease) Sent() bool {
	return r == ReleaseNow || r == ReleaseReleased
}

// Membership holds the three derived, mutually exclusive sets over invited
// player ids. In is checked-in/confirmed, Out is checked-out/declined and
// pending is everything invited that is in neither. Notes carries the note
// or decline reason recorded with a player's response and UpdatedAt the
// time of the response row that produced it.
type Membership struct {
	Invited   []string             `json:"invited"`
	In        []string             `json:"in"`
	Out       []string             `json:"out"`
	Notes     map[string]string    `json:"notes,omitempty"`
	UpdatedAt map[string]time.Time `json:"updated_at,omitempty"`
}

// Pending returns invited players that have not responded
func (m Membership) Pending() []string {
	pending := make([]string, 0, len(m.Invited))
	for _, id := range m.Invited {
		if !slices.Contains(m.In, id) && !slices.Contains(m.Out, id) {
			pending = append(pending, id)
		}
	}
	return pending
}

// IsInvited reports whether the player is invited
func (m Membership) IsInvited(playerID string) bool {
	return slices.Contains(m.Invited, playerID)
}

// ResponseOf returns the player's current response
func (m Membership) ResponseOf(playerID string) Response {
	switch {
	case slices.Contains(m.In, playerID):
		return ResponseIn
	case slices.Contains(m.Out, playerID):
		return ResponseOut
	default:
		return ResponseInvited
	}
}

// Note returns the note recorded for the player's response
func (m Membership) Note(playerID string) string {
	return m.Notes[playerID]
}

// Set records a response written at the given time for a player, inviting
// them if necessary. A player holds at most one response at a time.
func (m *Membership) Set(playerID string, resp Response, note string, at time.Time) {
	if !slices.Contains(m.Invited, playerID) {
		m.Invited = append(m.Invited, playerID)
	}
	m.In = remove(m.In, playerID)
	m.Out = remove(m.Out, playerID)
	switch resp {
	case ResponseIn:
		m.In = append(m.In, playerID)
	case ResponseOut:
		m.Out = append(m.Out, playerID)
	}
	if note != "" {
		if m.Notes == nil {
			m.Notes = make(map[string]string)
		}
		m.Notes[playerID] = note
	} else {
		delete(m.Notes, playerID)
	}
	m.stamp(playerID, at)
	m.Normalize()
}

// Apply folds a single response row into the sets. A row that does not
// supersede the one already recorded for the player is ignored, as is a
// row for a player who is not invited. It reports whether anything changed.
func (m *Membership) Apply(rec ResponseRecord) bool {
	if rec.PlayerID == "" || !rec.Response.Valid() || !m.IsInvited(rec.PlayerID) {
		return false
	}
	id := rec.PlayerID
	at, stamped := m.UpdatedAt[id]
	if stamped && !rec.supersedes(m.Record(rec.Kind, rec.EntityID, id, at)) {
		return false
	}
	changed := m.ResponseOf(id) != rec.Response || m.Note(id) != rec.Note || !at.Equal(rec.UpdatedAt)
	m.Set(id, rec.Response, rec.Note, rec.UpdatedAt)
	return changed
}

func (m *Membership) stamp(playerID string, at time.Time) {
	if at.IsZero() {
		delete(m.UpdatedAt, playerID)
		return
	}
	if m.UpdatedAt == nil {
		m.UpdatedAt = make(map[string]time.Time)
	}
	m.UpdatedAt[playerID] = at.UTC()
}

// Clear returns a player to pending without uninviting them
func (m *Membership) Clear(playerID string) {
	m.In = remove(m.In, playerID)
	m.Out = remove(m.Out, playerID)
	delete(m.Notes, playerID)
	delete(m.UpdatedAt, playerID)
}

// Drop removes a player from every set
func (m *Membership) Drop(playerID string) {
	m.Invited = remove(m.Invited, playerID)
	m.Clear(playerID)
}

// Restrict keeps responses only for players in invited and adopts the
// given invite list.
func (m *Membership) Restrict(invited []string) {
	m.Invited = dedupe(invited)
	m.Normalize()
}

// Normalize enforces the partition invariant: In and Out are disjoint
// subsets of Invited, ordered by invite order, with no stray notes.
func (m *Membership) Normalize() {
	m.Invited = dedupe(m.Invited)
	in := make([]string, 0, len(m.In))
	out := make([]string, 0, len(m.Out))
	for _, id := range m.Invited {
		switch {
		case slices.Contains(m.In, id):
			in = append(in, id)
		case slices.Contains(m.Out, id):
			out = append(out, id)
		}
	}
	m.In, m.Out = in, out
	for id := range m.Notes {
		if !slices.Contains(m.Invited, id) {
			delete(m.Notes, id)
		}
	}
	if len(m.Notes) == 0 {
		m.Notes = nil
	}
	for id := range m.UpdatedAt {
		if !slices.Contains(m.Invited, id) {
			delete(m.UpdatedAt, id)
		}
	}
	if len(m.UpdatedAt) == 0 {
		m.UpdatedAt = nil
	}
}

// Valid reports whether the partition invariant holds
func (m Membership) Valid() bool {
	for _, id := range m.In {
		if slices.Contains(m.Out, id) || !slices.Contains(m.Invited, id) {
			return false
		}
	}
	for _, id := range m.Out {
		if !slices.Contains(m.Invited, id) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy
func (m Membership) Clone() Membership {
	c := Membership{
		Invited: slices.Clone(m.Invited),
		In:      slices.Clone(m.In),
		Out:     slices.Clone(m.Out),
	}
	if m.Notes != nil {
		c.Notes = make(map[string]string, len(m.Notes))
		for k, v := range m.Notes {
			c.Notes[k] = v
		}
	}
	if m.UpdatedAt != nil {
		c.UpdatedAt = make(map[string]time.Time, len(m.UpdatedAt))
		for k, v := range m.UpdatedAt {
			c.UpdatedAt[k] = v
		}
	}
	return c
}

func (m *Membership) fillDefaults() {
	if m.Invited == nil {
		m.Invited = []string{}
	}
	if m.In == nil {
		m.In = []string{}
	}
	if m.Out == nil {
		m.Out = []string{}
	}
}

// GameResult is the final score of a game
type GameResult struct {
	TeamScore     int    `json:"team_score"`
	OpponentScore int    `json:"opponent_score"`
	Outcome       string `json:"outcome,omitempty"`
}

// Game represents a scheduled game
type Game struct {
	ID              string        `json:"id"`
	TeamID          string        `json:"team_id"`
	Opponent        string        `json:"opponent"`
	Date            string        `json:"date"`
	Time            string        `json:"time,omitempty"`
	Location        string        `json:"location,omitempty"`
	Address         string        `json:"address,omitempty"`
	IsHome          bool          `json:"is_home"`
	JerseyColor     string        `json:"jersey_color,omitempty"`
	Notes           string        `json:"notes,omitempty"`
	Result          *GameResult   `json:"result,omitempty"`
	InviteRelease   InviteRelease `json:"invite_release"`
	InviteReleaseAt *time.Time    `json:"invite_release_at,omitempty"`
	InvitesSentAt   *time.Time    `json:"invites_sent_at,omitempty"`
	Roster          Membership    `json:"roster"`
	CreatedAt       time.Time     `json:"created_at"`
}

// FillDefaults normalizes fields left empty by older writers
func (g *Game) FillDefaults() {
	if g.InviteRelease == "" {
		g.InviteRelease = ReleaseNow
	}
	g.Roster.fillDefaults()
}

// EventType classifies non-game events
type EventType string

const (
	EventPractice EventType = "practice"
	EventMeeting  EventType = "meeting"
	EventSocial   EventType = "social"
	EventOther    EventType = "other"
)

// Event represents a practice or other non-game team event
type Event struct {
	ID              string        `json:"id"`
	TeamID          string        `json:"team_id"`
	Title           string        `json:"title"`
	Type            EventType     `json:"type"`
	Date            string        `json:"date"`
	Time            string        `json:"time,omitempty"`
	EndTime         string        `json:"end_time,omitempty"`
	Location        string        `json:"location,omitempty"`
	Address         string        `json:"address,omitempty"`
	Description     string        `json:"description,omitempty"`
	InviteRelease   InviteRelease `json:"invite_release"`
	InviteReleaseAt *time.Time    `json:"invite_release_at,omitempty"`
	InvitesSentAt   *time.Time    `json:"invites_sent_at,omitempty"`
	Roster          Membership    `json:"roster"`
	CreatedAt       time.Time     `json:"created_at"`
}

// FillDefaults normalizes fields left empty by older writers
func (e *Event) FillDefaults() {
	if e.InviteRelease == "" {
		e.InviteRelease = ReleaseNow
	}
	if e.Type == "" {
		e.Type = EventPractice
	}
	e.Roster.fillDefaults()
}

func remove(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, s := range ids {
		if s != id {
			out = append(out, s)
		}
	}
	return out
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
