// Package store holds the local working copy of every team the session
// belongs to. Teams are kept normalized in one map keyed by team id; the
// active team is only a pointer into that map.
//
// Every mutation runs its cascading rules under the store lock and
// notifies listeners after the lock is released. Readers get deep copies.
package store

import (
	"encoding/json"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roster-sync/internal/domain"
)

// Scope names the part of a team a change touched
type Scope string

const (
	ScopeTeam          Scope = "team"
	ScopePlayers       Scope = "players"
	ScopeGames         Scope = "games"
	ScopeEvents        Scope = "events"
	ScopeChat          Scope = "chat"
	ScopePayments      Scope = "payments"
	ScopePhotos        Scope = "photos"
	ScopeNotifications Scope = "notifications"
	ScopePolls         Scope = "polls"
	ScopeLinks         Scope = "links"
	ScopeSession       Scope = "session"
	ScopeAll           Scope = "all"
)

// Known reports whether s is one of the scopes above
func (s Scope) Known() bool {
	switch s {
	case ScopeTeam, ScopePlayers, ScopeGames, ScopeEvents, ScopeChat, ScopePayments,
		ScopePhotos, ScopeNotifications, ScopePolls, ScopeLinks, ScopeSession, ScopeAll:
		return true
	}
	return false
}

// Change describes one applied mutation
type Change struct {
	TeamID string `json:"team_id,omitempty"`
	Scope  Scope  `json:"scope"`
	ID     string `json:"id,omitempty"`
}

// Listener observes applied mutations. It runs outside the store lock and
// may read from the store.
type Listener func(Change)

// Option configures a Store
type Option func(*Store)

// WithClock sets the time source used for timestamps and for deciding which
// games and events lie in the future.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = now }
}

// WithIDGenerator sets the generator for client-side ids
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store is the in-process source of truth for team data and session state
type Store struct {
	mu        sync.Mutex
	teams     map[string]*domain.TeamData
	order     []string
	active    string
	session   domain.Session
	extra     map[string]json.RawMessage
	version   uint64
	listeners map[int]Listener
	nextLis   int

	clock  func() time.Time
	newID  func() string
	logger *slog.Logger
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		teams:     make(map[string]*domain.TeamData),
		listeners: make(map[int]Listener),
		clock:     time.Now,
		newID:     uuid.NewString,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener and returns a function removing it
func (s *Store) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextLis
	s.nextLis++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Version increases with every applied change
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// mutate runs fn under the lock and then fans its changes out to listeners
func (s *Store) mutate(fn func() []Change) {
	s.mu.Lock()
	changes := fn()
	if len(changes) > 0 {
		s.version++
	}
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, c := range changes {
		for _, l := range listeners {
			l(c)
		}
	}
}

// activeData returns the active team's data. Callers hold mu.
func (s *Store) activeData() *domain.TeamData {
	if s.active == "" {
		return nil
	}
	return s.teams[s.active]
}

// guard returns the data for teamID if it is still the active team.
// Results of loads and change events for any other team are stale.
func (s *Store) guard(teamID string) *domain.TeamData {
	if teamID == "" || teamID != s.active {
		s.logger.Debug("dropping update for inactive team", "team_id", teamID, "active_team_id", s.active)
		return nil
	}
	return s.teams[teamID]
}

// now strips the monotonic reading so stored timestamps compare equal to
// their JSON round trip.
func (s *Store) now() time.Time {
	return s.clock().Round(0)
}

func (s *Store) today() string {
	return s.now().Format(time.DateOnly)
}

func (s *Store) addTeamLocked(d domain.TeamData) *domain.TeamData {
	d.FillDefaults()
	if _, ok := s.teams[d.Team.ID]; !ok {
		s.order = append(s.order, d.Team.ID)
	}
	s.teams[d.Team.ID] = &d
	return &d
}

// ActiveTeamID returns the id of the active team, or "" when none
func (s *Store) ActiveTeamID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Session returns the session identity
func (s *Store) Session() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

// Active returns a copy of the active team's data
func (s *Store) Active() (domain.TeamData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.activeData()
	if d == nil {
		return domain.TeamData{}, false
	}
	return d.Clone(), true
}

// Team returns a copy of any team's data, active or cold
func (s *Store) Team(teamID string) (domain.TeamData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.teams[teamID]
	if !ok {
		return domain.TeamData{}, false
	}
	return d.Clone(), true
}

// Teams lists every known team in the order they were added
func (s *Store) Teams() []domain.Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Team, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.teams[id].Team.Clone())
	}
	return out
}

// Player returns a player of the active team
func (s *Store) Player(id string) (domain.Player, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.activeData()
	if d == nil {
		return domain.Player{}, false
	}
	if i := d.FindPlayer(id); i >= 0 {
		return d.Players[i].Clone(), true
	}
	return domain.Player{}, false
}

// Game returns a game of the active team
func (s *Store) Game(id string) (domain.Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.activeData()
	if d == nil {
		return domain.Game{}, false
	}
	if i := d.FindGame(id); i >= 0 {
		return d.Games[i].Clone(), true
	}
	return domain.Game{}, false
}

// Event returns an event of the active team
func (s *Store) Event(id string) (domain.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.activeData()
	if d == nil {
		return domain.Event{}, false
	}
	if i := d.FindEvent(id); i >= 0 {
		return d.Events[i].Clone(), true
	}
	return domain.Event{}, false
}

// NotificationsFor returns the active team's notifications addressed to a player
func (s *Store) NotificationsFor(playerID string) []domain.AppNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.activeData()
	if d == nil {
		return nil
	}
	var out []domain.AppNotification
	for _, n := range d.Notifications {
		if n.ToPlayerID == playerID {
			out = append(out, n)
		}
	}
	return out
}

// upsertByID replaces the item with the same id or appends it. It reports
// false when an identical item is already present, which is how echoes of
// this device's own writes are absorbed.
func upsertByID[T any](items []T, item T, idOf func(T) string) ([]T, bool) {
	id := idOf(item)
	for i := range items {
		if idOf(items[i]) != id {
			continue
		}
		if reflect.DeepEqual(items[i], item) {
			return items, false
		}
		items[i] = item
		return items, true
	}
	return append(items, item), true
}

// removeByID deletes the item with the given id and reports whether it existed
func removeByID[T any](items []T, id string, idOf func(T) string) ([]T, bool) {
	i := slices.IndexFunc(items, func(it T) bool { return idOf(it) == id })
	if i < 0 {
		return items, false
	}
	return slices.Delete(items, i, i+1), true
}

func playerIDOf(p domain.Player) string                { return p.ID }
func gameIDOf(g domain.Game) string                    { return g.ID }
func eventIDOf(e domain.Event) string                  { return e.ID }
func chatIDOf(m domain.ChatMessage) string             { return m.ID }
func periodIDOf(p domain.PaymentPeriod) string         { return p.ID }
func photoIDOf(p domain.Photo) string                  { return p.ID }
func notificationIDOf(n domain.AppNotification) string { return n.ID }
func pollIDOf(p domain.Poll) string                    { return p.ID }
func linkIDOf(l domain.TeamLink) string                { return l.ID }
