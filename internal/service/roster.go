// Package service holds the UI-facing mutation handlers. Every handler
// applies its change to the local store first and then queues the matching
// write-through push; the remote never blocks or rolls back a local edit.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/push"
	"github.com/roster-sync/internal/store"
)

// TeamSync keeps the local copy of the active team in sync with the remote
type TeamSync interface {
	Start(ctx context.Context, teamID string) error
	Stop() error
}

// Releaser runs one scheduled-invitation check
type Releaser interface {
	RunOnce(ctx context.Context) store.ReleaseResult
}

// RosterService provides the roster operations the UI performs
type RosterService struct {
	store    *store.Store
	pusher   *push.Pusher
	sync     TeamSync
	releaser Releaser
	logger   *slog.Logger
}

// NewRosterService creates a new roster service. A session rejected by the
// remote during a push signs the user out locally.
func NewRosterService(
	st *store.Store,
	pusher *push.Pusher,
	sync TeamSync,
	releaser Releaser,
	logger *slog.Logger,
) *RosterService {
	pusher.OnSessionExpired(st.ClearSession)
	return &RosterService{
		store:    st,
		pusher:   pusher,
		sync:     sync,
		releaser: releaser,
		logger:   logger,
	}
}

// Store returns the local store
func (s *RosterService) Store() *store.Store {
	return s.store
}

// SignIn records the user's identity and starts syncing the active team
func (s *RosterService) SignIn(ctx context.Context, sess domain.Session) error {
	sess.LoggedIn = true
	s.store.SetSession(sess)
	if teamID := s.store.ActiveTeamID(); teamID != "" {
		return s.startSync(ctx, teamID)
	}
	return nil
}

// Logout stops syncing and forgets every cached team
func (s *RosterService) Logout() error {
	if err := s.sync.Stop(); err != nil {
		return fmt.Errorf("stopping sync: %w", err)
	}
	s.store.Logout()
	return nil
}

// CreateTeam creates a team with the creator as its admin. The new team
// becomes active only when no team was.
func (s *RosterService) CreateTeam(ctx context.Context, team domain.Team, creator *domain.Player) (domain.TeamData, error) {
	data, ok := s.store.CreateTeam(team, creator)
	if !ok {
		return domain.TeamData{}, domain.ErrTeamExists
	}
	s.pusher.PushTeam(data.Team)
	for _, p := range data.Players {
		s.pusher.PushPlayer(p)
	}
	if s.store.ActiveTeamID() == data.Team.ID {
		if err := s.startSync(ctx, data.Team.ID); err != nil {
			return data, err
		}
	}
	return data, nil
}

// SwitchTeam makes teamID active and resubscribes. The cached copy of the
// team is shown until the full load replaces it.
func (s *RosterService) SwitchTeam(ctx context.Context, teamID string) error {
	if teamID == "" {
		return fmt.Errorf("switching team: %w", domain.ErrInvalidRequest)
	}
	s.store.SwitchTeam(teamID)
	return s.startSync(ctx, teamID)
}

// LeaveTeam drops a team from the local cache. When it was active the next
// team takes over, or syncing stops when none is left.
func (s *RosterService) LeaveTeam(ctx context.Context, teamID string) error {
	wasActive := s.store.ActiveTeamID() == teamID
	if !s.store.RemoveTeam(teamID) {
		return domain.ErrTeamNotFound
	}
	if !wasActive {
		return nil
	}
	if next := s.store.ActiveTeamID(); next != "" {
		return s.startSync(ctx, next)
	}
	if err := s.sync.Stop(); err != nil {
		return fmt.Errorf("stopping sync: %w", err)
	}
	return nil
}

func (s *RosterService) startSync(ctx context.Context, teamID string) error {
	if err := s.sync.Start(ctx, teamID); err != nil {
		s.logger.Warn("failed to sync team, showing cached data", "team_id", teamID, "error", err)
		return fmt.Errorf("syncing team %s: %w", teamID, err)
	}
	return nil
}

// UpdateTeam changes a team's name, sport and settings
func (s *RosterService) UpdateTeam(team domain.Team) (domain.Team, error) {
	out, ok := s.store.UpdateTeam(team)
	if !ok {
		return domain.Team{}, domain.ErrTeamNotFound
	}
	s.pusher.PushTeam(out)
	return out, nil
}

// activeTeamID returns the active team or ErrNoActiveTeam
func (s *RosterService) activeTeamID() (string, error) {
	teamID := s.store.ActiveTeamID()
	if teamID == "" {
		return "", domain.ErrNoActiveTeam
	}
	return teamID, nil
}

// AddPlayer adds a player to the active team
func (s *RosterService) AddPlayer(p domain.Player) (domain.Player, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.Player{}, err
	}
	out, ok := s.store.AddPlayer(p)
	if !ok {
		return domain.Player{}, fmt.Errorf("player %s already exists: %w", p.ID, domain.ErrInvalidRequest)
	}
	s.pusher.PushPlayer(out)
	return out, nil
}

// UpdatePlayer replaces a player and pushes any responses the availability
// cascade changed
func (s *RosterService) UpdatePlayer(p domain.Player) (domain.Player, error) {
	teamID, err := s.activeTeamID()
	if err != nil {
		return domain.Player{}, err
	}
	records, ok := s.store.UpdatePlayer(p)
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return s.pushPlayer(teamID, p.ID, records)
}

// SetPlayerStatus changes a player's injury and suspension flags
func (s *RosterService) SetPlayerStatus(playerID string, injured, suspended bool, endDate string) (domain.Player, error) {
	teamID, err := s.activeTeamID()
	if err != nil {
		return domain.Player{}, err
	}
	records, ok := s.store.SetPlayerStatus(playerID, injured, suspended, endDate)
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return s.pushPlayer(teamID, playerID, records)
}

func (s *RosterService) pushPlayer(teamID, playerID string, records []domain.ResponseRecord) (domain.Player, error) {
	out, ok := s.store.Player(playerID)
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	s.pusher.PushPlayer(out)
	if len(records) > 0 {
		s.logger.Debug("availability cascade moved responses", "player_id", playerID, "count", len(records))
		s.pusher.PushResponses(teamID, records...)
	}
	return out, nil
}

// RemovePlayer removes a player and everything that references them
func (s *RosterService) RemovePlayer(playerID string) error {
	teamID, err := s.activeTeamID()
	if err != nil {
		return err
	}
	if !s.store.RemovePlayer(playerID) {
		return domain.ErrPlayerNotFound
	}
	s.pusher.DeletePlayer(teamID, playerID)
	return nil
}

// AddGame schedules a game
func (s *RosterService) AddGame(g domain.Game) (domain.Game, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.Game{}, err
	}
	out, res, ok := s.store.AddGame(g)
	if !ok {
		return domain.Game{}, fmt.Errorf("game %s already exists: %w", g.ID, domain.ErrInvalidRequest)
	}
	s.pusher.PushGame(out)
	s.pushSchedule(out.TeamID, domain.KindGame, out.ID, res)
	return out, nil
}

// UpdateGame replaces a game's details and invitee set
func (s *RosterService) UpdateGame(g domain.Game) (domain.Game, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.Game{}, err
	}
	out, res, ok := s.store.UpdateGame(g)
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	s.pusher.PushGame(out)
	s.pushSchedule(out.TeamID, domain.KindGame, out.ID, res)
	return out, nil
}

// pushSchedule writes the rows a schedule change produced besides the
// entity row itself
func (s *RosterService) pushSchedule(teamID string, kind domain.EntityKind, entityID string, res store.ScheduleResult) {
	if len(res.Uninvited) > 0 {
		s.logger.Debug("removing responses of uninvited players", "kind", kind, "id", entityID, "count", len(res.Uninvited))
		s.pusher.DeleteResponses(teamID, kind, entityID, res.Uninvited...)
	}
	s.pusher.PushResponses(teamID, res.Responses...)
	s.pusher.PushNotifications(res.Notifications...)
}

// RemoveGame deletes a game and its responses
func (s *RosterService) RemoveGame(gameID string) error {
	teamID, err := s.activeTeamID()
	if err != nil {
		return err
	}
	if !s.store.RemoveGame(gameID) {
		return domain.ErrGameNotFound
	}
	s.pusher.DeleteGame(teamID, gameID)
	return nil
}

// RespondToGame records a player's response to a game
func (s *RosterService) RespondToGame(gameID, playerID string, resp domain.Response, note string) (domain.ResponseRecord, error) {
	teamID, err := s.activeTeamID()
	if err != nil {
		return domain.ResponseRecord{}, err
	}
	if !resp.Valid() {
		return domain.ResponseRecord{}, fmt.Errorf("response %q: %w", resp, domain.ErrInvalidRequest)
	}
	before, _ := s.store.Game(gameID)
	rec, ok := s.store.SetGameResponse(gameID, playerID, resp, note)
	if !ok {
		return domain.ResponseRecord{}, domain.ErrGameNotFound
	}
	if !before.Roster.IsInvited(playerID) {
		g, _ := s.store.Game(gameID)
		s.pusher.PushGame(g)
	}
	s.pusher.PushGameResponse(teamID, rec)
	return rec, nil
}

// ReleaseGameInvites sends a game's invitations now
func (s *RosterService) ReleaseGameInvites(gameID string) (domain.Game, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.Game{}, err
	}
	out, notifs, ok := s.store.ReleaseGameInvites(gameID)
	if !ok {
		if g, exists := s.store.Game(gameID); exists {
			return g, nil
		}
		return domain.Game{}, domain.ErrGameNotFound
	}
	s.pusher.PushGame(out)
	s.pusher.PushNotifications(notifs...)
	return out, nil
}

// AddEvent schedules an event
func (s *RosterService) AddEvent(ev domain.Event) (domain.Event, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.Event{}, err
	}
	out, res, ok := s.store.AddEvent(ev)
	if !ok {
		return domain.Event{}, fmt.Errorf("event %s already exists: %w", ev.ID, domain.ErrInvalidRequest)
	}
	s.pusher.PushEvent(out)
	s.pushSchedule(out.TeamID, domain.KindEvent, out.ID, res)
	return out, nil
}

// UpdateEvent replaces an event's details and invitee set
func (s *RosterService) UpdateEvent(ev domain.Event) (domain.Event, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.Event{}, err
	}
	out, res, ok := s.store.UpdateEvent(ev)
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	s.pusher.PushEvent(out)
	s.pushSchedule(out.TeamID, domain.KindEvent, out.ID, res)
	return out, nil
}

// RemoveEvent deletes an event and its responses
func (s *RosterService) RemoveEvent(eventID string) error {
	teamID, err := s.activeTeamID()
	if err != nil {
		return err
	}
	if !s.store.RemoveEvent(eventID) {
		return domain.ErrEventNotFound
	}
	s.pusher.DeleteEvent(teamID, eventID)
	return nil
}

// RespondToEvent records a player's response to an event
func (s *RosterService) RespondToEvent(eventID, playerID string, resp domain.Response, note string) (domain.ResponseRecord, error) {
	teamID, err := s.activeTeamID()
	if err != nil {
		return domain.ResponseRecord{}, err
	}
	if !resp.Valid() {
		return domain.ResponseRecord{}, fmt.Errorf("response %q: %w", resp, domain.ErrInvalidRequest)
	}
	before, _ := s.store.Event(eventID)
	rec, ok := s.store.SetEventResponse(eventID, playerID, resp, note)
	if !ok {
		return domain.ResponseRecord{}, domain.ErrEventNotFound
	}
	if !before.Roster.IsInvited(playerID) {
		ev, _ := s.store.Event(eventID)
		s.pusher.PushEvent(ev)
	}
	s.pusher.PushEventResponse(teamID, rec)
	return rec, nil
}

// ReleaseEventInvites sends an event's invitations now
func (s *RosterService) ReleaseEventInvites(eventID string) (domain.Event, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.Event{}, err
	}
	out, notifs, ok := s.store.ReleaseEventInvites(eventID)
	if !ok {
		if ev, exists := s.store.Event(eventID); exists {
			return ev, nil
		}
		return domain.Event{}, domain.ErrEventNotFound
	}
	s.pusher.PushEvent(out)
	s.pusher.PushNotifications(notifs...)
	return out, nil
}

// CheckScheduledReleases releases every scheduled invitation that is due
func (s *RosterService) CheckScheduledReleases(ctx context.Context) store.ReleaseResult {
	return s.releaser.RunOnce(ctx)
}

// SendChatMessage posts a message to the team chat
func (s *RosterService) SendChatMessage(msg domain.ChatMessage) (domain.ChatMessage, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.ChatMessage{}, err
	}
	out, ok := s.store.AddChatMessage(msg)
	if !ok {
		return out, nil
	}
	s.pusher.PushChatMessage(out)
	return out, nil
}

// DeleteChatMessage removes a chat message
func (s *RosterService) DeleteChatMessage(id string) error {
	teamID, err := s.activeTeamID()
	if err != nil {
		return err
	}
	if !s.store.RemoveChatMessage(id) {
		return domain.ErrNotFound
	}
	s.pusher.DeleteChatMessage(teamID, id)
	return nil
}

// AddPaymentPeriod creates a dues period
func (s *RosterService) AddPaymentPeriod(p domain.PaymentPeriod) (domain.PaymentPeriod, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.PaymentPeriod{}, err
	}
	out, ok := s.store.AddPaymentPeriod(p)
	if !ok {
		return domain.PaymentPeriod{}, fmt.Errorf("payment period %s already exists: %w", p.ID, domain.ErrInvalidRequest)
	}
	s.pusher.PushPaymentPeriod(out)
	return out, nil
}

// UpdatePaymentPeriod changes a period's title, due date and amount
func (s *RosterService) UpdatePaymentPeriod(p domain.PaymentPeriod) (domain.PaymentPeriod, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.PaymentPeriod{}, err
	}
	out, ok := s.store.UpdatePaymentPeriod(p)
	if !ok {
		return domain.PaymentPeriod{}, domain.ErrNotFound
	}
	s.pusher.PushPaymentPeriod(out)
	return out, nil
}

// RemovePaymentPeriod deletes a period with its payments and entries
func (s *RosterService) RemovePaymentPeriod(id string) error {
	if _, err := s.activeTeamID(); err != nil {
		return err
	}
	period, found := s.paymentPeriod(id)
	if !found || !s.store.RemovePaymentPeriod(id) {
		return domain.ErrNotFound
	}
	s.pusher.DeletePaymentPeriod(period)
	return nil
}

func (s *RosterService) paymentPeriod(id string) (domain.PaymentPeriod, bool) {
	d, ok := s.store.Active()
	if !ok {
		return domain.PaymentPeriod{}, false
	}
	i := slices.IndexFunc(d.PaymentPeriods, func(p domain.PaymentPeriod) bool { return p.ID == id })
	if i < 0 {
		return domain.PaymentPeriod{}, false
	}
	return d.PaymentPeriods[i], true
}

// RecordPayment adds a payment by a player against a period
func (s *RosterService) RecordPayment(periodID, playerID string, entry domain.PaymentEntry) (domain.PlayerPayment, error) {
	teamID, err := s.activeTeamID()
	if err != nil {
		return domain.PlayerPayment{}, err
	}
	if entry.Amount <= 0 {
		return domain.PlayerPayment{}, fmt.Errorf("payment amount %d: %w", entry.Amount, domain.ErrInvalidRequest)
	}
	pp, _, ok := s.store.AddPaymentEntry(periodID, playerID, entry)
	if !ok {
		return domain.PlayerPayment{}, domain.ErrNotFound
	}
	s.pusher.PushPlayerPayment(teamID, pp)
	return pp, nil
}

// RemovePaymentEntry deletes a payment entry
func (s *RosterService) RemovePaymentEntry(entryID string) (domain.PlayerPayment, error) {
	teamID, err := s.activeTeamID()
	if err != nil {
		return domain.PlayerPayment{}, err
	}
	pp, ok := s.store.RemovePaymentEntry(entryID)
	if !ok {
		return domain.PlayerPayment{}, domain.ErrNotFound
	}
	s.pusher.DeletePaymentEntry(teamID, entryID)
	s.pusher.PushPlayerPayment(teamID, pp)
	return pp, nil
}

// AddPhoto adds a photo to the team gallery
func (s *RosterService) AddPhoto(p domain.Photo) (domain.Photo, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.Photo{}, err
	}
	out, ok := s.store.AddPhoto(p)
	if ok {
		s.pusher.PushPhoto(out)
	}
	return out, nil
}

// RemovePhoto deletes a photo
func (s *RosterService) RemovePhoto(id string) error {
	teamID, err := s.activeTeamID()
	if err != nil {
		return err
	}
	if !s.store.RemovePhoto(id) {
		return domain.ErrNotFound
	}
	s.pusher.DeletePhoto(teamID, id)
	return nil
}

// Notify adds a notification for a player
func (s *RosterService) Notify(n domain.AppNotification) (domain.AppNotification, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.AppNotification{}, err
	}
	out, ok := s.store.AddNotification(n)
	if ok {
		s.pusher.PushNotifications(out)
	}
	return out, nil
}

// MarkNotificationRead flags one notification as read
func (s *RosterService) MarkNotificationRead(id string) error {
	if _, err := s.activeTeamID(); err != nil {
		return err
	}
	n, ok := s.store.MarkNotificationRead(id)
	if ok {
		s.pusher.PushNotifications(n)
	}
	return nil
}

// MarkAllNotificationsRead flags every notification of a player as read
func (s *RosterService) MarkAllNotificationsRead(playerID string) (int, error) {
	if _, err := s.activeTeamID(); err != nil {
		return 0, err
	}
	changed := s.store.MarkAllNotificationsRead(playerID)
	s.pusher.PushNotifications(changed...)
	return len(changed), nil
}

// RemoveNotification deletes a notification
func (s *RosterService) RemoveNotification(id string) error {
	teamID, err := s.activeTeamID()
	if err != nil {
		return err
	}
	if !s.store.RemoveNotification(id) {
		return domain.ErrNotFound
	}
	s.pusher.DeleteNotification(teamID, id)
	return nil
}

// AddPoll creates a poll
func (s *RosterService) AddPoll(p domain.Poll) (domain.Poll, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.Poll{}, err
	}
	out, ok := s.store.AddPoll(p)
	if ok {
		s.pusher.PushPoll(out)
	}
	return out, nil
}

// Vote records a player's vote on a poll
func (s *RosterService) Vote(pollID, optionID, playerID string) (domain.Poll, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.Poll{}, err
	}
	out, ok := s.store.Vote(pollID, optionID, playerID)
	if !ok {
		return domain.Poll{}, fmt.Errorf("vote on poll %s: %w", pollID, domain.ErrInvalidRequest)
	}
	s.pusher.PushPoll(out)
	return out, nil
}

// RemovePoll deletes a poll
func (s *RosterService) RemovePoll(id string) error {
	teamID, err := s.activeTeamID()
	if err != nil {
		return err
	}
	if !s.store.RemovePoll(id) {
		return domain.ErrNotFound
	}
	s.pusher.DeletePoll(teamID, id)
	return nil
}

// AddLink adds a team link
func (s *RosterService) AddLink(l domain.TeamLink) (domain.TeamLink, error) {
	if _, err := s.activeTeamID(); err != nil {
		return domain.TeamLink{}, err
	}
	out, ok := s.store.AddLink(l)
	if ok {
		s.pusher.PushTeamLink(out)
	}
	return out, nil
}

// RemoveLink deletes a team link
func (s *RosterService) RemoveLink(id string) error {
	teamID, err := s.activeTeamID()
	if err != nil {
		return err
	}
	if !s.store.RemoveLink(id) {
		return domain.ErrNotFound
	}
	s.pusher.DeleteTeamLink(teamID, id)
	return nil
}
