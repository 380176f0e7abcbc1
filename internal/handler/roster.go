package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roster-sync/internal/domain"
)

type createTeamRequest struct {
	Team    domain.Team    `json:"team"`
	Creator *domain.Player `json:"creator,omitempty"`
}

type statusRequest struct {
	Injured   bool   `json:"is_injured"`
	Suspended bool   `json:"is_suspended"`
	EndDate   string `json:"status_end_date,omitempty"`
}

type responseRequest struct {
	PlayerID string          `json:"player_id"`
	Response domain.Response `json:"response"`
	Note     string          `json:"note,omitempty"`
}

type paymentRequest struct {
	PlayerID string `json:"player_id"`
	Amount   int64  `json:"amount"`
	Method   string `json:"method,omitempty"`
	Note     string `json:"note,omitempty"`
}

type voteRequest struct {
	OptionID string `json:"option_id"`
	PlayerID string `json:"player_id"`
}

// GetSession returns the session identity
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, h.service.Store().Session())
}

// SignIn records the session identity and starts syncing
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	sess, err := decode[domain.Session](r)
	if err != nil || (sess.Email == "" && sess.Phone == "") {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	if err := h.service.SignIn(r.Context(), sess); err != nil {
		h.logger.Warn("signed in without a fresh sync", "error", err)
	}
	h.writeSuccess(w, h.service.Store().Session())
}

// Logout clears the session and the cache
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Logout(); err != nil {
		h.writeServiceError(w, "logout", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "signed out"})
}

// ListTeams returns every cached team
func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]any{
		"active_team_id": h.service.Store().ActiveTeamID(),
		"teams":          h.service.Store().Teams(),
	})
}

// GetActiveTeam returns the active team's data
func (h *Handler) GetActiveTeam(w http.ResponseWriter, r *http.Request) {
	data, ok := h.service.Store().Active()
	if !ok {
		h.writeError(w, http.StatusNotFound, domain.ErrNoActiveTeam)
		return
	}
	h.writeSuccess(w, data)
}

// CreateTeam creates a team
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	req, err := decode[createTeamRequest](r)
	if err != nil || req.Team.Name == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	data, err := h.service.CreateTeam(r.Context(), req.Team, req.Creator)
	if err != nil && data.Team.ID == "" {
		h.writeServiceError(w, "create team", err)
		return
	}
	h.writeCreated(w, data)
}

// UpdateTeam changes a team's name, sport and settings
func (h *Handler) UpdateTeam(w http.ResponseWriter, r *http.Request) {
	team, err := decode[domain.Team](r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	team.ID = chi.URLParam(r, "teamID")
	out, err := h.service.UpdateTeam(team)
	if err != nil {
		h.writeServiceError(w, "update team", err)
		return
	}
	h.writeSuccess(w, out)
}

// LeaveTeam drops a team from the cache
func (h *Handler) LeaveTeam(w http.ResponseWriter, r *http.Request) {
	if err := h.service.LeaveTeam(r.Context(), chi.URLParam(r, "teamID")); err != nil && domain.IsNotFoundError(err) {
		h.writeServiceError(w, "leave team", err)
		return
	}
	h.writeSuccess(w, map[string]string{
		"status":         "left",
		"active_team_id": h.service.Store().ActiveTeamID(),
	})
}

// SwitchTeam changes the active team. A failed load still switches; the
// cached copy is served until the next successful sync.
func (h *Handler) SwitchTeam(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	err := h.service.SwitchTeam(r.Context(), teamID)
	if err != nil && h.service.Store().ActiveTeamID() != teamID {
		h.writeServiceError(w, "switch team", err)
		return
	}
	body := map[string]any{
		"active_team_id": teamID,
		"synced":         err == nil,
	}
	if err != nil {
		h.writeJSON(w, http.StatusAccepted, APIResponse{Success: true, Data: body})
		return
	}
	h.writeSuccess(w, body)
}

// AddPlayer adds a player to the active team
func (h *Handler) AddPlayer(w http.ResponseWriter, r *http.Request) {
	p, err := decode[domain.Player](r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := h.service.AddPlayer(p)
	if err != nil {
		h.writeServiceError(w, "add player", err)
		return
	}
	h.writeCreated(w, out)
}

// UpdatePlayer replaces a player
func (h *Handler) UpdatePlayer(w http.ResponseWriter, r *http.Request) {
	p, err := decode[domain.Player](r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	p.ID = chi.URLParam(r, "playerID")
	out, err := h.service.UpdatePlayer(p)
	if err != nil {
		h.writeServiceError(w, "update player", err)
		return
	}
	h.writeSuccess(w, out)
}

// SetPlayerStatus sets injury and suspension flags
func (h *Handler) SetPlayerStatus(w http.ResponseWriter, r *http.Request) {
	req, err := decode[statusRequest](r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	out, err := h.service.SetPlayerStatus(chi.URLParam(r, "playerID"), req.Injured, req.Suspended, req.EndDate)
	if err != nil {
		h.writeServiceError(w, "set player status", err)
		return
	}
	h.writeSuccess(w, out)
}

// RemovePlayer removes a player
func (h *Handler) RemovePlayer(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemovePlayer(chi.URLParam(r, "playerID")); err != nil {
		h.writeServiceError(w, "remove player", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// AddGame schedules a game
func (h *Handler) AddGame(w http.ResponseWriter, r *http.Request) {
	g, err := decode[domain.Game](r)
	if err != nil || g.Date == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	out, err := h.service.AddGame(g)
	if err != nil {
		h.writeServiceError(w, "add game", err)
		return
	}
	h.writeCreated(w, out)
}

// UpdateGame replaces a game's details
func (h *Handler) UpdateGame(w http.ResponseWriter, r *http.Request) {
	g, err := decode[domain.Game](r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	g.ID = chi.URLParam(r, "gameID")
	out, err := h.service.UpdateGame(g)
	if err != nil {
		h.writeServiceError(w, "update game", err)
		return
	}
	h.writeSuccess(w, out)
}

// RemoveGame deletes a game
func (h *Handler) RemoveGame(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveGame(chi.URLParam(r, "gameID")); err != nil {
		h.writeServiceError(w, "remove game", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// RespondToGame records a player's game response
func (h *Handler) RespondToGame(w http.ResponseWriter, r *http.Request) {
	req, err := decode[responseRequest](r)
	if err != nil || req.PlayerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	rec, err := h.service.RespondToGame(chi.URLParam(r, "gameID"), req.PlayerID, req.Response, req.Note)
	if err != nil {
		h.writeServiceError(w, "respond to game", err)
		return
	}
	h.writeSuccess(w, rec)
}

// ReleaseGameInvites sends a game's invitations
func (h *Handler) ReleaseGameInvites(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ReleaseGameInvites(chi.URLParam(r, "gameID"))
	if err != nil {
		h.writeServiceError(w, "release game invites", err)
		return
	}
	h.writeSuccess(w, out)
}

// AddEvent schedules an event
func (h *Handler) AddEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := decode[domain.Event](r)
	if err != nil || ev.Date == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	out, err := h.service.AddEvent(ev)
	if err != nil {
		h.writeServiceError(w, "add event", err)
		return
	}
	h.writeCreated(w, out)
}

// UpdateEvent replaces an event's details
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := decode[domain.Event](r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}
	ev.ID = chi.URLParam(r, "eventID")
	out, err := h.service.UpdateEvent(ev)
	if err != nil {
		h.writeServiceError(w, "update event", err)
		return
	}
	h.writeSuccess(w, out)
}

// RemoveEvent deletes an event
func (h *Handler) RemoveEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveEvent(chi.URLParam(r, "eventID")); err != nil {
		h.writeServiceError(w, "remove event", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// RespondToEvent records a player's event response
func (h *Handler) RespondToEvent(w http.ResponseWriter, r *http.Request) {
	req, err := decode[responseRequest](r)
	if err != nil || req.PlayerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	rec, err := h.service.RespondToEvent(chi.URLParam(r, "eventID"), req.PlayerID, req.Response, req.Note)
	if err != nil {
		h.writeServiceError(w, "respond to event", err)
		return
	}
	h.writeSuccess(w, rec)
}

// ReleaseEventInvites sends an event's invitations
func (h *Handler) ReleaseEventInvites(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.ReleaseEventInvites(chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeServiceError(w, "release event invites", err)
		return
	}
	h.writeSuccess(w, out)
}

// CheckReleases runs the scheduled-invitation check now
func (h *Handler) CheckReleases(w http.ResponseWriter, r *http.Request) {
	res := h.service.CheckScheduledReleases(r.Context())
	h.writeSuccess(w, map[string]int{
		"games":         len(res.Games),
		"events":        len(res.Events),
		"notifications": len(res.Notifications),
	})
}

// SendChatMessage posts to the team chat
func (h *Handler) SendChatMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := decode[domain.ChatMessage](r)
	if err != nil || (msg.Body == "" && msg.PhotoURL == "") {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	out, err := h.service.SendChatMessage(msg)
	if err != nil {
		h.writeServiceError(w, "send chat message", err)
		return
	}
	h.writeCreated(w, out)
}

// DeleteChatMessage removes a chat message
func (h *Handler) DeleteChatMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteChatMessage(chi.URLParam(r, "messageID")); err != nil {
		h.writeServiceError(w, "delete chat message", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// AddPaymentPeriod creates a dues period
func (h *Handler) AddPaymentPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := decode[domain.PaymentPeriod](r)
	if err != nil || p.Amount < 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	out, err := h.service.AddPaymentPeriod(p)
	if err != nil {
		h.writeServiceError(w, "add payment period", err)
		return
	}
	h.writeCreated(w, out)
}

// UpdatePaymentPeriod changes a dues period
func (h *Handler) UpdatePaymentPeriod(w http.ResponseWriter, r *http.Request) {
	p, err := decode[domain.PaymentPeriod](r)
	if err != nil || p.Amount < 0 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	p.ID = chi.URLParam(r, "periodID")
	out, err := h.service.UpdatePaymentPeriod(p)
	if err != nil {
		h.writeServiceError(w, "update payment period", err)
		return
	}
	h.writeSuccess(w, out)
}

// RemovePaymentPeriod deletes a dues period
func (h *Handler) RemovePaymentPeriod(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemovePaymentPeriod(chi.URLParam(r, "periodID")); err != nil {
		h.writeServiceError(w, "remove payment period", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// RecordPayment records a player's payment against a period
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	req, err := decode[paymentRequest](r)
	if err != nil || req.PlayerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	pp, err := h.service.RecordPayment(chi.URLParam(r, "periodID"), req.PlayerID, domain.PaymentEntry{
		Amount: req.Amount,
		Method: req.Method,
		Note:   req.Note,
	})
	if err != nil {
		h.writeServiceError(w, "record payment", err)
		return
	}
	h.writeCreated(w, pp)
}

// RemovePaymentEntry deletes a payment entry
func (h *Handler) RemovePaymentEntry(w http.ResponseWriter, r *http.Request) {
	pp, err := h.service.RemovePaymentEntry(chi.URLParam(r, "entryID"))
	if err != nil {
		h.writeServiceError(w, "remove payment entry", err)
		return
	}
	h.writeSuccess(w, pp)
}

// AddPhoto adds a photo
func (h *Handler) AddPhoto(w http.ResponseWriter, r *http.Request) {
	p, err := decode[domain.Photo](r)
	if err != nil || p.URL == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	out, err := h.service.AddPhoto(p)
	if err != nil {
		h.writeServiceError(w, "add photo", err)
		return
	}
	h.writeCreated(w, out)
}

// RemovePhoto deletes a photo
func (h *Handler) RemovePhoto(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemovePhoto(chi.URLParam(r, "photoID")); err != nil {
		h.writeServiceError(w, "remove photo", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// ListNotifications returns a player's notifications, newest first
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		playerID = h.service.Store().Session().PlayerID
	}
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	h.writeSuccess(w, h.service.Store().NotificationsFor(playerID))
}

// Notify adds a notification
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	n, err := decode[domain.AppNotification](r)
	if err != nil || n.ToPlayerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	out, err := h.service.Notify(n)
	if err != nil {
		h.writeServiceError(w, "notify", err)
		return
	}
	h.writeCreated(w, out)
}

// MarkNotificationRead flags a notification as read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.service.MarkNotificationRead(chi.URLParam(r, "notificationID")); err != nil {
		h.writeServiceError(w, "mark notification read", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "read"})
}

// MarkAllNotificationsRead flags every notification of a player as read
func (h *Handler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		playerID = h.service.Store().Session().PlayerID
	}
	if playerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	n, err := h.service.MarkAllNotificationsRead(playerID)
	if err != nil {
		h.writeServiceError(w, "mark all notifications read", err)
		return
	}
	h.writeSuccess(w, map[string]int{"marked": n})
}

// RemoveNotification deletes a notification
func (h *Handler) RemoveNotification(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveNotification(chi.URLParam(r, "notificationID")); err != nil {
		h.writeServiceError(w, "remove notification", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// AddPoll creates a poll
func (h *Handler) AddPoll(w http.ResponseWriter, r *http.Request) {
	p, err := decode[domain.Poll](r)
	if err != nil || p.Question == "" || len(p.Options) < 2 {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	out, err := h.service.AddPoll(p)
	if err != nil {
		h.writeServiceError(w, "add poll", err)
		return
	}
	h.writeCreated(w, out)
}

// Vote records a vote
func (h *Handler) Vote(w http.ResponseWriter, r *http.Request) {
	req, err := decode[voteRequest](r)
	if err != nil || req.OptionID == "" || req.PlayerID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	out, err := h.service.Vote(chi.URLParam(r, "pollID"), req.OptionID, req.PlayerID)
	if err != nil {
		h.writeServiceError(w, "vote", err)
		return
	}
	h.writeSuccess(w, out)
}

// RemovePoll deletes a poll
func (h *Handler) RemovePoll(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemovePoll(chi.URLParam(r, "pollID")); err != nil {
		h.writeServiceError(w, "remove poll", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}

// AddLink adds a team link
func (h *Handler) AddLink(w http.ResponseWriter, r *http.Request) {
	l, err := decode[domain.TeamLink](r)
	if err != nil || l.URL == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	out, err := h.service.AddLink(l)
	if err != nil {
		h.writeServiceError(w, "add link", err)
		return
	}
	h.writeCreated(w, out)
}

// RemoveLink deletes a team link
func (h *Handler) RemoveLink(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveLink(chi.URLParam(r, "linkID")); err != nil {
		h.writeServiceError(w, "remove link", err)
		return
	}
	h.writeSuccess(w, map[string]string{"status": "deleted"})
}
