package domain

import (
	"slices"
	"time"
)

// ChatMessage is a message in the team chat
type ChatMessage struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	SenderID  string    `json:"sender_id"`
	Body      string    `json:"body"`
	PhotoURL  string    `json:"photo_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Photo is an image shared with the team
type Photo struct {
	ID         string    `json:"id"`
	TeamID     string    `json:"team_id"`
	UploaderID string    `json:"uploader_id"`
	URL        string    `json:"url"`
	Caption    string    `json:"caption,omitempty"`
	GameID     string    `json:"game_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotificationType classifies in-app notifications
type NotificationType string

const (
	NotifyGameInvite    NotificationType = "game_invite"
	NotifyEventInvite   NotificationType = "event_invite"
	NotifyGameReminder  NotificationType = "game_reminder"
	NotifyChatMessage   NotificationType = "chat_message"
	NotifyPaymentDue    NotificationType = "payment_due"
	NotifyStatusChanged NotificationType = "status_changed"
)

// AppNotification is an in-app notification addressed to one player
type AppNotification struct {
	ID         string           `json:"id"`
	TeamID     string           `json:"team_id"`
	ToPlayerID string           `json:"to_player_id"`
	Type       NotificationType `json:"type"`
	Title      string           `json:"title"`
	Message    string           `json:"message,omitempty"`
	GameID     string           `json:"game_id,omitempty"`
	EventID    string           `json:"event_id,omitempty"`
	Read       bool             `json:"read"`
	CreatedAt  time.Time        `json:"created_at"`
}

// PollOption is one choice in a poll
type PollOption struct {
	ID    string   `json:"id"`
	Text  string   `json:"text"`
	Votes []string `json:"votes"`
}

// Poll is a team poll
type Poll struct {
	ID            string       `json:"id"`
	TeamID        string       `json:"team_id"`
	Question      string       `json:"question"`
	Options       []PollOption `json:"options"`
	CreatedBy     string       `json:"created_by"`
	AllowMultiple bool         `json:"allow_multiple"`
	ClosesAt      *time.Time   `json:"closes_at,omitempty"`
	Closed        bool         `json:"closed"`
	CreatedAt     time.Time    `json:"created_at"`
}

// Clone returns a deep copy
func (p Poll) Clone() Poll {
	c := p
	c.Options = make([]PollOption, len(p.Options))
	for i, o := range p.Options {
		o.Votes = slices.Clone(o.Votes)
		c.Options[i] = o
	}
	return c
}

// Vote records a player's vote for an option. Unless the poll allows
// multiple choices a new vote replaces the previous one. Returns false when
// nothing changed.
func (p *Poll) Vote(optionID, playerID string) bool {
	idx := slices.IndexFunc(p.Options, func(o PollOption) bool { return o.ID == optionID })
	if idx < 0 || p.Closed || slices.Contains(p.Options[idx].Votes, playerID) {
		return false
	}
	if !p.AllowMultiple {
		p.RemoveVoter(playerID)
	}
	p.Options[idx].Votes = append(slices.Clone(p.Options[idx].Votes), playerID)
	return true
}

// RemoveVoter removes a player's votes from every option
func (p *Poll) RemoveVoter(playerID string) bool {
	changed := false
	for i := range p.Options {
		if slices.Contains(p.Options[i].Votes, playerID) {
			p.Options[i].Votes = remove(p.Options[i].Votes, playerID)
			changed = true
		}
	}
	return changed
}

// TeamLink is a bookmarked link shared with the team
type TeamLink struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	CreatedBy string    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the signed-in identity of this device
type Session struct {
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	PlayerID       string   `json:"player_id,omitempty"`
	LoggedIn       bool     `json:"logged_in"`
	PendingTeamIDs []string `json:"pending_team_ids,omitempty"`
}
