package domain

import "time"

// Sport identifies the sport a team plays
type Sport string

const (
	SportHockey     Sport = "hockey"
	SportSoccer     Sport = "soccer"
	SportBaseball   Sport = "baseball"
	SportSoftball   Sport = "softball"
	SportBasketball Sport = "basketball"
	SportVolleyball Sport = "volleyball"
	SportOther      Sport = "other"
)

// JerseyColor is one entry of the team's jersey palette
type JerseyColor struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

// PaymentMethod is a way players can pay team dues
type PaymentMethod struct {
	Type        string `json:"type"`
	Handle      string `json:"handle,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Record is the team's season win/loss record
type Record struct {
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
	Ties   int `json:"ties"`
	OTL    int `json:"otl,omitempty"`
}

// TeamSettings holds feature toggles and presentation settings
type TeamSettings struct {
	ShowPayments     bool            `json:"show_payments"`
	ShowChat         bool            `json:"show_chat"`
	ShowPhotos       bool            `json:"show_photos"`
	ShowPolls        bool            `json:"show_polls"`
	ShowLinks        bool            `json:"show_links"`
	ShowStats        bool            `json:"show_stats"`
	ShowRecord       bool            `json:"show_record"`
	JerseyColors     []JerseyColor   `json:"jersey_colors,omitempty"`
	PaymentMethods   []PaymentMethod `json:"payment_methods,omitempty"`
	Record           Record          `json:"record"`
	ReminderHours    int             `json:"reminder_hours,omitempty"`
	DefaultInviteAll bool            `json:"default_invite_all"`
}

// Team represents a team's identity and settings
type Team struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Sport     Sport        `json:"sport"`
	Settings  TeamSettings `json:"settings"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// TeamData is everything a team owns. One TeamData per team lives in the
// local store; the active team is just the one the session points at.
type TeamData struct {
	Team           Team              `json:"team"`
	Players        []Player          `json:"players"`
	Games          []Game            `json:"games"`
	Events         []Event           `json:"events"`
	Chat           []ChatMessage     `json:"chat"`
	PaymentPeriods []PaymentPeriod   `json:"payment_periods"`
	Photos         []Photo           `json:"photos"`
	Notifications  []AppNotification `json:"notifications"`
	Polls          []Poll            `json:"polls"`
	Links          []TeamLink        `json:"links"`
}

// NewTeamData returns an empty data set for a team
func NewTeamData(team Team) TeamData {
	return TeamData{
		Team:           team,
		Players:        []Player{},
		Games:          []Game{},
		Events:         []Event{},
		Chat:           []ChatMessage{},
		PaymentPeriods: []PaymentPeriod{},
		Photos:         []Photo{},
		Notifications:  []AppNotification{},
		Polls:          []Poll{},
		Links:          []TeamLink{},
	}
}

// FillDefaults replaces nil collections with empty ones so that snapshots
// written by older versions decode into a usable shape.
func (d *TeamData) FillDefaults() {
	if d.Players == nil {
		d.Players = []Player{}
	}
	if d.Games == nil {
		d.Games = []Game{}
	}
	if d.Events == nil {
		d.Events = []Event{}
	}
	if d.Chat == nil {
		d.Chat = []ChatMessage{}
	}
	if d.PaymentPeriods == nil {
		d.PaymentPeriods = []PaymentPeriod{}
	}
	if d.Photos == nil {
		d.Photos = []Photo{}
	}
	if d.Notifications == nil {
		d.Notifications = []AppNotification{}
	}
	if d.Polls == nil {
		d.Polls = []Poll{}
	}
	if d.Links == nil {
		d.Links = []TeamLink{}
	}
	for i := range d.Games {
		d.Games[i].FillDefaults()
	}
	for i := range d.Events {
		d.Events[i].FillDefaults()
	}
}

// FindPlayer returns the index of the player with the given id, or -1
func (d *TeamData) FindPlayer(id string) int {
	for i := range d.Players {
		if d.Players[i].ID == id {
			return i
		}
	}
	return -1
}

// FindGame returns the index of the game with the given id, or -1
func (d *TeamData) FindGame(id string) int {
	for i := range d.Games {
		if d.Games[i].ID == id {
			return i
		}
	}
	return -1
}

// FindEvent returns the index of the event with the given id, or -1
func (d *TeamData) FindEvent(id string) int {
	for i := range d.Events {
		if d.Events[i].ID == id {
			return i
		}
	}
	return -1
}
