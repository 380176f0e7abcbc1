package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roster-sync/internal/domain"
)

// Row is a record of one remote table. Every table is keyed by a
// client-visible id so upserts are idempotent.
type Row interface {
	Table() Table
	RowID() string
	RowTeamID() string
}

// TeamRow is a row of the teams table
type TeamRow struct {
	domain.Team
}

func (r TeamRow) Table() Table      { return TableTeams }
func (r TeamRow) RowID() string     { return r.ID }
func (r TeamRow) RowTeamID() string { return r.ID }

// PlayerRow is a row of the players table
type PlayerRow struct {
	domain.Player
}

func (r PlayerRow) Table() Table      { return TablePlayers }
func (r PlayerRow) RowID() string     { return r.ID }
func (r PlayerRow) RowTeamID() string { return r.TeamID }

// GameRow is a row of the games table. Membership is not stored on the row;
// only the invite list is, responses live in game_responses.
type GameRow struct {
	ID              string               `json:"id"`
	TeamID          string               `json:"team_id"`
	Opponent        string               `json:"opponent"`
	Date            string               `json:"date"`
	Time            string               `json:"time,omitempty"`
	Location        string               `json:"location,omitempty"`
	Address         string               `json:"address,omitempty"`
	IsHome          bool                 `json:"is_home"`
	JerseyColor     string               `json:"jersey_color,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	Result          *domain.GameResult   `json:"result,omitempty"`
	InviteRelease   domain.InviteRelease `json:"invite_release"`
	InviteReleaseAt *time.Time           `json:"invite_release_at,omitempty"`
	InvitesSentAt   *time.Time           `json:"invites_sent_at,omitempty"`
	InvitedPlayers  []string             `json:"invited_players"`
	CreatedAt       time.Time            `json:"created_at"`
}

func (r GameRow) Table() Table      { return TableGames }
func (r GameRow) RowID() string     { return r.ID }
func (r GameRow) RowTeamID() string { return r.TeamID }

// EventRow is a row of the events table
type EventRow struct {
	ID              string               `json:"id"`
	TeamID          string               `json:"team_id"`
	Title           string               `json:"title"`
	Type            domain.EventType     `json:"type"`
	Date            string               `json:"date"`
	Time            string               `json:"time,omitempty"`
	EndTime         string               `json:"end_time,omitempty"`
	Location        string               `json:"location,omitempty"`
	Address         string               `json:"address,omitempty"`
	Description     string               `json:"description,omitempty"`
	InviteRelease   domain.InviteRelease `json:"invite_release"`
	InviteReleaseAt *time.Time           `json:"invite_release_at,omitempty"`
	InvitesSentAt   *time.Time           `json:"invites_sent_at,omitempty"`
	InvitedPlayers  []string             `json:"invited_players"`
	CreatedAt       time.Time            `json:"created_at"`
}

func (r EventRow) Table() Table      { return TableEvents }
func (r EventRow) RowID() string     { return r.ID }
func (r EventRow) RowTeamID() string { return r.TeamID }

// GameResponseRow is a row of game_responses, one per (game, player)
type GameResponseRow struct {
	ID        string          `json:"id"`
	TeamID    string          `json:"team_id"`
	GameID    string          `json:"game_id"`
	PlayerID  string          `json:"player_id"`
	Response  domain.Response `json:"response"`
	Note      string          `json:"note,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (r GameResponseRow) Table() Table      { return TableGameResponses }
func (r GameResponseRow) RowID() string     { return r.ID }
func (r GameResponseRow) RowTeamID() string { return r.TeamID }

// EventResponseRow is a row of event_responses, one per (event, player)
type EventResponseRow struct {
	ID        string          `json:"id"`
	TeamID    string          `json:"team_id"`
	EventID   string          `json:"event_id"`
	PlayerID  string          `json:"player_id"`
	Response  domain.Response `json:"response"`
	Note      string          `json:"note,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (r EventResponseRow) Table() Table      { return TableEventResponses }
func (r EventResponseRow) RowID() string     { return r.ID }
func (r EventResponseRow) RowTeamID() string { return r.TeamID }

// ChatMessageRow is a row of chat_messages
type ChatMessageRow struct {
	domain.ChatMessage
}

func (r ChatMessageRow) Table() Table      { return TableChatMessages }
func (r ChatMessageRow) RowID() string     { return r.ID }
func (r ChatMessageRow) RowTeamID() string { return r.TeamID }

// PaymentPeriodRow is a row of payment_periods without its nested payments
type PaymentPeriodRow struct {
	ID        string    `json:"id"`
	TeamID    string    `json:"team_id"`
	Title     string    `json:"title"`
	Amount    int64     `json:"amount"`
	DueDate   string    `json:"due_date,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (r PaymentPeriodRow) Table() Table      { return TablePaymentPeriods }
func (r PaymentPeriodRow) RowID() string     { return r.ID }
func (r PaymentPeriodRow) RowTeamID() string { return r.TeamID }

// PlayerPaymentRow is a row of player_payments. Status is not stored; it is
// derived from the entries on read.
type PlayerPaymentRow struct {
	ID       string `json:"id"`
	TeamID   string `json:"team_id"`
	PeriodID string `json:"period_id"`
	PlayerID string `json:"player_id"`
	Amount   int64  `json:"amount"`
}

func (r PlayerPaymentRow) Table() Table      { return TablePlayerPayments }
func (r PlayerPaymentRow) RowID() string     { return r.ID }
func (r PlayerPaymentRow) RowTeamID() string { return r.TeamID }

// PaymentEntryRow is a row of payment_entries
type PaymentEntryRow struct {
	ID              string    `json:"id"`
	TeamID          string    `json:"team_id"`
	PlayerPaymentID string    `json:"player_payment_id"`
	Amount          int64     `json:"amount"`
	Method          string    `json:"method,omitempty"`
	Note            string    `json:"note,omitempty"`
	PaidAt          time.Time `json:"paid_at"`
}

func (r PaymentEntryRow) Table() Table      { return TablePaymentEntries }
func (r PaymentEntryRow) RowID() string     { return r.ID }
func (r PaymentEntryRow) RowTeamID() string { return r.TeamID }

// PhotoRow is a row of photos
type PhotoRow struct {
	domain.Photo
}

func (r PhotoRow) Table() Table      { return TablePhotos }
func (r PhotoRow) RowID() string     { return r.ID }
func (r PhotoRow) RowTeamID() string { return r.TeamID }

// NotificationRow is a row of notifications
type NotificationRow struct {
	domain.AppNotification
}

func (r NotificationRow) Table() Table      { return TableNotifications }
func (r NotificationRow) RowID() string     { return r.ID }
func (r NotificationRow) RowTeamID() string { return r.TeamID }

// PollRow is a row of polls
type PollRow struct {
	domain.Poll
}

func (r PollRow) Table() Table      { return TablePolls }
func (r PollRow) RowID() string     { return r.ID }
func (r PollRow) RowTeamID() string { return r.TeamID }

// TeamLinkRow is a row of team_links
type TeamLinkRow struct {
	domain.TeamLink
}

func (r TeamLinkRow) Table() Table      { return TableTeamLinks }
func (r TeamLinkRow) RowID() string     { return r.ID }
func (r TeamLinkRow) RowTeamID() string { return r.TeamID }

// Decode unmarshals a change-event payload into a typed row. Payloads that
// do not decode or carry no id are reported as domain.ErrMalformedEvent.
func Decode[T Row](raw json.RawMessage) (T, error) {
	var row T
	if len(raw) == 0 {
		return row, fmt.Errorf("empty payload: %w", domain.ErrMalformedEvent)
	}
	if err := json.Unmarshal(raw, &row); err != nil {
		return row, fmt.Errorf("decoding %s row: %v: %w", row.Table(), err, domain.ErrMalformedEvent)
	}
	if row.RowID() == "" {
		return row, fmt.Errorf("%s row without id: %w", row.Table(), domain.ErrMalformedEvent)
	}
	return row, nil
}

// List selects rows of a table and decodes them into T
func List[T Row](ctx context.Context, r Reader, filter Filter) ([]T, error) {
	var zero T
	table := zero.Table()
	raws, err := r.Select(ctx, table, filter)
	if err != nil {
		return nil, fmt.Errorf("selecting %s: %w", table, err)
	}
	rows := make([]T, 0, len(raws))
	for _, raw := range raws {
		var row T
		if err := json.Unmarshal(raw, &row); err != nil {
			return nil, fmt.Errorf("decoding %s row: %w", table, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
