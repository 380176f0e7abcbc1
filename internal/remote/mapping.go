package remote

import (
	"slices"
	"strings"

	"github.com/roster-sync/internal/domain"
)

// ResponseID is the composite key of a response row, so a player holds at
// most one response row per game or event.
func ResponseID(entityID, playerID string) string {
	return entityID + ":" + playerID
}

// GameRowFrom maps a local game to its remote row
func GameRowFrom(g domain.Game) GameRow {
	return GameRow{
		ID:              g.ID,
		TeamID:          g.TeamID,
		Opponent:        g.Opponent,
		Date:            g.Date,
		Time:            g.Time,
		Location:        g.Location,
		Address:         g.Address,
		IsHome:          g.IsHome,
		JerseyColor:     g.JerseyColor,
		Notes:           g.Notes,
		Result:          g.Result,
		InviteRelease:   g.InviteRelease,
		InviteReleaseAt: g.InviteReleaseAt,
		InvitesSentAt:   g.InvitesSentAt,
		InvitedPlayers:  slices.Clone(g.Roster.Invited),
		CreatedAt:       g.CreatedAt,
	}
}

// Game maps the row to a local game. The membership sets carry only the
// invite list; responses are folded in separately.
func (r GameRow) Game() domain.Game {
	g := domain.Game{
		ID:              r.ID,
		TeamID:          r.TeamID,
		Opponent:        r.Opponent,
		Date:            r.Date,
		Time:            r.Time,
		Location:        r.Location,
		Address:         r.Address,
		IsHome:          r.IsHome,
		JerseyColor:     r.JerseyColor,
		Notes:           r.Notes,
		Result:          r.Result,
		InviteRelease:   r.InviteRelease,
		InviteReleaseAt: r.InviteReleaseAt,
		InvitesSentAt:   r.InvitesSentAt,
		Roster:          domain.Fold(r.InvitedPlayers, nil),
		CreatedAt:       r.CreatedAt,
	}
	g.FillDefaults()
	return g
}

// EventRowFrom maps a local event to its remote row
func EventRowFrom(e domain.Event) EventRow {
	return EventRow{
		ID:              e.ID,
		TeamID:          e.TeamID,
		Title:           e.Title,
		Type:            e.Type,
		Date:            e.Date,
		Time:            e.Time,
		EndTime:         e.EndTime,
		Location:        e.Location,
		Address:         e.Address,
		Description:     e.Description,
		InviteRelease:   e.InviteRelease,
		InviteReleaseAt: e.InviteReleaseAt,
		InvitesSentAt:   e.InvitesSentAt,
		InvitedPlayers:  slices.Clone(e.Roster.Invited),
		CreatedAt:       e.CreatedAt,
	}
}

// Event maps the row to a local event
func (r EventRow) Event() domain.Event {
	e := domain.Event{
		ID:              r.ID,
		TeamID:          r.TeamID,
		Title:           r.Title,
		Type:            r.Type,
		Date:            r.Date,
		Time:            r.Time,
		EndTime:         r.EndTime,
		Location:        r.Location,
		Address:         r.Address,
		Description:     r.Description,
		InviteRelease:   r.InviteRelease,
		InviteReleaseAt: r.InviteReleaseAt,
		InvitesSentAt:   r.InvitesSentAt,
		Roster:          domain.Fold(r.InvitedPlayers, nil),
		CreatedAt:       r.CreatedAt,
	}
	e.FillDefaults()
	return e
}

// ResponseRowFrom maps a response record to the game or event response row
func ResponseRowFrom(teamID string, rec domain.ResponseRecord) Row {
	if rec.Kind == domain.KindEvent {
		return EventResponseRow{
			ID:        ResponseID(rec.EntityID, rec.PlayerID),
			TeamID:    teamID,
			EventID:   rec.EntityID,
			PlayerID:  rec.PlayerID,
			Response:  rec.Response,
			Note:      rec.Note,
			UpdatedAt: rec.UpdatedAt,
		}
	}
	return GameResponseRow{
		ID:        ResponseID(rec.EntityID, rec.PlayerID),
		TeamID:    teamID,
		GameID:    rec.EntityID,
		PlayerID:  rec.PlayerID,
		Response:  rec.Response,
		Note:      rec.Note,
		UpdatedAt: rec.UpdatedAt,
	}
}

// Record maps the row to a response record
func (r GameResponseRow) Record() domain.ResponseRecord {
	rec := domain.ResponseRecord{
		Kind:      domain.KindGame,
		EntityID:  r.GameID,
		PlayerID:  r.PlayerID,
		Response:  r.Response,
		Note:      r.Note,
		UpdatedAt: r.UpdatedAt,
	}
	if rec.EntityID == "" || rec.PlayerID == "" {
		rec.EntityID, rec.PlayerID = splitResponseID(r.ID)
	}
	return rec
}

// Record maps the row to a response record
func (r EventResponseRow) Record() domain.ResponseRecord {
	rec := domain.ResponseRecord{
		Kind:      domain.KindEvent,
		EntityID:  r.EventID,
		PlayerID:  r.PlayerID,
		Response:  r.Response,
		Note:      r.Note,
		UpdatedAt: r.UpdatedAt,
	}
	if rec.EntityID == "" || rec.PlayerID == "" {
		rec.EntityID, rec.PlayerID = splitResponseID(r.ID)
	}
	return rec
}

// splitResponseID recovers the key of a delete event that only carries the
// row id.
func splitResponseID(id string) (string, string) {
	entityID, playerID, ok := strings.Cut(id, ":")
	if !ok {
		return "", ""
	}
	return entityID, playerID
}

// PaymentPeriodRowFrom maps a period to its row, dropping nested payments
func PaymentPeriodRowFrom(p domain.PaymentPeriod) PaymentPeriodRow {
	return PaymentPeriodRow{
		ID:        p.ID,
		TeamID:    p.TeamID,
		Title:     p.Title,
		Amount:    p.Amount,
		DueDate:   p.DueDate,
		CreatedAt: p.CreatedAt,
	}
}

// PlayerPaymentRowFrom maps a player payment to its row
func PlayerPaymentRowFrom(teamID string, pp domain.PlayerPayment) PlayerPaymentRow {
	return PlayerPaymentRow{
		ID:       pp.ID,
		TeamID:   teamID,
		PeriodID: pp.PeriodID,
		PlayerID: pp.PlayerID,
		Amount:   pp.Amount,
	}
}

// PaymentEntryRowFrom maps a payment entry to its row
func PaymentEntryRowFrom(teamID string, e domain.PaymentEntry) PaymentEntryRow {
	return PaymentEntryRow{
		ID:              e.ID,
		TeamID:          teamID,
		PlayerPaymentID: e.PlayerPaymentID,
		Amount:          e.Amount,
		Method:          e.Method,
		Note:            e.Note,
		PaidAt:          e.PaidAt,
	}
}

// AssemblePayments nests flat payment rows into periods and derives every
// player payment status. Payments whose period is unknown and entries whose
// payment is unknown are dropped.
func AssemblePayments(periods []PaymentPeriodRow, payments []PlayerPaymentRow, entries []PaymentEntryRow) []domain.PaymentPeriod {
	byPayment := make(map[string][]domain.PaymentEntry, len(payments))
	for _, e := range entries {
		byPayment[e.PlayerPaymentID] = append(byPayment[e.PlayerPaymentID], domain.PaymentEntry{
			ID:              e.ID,
			PlayerPaymentID: e.PlayerPaymentID,
			Amount:          e.Amount,
			Method:          e.Method,
			Note:            e.Note,
			PaidAt:          e.PaidAt,
		})
	}

	byPeriod := make(map[string][]domain.PlayerPayment, len(periods))
	for _, p := range payments {
		pp := domain.PlayerPayment{
			ID:       p.ID,
			PeriodID: p.PeriodID,
			PlayerID: p.PlayerID,
			Amount:   p.Amount,
			Entries:  byPayment[p.ID],
		}
		if pp.Entries == nil {
			pp.Entries = []domain.PaymentEntry{}
		}
		slices.SortStableFunc(pp.Entries, func(a, b domain.PaymentEntry) int {
			return a.PaidAt.Compare(b.PaidAt)
		})
		pp.Recompute()
		byPeriod[p.PeriodID] = append(byPeriod[p.PeriodID], pp)
	}

	out := make([]domain.PaymentPeriod, 0, len(periods))
	for _, r := range periods {
		period := domain.PaymentPeriod{
			ID:             r.ID,
			TeamID:         r.TeamID,
			Title:          r.Title,
			Amount:         r.Amount,
			DueDate:        r.DueDate,
			CreatedAt:      r.CreatedAt,
			PlayerPayments: byPeriod[r.ID],
		}
		if period.PlayerPayments == nil {
			period.PlayerPayments = []domain.PlayerPayment{}
		}
		out = append(out, period)
	}
	return out
}
