package push

import (
	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/remote"
)

// PushTeam upserts the team row. A conflict on create counts as success.
func (p *Pusher) PushTeam(team domain.Team) {
	p.upsert("push team", team.ID, remote.TeamRow{Team: team})
}

func (p *Pusher) PushPlayer(player domain.Player) {
	p.upsert("push player", player.TeamID, remote.PlayerRow{Player: player})
}

// DeletePlayer removes the player with their response rows and payments
func (p *Pusher) DeletePlayer(teamID, playerID string) {
	p.remove("delete player", teamID,
		deleteOp{remote.TableGameResponses, byColumn(teamID, "player_id", playerID)},
		deleteOp{remote.TableEventResponses, byColumn(teamID, "player_id", playerID)},
		deleteOp{remote.TablePlayerPayments, byColumn(teamID, "player_id", playerID)},
		deleteOp{remote.TablePlayers, byID(teamID, playerID)},
	)
}

// PushGame upserts the game row; the membership goes through PushResponses
func (p *Pusher) PushGame(g domain.Game) {
	p.upsert("push game", g.TeamID, remote.GameRowFrom(g))
}

func (p *Pusher) DeleteGame(teamID, gameID string) {
	p.remove("delete game", teamID,
		deleteOp{remote.TableGameResponses, byColumn(teamID, "game_id", gameID)},
		deleteOp{remote.TableGames, byID(teamID, gameID)},
	)
}

func (p *Pusher) PushEvent(e domain.Event) {
	p.upsert("push event", e.TeamID, remote.EventRowFrom(e))
}

func (p *Pusher) DeleteEvent(teamID, eventID string) {
	p.remove("delete event", teamID,
		deleteOp{remote.TableEventResponses, byColumn(teamID, "event_id", eventID)},
		deleteOp{remote.TableEvents, byID(teamID, eventID)},
	)
}

func (p *Pusher) PushGameResponse(teamID string, rec domain.ResponseRecord) {
	rec.Kind = domain.KindGame
	p.PushResponses(teamID, rec)
}

func (p *Pusher) PushEventResponse(teamID string, rec domain.ResponseRecord) {
	rec.Kind = domain.KindEvent
	p.PushResponses(teamID, rec)
}

// PushResponses upserts a batch of response rows, such as the records a
// cascade changed, in one job
func (p *Pusher) PushResponses(teamID string, recs ...domain.ResponseRecord) {
	rows := make([]remote.Row, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, remote.ResponseRowFrom(teamID, rec))
	}
	p.upsert("push responses", teamID, rows...)
}

// DeleteResponses removes the response rows of players no longer invited
// to a game or event
func (p *Pusher) DeleteResponses(teamID string, kind domain.EntityKind, entityID string, playerIDs ...string) {
	if len(playerIDs) == 0 {
		return
	}
	table := remote.TableGameResponses
	if kind == domain.KindEvent {
		table = remote.TableEventResponses
	}
	ops := make([]deleteOp, 0, len(playerIDs))
	for _, id := range playerIDs {
		ops = append(ops, deleteOp{table, byID(teamID, remote.ResponseID(entityID, id))})
	}
	p.remove("delete responses", teamID, ops...)
}

func (p *Pusher) PushChatMessage(m domain.ChatMessage) {
	p.upsert("push chat message", m.TeamID, remote.ChatMessageRow{ChatMessage: m})
}

func (p *Pusher) DeleteChatMessage(teamID, id string) {
	p.remove("delete chat message", teamID, deleteOp{remote.TableChatMessages, byID(teamID, id)})
}

// PushPaymentPeriod upserts the period and its nested payments and entries
func (p *Pusher) PushPaymentPeriod(period domain.PaymentPeriod) {
	rows := []remote.Row{remote.PaymentPeriodRowFrom(period)}
	for _, pp := range period.PlayerPayments {
		rows = append(rows, remote.PlayerPaymentRowFrom(period.TeamID, pp))
		for _, e := range pp.Entries {
			rows = append(rows, remote.PaymentEntryRowFrom(period.TeamID, e))
		}
	}
	p.upsert("push payment period", period.TeamID, rows...)
}

// DeletePaymentPeriod removes the period, leaves first
func (p *Pusher) DeletePaymentPeriod(period domain.PaymentPeriod) {
	teamID := period.TeamID
	ops := make([]deleteOp, 0, len(period.PlayerPayments)+2)
	for _, pp := range period.PlayerPayments {
		ops = append(ops, deleteOp{remote.TablePaymentEntries, byColumn(teamID, "player_payment_id", pp.ID)})
	}
	ops = append(ops,
		deleteOp{remote.TablePlayerPayments, byColumn(teamID, "period_id", period.ID)},
		deleteOp{remote.TablePaymentPeriods, byID(teamID, period.ID)},
	)
	p.remove("delete payment period", teamID, ops...)
}

// PushPlayerPayment upserts one player payment with its entries
func (p *Pusher) PushPlayerPayment(teamID string, pp domain.PlayerPayment) {
	rows := []remote.Row{remote.PlayerPaymentRowFrom(teamID, pp)}
	for _, e := range pp.Entries {
		rows = append(rows, remote.PaymentEntryRowFrom(teamID, e))
	}
	p.upsert("push player payment", teamID, rows...)
}

func (p *Pusher) DeletePaymentEntry(teamID, entryID string) {
	p.remove("delete payment entry", teamID, deleteOp{remote.TablePaymentEntries, byID(teamID, entryID)})
}

func (p *Pusher) PushPhoto(ph domain.Photo) {
	p.upsert("push photo", ph.TeamID, remote.PhotoRow{Photo: ph})
}

func (p *Pusher) DeletePhoto(teamID, id string) {
	p.remove("delete photo", teamID, deleteOp{remote.TablePhotos, byID(teamID, id)})
}

// PushNotifications upserts a batch of notifications in one job
func (p *Pusher) PushNotifications(ns ...domain.AppNotification) {
	if len(ns) == 0 {
		return
	}
	rows := make([]remote.Row, 0, len(ns))
	for _, n := range ns {
		rows = append(rows, remote.NotificationRow{AppNotification: n})
	}
	p.upsert("push notifications", ns[0].TeamID, rows...)
}

func (p *Pusher) DeleteNotification(teamID, id string) {
	p.remove("delete notification", teamID, deleteOp{remote.TableNotifications, byID(teamID, id)})
}

func (p *Pusher) PushPoll(poll domain.Poll) {
	p.upsert("push poll", poll.TeamID, remote.PollRow{Poll: poll})
}

func (p *Pusher) DeletePoll(teamID, id string) {
	p.remove("delete poll", teamID, deleteOp{remote.TablePolls, byID(teamID, id)})
}

func (p *Pusher) PushTeamLink(l domain.TeamLink) {
	p.upsert("push team link", l.TeamID, remote.TeamLinkRow{TeamLink: l})
}

func (p *Pusher) DeleteTeamLink(teamID, id string) {
	p.remove("delete team link", teamID, deleteOp{remote.TableTeamLinks, byID(teamID, id)})
}
