package worker

import (
	"context"
	"fmt"

	"github.com/roster-sync/internal/remote"
)

// handle merges one change event into the store. A bad event never stops
// the drain loop.
func (m *SyncManager) handle(ctx context.Context, teamID string, ev remote.ChangeEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("panic while merging change event",
				"team_id", teamID,
				"table", ev.Table,
				"op", ev.Op,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if ev.Op == remote.OpReset {
		m.logger.Info("change subscription reset, reloading team", "team_id", teamID)
		if err := m.reload(ctx, teamID); err != nil {
			m.logger.Warn("failed to reload team after reset", "team_id", teamID, "error", err)
		}
		return
	}
	if ev.TeamID != "" && ev.TeamID != teamID {
		m.logger.Debug("dropping change event for another team", "team_id", ev.TeamID, "table", ev.Table)
		return
	}

	st := m.store
	switch ev.Table {
	case remote.TableTeams:
		merge(m, teamID, ev,
			func(r remote.TeamRow) bool { return st.MergeTeam(r.Team) },
			nil)
	case remote.TablePlayers:
		merge(m, teamID, ev,
			func(r remote.PlayerRow) bool { return st.MergePlayer(teamID, r.Player) },
			func(r remote.PlayerRow) bool { return st.DeletePlayer(teamID, r.ID) })
	case remote.TableGames:
		merge(m, teamID, ev,
			func(r remote.GameRow) bool { return st.MergeGame(teamID, r.Game()) },
			func(r remote.GameRow) bool { return st.DeleteGame(teamID, r.ID) })
	case remote.TableEvents:
		merge(m, teamID, ev,
			func(r remote.EventRow) bool { return st.MergeEvent(teamID, r.Event()) },
			func(r remote.EventRow) bool { return st.DeleteEvent(teamID, r.ID) })
	case remote.TableGameResponses:
		merge(m, teamID, ev,
			func(r remote.GameResponseRow) bool { return st.ApplyGameResponse(teamID, r.Record()) },
			func(r remote.GameResponseRow) bool {
				rec := r.Record()
				return st.RemoveGameResponse(teamID, rec.EntityID, rec.PlayerID)
			})
	case remote.TableEventResponses:
		merge(m, teamID, ev,
			func(r remote.EventResponseRow) bool { return st.ApplyEventResponse(teamID, r.Record()) },
			func(r remote.EventResponseRow) bool {
				rec := r.Record()
				return st.RemoveEventResponse(teamID, rec.EntityID, rec.PlayerID)
			})
	case remote.TableChatMessages:
		merge(m, teamID, ev,
			func(r remote.ChatMessageRow) bool { return st.UpsertChatMessage(teamID, r.ChatMessage) },
			func(r remote.ChatMessageRow) bool { return st.DeleteChatMessage(teamID, r.ID) })
	case remote.TablePhotos:
		merge(m, teamID, ev,
			func(r remote.PhotoRow) bool { return st.UpsertPhoto(teamID, r.Photo) },
			func(r remote.PhotoRow) bool { return st.DeletePhoto(teamID, r.ID) })
	case remote.TableNotifications:
		merge(m, teamID, ev,
			func(r remote.NotificationRow) bool { return st.UpsertNotification(teamID, r.AppNotification) },
			func(r remote.NotificationRow) bool { return st.DeleteNotification(teamID, r.ID) })
	case remote.TablePolls:
		merge(m, teamID, ev,
			func(r remote.PollRow) bool { return st.UpsertPoll(teamID, r.Poll) },
			func(r remote.PollRow) bool { return st.DeletePoll(teamID, r.ID) })
	case remote.TableTeamLinks:
		merge(m, teamID, ev,
			func(r remote.TeamLinkRow) bool { return st.UpsertLink(teamID, r.TeamLink) },
			func(r remote.TeamLinkRow) bool { return st.DeleteLink(teamID, r.ID) })
	default:
		m.logger.Debug("ignoring change event for unknown table", "table", ev.Table)
	}
}

// merge decodes the event row as T and routes it to the upsert or delete
// handler. Rows belonging to another team are dropped. A nil delete handler
// ignores deletes.
func merge[T remote.Row](m *SyncManager, teamID string, ev remote.ChangeEvent, upsert, del func(T) bool) {
	row, err := remote.Decode[T](ev.Row())
	if err != nil {
		m.logger.Warn("dropping malformed change event", "table", ev.Table, "op", ev.Op, "error", err)
		return
	}
	if owner := row.RowTeamID(); owner != "" && owner != teamID {
		m.logger.Debug("dropping row for another team", "table", ev.Table, "team_id", owner)
		return
	}

	var changed bool
	switch ev.Op {
	case remote.OpDelete:
		if del == nil {
			m.logger.Warn("ignoring remote delete", "table", ev.Table, "id", row.RowID())
			return
		}
		changed = del(row)
	case remote.OpInsert, remote.OpUpdate:
		changed = upsert(row)
	default:
		m.logger.Warn("dropping change event with unknown op", "table", ev.Table, "op", ev.Op)
		return
	}
	m.logger.Debug("merged change event",
		"table", ev.Table,
		"op", ev.Op,
		"id", row.RowID(),
		"changed", changed,
	)
}
