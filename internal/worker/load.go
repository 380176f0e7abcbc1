package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/remote"
)

// Loader reads a team's full data set from the remote service
type Loader struct {
	remote remote.Reader
	logger *slog.Logger
}

// NewLoader creates a new loader
func NewLoader(r remote.Reader, logger *slog.Logger) *Loader {
	return &Loader{remote: r, logger: logger}
}

// fetch selects one table on the group. A table that is not provisioned
// yields no rows; rows that do not decode are skipped.
func fetch[T remote.Row](l *Loader, g *errgroup.Group, ctx context.Context, filter remote.Filter, dst *[]T) {
	g.Go(func() error {
		var zero T
		table := zero.Table()
		raws, err := l.remote.Select(ctx, table, filter)
		if errors.Is(err, domain.ErrTableMissing) {
			l.logger.Warn("remote table missing, treating as empty", "table", table)
			return nil
		}
		if err != nil {
			return fmt.Errorf("selecting %s: %w", table, err)
		}
		rows := make([]T, 0, len(raws))
		for _, raw := range raws {
			row, err := remote.Decode[T](raw)
			if err != nil {
				l.logger.Warn("skipping malformed row", "table", table, "error", err)
				continue
			}
			rows = append(rows, row)
		}
		*dst = rows
		return nil
	})
}

// LoadTeam fetches every table for the team concurrently and assembles the
// result: response rows are folded onto their game or event and payment
// statuses are derived. Any failure other than a missing table fails the
// whole load.
func (l *Loader) LoadTeam(ctx context.Context, teamID string) (domain.TeamData, error) {
	var (
		teams          []remote.TeamRow
		players        []remote.PlayerRow
		games          []remote.GameRow
		gameResponses  []remote.GameResponseRow
		events         []remote.EventRow
		eventResponses []remote.EventResponseRow
		chat           []remote.ChatMessageRow
		periods        []remote.PaymentPeriodRow
		payments       []remote.PlayerPaymentRow
		entries        []remote.PaymentEntryRow
		photos         []remote.PhotoRow
		notifications  []remote.NotificationRow
		polls          []remote.PollRow
		links          []remote.TeamLinkRow
	)

	byTeam := remote.Eq("team_id", teamID)
	g, gctx := errgroup.WithContext(ctx)
	fetch(l, g, gctx, remote.Eq("id", teamID), &teams)
	fetch(l, g, gctx, byTeam, &players)
	fetch(l, g, gctx, byTeam, &games)
	fetch(l, g, gctx, byTeam, &gameResponses)
	fetch(l, g, gctx, byTeam, &events)
	fetch(l, g, gctx, byTeam, &eventResponses)
	fetch(l, g, gctx, byTeam, &chat)
	fetch(l, g, gctx, byTeam, &periods)
	fetch(l, g, gctx, byTeam, &payments)
	fetch(l, g, gctx, byTeam, &entries)
	fetch(l, g, gctx, byTeam, &photos)
	fetch(l, g, gctx, byTeam, &notifications)
	fetch(l, g, gctx, byTeam, &polls)
	fetch(l, g, gctx, byTeam, &links)
	if err := g.Wait(); err != nil {
		return domain.TeamData{}, fmt.Errorf("loading team %s: %w", teamID, err)
	}

	team := domain.Team{ID: teamID}
	if len(teams) > 0 {
		team = teams[0].Team
	}
	data := domain.NewTeamData(team)

	for _, r := range players {
		data.Players = append(data.Players, r.Player)
	}

	gameRecs := make(map[string][]domain.ResponseRecord, len(games))
	for _, r := range gameResponses {
		rec := r.Record()
		gameRecs[rec.EntityID] = append(gameRecs[rec.EntityID], rec)
	}
	for _, r := range games {
		game := r.Game()
		game.Roster = domain.Fold(r.InvitedPlayers, gameRecs[r.ID])
		game.FillDefaults()
		data.Games = append(data.Games, game)
	}

	eventRecs := make(map[string][]domain.ResponseRecord, len(events))
	for _, r := range eventResponses {
		rec := r.Record()
		eventRecs[rec.EntityID] = append(eventRecs[rec.EntityID], rec)
	}
	for _, r := range events {
		ev := r.Event()
		ev.Roster = domain.Fold(r.InvitedPlayers, eventRecs[r.ID])
		ev.FillDefaults()
		data.Events = append(data.Events, ev)
	}

	for _, r := range chat {
		data.Chat = append(data.Chat, r.ChatMessage)
	}
	data.PaymentPeriods = remote.AssemblePayments(periods, payments, entries)
	for _, r := range photos {
		data.Photos = append(data.Photos, r.Photo)
	}
	for _, r := range notifications {
		data.Notifications = append(data.Notifications, r.AppNotification)
	}
	for _, r := range polls {
		data.Polls = append(data.Polls, r.Poll)
	}
	for _, r := range links {
		data.Links = append(data.Links, r.TeamLink)
	}
	data.FillDefaults()
	return data, nil
}

// LoadPayments fetches the three payment tables and nests them
func (l *Loader) LoadPayments(ctx context.Context, teamID string) ([]domain.PaymentPeriod, error) {
	var (
		periods  []remote.PaymentPeriodRow
		payments []remote.PlayerPaymentRow
		entries  []remote.PaymentEntryRow
	)
	byTeam := remote.Eq("team_id", teamID)
	g, gctx := errgroup.WithContext(ctx)
	fetch(l, g, gctx, byTeam, &periods)
	fetch(l, g, gctx, byTeam, &payments)
	fetch(l, g, gctx, byTeam, &entries)
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading payments for team %s: %w", teamID, err)
	}
	return remote.AssemblePayments(periods, payments, entries), nil
}
