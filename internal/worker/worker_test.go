package worker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/remote"
	"github.com/roster-sync/internal/store"
)

var testNow = time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	n := 0
	return store.New(
		store.WithClock(func() time.Time { return testNow }),
		store.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
		store.WithLogger(testLogger()),
	)
}

// activate makes teamID the active team of an otherwise empty store
func activate(t *testing.T, st *store.Store, teamID string) {
	t.Helper()
	_, ok := st.CreateTeam(domain.Team{ID: teamID}, nil)
	require.True(t, ok)
	st.SwitchTeam(teamID)
	require.Equal(t, teamID, st.ActiveTeamID())
}

// seedRemote writes a small team: two players, one game with one response
// and a payment period
func seedRemote(t *testing.T, mem *remote.Memory, teamID string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, mem.Upsert(ctx,
		remote.TeamRow{Team: domain.Team{ID: teamID, Name: "Ice Hogs", CreatedAt: testNow}},
		remote.PlayerRow{Player: domain.Player{ID: "p1", TeamID: teamID, FirstName: "Sam", Status: domain.RosterActive}},
		remote.PlayerRow{Player: domain.Player{ID: "p2", TeamID: teamID, FirstName: "Alex", Status: domain.RosterActive}},
		remote.GameRow{ID: "g1", TeamID: teamID, Opponent: "Hawks", Date: "2025-03-01", InviteRelease: domain.ReleaseNow, InvitedPlayers: []string{"p1", "p2"}},
		remote.GameResponseRow{ID: "g1:p1", TeamID: teamID, GameID: "g1", PlayerID: "p1", Response: domain.ResponseIn, UpdatedAt: testNow},
		remote.PaymentPeriodRow{ID: "per1", TeamID: teamID, Title: "Ice time", Amount: 400},
		remote.PlayerPaymentRow{ID: "pp1", TeamID: teamID, PeriodID: "per1", PlayerID: "p1", Amount: 400},
	))
}
