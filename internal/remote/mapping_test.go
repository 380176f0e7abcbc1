package remote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roster-sync/internal/domain"
)

func TestGameRow_RoundTripKeepsInviteListOnly(t *testing.T) {
	g := domain.Game{
		ID:            "g1",
		TeamID:        "t",
		Opponent:      "Hawks",
		Date:          "2025-03-01",
		InviteRelease: domain.ReleaseNow,
		Roster:        domain.Fold([]string{"p1", "p2"}, nil),
	}
	g.Roster.Set("p1", domain.ResponseIn, "", time.Now())

	row := GameRowFrom(g)
	assert.Equal(t, []string{"p1", "p2"}, row.InvitedPlayers)

	back := row.Game()
	assert.Equal(t, "Hawks", back.Opponent)
	assert.Equal(t, []string{"p1", "p2"}, back.Roster.Invited)
	assert.Empty(t, back.Roster.In)
}

func TestResponseRowFrom_UsesCompositeKey(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := domain.ResponseRecord{Kind: domain.KindEvent, EntityID: "e1", PlayerID: "p2", Response: domain.ResponseOut, Note: "work", UpdatedAt: at}

	row := ResponseRowFrom("t", rec)
	er, ok := row.(EventResponseRow)
	require.True(t, ok)
	assert.Equal(t, "e1:p2", er.RowID())
	assert.Equal(t, TableEventResponses, er.Table())
	assert.Equal(t, rec, er.Record())

	rec.Kind = domain.KindGame
	gr, ok := ResponseRowFrom("t", rec).(GameResponseRow)
	require.True(t, ok)
	assert.Equal(t, "e1", gr.GameID)
}

func TestResponseRecord_FromIDOnlyDelete(t *testing.T) {
	rec := GameResponseRow{ID: "g1:p1"}.Record()
	assert.Equal(t, "g1", rec.EntityID)
	assert.Equal(t, "p1", rec.PlayerID)
}

func TestAssemblePayments(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	periods := []PaymentPeriodRow{{ID: "per1", TeamID: "t", Title: "Season", Amount: 10000}}
	payments := []PlayerPaymentRow{
		{ID: "pp1", TeamID: "t", PeriodID: "per1", PlayerID: "p1", Amount: 10000},
		{ID: "pp2", TeamID: "t", PeriodID: "per1", PlayerID: "p2", Amount: 10000},
		{ID: "orphan", TeamID: "t", PeriodID: "gone", PlayerID: "p3", Amount: 10000},
	}
	entries := []PaymentEntryRow{
		{ID: "e2", PlayerPaymentID: "pp1", Amount: 5000, PaidAt: t0.Add(time.Hour)},
		{ID: "e1", PlayerPaymentID: "pp1", Amount: 5000, PaidAt: t0},
		{ID: "e3", PlayerPaymentID: "pp2", Amount: 2000, PaidAt: t0},
		{ID: "e4", PlayerPaymentID: "missing", Amount: 2000, PaidAt: t0},
	}

	out := AssemblePayments(periods, payments, entries)

	require.Len(t, out, 1)
	require.Len(t, out[0].PlayerPayments, 2)
	pp1 := out[0].PlayerPayments[0]
	assert.Equal(t, domain.PaymentPaid, pp1.Status)
	assert.Equal(t, "e1", pp1.Entries[0].ID)
	assert.Equal(t, domain.PaymentPartial, out[0].PlayerPayments[1].Status)
}
