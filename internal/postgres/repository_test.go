package postgres

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/remote"
)

func setupRepository(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRepository(mock, "roster_changes", logger), mock
}

func TestRepository_Select(t *testing.T) {
	repo, mock := setupRepository(t)
	ctx := context.Background()

	rows := pgxmock.NewRows([]string{"data"}).
		AddRow([]byte(`{"id":"p1","team_id":"team-a","first_name":"Sam"}`)).
		AddRow([]byte(`{"id":"p2","team_id":"team-a","first_name":"Alex"}`))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM "players" WHERE team_id = $1 ORDER BY seq`)).
		WithArgs("team-a").
		WillReturnRows(rows)

	docs, err := repo.Select(ctx, remote.TablePlayers, remote.Eq("team_id", "team-a"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.JSONEq(t, `{"id":"p1","team_id":"team-a","first_name":"Sam"}`, string(docs[0]))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SelectByDocumentColumn(t *testing.T) {
	repo, mock := setupRepository(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM "game_responses" WHERE data ->> $1 = $2 AND team_id = $3 ORDER BY seq`)).
		WithArgs("game_id", "g1", "team-a").
		WillReturnRows(pgxmock.NewRows([]string{"data"}))

	docs, err := repo.Select(ctx, remote.TableGameResponses, remote.Eq("game_id", "g1").And("team_id", "team-a"))
	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_SelectMissingTable(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery(`SELECT data FROM "polls"`).
		WithArgs("team-a").
		WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "polls" does not exist`})

	_, err := repo.Select(context.Background(), remote.TablePolls, remote.Eq("team_id", "team-a"))
	assert.ErrorIs(t, err, domain.ErrTableMissing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UnknownTable(t *testing.T) {
	repo, mock := setupRepository(t)

	_, err := repo.Select(context.Background(), "users; DROP TABLE teams", nil)
	assert.ErrorIs(t, err, domain.ErrTableMissing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Upsert(t *testing.T) {
	repo, mock := setupRepository(t)
	ctx := context.Background()

	player := remote.PlayerRow{Player: domain.Player{ID: "p1", TeamID: "team-a", FirstName: "Sam"}}
	resp := remote.GameResponseRow{ID: "g1:p1", TeamID: "team-a", GameID: "g1", PlayerID: "p1", Response: domain.ResponseIn}
	playerDoc, err := json.Marshal(player)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "players"`).
		WithArgs("p1", "team-a", playerDoc).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO "game_responses"`).
		WithArgs("g1:p1", "team-a", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Upsert(ctx, player, resp))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpsertTeamConflict(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "teams"`).
		WithArgs("team-a", "team-a", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	mock.ExpectRollback()

	err := repo.Upsert(context.Background(), remote.TeamRow{Team: domain.Team{ID: "team-a", Name: "Ice Hogs"}})
	assert.ErrorIs(t, err, domain.ErrTeamExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpsertSessionExpired(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectBegin().WillReturnError(&pgconn.PgError{Code: "28P01", Message: "password authentication failed"})

	err := repo.Upsert(context.Background(), remote.PollRow{Poll: domain.Poll{ID: "poll1", TeamID: "team-a"}})
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_UpsertNothing(t *testing.T) {
	repo, mock := setupRepository(t)
	require.NoError(t, repo.Upsert(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Delete(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "chat_messages" WHERE id = $1 AND team_id = $2`)).
		WithArgs("m1", "team-a").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := repo.Delete(context.Background(), remote.TableChatMessages, remote.Eq("id", "m1").And("team_id", "team-a"))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_DeleteRequiresFilter(t *testing.T) {
	repo, mock := setupRepository(t)

	err := repo.Delete(context.Background(), remote.TablePlayers, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_RunMigrations(t *testing.T) {
	repo, mock := setupRepository(t)

	migrations := repo.migrations()
	// one trigger function plus four statements per table
	require.Len(t, migrations, 1+4*len(remote.AllTables))
	assert.Contains(t, migrations[0], "pg_notify('roster_changes'")

	for _, m := range migrations {
		mock.ExpectExec(regexp.QuoteMeta(m)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
	require.NoError(t, repo.RunMigrations(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
