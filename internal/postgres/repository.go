package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roster-sync/internal/config"
	"github.com/roster-sync/internal/domain"
	"github.com/roster-sync/internal/remote"
)

// Pool is the subset of *pgxpool.Pool the repository uses
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Repository stores every remote table as a document table keyed by the
// client-visible row id
type Repository struct {
	pool    Pool
	channel string
	logger  *slog.Logger
}

// Connect opens a connection pool
func Connect(ctx context.Context, cfg *config.PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", mapError(err))
	}
	return pool, nil
}

// NewRepository creates a new PostgreSQL repository. channel is the
// NOTIFY channel the change trigger publishes on.
func NewRepository(pool Pool, channel string, logger *slog.Logger) *Repository {
	return &Repository{
		pool:    pool,
		channel: channel,
		logger:  logger,
	}
}

// Close closes the database connection pool
func (r *Repository) Close() {
	r.pool.Close()
}

// RunMigrations creates the document tables and the change trigger
func (r *Repository) RunMigrations(ctx context.Context) error {
	for _, migration := range r.migrations() {
		if _, err := r.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", mapError(err))
		}
	}

	r.logger.Info("database migrations completed", "tables", len(remote.AllTables))
	return nil
}

func (r *Repository) migrations() []string {
	channel := strings.ReplaceAll(r.channel, "'", "''")

	// Row images over the NOTIFY payload limit are sent without data; the
	// listener reads them back by id.
	migrations := []string{
		`CREATE OR REPLACE FUNCTION roster_notify_change() RETURNS trigger AS $$
		DECLARE
			rec RECORD;
			payload JSONB;
		BEGIN
			IF TG_OP = 'DELETE' THEN
				rec := OLD;
			ELSE
				rec := NEW;
			END IF;
			payload := jsonb_build_object(
				'table', TG_TABLE_NAME,
				'op', TG_OP,
				'team_id', rec.team_id,
				'id', rec.id,
				'commit_time', now()
			);
			IF TG_OP = 'DELETE' THEN
				payload := payload || jsonb_build_object('old', jsonb_build_object('id', OLD.id, 'team_id', OLD.team_id));
			ELSIF octet_length(NEW.data::text) < 7000 THEN
				payload := payload || jsonb_build_object('new', NEW.data);
			END IF;
			PERFORM pg_notify('` + channel + `', payload::text);
			RETURN NULL;
		END;
		$$ LANGUAGE plpgsql`,
	}

	for _, t := range remote.AllTables {
		name := pgx.Identifier{string(t)}.Sanitize()
		migrations = append(migrations,
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				seq BIGINT GENERATED ALWAYS AS IDENTITY,
				id TEXT PRIMARY KEY,
				team_id TEXT NOT NULL,
				data JSONB NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`, name),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(team_id, seq)`,
				pgx.Identifier{"idx_" + string(t) + "_team"}.Sanitize(), name),
			fmt.Sprintf(`DROP TRIGGER IF EXISTS roster_notify ON %s`, name),
			fmt.Sprintf(`CREATE TRIGGER roster_notify AFTER INSERT OR UPDATE OR DELETE ON %s
				FOR EACH ROW EXECUTE FUNCTION roster_notify_change()`, name),
		)
	}
	return migrations
}

// tableName returns the quoted name of a known table
func tableName(t remote.Table) (string, error) {
	if !t.Known() {
		return "", fmt.Errorf("table %q: %w", t, domain.ErrTableMissing)
	}
	return pgx.Identifier{string(t)}.Sanitize(), nil
}

// where renders the filter. id and team_id are real columns; any other
// column is read from the document.
func where(filter remote.Filter) (string, []any) {
	if len(filter) == 0 {
		return "", nil
	}
	clauses := make([]string, 0, len(filter))
	args := make([]any, 0, len(filter)*2)
	for _, c := range filter {
		switch c.Column {
		case "id", "team_id":
			args = append(args, c.Value)
			clauses = append(clauses, fmt.Sprintf("%s = $%d", c.Column, len(args)))
		default:
			args = append(args, c.Column, c.Value)
			clauses = append(clauses, fmt.Sprintf("data ->> $%d = $%d", len(args)-1, len(args)))
		}
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Select returns the documents of a table matching the filter in insertion
// order
func (r *Repository) Select(ctx context.Context, table remote.Table, filter remote.Filter) ([]json.RawMessage, error) {
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	clause, args := where(filter)
	query := "SELECT data FROM " + name + clause + " ORDER BY seq"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, mapError(err))
	}
	defer rows.Close()

	var docs []json.RawMessage
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		docs = append(docs, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s rows: %w", table, mapError(err))
	}
	return docs, nil
}

// Fetch returns one document by id
func (r *Repository) Fetch(ctx context.Context, table remote.Table, id string) (json.RawMessage, error) {
	docs, err := r.Select(ctx, table, remote.Eq("id", id))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%s row %s: %w", table, id, pgx.ErrNoRows)
	}
	return docs[0], nil
}

// Upsert writes rows keyed by id in one transaction. A row whose document
// is unchanged is not rewritten, so it emits no change notification.
func (r *Repository) Upsert(ctx context.Context, rows ...remote.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", mapError(err))
	}
	defer tx.Rollback(ctx)

	for _, row := range rows {
		name, err := tableName(row.Table())
		if err != nil {
			return err
		}
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("encoding %s row %s: %w", row.Table(), row.RowID(), err)
		}
		query := `
			INSERT INTO ` + name + ` (id, team_id, data, updated_at)
			VALUES ($1, $2, $3, NOW())
			ON CONFLICT (id) DO UPDATE
			SET team_id = EXCLUDED.team_id, data = EXCLUDED.data, updated_at = NOW()
			WHERE ` + name + `.data IS DISTINCT FROM EXCLUDED.data
		`
		if _, err := tx.Exec(ctx, query, row.RowID(), row.RowTeamID(), data); err != nil {
			return fmt.Errorf("upserting %s row %s: %w", row.Table(), row.RowID(), mapError(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing upsert: %w", mapError(err))
	}
	return nil
}

// Delete removes the rows matching the filter. Deleting nothing is not an
// error.
func (r *Repository) Delete(ctx context.Context, table remote.Table, filter remote.Filter) error {
	name, err := tableName(table)
	if err != nil {
		return err
	}
	if len(filter) == 0 {
		return fmt.Errorf("refusing unfiltered delete on %s: %w", table, domain.ErrInvalidRequest)
	}
	clause, args := where(filter)

	result, err := r.pool.Exec(ctx, "DELETE FROM "+name+clause, args...)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", table, mapError(err))
	}
	r.logger.Debug("deleted rows", "table", table, "count", result.RowsAffected())
	return nil
}

// mapError translates server errors into domain errors
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "42P01":
		return fmt.Errorf("%s: %w", pgErr.Message, domain.ErrTableMissing)
	case "23505":
		return fmt.Errorf("%s: %w", pgErr.Message, domain.ErrTeamExists)
	case "28000", "28P01", "42501":
		return fmt.Errorf("%s: %w", pgErr.Message, domain.ErrSessionExpired)
	}
	return err
}
