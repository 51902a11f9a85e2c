package core

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const createImportHistory = `
CREATE TABLE IF NOT EXISTS import_history (
	import_id   TEXT PRIMARY KEY,
	event_id    TEXT NOT NULL,
	file_name   TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	total_rows  INTEGER NOT NULL DEFAULT 0,
	submitted   INTEGER NOT NULL DEFAULT 0,
	dropped     INTEGER NOT NULL DEFAULT 0,
	failed_row  INTEGER NOT NULL DEFAULT 0,
	failed_name TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	ip_address  TEXT NOT NULL DEFAULT '',
	user_agent  TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ,
	finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS import_history_event_idx ON import_history (event_id, started_at DESC);
`

// PostgresHistory is a HistoryStore backed by the import_history table.
type PostgresHistory struct {
	db DBTX
}

// NewPostgresHistory creates a PostgresHistory. Call EnsureSchema once
// before use.
func NewPostgresHistory(db DBTX) *PostgresHistory {
	return &PostgresHistory{db: db}
}

// EnsureSchema creates the import_history table if it does not exist.
func (h *PostgresHistory) EnsureSchema(ctx context.Context) error {
	if _, err := h.db.Exec(ctx, createImportHistory); err != nil {
		return fmt.Errorf("create import_history: %w", err)
	}
	return nil
}

// Record upserts entry by import id.
func (h *PostgresHistory) Record(ctx context.Context, e ImportStatus) error {
	const query = `
		INSERT INTO import_history (
			import_id, event_id, file_name, state, total_rows, submitted, dropped,
			failed_row, failed_name, error, ip_address, user_agent, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (import_id) DO UPDATE SET
			state = EXCLUDED.state,
			total_rows = EXCLUDED.total_rows,
			submitted = EXCLUDED.submitted,
			dropped = EXCLUDED.dropped,
			failed_row = EXCLUDED.failed_row,
			failed_name = EXCLUDED.failed_name,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at
	`
	_, err := h.db.Exec(ctx, query,
		e.ImportID, e.EventID, e.FileName, string(e.State), e.TotalRows, e.Submitted, e.Dropped,
		e.FailedRow, e.FailedName, e.Error, e.IPAddress, e.UserAgent, e.StartedAt, e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record import %s: %w", e.ImportID, err)
	}
	return nil
}

// List returns up to limit entries for eventID, newest first.
func (h *PostgresHistory) List(ctx context.Context, eventID string, limit int) ([]ImportStatus, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	const query = `
		SELECT import_id, event_id, file_name, state, total_rows, submitted, dropped,
		       failed_row, failed_name, error, ip_address, user_agent, started_at, finished_at
		FROM import_history
		WHERE event_id = $1
		ORDER BY started_at DESC NULLS LAST
		LIMIT $2
	`
	rows, err := h.db.Query(ctx, query, eventID, limit)
	if err != nil {
		return nil, fmt.Errorf("list import history: %w", err)
	}
	defer rows.Close()

	out := make([]ImportStatus, 0)
	for rows.Next() {
		var (
			e     ImportStatus
			state string
		)
		if err := rows.Scan(
			&e.ImportID, &e.EventID, &e.FileName, &state, &e.TotalRows, &e.Submitted, &e.Dropped,
			&e.FailedRow, &e.FailedName, &e.Error, &e.IPAddress, &e.UserAgent, &e.StartedAt, &e.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan import history: %w", err)
		}
		e.State = ImportState(state)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list import history: %w", err)
	}
	return out, nil
}

// Purge deletes entries that finished before cutoff.
func (h *PostgresHistory) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := h.db.Exec(ctx, `DELETE FROM import_history WHERE finished_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge import history: %w", err)
	}
	return tag.RowsAffected(), nil
}
