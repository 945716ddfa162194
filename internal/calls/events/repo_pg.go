package events

import (
	"context"
	"database/sql"
)

// PGRepo appends call events to Postgres.
//
// Assumed table (INSERT-only policy recommended):
//
//	CREATE TABLE call_events (
//	  id              TEXT PRIMARY KEY,
//	  call_id         TEXT NOT NULL,
//	  kind            TEXT NOT NULL,
//	  provider_status TEXT NOT NULL DEFAULT '',
//	  payload         TEXT NOT NULL DEFAULT '',
//	  created_at      TIMESTAMPTZ NOT NULL
//	);
type PGRepo struct {
	db *sql.DB
}

func NewPGRepo(db *sql.DB) *PGRepo { return &PGRepo{db: db} }

func (r *PGRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO call_events (id, call_id, kind, provider_status, payload, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.CallID,
		e.Kind,
		e.ProviderStatus,
		e.Payload,
		e.CreatedAt,
	)
	return err
}
