package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PGStore persists calls in Postgres via database/sql (pgx stdlib driver).
//
// Assumed table:
//
//	CREATE TABLE calls (
//	  id                TEXT PRIMARY KEY,
//	  caller_id         TEXT NOT NULL,
//	  target_id         TEXT NOT NULL,
//	  provider_call_sid TEXT NOT NULL DEFAULT '',
//	  conference_name   TEXT NOT NULL UNIQUE,
//	  status            TEXT NOT NULL,
//	  started_at        TIMESTAMPTZ,
//	  ended_at          TIMESTAMPTZ,
//	  duration_seconds  INT NOT NULL DEFAULT 0,
//	  recording_url     TEXT NOT NULL DEFAULT '',
//	  transcript        TEXT NOT NULL DEFAULT '',
//	  summary           TEXT NOT NULL DEFAULT '',
//	  created_at        TIMESTAMPTZ NOT NULL,
//	  updated_at        TIMESTAMPTZ NOT NULL
//	);
type PGStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, clock: time.Now}
}

const callColumns = `id, caller_id, target_id, provider_call_sid, conference_name, status,
       started_at, ended_at, duration_seconds, recording_url, transcript, summary,
       created_at, updated_at`

func (s *PGStore) CreateCall(ctx context.Context, c Call) error {
	const q = `
INSERT INTO calls (
  id, caller_id, target_id, provider_call_sid, conference_name, status,
  started_at, ended_at, duration_seconds, recording_url, transcript, summary,
  created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
`
	_, err := s.db.ExecContext(ctx, q,
		c.ID,
		c.CallerID,
		c.TargetID,
		c.ProviderCallSID,
		c.ConferenceName,
		c.Status,
		c.StartedAt,
		c.EndedAt,
		c.DurationSeconds,
		c.RecordingURL,
		c.Transcript,
		c.Summary,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func (s *PGStore) GetCall(ctx context.Context, id string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return scanCall(s.db.QueryRowContext(ctx, q, id))
}

// UpdateCall writes the non-nil fields of u. Field-level last-writer-wins;
// the transcript column additionally refuses to shrink unless
// u.ReplaceTranscript is set (final transcription replaces the live text).
func (s *PGStore) UpdateCall(ctx context.Context, id string, u Update) error {
	if u.empty() {
		return nil
	}

	sets := make([]string, 0, 10)
	args := make([]any, 0, 10)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if u.Status != nil {
		sets = append(sets, "status = "+arg(*u.Status))
	}
	if u.ProviderCallSID != nil {
		sets = append(sets, "provider_call_sid = "+arg(*u.ProviderCallSID))
	}
	if u.RecordingURL != nil {
		sets = append(sets, "recording_url = "+arg(*u.RecordingURL))
	}
	if u.Transcript != nil {
		p := arg(*u.Transcript)
		if u.ReplaceTranscript {
			sets = append(sets, "transcript = "+p)
		} else {
			sets = append(sets, fmt.Sprintf(
				"transcript = CASE WHEN char_length(%s) >= char_length(transcript) THEN %s ELSE transcript END", p, p))
		}
	}
	if u.Summary != nil {
		sets = append(sets, "summary = "+arg(*u.Summary))
	}
	if u.StartedAt != nil {
		sets = append(sets, "started_at = "+arg(*u.StartedAt))
	}
	if u.EndedAt != nil {
		sets = append(sets, "ended_at = "+arg(*u.EndedAt))
	}
	if u.DurationSeconds != nil {
		sets = append(sets, "duration_seconds = "+arg(*u.DurationSeconds))
	}
	sets = append(sets, "updated_at = "+arg(s.clock().UTC()))

	q := "UPDATE calls SET " + strings.Join(sets, ", ") + " WHERE id = " + arg(id)

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListCallsByCaller(ctx context.Context, callerID string, limit int) ([]Call, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := `SELECT ` + callColumns + ` FROM calls WHERE caller_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, callerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(r rowScanner) (Call, error) {
	var c Call
	var startedAt, endedAt sql.NullTime
	if err := r.Scan(
		&c.ID,
		&c.CallerID,
		&c.TargetID,
		&c.ProviderCallSID,
		&c.ConferenceName,
		&c.Status,
		&startedAt,
		&endedAt,
		&c.DurationSeconds,
		&c.RecordingURL,
		&c.Transcript,
		&c.Summary,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	if startedAt.Valid {
		t := startedAt.Time
		c.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	return c, nil
}
