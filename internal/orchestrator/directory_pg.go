package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// PGDirectory resolves participant phone numbers from the participants table,
// which the account system keeps in sync.
//
// Assumed table:
//
//	CREATE TABLE participants (
//	  id           TEXT PRIMARY KEY,
//	  phone_number TEXT NOT NULL DEFAULT ''
//	);
type PGDirectory struct {
	db *sql.DB
}

func NewPGDirectory(db *sql.DB) *PGDirectory { return &PGDirectory{db: db} }

func (d *PGDirectory) PhoneNumber(ctx context.Context, participantID string) (string, error) {
	const q = `SELECT phone_number FROM participants WHERE id = $1`

	var number string
	err := d.db.QueryRowContext(ctx, q, participantID).Scan(&number)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(number), nil
}
