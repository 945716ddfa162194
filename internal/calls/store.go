package calls

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("calls: not found")

// Update is a partial-field write. Nil fields are left untouched.
//
// Transcript is special-cased: during the live phase the store never replaces
// a longer transcript with a shorter one (concurrent flushes may race; the
// append guarantee is monotonic best-effort, not serializable). Final
// transcription bypasses the guard via ReplaceTranscript.
type Update struct {
	Status            *CallStatus
	ProviderCallSID   *string
	RecordingURL      *string
	Transcript        *string
	ReplaceTranscript bool
	Summary           *string
	StartedAt         *time.Time
	EndedAt           *time.Time
	DurationSeconds   *int
}

func (u Update) empty() bool {
	return u.Status == nil &&
		u.ProviderCallSID == nil &&
		u.RecordingURL == nil &&
		u.Transcript == nil &&
		u.Summary == nil &&
		u.StartedAt == nil &&
		u.EndedAt == nil &&
		u.DurationSeconds == nil
}

// Store is the call record persistence contract. It exposes named-field
// read-modify-write only; callers never touch the schema directly.
type Store interface {
	CreateCall(ctx context.Context, c Call) error
	GetCall(ctx context.Context, id string) (Call, error)
	UpdateCall(ctx context.Context, id string, u Update) error
	ListCallsByCaller(ctx context.Context, callerID string, limit int) ([]Call, error)
}

// Pointer helpers for building partial updates.

func StatusPtr(s CallStatus) *CallStatus { return &s }
func StringPtr(s string) *string         { return &s }
func IntPtr(n int) *int                  { return &n }
func TimePtr(t time.Time) *time.Time     { return &t }
