package events

import "time"

// Event is an immutable, append-only record of one provider callback applied
// to a call. It exists for operational forensics: when a call ends in a
// surprising state, the trail shows exactly which events arrived in which
// order.
//
// Invariants:
// - Events are never updated or deleted.
// - Appending is best-effort; it must never block the state machine.
type Event struct {
	ID     string `json:"id" db:"id"`
	CallID string `json:"call_id" db:"call_id"`

	// Kind distinguishes the webhook variants.
	Kind Kind `json:"kind" db:"kind"`

	// ProviderStatus is the raw CallStatus string for status events.
	ProviderStatus string `json:"provider_status,omitempty" db:"provider_status"`

	// Payload is the raw form body as JSON, for debugging.
	Payload string `json:"payload,omitempty" db:"payload"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Kind string

const (
	KindStatusUpdate   Kind = "status_update"
	KindRecordingReady Kind = "recording_ready"
)
