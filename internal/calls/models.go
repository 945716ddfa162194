package calls

import "time"

// Call is one bridged phone session between a caller (the operator who
// initiated the call) and a target. Both legs dial into the same named
// conference; the recording and transcript describe the conference audio.
//
// Mutation rules:
// - Status only moves forward along the happy path and stops at a terminal.
// - ProviderCallSID, RecordingURL and Summary are set once.
// - Transcript grows monotonically during the live phase ("[LIVE] ..." prefix)
//   and is replaced exactly once by the final whole-call transcript.
type Call struct {
	ID       string `json:"id" db:"id"`
	CallerID string `json:"caller_id" db:"caller_id"`
	TargetID string `json:"target_id" db:"target_id"`

	// ProviderCallSID identifies the first (target) leg at the provider.
	ProviderCallSID string `json:"provider_call_sid,omitempty" db:"provider_call_sid"`

	// ConferenceName is generated once at creation and never reused.
	ConferenceName string `json:"conference_name" db:"conference_name"`

	Status CallStatus `json:"status" db:"status"`

	StartedAt       *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	DurationSeconds int        `json:"duration_seconds" db:"duration_seconds"`

	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`
	Transcript   string `json:"transcript,omitempty" db:"transcript"`
	Summary      string `json:"summary,omitempty" db:"summary"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusInitiated  CallStatus = "initiated"
	CallStatusRinging    CallStatus = "ringing"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusBusy       CallStatus = "busy"
	CallStatusNoAnswer   CallStatus = "no_answer"
	CallStatusFailed     CallStatus = "failed"
	CallStatusCanceled   CallStatus = "canceled"
)

// happyRank orders the non-terminal progression initiated -> ringing ->
// in_progress -> completed. Terminal failure states have no rank; they are
// reachable from any non-terminal state.
func (s CallStatus) happyRank() (int, bool) {
	switch s {
	case CallStatusInitiated:
		return 0, true
	case CallStatusRinging:
		return 1, true
	case CallStatusInProgress:
		return 2, true
	case CallStatusCompleted:
		return 3, true
	default:
		return 0, false
	}
}

// Terminal reports whether no further status transition is accepted.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusBusy, CallStatusNoAnswer, CallStatusFailed, CallStatusCanceled:
		return true
	default:
		return false
	}
}

// NextStatus applies the transition table to (current, incoming) and reports
// whether the status changes. Rules:
// - a terminal current status absorbs everything;
// - an incoming failure terminal applies from any non-terminal state,
//   with canceled recorded as failed;
// - otherwise the status advances only if the incoming state is strictly
//   later in happy-path order. Duplicates and stale events are no-ops.
func NextStatus(current, incoming CallStatus) (CallStatus, bool) {
	if current.Terminal() {
		return current, false
	}
	if incoming.Terminal() && incoming != CallStatusCompleted {
		if incoming == CallStatusCanceled {
			return CallStatusFailed, true
		}
		return incoming, true
	}
	curRank, ok := current.happyRank()
	if !ok {
		// Unknown current state; treat as initiated so the call can recover.
		curRank = 0
	}
	inRank, ok := incoming.happyRank()
	if !ok {
		return current, false
	}
	if inRank > curRank {
		return incoming, true
	}
	return current, false
}

// ParseProviderStatus maps a Twilio CallStatus string to the internal enum.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#call-status-values
func ParseProviderStatus(s string) (CallStatus, bool) {
	switch s {
	case "queued", "initiated":
		return CallStatusInitiated, true
	case "ringing":
		return CallStatusRinging, true
	case "answered", "in-progress":
		return CallStatusInProgress, true
	case "completed":
		return CallStatusCompleted, true
	case "busy":
		return CallStatusBusy, true
	case "no-answer":
		return CallStatusNoAnswer, true
	case "failed":
		return CallStatusFailed, true
	case "canceled":
		return CallStatusCanceled, true
	default:
		return "", false
	}
}
