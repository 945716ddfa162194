package telephony

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// Typed webhook variants. Twilio posts application/x-www-form-urlencoded;
// parsing and validation happen here so the state machine only ever sees
// strongly-typed events.

// StatusEvent is a call status-update callback.
type StatusEvent struct {
	CallSid    string
	CallStatus string

	// DurationSeconds is present on completed events.
	DurationSeconds int

	// RawPayload is the parsed form as JSON, for the event trail.
	RawPayload string
}

// RecordingEvent is a recording-ready callback.
type RecordingEvent struct {
	RecordingSid string
	RecordingURL string

	RawPayload string
}

var ErrMalformedWebhook = errors.New("telephony: malformed webhook payload")

// ParseStatusCallback validates a status-update form body.
func ParseStatusCallback(r *http.Request) (StatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return StatusEvent{}, ErrMalformedWebhook
	}

	ev := StatusEvent{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		CallStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
		RawPayload: formJSON(r),
	}
	if ev.CallStatus == "" {
		return StatusEvent{}, ErrMalformedWebhook
	}
	if v := strings.TrimSpace(r.PostFormValue("CallDuration")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return StatusEvent{}, ErrMalformedWebhook
		}
		ev.DurationSeconds = n
	}
	return ev, nil
}

// ParseRecordingCallback validates a recording-ready form body.
func ParseRecordingCallback(r *http.Request) (RecordingEvent, error) {
	if err := r.ParseForm(); err != nil {
		return RecordingEvent{}, ErrMalformedWebhook
	}

	ev := RecordingEvent{
		RecordingSid: strings.TrimSpace(r.PostFormValue("RecordingSid")),
		RecordingURL: strings.TrimSpace(r.PostFormValue("RecordingUrl")),
		RawPayload:   formJSON(r),
	}
	if ev.RecordingURL == "" {
		return RecordingEvent{}, ErrMalformedWebhook
	}
	return ev, nil
}

func formJSON(r *http.Request) string {
	flat := make(map[string]string, len(r.PostForm))
	for k, vs := range r.PostForm {
		if len(vs) > 0 {
			flat[k] = vs[0]
		}
	}
	raw, _ := json.Marshal(flat)
	return string(raw)
}
