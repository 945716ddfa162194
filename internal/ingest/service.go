package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callbridge/internal/calls"
	"callbridge/internal/calls/events"
	"callbridge/internal/telephony"
	"callbridge/internal/transcribe"
	"callbridge/pkg/logger"
)

// LiveStarter begins live transcription for a call. Implemented by the media
// stream processor; the ingestor guarantees at most one invocation per call.
type LiveStarter interface {
	StartLive(ctx context.Context, c calls.Call) error
}

// TerminalHook fires when a call reaches a terminal state (release of the
// target's active-call reservation, metrics, ...). Best-effort.
type TerminalHook func(ctx context.Context, c calls.Call)

// ErrUnknownStatus marks a status string outside the provider's documented
// set. Handlers respond 400; no state is mutated.
var ErrUnknownStatus = errors.New("ingest: unknown provider call status")

// Service is the call state machine. It consumes typed provider events,
// advances call status forward-only, and triggers recording/transcription
// side effects.
//
// Store write failures are returned to the handler so the webhook responds
// 5xx and the provider retries delivery; a silently dropped status update
// corrupts the machine.
type Service struct {
	store      calls.Store
	trail      *events.Service
	live       LiveStarter
	gateway    transcribe.Gateway
	onTerminal TerminalHook

	clock func() time.Time

	// runAsync detaches final transcription from the webhook request.
	// Injectable so tests run it synchronously.
	runAsync func(fn func())

	// finalTimeout bounds one final transcription run.
	finalTimeout time.Duration
}

func NewService(store calls.Store, trail *events.Service, live LiveStarter, gateway transcribe.Gateway, onTerminal TerminalHook) *Service {
	return &Service{
		store:        store,
		trail:        trail,
		live:         live,
		gateway:      gateway,
		onTerminal:   onTerminal,
		clock:        time.Now,
		runAsync:     func(fn func()) { go fn() },
		finalTimeout: 5 * time.Minute,
	}
}

// ApplyStatus applies one status-update callback.
//
// Transition policy: advance only if the event's state is strictly later in
// happy-path order or is a failure terminal; duplicates and out-of-order
// deliveries are no-ops. Terminal states absorb everything.
func (s *Service) ApplyStatus(ctx context.Context, callID string, ev telephony.StatusEvent) error {
	log := logger.From(ctx).With("call_id", callID)

	incoming, ok := calls.ParseProviderStatus(ev.CallStatus)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, ev.CallStatus)
	}

	s.logTrail(ctx, func() error {
		return s.trail.LogStatus(ctx, callID, ev.CallStatus, ev.RawPayload)
	})

	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return err
	}

	next, changed := calls.NextStatus(call.Status, incoming)
	if !changed {
		log.Debug("status event ignored", "status", call.Status, "incoming", incoming)
		return nil
	}

	now := s.clock().UTC()
	u := calls.Update{Status: &next}

	startLive := false
	if next == calls.CallStatusInProgress {
		u.StartedAt = &now
		// Current status is strictly earlier than in_progress here, so this
		// branch runs at most once per call no matter how many answered
		// events the provider delivers.
		startLive = true
	}
	if next == calls.CallStatusCompleted {
		u.EndedAt = &now
		if ev.DurationSeconds > 0 {
			u.DurationSeconds = &ev.DurationSeconds
		}
	}

	if err := s.store.UpdateCall(ctx, callID, u); err != nil {
		return err
	}
	call.Status = next
	log.Info("call status advanced", "status", next)

	if startLive && s.live != nil {
		if err := s.live.StartLive(ctx, call); err != nil {
			// Live transcription is best-effort; the call proceeds without it.
			log.Warn("live transcription start failed", "err", err)
		}
	}
	if next.Terminal() && s.onTerminal != nil {
		s.onTerminal(ctx, call)
	}
	return nil
}

// ApplyRecording applies one recording-ready callback: record the URL once,
// promote the call to completed when no terminal state was reached yet, and
// kick off final transcription.
func (s *Service) ApplyRecording(ctx context.Context, callID string, ev telephony.RecordingEvent) error {
	log := logger.From(ctx).With("call_id", callID)

	s.logTrail(ctx, func() error {
		return s.trail.LogRecording(ctx, callID, ev.RawPayload)
	})

	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		return err
	}
	if call.RecordingURL != "" {
		// Duplicate delivery; the first one already triggered transcription.
		log.Debug("recording event ignored, url already set")
		return nil
	}

	u := calls.Update{RecordingURL: &ev.RecordingURL}
	wasTerminal := call.Status.Terminal()
	if !wasTerminal {
		completed := calls.CallStatusCompleted
		now := s.clock().UTC()
		u.Status = &completed
		u.EndedAt = &now
	}
	if err := s.store.UpdateCall(ctx, callID, u); err != nil {
		return err
	}
	call.RecordingURL = ev.RecordingURL
	if !wasTerminal {
		call.Status = calls.CallStatusCompleted
		if s.onTerminal != nil {
			s.onTerminal(ctx, call)
		}
	}
	log.Info("recording ready", "recording_url", ev.RecordingURL)

	if s.gateway != nil {
		s.runAsync(func() { s.finalize(call) })
	}
	return nil
}

// finalize runs final transcription for a completed call. Failures leave the
// call completed with whatever transcript/summary survived; the call itself
// is over either way.
func (s *Service) finalize(call calls.Call) {
	ctx, cancel := context.WithTimeout(context.Background(), s.finalTimeout)
	defer cancel()
	log := logger.From(ctx).With("call_id", call.ID)

	res, err := s.gateway.TranscribeFinal(ctx, call.RecordingURL)
	if err != nil {
		log.Error("final transcription failed", "err", err)
		return
	}

	u := calls.Update{
		Transcript:        &res.Text,
		ReplaceTranscript: true,
	}
	if res.Summary != "" {
		u.Summary = &res.Summary
	}
	if err := s.store.UpdateCall(ctx, call.ID, u); err != nil {
		log.Error("final transcript write failed", "err", err)
		return
	}
	log.Info("final transcript stored", "transcript_len", len(res.Text), "has_summary", res.Summary != "")
}

func (s *Service) logTrail(ctx context.Context, fn func() error) {
	if s.trail == nil {
		return
	}
	if err := fn(); err != nil {
		logger.From(ctx).Warn("call event trail append failed", "err", err)
	}
}
