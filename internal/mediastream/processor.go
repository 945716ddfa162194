package mediastream

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"time"

	"callbridge/internal/calls"
	"callbridge/internal/config"
	"callbridge/internal/transcribe"
	"callbridge/pkg/logger"
)

// liveMarker prefixes the transcript while the call is still in progress, so
// consumers can distinguish rolling live text from the final transcript.
const liveMarker = "[LIVE]"

// Session is the process-local state of one active media connection. Created
// on the stream's start event, destroyed on stop or when the owning call goes
// terminal, whichever comes first. Never persisted.
type Session struct {
	StreamSID string
	CallID    string

	mu          sync.Mutex
	pcm         []byte
	accumulated string

	done chan struct{}
}

// Processor consumes media frames for all active streams, batches decoded
// PCM, and drives windowed transcription on a per-session timer.
//
// The session registry is the only process-wide mutable state; frame handling
// and timer flushes run on different schedules, so both the registry and each
// session buffer are lock-guarded.
type Processor struct {
	store   calls.Store
	gateway transcribe.Gateway
	cfg     config.CallConfig

	mu       sync.Mutex
	sessions map[string]*Session

	// windowTimeout bounds one windowed transcription call.
	windowTimeout time.Duration
}

func NewProcessor(store calls.Store, gateway transcribe.Gateway, cfg config.CallConfig) *Processor {
	return &Processor{
		store:         store,
		gateway:       gateway,
		cfg:           cfg,
		sessions:      make(map[string]*Session),
		windowTimeout: 30 * time.Second,
	}
}

// StartLive marks the call's transcript as live. Invoked by the event
// ingestor exactly once, when the call first reaches in_progress.
func (p *Processor) StartLive(ctx context.Context, c calls.Call) error {
	if c.Transcript != "" {
		return nil
	}
	marker := liveMarker
	return p.store.UpdateCall(ctx, c.ID, calls.Update{Transcript: &marker})
}

// StartSession registers a stream. A per-session timer drives windowed
// flushes for as long as the session lives.
func (p *Processor) StartSession(streamSID, callID string) *Session {
	sess := &Session{
		StreamSID: streamSID,
		CallID:    callID,
		done:      make(chan struct{}),
	}

	p.mu.Lock()
	if old, ok := p.sessions[streamSID]; ok {
		close(old.done)
	}
	p.sessions[streamSID] = sess
	p.mu.Unlock()

	go p.flushLoop(sess)
	return sess
}

// StopSession discards a stream's session. No final flush: final
// transcription works from the complete recording, not the live buffer.
func (p *Processor) StopSession(streamSID string) {
	p.mu.Lock()
	sess, ok := p.sessions[streamSID]
	if ok {
		delete(p.sessions, streamSID)
	}
	p.mu.Unlock()
	if ok {
		close(sess.done)
	}
}

// HandleMedia decodes one companded audio frame and appends it to the
// session's buffer. An oversized buffer forces an immediate flush so a
// stalled timer cannot grow it without bound.
func (p *Processor) HandleMedia(streamSID, payload string) {
	p.mu.Lock()
	sess, ok := p.sessions[streamSID]
	p.mu.Unlock()
	if !ok {
		return
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		logger.From(context.Background()).Warn("media payload decode failed", "stream_sid", streamSID, "err", err)
		return
	}
	pcm := DecodeMulaw(raw)

	sess.mu.Lock()
	sess.pcm = append(sess.pcm, pcm...)
	oversized := len(sess.pcm) >= p.cfg.MaxBufferBytes
	sess.mu.Unlock()

	if oversized {
		go p.flush(sess, true)
	}
}

func (p *Processor) flushLoop(sess *Session) {
	ticker := time.NewTicker(p.cfg.FlushWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.flush(sess, false)
		case <-sess.done:
			return
		}
	}
}

// flush submits the buffered window to the transcription gateway and appends
// the result to the call's live transcript. A tail of already-processed
// samples is retained so a word spanning the flush boundary is not lost.
//
// Transcription failures are logged and skipped; live transcription is
// best-effort and must never interrupt the call.
func (p *Processor) flush(sess *Session, forced bool) {
	ctx, cancel := context.WithTimeout(context.Background(), p.windowTimeout)
	defer cancel()
	log := logger.From(ctx).With("call_id", sess.CallID, "stream_sid", sess.StreamSID)

	sess.mu.Lock()
	if len(sess.pcm) < p.cfg.MinFlushBytes && !forced {
		sess.mu.Unlock()
		return
	}
	window := make([]byte, len(sess.pcm))
	copy(window, sess.pcm)

	tail := p.cfg.TailBytes
	if tail > len(sess.pcm) {
		tail = len(sess.pcm)
	}
	kept := make([]byte, tail)
	copy(kept, sess.pcm[len(sess.pcm)-tail:])
	sess.pcm = kept
	sess.mu.Unlock()

	if len(window) == 0 {
		return
	}

	// The owning call may have gone terminal while audio was buffering; a
	// terminal call accepts no further transcript writes.
	call, err := p.store.GetCall(ctx, sess.CallID)
	if err != nil {
		log.Warn("flush skipped, call lookup failed", "err", err)
		return
	}
	if call.Status.Terminal() {
		log.Info("call terminal, discarding stream session")
		p.StopSession(sess.StreamSID)
		return
	}

	text, err := p.gateway.TranscribeWindow(ctx, WrapWAV(window))
	if err != nil {
		log.Warn("windowed transcription failed", "err", err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	sess.mu.Lock()
	if sess.accumulated == "" {
		sess.accumulated = text
	} else {
		sess.accumulated += " " + text
	}
	transcript := liveMarker + " " + sess.accumulated
	sess.mu.Unlock()

	// The store refuses to shrink the transcript, so a racing slower flush
	// cannot wipe out a faster one's text.
	if err := p.store.UpdateCall(ctx, sess.CallID, calls.Update{Transcript: &transcript}); err != nil {
		log.Warn("live transcript write failed", "err", err)
		return
	}
	log.Debug("live transcript updated", "transcript_len", len(transcript))
}

// sessionCount is a test hook.
func (p *Processor) sessionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}
