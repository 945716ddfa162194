package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"callbridge/internal/calls"
	"callbridge/internal/config"
	"callbridge/internal/telephony"
	"callbridge/pkg/logger"

	"github.com/google/uuid"
)

// Directory resolves participant ids to phone numbers. Profile and candidate
// records live in an external system; only the number lookup crosses into
// this service.
type Directory interface {
	PhoneNumber(ctx context.Context, participantID string) (string, error)
}

var (
	// ErrConfiguration covers missing numbers and credentials. No call record
	// is created when it is returned.
	ErrConfiguration = errors.New("orchestrator: configuration error")

	// ErrTargetBusy means the target already has an active call.
	ErrTargetBusy = errors.New("orchestrator: target already in an active call")
)

// Service sequences the two legs of a bridged call: create the record, dial
// the target, and dial the caller a few seconds later so the target is
// already ringing into the conference when the caller arrives.
type Service struct {
	store     calls.Store
	dialer    telephony.Dialer
	directory Directory
	limiter   ActiveCallLimiter
	cfg       config.Config

	// clock and schedule are injectable for deterministic tests.
	clock    func() time.Time
	schedule func(d time.Duration, fn func())
}

func NewService(store calls.Store, dialer telephony.Dialer, directory Directory, limiter ActiveCallLimiter, cfg config.Config) *Service {
	return &Service{
		store:     store,
		dialer:    dialer,
		directory: directory,
		limiter:   limiter,
		cfg:       cfg,
		clock:     time.Now,
		schedule:  func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

// StartCall creates a call record and starts the target leg. The caller leg
// is scheduled after a fixed delay; its failure is logged and tolerated (the
// target leg keeps ringing and the call can be recovered by retry), while a
// target-leg failure aborts the attempt.
func (s *Service) StartCall(ctx context.Context, callerID, targetID string) (calls.Call, error) {
	log := logger.From(ctx)

	if callerID == "" || targetID == "" {
		return calls.Call{}, fmt.Errorf("%w: caller and target ids are required", ErrConfiguration)
	}

	callerNumber, err := s.directory.PhoneNumber(ctx, callerID)
	if err != nil || callerNumber == "" {
		return calls.Call{}, fmt.Errorf("%w: caller has no reachable phone number", ErrConfiguration)
	}
	targetNumber, err := s.directory.PhoneNumber(ctx, targetID)
	if err != nil || targetNumber == "" {
		return calls.Call{}, fmt.Errorf("%w: target has no reachable phone number", ErrConfiguration)
	}
	if s.cfg.Twilio.FromNumber == "" {
		return calls.Call{}, fmt.Errorf("%w: no provider number configured", ErrConfiguration)
	}

	if s.limiter != nil {
		ok, err := s.limiter.Acquire(ctx, targetID)
		if err != nil {
			return calls.Call{}, fmt.Errorf("orchestrator: active-call reservation: %w", err)
		}
		if !ok {
			return calls.Call{}, ErrTargetBusy
		}
	}

	now := s.clock().UTC()
	call := calls.Call{
		ID:             uuid.NewString(),
		CallerID:       callerID,
		TargetID:       targetID,
		ConferenceName: fmt.Sprintf("conf-%s-%d", targetID, now.Unix()),
		Status:         calls.CallStatusInitiated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateCall(ctx, call); err != nil {
		s.releaseActive(ctx, targetID)
		return calls.Call{}, fmt.Errorf("orchestrator: create call: %w", err)
	}

	// Target leg first. The signaling URL tells the leg to join the
	// conference as a passive participant and open the media stream.
	sid, err := s.dialer.PlaceCall(ctx, telephony.PlaceCallRequest{
		To:                   targetNumber,
		From:                 s.cfg.Twilio.FromNumber,
		SignalURL:            s.cfg.SignalURL(call.ID, call.ConferenceName, telephony.RoleTarget),
		StatusCallbackURL:    s.cfg.WebhookURL(call.ID),
		RecordingCallbackURL: s.cfg.RecordingWebhookURL(call.ID),
		Record:               true,
	})
	if err != nil {
		log.Error("target leg dial failed", "call_id", call.ID, "err", err)
		failed := calls.CallStatusFailed
		if uerr := s.store.UpdateCall(ctx, call.ID, calls.Update{Status: &failed}); uerr != nil {
			log.Error("failed-state write failed", "call_id", call.ID, "err", uerr)
		}
		s.releaseActive(ctx, targetID)
		return calls.Call{}, err
	}

	ringing := calls.CallStatusRinging
	if err := s.store.UpdateCall(ctx, call.ID, calls.Update{
		ProviderCallSID: &sid,
		Status:          &ringing,
	}); err != nil {
		return calls.Call{}, fmt.Errorf("orchestrator: record target leg: %w", err)
	}
	call.ProviderCallSID = sid
	call.Status = ringing

	// Caller leg after a fixed delay. Dialing both legs at once risks the
	// caller landing in an empty conference; the delay gives the target leg
	// time to start ringing. Best-effort sequencing only: nothing from the
	// target leg acknowledges readiness.
	s.schedule(s.cfg.Call.SecondLegDelay, func() {
		s.dialCaller(call.ID, call.ConferenceName, callerNumber)
	})

	log.Info("call started", "call_id", call.ID, "conference", call.ConferenceName, "provider_call_sid", sid)
	return call, nil
}

// ReleaseActive frees the target's active-call reservation. The event
// ingestor calls this when the call reaches a terminal state.
func (s *Service) ReleaseActive(ctx context.Context, targetID string) {
	s.releaseActive(ctx, targetID)
}

func (s *Service) dialCaller(callID, conferenceName, callerNumber string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Twilio.HTTPTimeout+5*time.Second)
	defer cancel()
	log := logger.From(ctx).With("call_id", callID)

	// The target leg may already have failed while the timer ran.
	call, err := s.store.GetCall(ctx, callID)
	if err != nil {
		log.Error("caller leg skipped, call lookup failed", "err", err)
		return
	}
	if call.Status.Terminal() {
		log.Info("caller leg skipped, call already terminal", "status", call.Status)
		return
	}

	_, err = s.dialer.PlaceCall(ctx, telephony.PlaceCallRequest{
		To:        callerNumber,
		From:      s.cfg.Twilio.FromNumber,
		SignalURL: s.cfg.SignalURL(callID, conferenceName, telephony.RoleCaller),
	})
	if err != nil {
		// Tolerated: the target leg stays up and the caller can retry from
		// outside this flow. Tearing down a ringing target leg is not worth it.
		log.Error("caller leg dial failed", "err", err)
		return
	}
	log.Info("caller leg dialed", "conference", conferenceName)
}

func (s *Service) releaseActive(ctx context.Context, targetID string) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Release(ctx, targetID); err != nil {
		logger.From(ctx).Warn("active-call release failed", "target_id", targetID, "err", err)
	}
}
