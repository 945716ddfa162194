package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for the call event trail.
//
// It MUST be append-only. No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records provider callbacks against calls.
// Callers should treat event logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("events: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("events: repository not configured")
	}
	if e.CallID == "" {
		return ErrInvalidEvent
	}
	if e.Kind == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogStatus records a status-update callback.
func (s *Service) LogStatus(ctx context.Context, callID, providerStatus, payload string) error {
	return s.Append(ctx, Event{
		CallID:         callID,
		Kind:           KindStatusUpdate,
		ProviderStatus: providerStatus,
		Payload:        payload,
	})
}

// LogRecording records a recording-ready callback.
func (s *Service) LogRecording(ctx context.Context, callID, payload string) error {
	return s.Append(ctx, Event{
		CallID:  callID,
		Kind:    KindRecordingReady,
		Payload: payload,
	})
}
