package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"callbridge/internal/calls"
	"callbridge/internal/config"
	"callbridge/internal/telephony"
)

type fakeDialer struct {
	requests []telephony.PlaceCallRequest
	errs     []error
	sids     []string
}

func (d *fakeDialer) PlaceCall(ctx context.Context, req telephony.PlaceCallRequest) (string, error) {
	i := len(d.requests)
	d.requests = append(d.requests, req)
	if i < len(d.errs) && d.errs[i] != nil {
		return "", d.errs[i]
	}
	if i < len(d.sids) {
		return d.sids[i], nil
	}
	return "CA-default", nil
}

func (d *fakeDialer) FetchRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	return nil, errors.New("not implemented")
}

type mapDirectory map[string]string

func (m mapDirectory) PhoneNumber(ctx context.Context, id string) (string, error) {
	return m[id], nil
}

type fakeLimiter struct {
	busy     bool
	err      error
	acquired []string
	released []string
}

func (l *fakeLimiter) Acquire(ctx context.Context, targetID string) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.acquired = append(l.acquired, targetID)
	return !l.busy, nil
}

func (l *fakeLimiter) Release(ctx context.Context, targetID string) error {
	l.released = append(l.released, targetID)
	return nil
}

func testConfig() config.Config {
	cfg := config.Config{}
	cfg.App.PublicBaseURL = "https://bridge.example.com"
	cfg.Twilio.FromNumber = "+15551230000"
	cfg.Call.SecondLegDelay = 4 * time.Second
	return cfg
}

type orchFixture struct {
	store     *calls.MemoryStore
	dialer    *fakeDialer
	directory mapDirectory
	limiter   *fakeLimiter
	svc       *Service

	scheduled []func()
}

func newOrchFixture(t *testing.T) *orchFixture {
	t.Helper()
	f := &orchFixture{
		store:     calls.NewMemoryStore(),
		dialer:    &fakeDialer{},
		directory: mapDirectory{"u1": "+15551230001", "t1": "+15551230002"},
		limiter:   &fakeLimiter{},
	}
	f.svc = NewService(f.store, f.dialer, f.directory, f.limiter, testConfig())
	f.svc.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	f.svc.schedule = func(d time.Duration, fn func()) { f.scheduled = append(f.scheduled, fn) }
	return f
}

func TestStartCall(t *testing.T) {
	f := newOrchFixture(t)
	ctx := context.Background()

	call, err := f.svc.StartCall(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if call.Status != calls.CallStatusRinging || call.ProviderCallSID != "CA-default" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if !strings.HasPrefix(call.ConferenceName, "conf-t1-") {
		t.Fatalf("conference name = %q", call.ConferenceName)
	}

	// Target leg dialed first, with recording and callbacks.
	if len(f.dialer.requests) != 1 {
		t.Fatalf("expected 1 dial, got %d", len(f.dialer.requests))
	}
	first := f.dialer.requests[0]
	if first.To != "+15551230002" || !first.Record {
		t.Fatalf("unexpected target leg: %+v", first)
	}
	if !strings.Contains(first.SignalURL, "participant=target") {
		t.Fatalf("signal url = %q", first.SignalURL)
	}
	if first.StatusCallbackURL == "" || first.RecordingCallbackURL == "" {
		t.Fatalf("callbacks missing: %+v", first)
	}

	// Caller leg scheduled, not yet dialed.
	if len(f.scheduled) != 1 {
		t.Fatalf("expected 1 scheduled dial, got %d", len(f.scheduled))
	}
	f.scheduled[0]()
	if len(f.dialer.requests) != 2 {
		t.Fatalf("caller leg not dialed")
	}
	second := f.dialer.requests[1]
	if second.To != "+15551230001" || second.Record {
		t.Fatalf("unexpected caller leg: %+v", second)
	}
	if !strings.Contains(second.SignalURL, "participant=caller") {
		t.Fatalf("signal url = %q", second.SignalURL)
	}

	got, _ := f.store.GetCall(ctx, call.ID)
	if got.Status != calls.CallStatusRinging {
		t.Fatalf("stored status = %s", got.Status)
	}
}

func TestStartCallMissingNumbers(t *testing.T) {
	f := newOrchFixture(t)
	delete(f.directory, "t1")

	if _, err := f.svc.StartCall(context.Background(), "u1", "t1"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if len(f.dialer.requests) != 0 {
		t.Fatalf("dialed despite missing number")
	}
}

func TestStartCallMissingIDs(t *testing.T) {
	f := newOrchFixture(t)
	if _, err := f.svc.StartCall(context.Background(), "", "t1"); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestStartCallTargetBusy(t *testing.T) {
	f := newOrchFixture(t)
	f.limiter.busy = true

	if _, err := f.svc.StartCall(context.Background(), "u1", "t1"); !errors.Is(err, ErrTargetBusy) {
		t.Fatalf("expected ErrTargetBusy, got %v", err)
	}
	if len(f.dialer.requests) != 0 {
		t.Fatalf("dialed a busy target")
	}
}

func TestStartCallTargetLegFailure(t *testing.T) {
	f := newOrchFixture(t)
	f.dialer.errs = []error{telephony.ErrDialRejected}
	ctx := context.Background()

	_, err := f.svc.StartCall(ctx, "u1", "t1")
	if !errors.Is(err, telephony.ErrDialRejected) {
		t.Fatalf("expected dial error, got %v", err)
	}

	// The record survives as failed and the reservation is released.
	list, _ := f.store.ListCallsByCaller(ctx, "u1", 10)
	if len(list) != 1 || list[0].Status != calls.CallStatusFailed {
		t.Fatalf("unexpected calls: %+v", list)
	}
	if len(f.limiter.released) != 1 {
		t.Fatalf("reservation not released")
	}
	if len(f.scheduled) != 0 {
		t.Fatalf("caller leg scheduled after target failure")
	}
}

func TestCallerLegFailureTolerated(t *testing.T) {
	f := newOrchFixture(t)
	f.dialer.errs = []error{nil, telephony.ErrDialRejected}
	ctx := context.Background()

	call, err := f.svc.StartCall(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	f.scheduled[0]()

	got, _ := f.store.GetCall(ctx, call.ID)
	if got.Status != calls.CallStatusRinging {
		t.Fatalf("caller leg failure mutated status: %s", got.Status)
	}
	if len(f.limiter.released) != 0 {
		t.Fatalf("reservation released on tolerated failure")
	}
}

func TestCallerLegSkippedWhenTerminal(t *testing.T) {
	f := newOrchFixture(t)
	ctx := context.Background()

	call, err := f.svc.StartCall(ctx, "u1", "t1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Target leg went busy while the delay timer ran.
	busy := calls.CallStatusBusy
	if err := f.store.UpdateCall(ctx, call.ID, calls.Update{Status: &busy}); err != nil {
		t.Fatalf("update: %v", err)
	}
	f.scheduled[0]()

	if len(f.dialer.requests) != 1 {
		t.Fatalf("caller dialed into a dead call")
	}
}
