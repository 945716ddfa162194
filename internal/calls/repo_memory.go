package calls

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store with the same field semantics as PGStore,
// including the monotonic transcript guard. Useful for tests.
// It is not intended for production use.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]Call
	clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Call), clock: time.Now}
}

// SetClock makes update timestamps deterministic in tests.
func (s *MemoryStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemoryStore) CreateCall(ctx context.Context, c Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.ID]; ok {
		return errors.New("calls: duplicate id")
	}
	s.byID[c.ID] = c
	return nil
}

func (s *MemoryStore) GetCall(ctx context.Context, id string) (Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) UpdateCall(ctx context.Context, id string, u Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if u.Status != nil {
		c.Status = *u.Status
	}
	if u.ProviderCallSID != nil {
		c.ProviderCallSID = *u.ProviderCallSID
	}
	if u.RecordingURL != nil {
		c.RecordingURL = *u.RecordingURL
	}
	if u.Transcript != nil {
		if u.ReplaceTranscript || len(*u.Transcript) >= len(c.Transcript) {
			c.Transcript = *u.Transcript
		}
	}
	if u.Summary != nil {
		c.Summary = *u.Summary
	}
	if u.StartedAt != nil {
		t := *u.StartedAt
		c.StartedAt = &t
	}
	if u.EndedAt != nil {
		t := *u.EndedAt
		c.EndedAt = &t
	}
	if u.DurationSeconds != nil {
		c.DurationSeconds = *u.DurationSeconds
	}
	c.UpdatedAt = s.clock().UTC()
	s.byID[id] = c
	return nil
}

func (s *MemoryStore) ListCallsByCaller(ctx context.Context, callerID string, limit int) ([]Call, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.byID {
		if c.CallerID == callerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
