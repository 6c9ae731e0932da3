package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Store = (*MemStore)(nil)

type memMeeting struct {
	meeting Meeting
	entries []TranscriptEntry
}

// MemStore is an in-process [Store]. The zero value is not usable; call
// [NewMemStore].
type MemStore struct {
	mu       sync.RWMutex
	meetings map[string]*memMeeting
	now      func() time.Time
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{meetings: make(map[string]*memMeeting), now: time.Now}
}

// CreateMeeting implements [Store].
func (s *MemStore) CreateMeeting(_ context.Context, m Meeting) (Meeting, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	} else if _, err := uuid.Parse(m.ID); err != nil {
		return Meeting{}, fmt.Errorf("memory: create meeting: invalid id %q: %w", m.ID, err)
	}
	if m.StartedAt.IsZero() {
		m.StartedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.meetings[m.ID]; dup {
		return Meeting{}, fmt.Errorf("memory: create meeting: id %s already exists", m.ID)
	}
	s.meetings[m.ID] = &memMeeting{meeting: m}
	return m, nil
}

// FinishMeeting implements [Store].
func (s *MemStore) FinishMeeting(_ context.Context, id string, windows uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mm, ok := s.meetings[id]
	if !ok {
		return ErrNotFound
	}
	mm.meeting.Windows += windows
	mm.meeting.EndedAt = s.now().UTC()
	return nil
}

// ReopenMeeting implements [Store].
func (s *MemStore) ReopenMeeting(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mm, ok := s.meetings[id]
	if !ok {
		return ErrNotFound
	}
	mm.meeting.EndedAt = time.Time{}
	return nil
}

// GetMeeting implements [Store].
func (s *MemStore) GetMeeting(_ context.Context, id string) (Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mm, ok := s.meetings[id]
	if !ok {
		return Meeting{}, ErrNotFound
	}
	return mm.meeting, nil
}

// ListMeetings implements [Store].
func (s *MemStore) ListMeetings(_ context.Context, opts ListOpts) ([]Meeting, error) {
	s.mu.RLock()
	out := make([]Meeting, 0, len(s.meetings))
	for _, mm := range s.meetings {
		if opts.OwnerID == "" || mm.meeting.OwnerID == opts.OwnerID {
			out = append(out, mm.meeting)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Meeting) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if limit := opts.EffectiveLimit(); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WriteEntry implements [Store].
func (s *MemStore) WriteEntry(_ context.Context, meetingID string, entry TranscriptEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	mm, ok := s.meetings[meetingID]
	if !ok {
		return ErrNotFound
	}
	mm.entries = append(mm.entries, entry)
	return nil
}

// Transcript implements [Store].
func (s *MemStore) Transcript(_ context.Context, meetingID string) ([]TranscriptEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mm, ok := s.meetings[meetingID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]TranscriptEntry, len(mm.entries))
	copy(out, mm.entries)
	return out, nil
}

// Ping implements [Store]. An in-process store is always reachable.
func (s *MemStore) Ping(context.Context) error { return nil }
