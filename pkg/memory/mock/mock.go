// Package mock provides a recording test double for [memory.Store].
//
// The mock delegates to an in-memory store so that reads see earlier
// writes, records every method call for assertion, and exposes exported
// fields that inject errors. It is safe for concurrent use.
//
// Typical usage:
//
//	store := mock.New()
//	store.WriteEntryErr = errors.New("disk full")
//
//	// inject store into the system under test …
//
//	if got := store.CallCount("WriteEntry"); got != 1 {
//	    t.Errorf("expected 1 WriteEntry call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/meetscribe/pkg/memory"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Store is a configurable test double for [memory.Store]. All exported *Err
// fields default to nil, in which case the call is served by the embedded
// in-memory store.
type Store struct {
	mu    sync.Mutex
	calls []Call
	inner *memory.MemStore

	CreateMeetingErr error
	FinishMeetingErr error
	ReopenMeetingErr error
	GetMeetingErr    error
	ListMeetingsErr  error
	WriteEntryErr    error
	TranscriptErr    error
	PingErr          error
}

var _ memory.Store = (*Store)(nil)

// New returns a mock backed by an empty in-memory store.
func New() *Store {
	return &Store{inner: memory.NewMemStore()}
}

// Calls returns a copy of all recorded method invocations.
func (m *Store) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Store) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (m *Store) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// record appends a call and returns the configured error for it.
func (m *Store) record(method string, err *error, args ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
	return *err
}

// CreateMeeting implements [memory.Store].
func (m *Store) CreateMeeting(ctx context.Context, meeting memory.Meeting) (memory.Meeting, error) {
	if err := m.record("CreateMeeting", &m.CreateMeetingErr, meeting); err != nil {
		return memory.Meeting{}, err
	}
	return m.inner.CreateMeeting(ctx, meeting)
}

// FinishMeeting implements [memory.Store].
func (m *Store) FinishMeeting(ctx context.Context, id string, windows uint64) error {
	if err := m.record("FinishMeeting", &m.FinishMeetingErr, id, windows); err != nil {
		return err
	}
	return m.inner.FinishMeeting(ctx, id, windows)
}

// ReopenMeeting implements [memory.Store].
func (m *Store) ReopenMeeting(ctx context.Context, id string) error {
	if err := m.record("ReopenMeeting", &m.ReopenMeetingErr, id); err != nil {
		return err
	}
	return m.inner.ReopenMeeting(ctx, id)
}

// GetMeeting implements [memory.Store].
func (m *Store) GetMeeting(ctx context.Context, id string) (memory.Meeting, error) {
	if err := m.record("GetMeeting", &m.GetMeetingErr, id); err != nil {
		return memory.Meeting{}, err
	}
	return m.inner.GetMeeting(ctx, id)
}

// ListMeetings implements [memory.Store].
func (m *Store) ListMeetings(ctx context.Context, opts memory.ListOpts) ([]memory.Meeting, error) {
	if err := m.record("ListMeetings", &m.ListMeetingsErr, opts); err != nil {
		return nil, err
	}
	return m.inner.ListMeetings(ctx, opts)
}

// WriteEntry implements [memory.Store].
func (m *Store) WriteEntry(ctx context.Context, meetingID string, entry memory.TranscriptEntry) error {
	if err := m.record("WriteEntry", &m.WriteEntryErr, meetingID, entry); err != nil {
		return err
	}
	return m.inner.WriteEntry(ctx, meetingID, entry)
}

// Transcript implements [memory.Store].
func (m *Store) Transcript(ctx context.Context, meetingID string) ([]memory.TranscriptEntry, error) {
	if err := m.record("Transcript", &m.TranscriptErr, meetingID); err != nil {
		return nil, err
	}
	return m.inner.Transcript(ctx, meetingID)
}

// Ping implements [memory.Store].
func (m *Store) Ping(context.Context) error {
	return m.record("Ping", &m.PingErr)
}
