package capture

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errMeetingBusy is returned by [registry.add] when a meeting already has an
// open capture session.
var errMeetingBusy = errors.New("capture: meeting already has an open session")

// SessionInfo describes an open capture session.
type SessionInfo struct {
	MeetingID  string
	OwnerID    string
	Format     string
	SampleRate int
	StartedAt  time.Time
}

// registry tracks open sessions so the handler can broadcast config changes,
// refuse a second session per meeting, and drain on shutdown. All methods are
// safe for concurrent use.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	draining bool
	wg       sync.WaitGroup
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*session)}
}

// add registers s under its meeting ID. It fails while draining or when the
// meeting is already being captured.
func (r *registry) add(s *session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.draining {
		return errDraining
	}
	if _, busy := r.sessions[s.info.MeetingID]; busy {
		return errMeetingBusy
	}
	r.sessions[s.info.MeetingID] = s
	r.wg.Add(1)
	return nil
}

func (r *registry) remove(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.info.MeetingID] == s {
		delete(r.sessions, s.info.MeetingID)
		r.wg.Done()
	}
}

// snapshot returns the open sessions.
func (r *registry) snapshot() []*session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// drain stops new sessions, asks open ones to stop, and waits for them.
func (r *registry) drain(ctx context.Context) error {
	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	for _, s := range r.snapshot() {
		s.stop()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
