// Package memory defines the transcript log of the meetscribe server.
//
// A [Meeting] is one capture session, possibly spanning reconnects. Final
// transcripts produced while a meeting is live are appended to it as
// [TranscriptEntry] records and can be read back in order once the meeting
// has ended.
//
// Two backends are provided: [MemStore], an in-process store that loses
// everything on restart, and the postgres sub-package. All implementations
// must be safe for concurrent use.
package memory

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a meeting does not exist. Malformed IDs are
// reported the same way.
var ErrNotFound = errors.New("memory: meeting not found")

// Default and maximum page sizes for [Store.ListMeetings].
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ListOpts filters [Store.ListMeetings].
type ListOpts struct {
	// OwnerID restricts the result to one user's meetings. An empty string
	// lists every meeting.
	OwnerID string

	// Limit caps the number of meetings returned. Zero selects
	// [DefaultListLimit]; values above [MaxListLimit] are clamped.
	Limit int
}

// EffectiveLimit returns the limit a backend should apply.
func (o ListOpts) EffectiveLimit() int {
	switch {
	case o.Limit <= 0:
		return DefaultListLimit
	case o.Limit > MaxListLimit:
		return MaxListLimit
	default:
		return o.Limit
	}
}

// Store is the transcript log.
type Store interface {
	// CreateMeeting stores m and returns it with ID and StartedAt filled in
	// when they were zero.
	CreateMeeting(ctx context.Context, m Meeting) (Meeting, error)

	// FinishMeeting marks the meeting as ended and adds windows to its
	// relayed window count. Finishing an ended meeting moves EndedAt forward.
	FinishMeeting(ctx context.Context, id string, windows uint64) error

	// ReopenMeeting clears EndedAt so a resumed meeting is active again while
	// its new session runs. Windows are kept. It returns [ErrNotFound] when
	// the meeting does not exist.
	ReopenMeeting(ctx context.Context, id string) error

	// GetMeeting returns one meeting or [ErrNotFound].
	GetMeeting(ctx context.Context, id string) (Meeting, error)

	// ListMeetings returns meetings newest first.
	// Returns an empty (non-nil) slice when nothing matches.
	ListMeetings(ctx context.Context, opts ListOpts) ([]Meeting, error)

	// WriteEntry appends a final transcript to the meeting. It returns
	// [ErrNotFound] when the meeting does not exist.
	WriteEntry(ctx context.Context, meetingID string, entry TranscriptEntry) error

	// Transcript returns the meeting's entries in the order they were
	// written, or [ErrNotFound]. A meeting without entries yields an empty
	// (non-nil) slice.
	Transcript(ctx context.Context, meetingID string) ([]TranscriptEntry, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
