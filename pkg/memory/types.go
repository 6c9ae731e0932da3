package memory

import "time"

// Meeting is one captured meeting.
type Meeting struct {
	// ID is a UUID assigned on creation.
	ID string `json:"id"`

	// OwnerID is the subject of the access token that opened the capture.
	OwnerID string `json:"owner_id"`

	// Title is the client-supplied label; may be empty.
	Title string `json:"title"`

	// Format is the capture wire format (f32le or s16le).
	Format string `json:"format"`

	// SampleRate is the client capture rate in Hz.
	SampleRate int `json:"sample_rate"`

	// WindowSize is the encoder window in samples.
	WindowSize int `json:"window_size"`

	// Windows counts the encoded windows relayed to STT across all
	// sessions of this meeting.
	Windows uint64 `json:"windows"`

	StartedAt time.Time `json:"started_at"`

	// EndedAt is zero while a capture session is open.
	EndedAt time.Time `json:"ended_at,omitzero"`
}

// Active reports whether the meeting has not been finished yet.
func (m Meeting) Active() bool { return m.EndedAt.IsZero() }

// TranscriptEntry is one final transcript segment.
type TranscriptEntry struct {
	// SpeakerID is the provider's diarisation label, empty when unknown.
	SpeakerID string `json:"speaker_id,omitempty"`

	Text string `json:"text"`

	// Confidence is the provider's score in [0, 1].
	Confidence float64 `json:"confidence"`

	// Offset is the position of the segment in the session's audio stream.
	Offset time.Duration `json:"offset_ns"`

	// Duration is the length of the segment's audio.
	Duration time.Duration `json:"duration_ns"`

	// CreatedAt is when the entry was recorded.
	CreatedAt time.Time `json:"created_at"`
}
