package stt

import "time"

// Transcript is one recognition result. Partials and finals share the type;
// IsFinal tells them apart.
type Transcript struct {
	Text    string
	IsFinal bool

	// Confidence is in [0, 1]. Zero means the backend did not say.
	Confidence float64

	// Words carries per-word timing when the backend reports it. Nil
	// otherwise.
	Words []WordDetail

	// SpeakerID is the diarisation label, empty unless diarisation is on.
	SpeakerID string

	// Timestamp is where the utterance starts in the session's audio.
	Timestamp time.Duration
	Duration  time.Duration
}

// WordDetail is the timing and score of a single recognised word.
type WordDetail struct {
	Word       string
	Start, End time.Duration
	Confidence float64
}

// KeywordBoost raises the odds of a word the model would otherwise miss,
// typically an attendee's name or a product term.
type KeywordBoost struct {
	Keyword string

	// Boost is the intensity on the backend's own scale.
	Boost float64
}
