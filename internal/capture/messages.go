package capture

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Server-to-client message types.
const (
	msgReady      = "ready"
	msgTranscript = "transcript"
	msgError      = "error"
)

// msgStop is the only client control message: the client is done speaking
// and waits for the remaining transcripts before the server closes.
const msgStop = "stop"

type readyMessage struct {
	Type       string `json:"type"`
	MeetingID  string `json:"meeting_id"`
	WindowSize int    `json:"window_size"`
	SampleRate int    `json:"sample_rate"`
}

type transcriptMessage struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Confidence float64 `json:"confidence"`
	SpeakerID  string  `json:"speaker_id,omitempty"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type controlMessage struct {
	Type string `json:"type"`
}

// malformedError reports a binary frame that does not fit the negotiated
// format. The connection is closed with 1003.
type malformedError struct {
	format string
	size   int
	unit   int
}

func (e *malformedError) Error() string {
	return fmt.Sprintf("capture: %s frame of %d bytes is not a multiple of %d", e.format, e.size, e.unit)
}

// decodeF32LE converts little-endian float32 samples. len(data) must be a
// multiple of 4.
func decodeF32LE(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
