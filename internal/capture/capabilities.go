package capture

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/meetscribe/internal/config"
)

var (
	// ErrUnsupportedFormat is returned by [Capabilities.Negotiate] when the
	// client asks for a wire format the server does not accept.
	ErrUnsupportedFormat = errors.New("capture: unsupported format")

	// ErrUnsupportedSampleRate is returned by [Capabilities.Negotiate] when the
	// client's rate is malformed or not accepted.
	ErrUnsupportedSampleRate = errors.New("capture: unsupported sample rate")
)

// maxTitleLen caps the meeting title in runes.
const maxTitleLen = 200

// Capabilities is what the capture endpoint accepts. It comes from
// configuration; nothing is detected at runtime.
type Capabilities struct {
	// Formats lists the accepted wire formats in preference order. The first
	// one is used when the client does not ask for one.
	Formats []string

	// SampleRates lists the accepted client rates in Hz.
	SampleRates []int

	// WindowSize is the encoder window in samples.
	WindowSize int

	// STTSampleRate is the rate the STT session runs at. It is also the
	// client rate assumed when the handshake names none.
	STTSampleRate int
}

// CapabilitiesFromConfig maps the capture section of the config.
func CapabilitiesFromConfig(c config.CaptureConfig) Capabilities {
	return Capabilities{
		Formats:       slices.Clone(c.Formats),
		SampleRates:   slices.Clone(c.SampleRates),
		WindowSize:    c.WindowSize,
		STTSampleRate: c.SampleRate,
	}
}

// Handshake is the negotiated session setup.
type Handshake struct {
	// MeetingID resumes an existing meeting when non-empty.
	MeetingID  string
	Title      string
	Format     string
	SampleRate int
}

// Negotiate reads the handshake query parameters and checks them against c.
func (c Capabilities) Negotiate(q url.Values) (Handshake, error) {
	hs := Handshake{
		MeetingID: strings.TrimSpace(q.Get("meeting_id")),
		Title:     truncate(strings.TrimSpace(q.Get("title")), maxTitleLen),
		Format:    q.Get("format"),
	}

	if hs.Format == "" && len(c.Formats) > 0 {
		hs.Format = c.Formats[0]
	}
	if !slices.Contains(c.Formats, hs.Format) {
		return Handshake{}, fmt.Errorf("%w %q; accepted: %s", ErrUnsupportedFormat, hs.Format, strings.Join(c.Formats, ", "))
	}

	hs.SampleRate = c.STTSampleRate
	if raw := q.Get("sample_rate"); raw != "" {
		rate, err := strconv.Atoi(raw)
		if err != nil {
			return Handshake{}, fmt.Errorf("%w %q", ErrUnsupportedSampleRate, raw)
		}
		hs.SampleRate = rate
	}
	if !slices.Contains(c.SampleRates, hs.SampleRate) {
		return Handshake{}, fmt.Errorf("%w %d; accepted: %v", ErrUnsupportedSampleRate, hs.SampleRate, c.SampleRates)
	}
	return hs, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
