// Package pcm frames a continuous stream of float audio samples into
// fixed-size windows of 16-bit signed linear PCM.
//
// An [Encoder] is fed from a real-time capture callback: every call to
// [Encoder.Write] runs in bounded time, takes no locks and never waits on
// the consumer. Completed windows are handed to a [Sink] as a single
// [Message]; once handed off the window's bytes belong to the receiver.
//
// The encoder performs no resampling, filtering or gain control. It only
// frames and quantises.
package pcm

// DefaultWindowSize is the number of samples per emitted window
// (256 ms at 16 kHz).
const DefaultWindowSize = 4096

// MessageTypePCM tags a [Message] whose payload is an encoded PCM window.
const MessageTypePCM = "pcm"

// Message is the unit handed across the isolation boundary.
type Message struct {
	// Type identifies the payload. Always [MessageTypePCM] for encoder output.
	Type string

	// Data is WindowSize x 2 bytes of little-endian int16 samples.
	Data []byte
}

// Sink receives completed windows. Post must not block; the encoder calls
// it from the capture path and relinquishes msg.Data afterwards.
type Sink interface {
	Post(msg Message)
}

// SinkFunc adapts a plain function to the [Sink] interface.
type SinkFunc func(Message)

// Post calls f(msg).
func (f SinkFunc) Post(msg Message) { f(msg) }

// Option configures an [Encoder].
type Option func(*Encoder)

// WithWindowSize sets the number of samples per window. Non-positive values
// are ignored and the default is kept.
func WithWindowSize(n int) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.size = n
		}
	}
}

// Encoder accumulates samples and emits fixed-size encoded windows.
//
// An Encoder is owned by a single goroutine; it is not safe for concurrent
// use.
type Encoder struct {
	sink Sink
	size int

	buf     []float32
	cursor  int
	emitted uint64
}

// NewEncoder returns an Encoder that emits completed windows to sink.
func NewEncoder(sink Sink, opts ...Option) *Encoder {
	e := &Encoder{
		sink: sink,
		size: DefaultWindowSize,
	}
	for _, o := range opts {
		o(e)
	}
	e.buf = make([]float32, e.size)
	return e
}

// Write appends samples to the current window in arrival order. Each time
// the window fills it is quantised, emitted, and replaced by a fresh buffer.
// Chunk boundaries have no effect on framing.
func (e *Encoder) Write(samples []float32) {
	for len(samples) > 0 {
		n := copy(e.buf[e.cursor:], samples)
		e.cursor += n
		samples = samples[n:]

		if e.cursor == e.size {
			e.flush()
		}
	}
}

// flush emits the full accumulator and installs a new one.
func (e *Encoder) flush() {
	data := EncodeWindow(e.buf)
	e.buf = make([]float32, e.size)
	e.cursor = 0
	e.emitted++
	e.sink.Post(Message{Type: MessageTypePCM, Data: data})
}

// Buffered reports how many samples are waiting for the current window to
// complete.
func (e *Encoder) Buffered() int { return e.cursor }

// WindowSize reports the number of samples per emitted window.
func (e *Encoder) WindowSize() int { return e.size }

// Emitted reports how many windows have been handed to the sink.
func (e *Encoder) Emitted() uint64 { return e.emitted }
