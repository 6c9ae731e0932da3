// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller starts sessions with the expected
// StreamConfig. Use Session to feed controlled Transcript values and inspect
// which audio windows were delivered.
//
// Example:
//
//	sess := mock.NewSession(4)
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.StartStream(ctx, cfg)
//	sess.EmitFinal("hello")
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/meetscribe/pkg/provider/stt"
)

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the SessionHandle returned by StartStream. If nil, each call
	// returns a fresh NewSession(16); see Started.
	Session stt.SessionHandle

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// StartStreamCalls records every call to StartStream.
	StartStreamCalls []StartStreamCall

	started []*Session
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	s := NewSession(16)
	p.started = append(p.started, s)
	return s, nil
}

// Started returns the sessions created by StartStream when Session is nil.
func (p *Provider) Started() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.started...)
}

// Calls returns a copy of the recorded StartStream calls. Thread-safe.
func (p *Provider) Calls() []StartStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]StartStreamCall(nil), p.StartStreamCalls...)
}

var _ stt.Provider = (*Provider)(nil)

// SetKeywordsCall records a single invocation of Session.SetKeywords.
type SetKeywordsCall struct {
	Keywords []stt.KeywordBoost
}

// Session is a mock implementation of stt.SessionHandle.
//
// A Session built with NewSession owns its channels and closes them on the
// first Close, like a real provider. A zero Session with caller-supplied
// channels leaves closing to the caller.
type Session struct {
	mu sync.Mutex

	// PartialsCh is the channel returned by Partials().
	PartialsCh chan stt.Transcript

	// FinalsCh is the channel returned by Finals().
	FinalsCh chan stt.Transcript

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SetKeywordsErr, if non-nil, is returned by every SetKeywords call.
	SetKeywordsErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// OnAudio, if set, is called with each chunk after it is recorded.
	OnAudio func(chunk []byte)

	audio         [][]byte
	keywordCalls  []SetKeywordsCall
	closeCalls    int
	closed        bool
	ownsChannels  bool
	closeChannels sync.Once
}

// NewSession returns a Session with buffered channels that are closed by
// Close.
func NewSession(buffer int) *Session {
	return &Session{
		PartialsCh:   make(chan stt.Transcript, buffer),
		FinalsCh:     make(chan stt.Transcript, buffer),
		ownsChannels: true,
	}
}

// SendAudio records a copy of chunk and returns SendAudioErr. After Close it
// returns an error wrapping stt.ErrSessionClosed.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("mock: %w", stt.ErrSessionClosed)
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.audio = append(s.audio, cp)
	fn, err := s.OnAudio, s.SendAudioErr
	s.mu.Unlock()

	if fn != nil {
		fn(cp)
	}
	return err
}

// Partials returns PartialsCh.
func (s *Session) Partials() <-chan stt.Transcript { return s.PartialsCh }

// Finals returns FinalsCh.
func (s *Session) Finals() <-chan stt.Transcript { return s.FinalsCh }

// EmitPartial sends an interim transcript to the consumer.
func (s *Session) EmitPartial(text string) {
	s.PartialsCh <- stt.Transcript{Text: text}
}

// EmitFinal sends an authoritative transcript to the consumer.
func (s *Session) EmitFinal(text string) {
	s.FinalsCh <- stt.Transcript{Text: text, IsFinal: true, Confidence: 1}
}

// SetKeywords records the call and returns SetKeywordsErr.
func (s *Session) SetKeywords(keywords []stt.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kw := make([]stt.KeywordBoost, len(keywords))
	copy(kw, keywords)
	s.keywordCalls = append(s.keywordCalls, SetKeywordsCall{Keywords: kw})
	return s.SetKeywordsErr
}

// Audio returns copies of every chunk passed to SendAudio, in order.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

// KeywordCalls returns the recorded SetKeywords calls.
func (s *Session) KeywordCalls() []SetKeywordsCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SetKeywordsCall(nil), s.keywordCalls...)
}

// CloseCallCount returns how often Close was called.
func (s *Session) CloseCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closeCalls++
	s.closed = true
	owns := s.ownsChannels
	s.mu.Unlock()

	if owns {
		s.closeChannels.Do(func() {
			close(s.PartialsCh)
			close(s.FinalsCh)
		})
	}
	return s.CloseErr
}

var _ stt.SessionHandle = (*Session)(nil)
