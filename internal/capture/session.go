package capture

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/meetscribe/internal/config"
	"github.com/MrWong99/meetscribe/internal/observe"
	"github.com/MrWong99/meetscribe/pkg/audio"
	"github.com/MrWong99/meetscribe/pkg/audio/pcm"
	"github.com/MrWong99/meetscribe/pkg/memory"
	"github.com/MrWong99/meetscribe/pkg/provider/stt"
)

// errMalformed ends the read loop after the client was told what was wrong.
var errMalformed = errors.New("capture: malformed frame")

// errProviderHangup reports a provider that closed its results mid-stream.
var errProviderHangup = errors.New("capture: stt provider ended the stream")

// session is one open capture socket. It owns three goroutines:
//
//   - read: websocket frames to the encoder, which posts windows to the mailbox
//   - relay: mailbox to the STT session, resampling when the rates differ
//   - transcripts: STT results to the client and finals to the store
//
// Ending the input closes the mailbox, the relay closes the STT session once
// the mailbox has drained, and the transcript loop ends when the provider
// closes its channels. Only then is the socket closed, so every final reaches
// the store, and the client if it is still connected, before the meeting is
// finished. A provider that closes its channels while the relay is still
// running has failed, and the session ends with 1011.
type session struct {
	info       SessionInfo
	windowSize int
	sttRate    int

	conn    *websocket.Conn
	stt     stt.SessionHandle
	store   memory.Store
	metrics *observe.Metrics
	log     *slog.Logger

	// correct rewrites final text and reports how many spans changed. Nil
	// disables correction.
	correct func(text string) (string, int)

	writeTimeout time.Duration
	storeTimeout time.Duration

	// ctx carries the request's values past its cancellation.
	ctx context.Context

	// stopping is closed by stop. Frames read after that are discarded.
	stopping chan struct{}
	stopOnce sync.Once

	// mu guards stt against keyword updates that race session start.
	mu sync.Mutex

	windows    atomic.Uint64
	clientGone atomic.Bool
	closeOnce  sync.Once
}

// stop asks the session to end its input. Audio already received is still
// relayed, its transcripts are stored and sent, and the socket then closes
// with 1001. It is safe to call before run and more than once.
func (s *session) stop() {
	s.stopOnce.Do(func() { close(s.stopping) })
}

func (s *session) stopped() bool {
	select {
	case <-s.stopping:
		return true
	default:
		return false
	}
}

// run drives the session until all three loops are done, then finishes the
// meeting. The socket is closed between the transcript loop ending and the
// reader being collected.
func (s *session) run() {
	mailbox := pcm.NewMailbox()
	inputDone := make(chan struct{})
	go func() {
		select {
		case <-inputDone:
		case <-s.stopping:
		}
		mailbox.Close()
	}()

	var reader errgroup.Group
	reader.Go(func() error {
		defer close(inputDone)
		return s.readLoop(mailbox)
	})

	sttDone := make(chan struct{})
	var pipeline sync.WaitGroup
	pipeline.Go(func() { s.relayLoop(mailbox, sttDone) })
	pipeline.Go(func() {
		defer close(sttDone)
		s.transcriptLoop()
	})
	pipeline.Wait()

	if s.stopped() {
		s.closeWith(websocket.StatusGoingAway, "server shutting down")
	} else {
		s.closeWith(websocket.StatusNormalClosure, "")
	}
	if err := reader.Wait(); err != nil && !errors.Is(err, errMalformed) {
		s.log.Warn("capture: session ended with error", "err", err)
	}

	ctx, cancel := s.detached(s.storeTimeout)
	defer cancel()
	if err := s.store.FinishMeeting(ctx, s.info.MeetingID, s.windows.Load()); err != nil {
		s.log.Error("capture: finish meeting", "err", err)
	}
	s.log.Info("capture: session ended", "windows", s.windows.Load())
}

func (s *session) readLoop(mailbox *pcm.Mailbox) error {
	var enc *pcm.Encoder
	if s.info.Format == config.FormatF32LE {
		enc = pcm.NewEncoder(mailbox, pcm.WithWindowSize(s.windowSize))
	}

	for {
		typ, data, err := s.conn.Read(s.ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); {
			case s.stopped():
				s.log.Debug("capture: input stopped by server")
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				s.log.Debug("capture: client closed", "status", status)
			default:
				s.log.Debug("capture: read ended", "err", err)
			}
			return nil
		}

		if typ == websocket.MessageText {
			var ctl controlMessage
			if err := json.Unmarshal(data, &ctl); err != nil || ctl.Type != msgStop {
				return s.reject("expected binary audio or a stop message")
			}
			s.log.Debug("capture: client requested stop")
			return nil
		}
		if s.stopped() {
			continue
		}

		switch s.info.Format {
		case config.FormatF32LE:
			if len(data)%4 != 0 {
				return s.reject((&malformedError{format: s.info.Format, size: len(data), unit: 4}).Error())
			}
			samples := decodeF32LE(data)
			enc.Write(samples)
			s.metrics.RecordSamples(s.ctx, len(samples))
		case config.FormatS16LE:
			if len(data)%2 != 0 {
				return s.reject((&malformedError{format: s.info.Format, size: len(data), unit: 2}).Error())
			}
			if len(data) == 0 {
				continue
			}
			mailbox.Post(pcm.Message{Type: pcm.MessageTypePCM, Data: data})
			s.metrics.RecordSamples(s.ctx, len(data)/2)
		}
	}
}

// reject tells the client why its frame was refused and closes with 1003.
func (s *session) reject(reason string) error {
	s.log.Warn("capture: rejecting client frame", "reason", reason)
	s.send(errorMessage{Type: msgError, Message: reason})
	s.closeWith(websocket.StatusUnsupportedData, "malformed frame")
	return errMalformed
}

// relayLoop forwards windows until the mailbox closes. sttDone closing first
// means the provider ended the stream on its own.
func (s *session) relayLoop(mailbox *pcm.Mailbox, sttDone <-chan struct{}) {
	defer func() {
		if err := s.stt.Close(); err != nil {
			s.log.Warn("capture: close stt session", "err", err)
		}
	}()

	conv := audio.FormatConverter{TargetRate: s.sttRate}
	var offset time.Duration
	for {
		var msg pcm.Message
		select {
		case m, ok := <-mailbox.Messages():
			if !ok {
				return
			}
			msg = m
		case <-sttDone:
			s.abortRelay(mailbox, errProviderHangup, offset)
			return
		}
		if msg.Type != pcm.MessageTypePCM {
			continue
		}
		frame := conv.Convert(audio.AudioFrame{
			Data:       msg.Data,
			SampleRate: s.info.SampleRate,
			Channels:   1,
			Timestamp:  offset,
		})
		offset += audio.Duration(msg.Data, audio.Format{SampleRate: s.info.SampleRate, Channels: 1})
		if len(frame.Data) == 0 {
			continue
		}

		start := time.Now()
		if err := s.stt.SendAudio(frame.Data); err != nil {
			s.abortRelay(mailbox, err, frame.Timestamp)
			return
		}
		s.metrics.RecordWindow(context.Background(), s.info.Format, time.Since(start).Seconds())
		s.windows.Add(1)
	}
}

// abortRelay closes the socket with 1011, which ends the reader, and
// discards whatever is still queued.
func (s *session) abortRelay(mailbox *pcm.Mailbox, err error, offset time.Duration) {
	s.log.Error("capture: relay to stt failed", "err", err, "offset", offset)
	s.closeWith(websocket.StatusInternalError, "transcription failed")
	audio.Drain(mailbox.Messages())
}

func (s *session) transcriptLoop() {
	partials, finals := s.stt.Partials(), s.stt.Finals()
	for partials != nil || finals != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			t.IsFinal = false
			s.deliver(t)
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			t.IsFinal = true
			if s.correct != nil && t.Text != "" {
				var n int
				if t.Text, n = s.correct(t.Text); n > 0 {
					s.log.Debug("capture: corrected final", "corrections", n)
					s.metrics.RecordCorrections(context.Background(), n)
				}
			}
			s.persist(t)
			s.deliver(t)
		}
	}
}

func (s *session) persist(t stt.Transcript) {
	if t.Text == "" {
		return
	}
	ctx, cancel := s.detached(s.storeTimeout)
	defer cancel()
	err := s.store.WriteEntry(ctx, s.info.MeetingID, memory.TranscriptEntry{
		SpeakerID:  t.SpeakerID,
		Text:       t.Text,
		Confidence: t.Confidence,
		Offset:     t.Timestamp,
		Duration:   t.Duration,
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		s.log.Error("capture: write transcript entry", "err", err)
	}
}

func (s *session) deliver(t stt.Transcript) {
	if t.Text == "" {
		return
	}
	if s.send(transcriptMessage{
		Type:       msgTranscript,
		Text:       t.Text,
		IsFinal:    t.IsFinal,
		Confidence: t.Confidence,
		SpeakerID:  t.SpeakerID,
	}) {
		s.metrics.RecordTranscript(context.Background(), t.IsFinal)
	}
}

// send writes v as JSON. Once a write fails the client is treated as gone
// and later sends are skipped.
func (s *session) send(v any) bool {
	if s.clientGone.Load() {
		return false
	}
	ctx, cancel := s.detached(s.writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, s.conn, v); err != nil {
		s.clientGone.Store(true)
		s.log.Debug("capture: client write failed", "err", err)
		return false
	}
	return true
}

// closeWith closes the socket once; later calls are no-ops.
func (s *session) closeWith(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		s.clientGone.Store(true)
		if err := s.conn.Close(code, reason); err != nil {
			s.log.Debug("capture: close socket", "code", code, "err", err)
		}
	})
}

// detached returns a context that survives stop but is bounded by d.
func (s *session) detached(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(s.ctx), d)
}

func (s *session) attach(h stt.SessionHandle) {
	s.mu.Lock()
	s.stt = h
	s.mu.Unlock()
}

// setKeywords forwards a keyword change to the live STT session. Sessions
// still starting pick the new list up from the handler.
func (s *session) setKeywords(keywords []stt.KeywordBoost) {
	s.mu.Lock()
	h := s.stt
	s.mu.Unlock()
	if h == nil {
		return
	}
	if err := h.SetKeywords(keywords); err != nil && !errors.Is(err, stt.ErrNotSupported) {
		s.log.Warn("capture: update keywords", "err", err)
	}
}
