// Package capture serves the live capture socket. A client streams raw audio
// over a websocket; the server frames it into fixed PCM windows, relays them
// to a streaming STT session, sends transcripts back, and records finals in
// the meeting transcript.
package capture

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/meetscribe/internal/auth"
	"github.com/MrWong99/meetscribe/internal/observe"
	"github.com/MrWong99/meetscribe/internal/transcript"
	"github.com/MrWong99/meetscribe/pkg/memory"
	"github.com/MrWong99/meetscribe/pkg/provider/stt"
)

// errDraining is returned while the handler shuts down.
var errDraining = errors.New("capture: server is draining")

const (
	defaultWriteTimeout    = 5 * time.Second
	defaultStoreTimeout    = 5 * time.Second
	defaultMaxMessageBytes = 1 << 20
)

// recognition is the hot-reloadable part of the STT stream config.
type recognition struct {
	language string
	keywords []stt.KeywordBoost

	// vocabulary is keywords as plain strings for the corrector.
	vocabulary []string
}

func newRecognition(language string, keywords []stt.KeywordBoost) *recognition {
	rec := &recognition{language: language, keywords: keywords}
	for _, kw := range keywords {
		rec.vocabulary = append(rec.vocabulary, kw.Keyword)
	}
	return rec
}

// Handler upgrades authenticated requests to capture sessions. It expects
// [auth.Claims] in the request context.
type Handler struct {
	caps         Capabilities
	provider     stt.Provider
	providerName string
	store        memory.Store
	metrics      *observe.Metrics
	corrector    *transcript.Corrector

	originPatterns  []string
	maxMessageBytes int64
	writeTimeout    time.Duration
	storeTimeout    time.Duration

	recognition atomic.Pointer[recognition]
	sessions    *registry
}

// Option configures a [Handler].
type Option func(*Handler)

// WithMetrics sets the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithProviderName labels provider metrics. The default is "stt".
func WithProviderName(name string) Option {
	return func(h *Handler) { h.providerName = name }
}

// WithOriginPatterns allows cross-origin pages whose host matches one of
// patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.originPatterns = slices.Clone(patterns) }
}

// WithMaxMessageBytes caps a single client frame.
func WithMaxMessageBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxMessageBytes = n
		}
	}
}

// WithWriteTimeout bounds each message written to the client.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.writeTimeout = d
		}
	}
}

// WithRecognition sets the initial language and keywords.
func WithRecognition(language string, keywords []stt.KeywordBoost) Option {
	return func(h *Handler) {
		h.recognition.Store(newRecognition(language, slices.Clone(keywords)))
	}
}

// WithCorrector rewrites misheard keywords in final transcripts before they
// are stored and sent. Without it finals pass through unchanged.
func WithCorrector(c *transcript.Corrector) Option {
	return func(h *Handler) { h.corrector = c }
}

// NewHandler returns a Handler that opens sessions on provider and records
// them in store.
func NewHandler(caps Capabilities, provider stt.Provider, store memory.Store, opts ...Option) *Handler {
	h := &Handler{
		caps:            caps,
		provider:        provider,
		providerName:    "stt",
		store:           store,
		maxMessageBytes: defaultMaxMessageBytes,
		writeTimeout:    defaultWriteTimeout,
		storeTimeout:    defaultStoreTimeout,
		sessions:        newRegistry(),
	}
	h.recognition.Store(&recognition{})
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// SetLanguage changes the language used by sessions opened from now on.
func (h *Handler) SetLanguage(language string) {
	cur := h.recognition.Load()
	h.recognition.Store(newRecognition(language, cur.keywords))
}

// SetKeywords changes the keywords for new sessions and pushes them to open
// ones. Providers that cannot update a live session keep their old list.
func (h *Handler) SetKeywords(keywords []stt.KeywordBoost) {
	keywords = slices.Clone(keywords)
	cur := h.recognition.Load()
	h.recognition.Store(newRecognition(cur.language, keywords))
	for _, s := range h.sessions.snapshot() {
		s.setKeywords(keywords)
	}
}

// Sessions describes the open capture sessions.
func (h *Handler) Sessions() []SessionInfo {
	open := h.sessions.snapshot()
	out := make([]SessionInfo, 0, len(open))
	for _, s := range open {
		out = append(out, s.info)
	}
	slices.SortFunc(out, func(a, b SessionInfo) int { return a.StartedAt.Compare(b.StartedAt) })
	return out
}

// OpenSessions returns the number of capture sessions currently open.
func (h *Handler) OpenSessions() int { return len(h.sessions.snapshot()) }

// Shutdown refuses new sessions, stops reading from open ones, and waits
// until their remaining transcripts are stored or ctx expires.
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.sessions.drain(ctx)
}

// ServeHTTP implements [http.Handler].
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing access token")
		return
	}
	hs, err := h.caps.Negotiate(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meeting, created, err := h.resolveMeeting(r.Context(), claims, hs)
	switch {
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, "meeting not found")
		return
	case err != nil:
		observe.Logger(r.Context()).Error("capture: open meeting", "err", err)
		writeError(w, http.StatusInternalServerError, "could not open meeting")
		return
	}

	ctx := context.WithoutCancel(r.Context())
	s := &session{
		info: SessionInfo{
			MeetingID:  meeting.ID,
			OwnerID:    meeting.OwnerID,
			Format:     hs.Format,
			SampleRate: hs.SampleRate,
			StartedAt:  time.Now().UTC(),
		},
		windowSize:   h.caps.WindowSize,
		sttRate:      h.caps.STTSampleRate,
		store:        h.store,
		metrics:      h.metrics,
		log:          observe.Logger(r.Context()).With("meeting_id", meeting.ID),
		writeTimeout: h.writeTimeout,
		storeTimeout: h.storeTimeout,
		ctx:          ctx,
		stopping:     make(chan struct{}),
	}
	if h.corrector != nil {
		s.correct = h.correctFinal
	}

	// abandon finishes a meeting this request created or reopened but never
	// captured.
	owned := created
	abandon := func() {
		if owned {
			fctx, fcancel := s.detached(h.storeTimeout)
			defer fcancel()
			if err := h.store.FinishMeeting(fctx, meeting.ID, 0); err != nil {
				s.log.Warn("capture: finish abandoned meeting", "err", err)
			}
		}
	}

	if err := h.sessions.add(s); err != nil {
		abandon()
		if errors.Is(err, errMeetingBusy) {
			writeError(w, http.StatusConflict, "meeting already has an open capture session")
		} else {
			writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		}
		return
	}
	defer h.sessions.remove(s)

	if !created {
		if err := h.store.ReopenMeeting(r.Context(), meeting.ID); err != nil {
			s.log.Error("capture: reopen meeting", "err", err)
			writeError(w, http.StatusInternalServerError, "could not open meeting")
			return
		}
		owned = true
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.originPatterns,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		// Accept has already written the response.
		s.log.Debug("capture: upgrade failed", "err", err)
		abandon()
		return
	}
	conn.SetReadLimit(h.maxMessageBytes)
	s.conn = conn

	rec := h.recognition.Load()
	sttCtx, sttCancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer sttCancel()
	_, startSpan := observe.StartSpan(r.Context(), observe.SpanSTTStart)
	startSpan.SetAttributes(
		observe.AttrMeetingID.String(meeting.ID),
		observe.AttrSampleRate.Int(h.caps.STTSampleRate),
	)
	handle, err := h.provider.StartStream(sttCtx, stt.StreamConfig{
		SampleRate: h.caps.STTSampleRate,
		Channels:   1,
		Language:   rec.language,
		Keywords:   rec.keywords,
	})
	if err != nil {
		startSpan.RecordError(err)
		startSpan.End()
		s.log.Error("capture: start stt stream", "err", err)
		h.metrics.RecordProviderRequest(r.Context(), h.providerName, "stt", "error")
		h.metrics.RecordProviderError(r.Context(), h.providerName, "stt")
		_ = conn.Close(websocket.StatusInternalError, "transcription unavailable")
		abandon()
		return
	}
	startSpan.End()
	h.metrics.RecordProviderRequest(r.Context(), h.providerName, "stt", "ok")
	s.attach(handle)

	h.metrics.ActiveSessions.Add(r.Context(), 1)
	defer h.metrics.ActiveSessions.Add(context.WithoutCancel(r.Context()), -1)

	wctx, wcancel := context.WithTimeout(ctx, h.writeTimeout)
	err = wsjson.Write(wctx, conn, readyMessage{
		Type:       msgReady,
		MeetingID:  meeting.ID,
		WindowSize: h.caps.WindowSize,
		SampleRate: hs.SampleRate,
	})
	wcancel()
	if err != nil {
		s.log.Debug("capture: send ready", "err", err)
		s.clientGone.Store(true)
	}

	s.log.Info("capture: session started",
		"owner", meeting.OwnerID,
		"format", hs.Format,
		"sample_rate", hs.SampleRate,
		"resumed", !created,
	)

	_, span := observe.StartSpan(ctx, observe.SpanCaptureSession)
	span.SetAttributes(
		observe.AttrMeetingID.String(meeting.ID),
		observe.AttrFormat.String(hs.Format),
		observe.AttrSampleRate.Int(hs.SampleRate),
	)
	s.run()
	span.SetAttributes(observe.AttrWindows.Int64(int64(s.windows.Load())))
	span.End()
}

// correctFinal applies the corrector with the keywords current at the time
// the final arrives.
func (h *Handler) correctFinal(text string) (string, int) {
	res := h.corrector.Correct(text, h.recognition.Load().vocabulary)
	return res.Text, len(res.Corrections)
}

// resolveMeeting resumes hs.MeetingID when set or creates a new meeting. A
// meeting owned by someone else is reported as not found unless the caller
// holds the service role.
func (h *Handler) resolveMeeting(ctx context.Context, claims *auth.Claims, hs Handshake) (memory.Meeting, bool, error) {
	if hs.MeetingID != "" {
		m, err := h.store.GetMeeting(ctx, hs.MeetingID)
		if err != nil {
			return memory.Meeting{}, false, err
		}
		if m.OwnerID != claims.OwnerID() && !claims.IsService() {
			return memory.Meeting{}, false, memory.ErrNotFound
		}
		return m, false, nil
	}

	m, err := h.store.CreateMeeting(ctx, memory.Meeting{
		OwnerID:    claims.OwnerID(),
		Title:      hs.Title,
		Format:     hs.Format,
		SampleRate: hs.SampleRate,
		WindowSize: h.caps.WindowSize,
	})
	if err != nil {
		return memory.Meeting{}, false, err
	}
	return m, true, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
