// Package app wires the meetscribe subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until its context is done, and Shutdown drains
// capture sessions and tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics, WithGatherer). When an option is not provided, New creates
// real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/meetscribe/internal/api"
	"github.com/MrWong99/meetscribe/internal/auth"
	"github.com/MrWong99/meetscribe/internal/capture"
	"github.com/MrWong99/meetscribe/internal/config"
	"github.com/MrWong99/meetscribe/internal/health"
	"github.com/MrWong99/meetscribe/internal/observe"
	"github.com/MrWong99/meetscribe/internal/resilience"
	"github.com/MrWong99/meetscribe/internal/transcript"
	"github.com/MrWong99/meetscribe/internal/transcript/phonetic"
	"github.com/MrWong99/meetscribe/pkg/memory"
	"github.com/MrWong99/meetscribe/pkg/memory/postgres"
	"github.com/MrWong99/meetscribe/pkg/provider/stt"
)

// failoverLabel is the provider label for stream starts as the capture
// handler sees them, after failover. Per-backend attempts carry the backend
// name instead.
const failoverLabel = "failover"

// readHeaderTimeout bounds how long a client may take to send request headers.
const readHeaderTimeout = 10 * time.Second

// Providers holds the STT backends. Populated by main.go via the config
// registry. STT is required; STTFallback is optional.
type Providers struct {
	STT     stt.Provider
	STTName string

	STTFallback     stt.Provider
	STTFallbackName string
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	store    memory.Store
	metrics  *observe.Metrics
	gatherer prometheus.Gatherer

	stt      *resilience.STTFallback
	verifier *auth.Verifier
	capture  *capture.Handler
	health   *health.Handler
	handler  http.Handler
	server   *http.Server

	mu   sync.Mutex
	addr net.Addr

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a transcript store instead of creating one from config.
// The caller keeps ownership; Shutdown does not close it.
func WithStore(s memory.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics injects the metrics sink. The default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithGatherer sets what /metrics serves. The default is
// [prometheus.DefaultGatherer].
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
//
// New connects to storage synchronously; a configured but unreachable
// PostgreSQL server fails startup.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.STT == nil {
		return nil, errors.New("app: an STT provider is required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.gatherer == nil {
		a.gatherer = prometheus.DefaultGatherer
	}

	// ── 1. Transcript store ──────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. STT failover ──────────────────────────────────────────────────
	a.initSTT()

	// ── 3. Auth ──────────────────────────────────────────────────────────
	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("app: init auth: %w", err)
	}
	a.verifier = verifier

	// ── 4. Capture, API, health ──────────────────────────────────────────
	captureOpts := []capture.Option{
		capture.WithMetrics(a.metrics),
		capture.WithProviderName(failoverLabel),
		capture.WithOriginPatterns(cfg.Capture.AllowedOrigins...),
		capture.WithMaxMessageBytes(cfg.Capture.MaxMessageBytes),
		capture.WithRecognition(cfg.Capture.Language, keywordBoosts(cfg.Capture.Keywords)),
	}
	if cfg.Capture.KeywordCorrection {
		captureOpts = append(captureOpts, capture.WithCorrector(transcript.NewCorrector(phonetic.New())))
	}
	a.capture = capture.NewHandler(capture.CapabilitiesFromConfig(cfg.Capture), a.stt, a.store, captureOpts...)
	a.health = health.New([]health.Checker{
		{Name: "storage", Check: a.store.Ping},
		{Name: "stt", Check: a.stt.Check},
	}, health.WithOpenSessions(a.capture.OpenSessions))

	// ── 5. HTTP ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	a.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	mux.Handle("GET /v1/capture", a.verifier.Middleware(a.capture))
	api.NewServer(a.store).Register(mux, a.verifier.Middleware)
	a.handler = observe.Middleware(a.metrics)(mux)

	a.server = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore opens PostgreSQL when a DSN is configured and falls back to the
// in-memory store otherwise.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil // injected
	}

	dsn := a.cfg.Storage.PostgresDSN
	if dsn == "" {
		a.store = memory.NewMemStore()
		slog.Warn("using in-memory transcript store")
		return nil
	}

	store, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error {
		store.Close()
		return nil
	})
	return nil
}

// initSTT places every configured STT backend behind its own circuit breaker.
func (a *App) initSTT() {
	cb := a.cfg.Providers.CircuitBreaker
	fb := resilience.NewSTTFallback(a.providers.STT, nameOr(a.providers.STTName, "primary"), resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cb.MaxFailures,
			ResetTimeout: cb.ResetTimeout,
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("stt circuit breaker state changed", "provider", name, "from", from, "to", to)
			},
		},
		OnResult: func(provider string, err error) {
			ctx := context.Background()
			if err != nil {
				a.metrics.RecordProviderRequest(ctx, provider, "stt", "error")
				a.metrics.RecordProviderError(ctx, provider, "stt")
				slog.Warn("stt stream start failed", "provider", provider, "err", err)
				return
			}
			a.metrics.RecordProviderRequest(ctx, provider, "stt", "ok")
		},
	})
	if a.providers.STTFallback != nil {
		fb.AddFallback(nameOr(a.providers.STTFallbackName, "fallback"), a.providers.STTFallback)
	}
	a.stt = fb
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Handler returns the root HTTP handler. Tests may serve it directly.
func (a *App) Handler() http.Handler { return a.handler }

// Store returns the transcript store in use.
func (a *App) Store() memory.Store { return a.store }

// Addr returns the bound listen address once Run is serving, or nil.
func (a *App) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addr
}

// ApplyDiff applies hot-reloadable config changes. The log level is owned by
// main and handled there.
func (a *App) ApplyDiff(d config.ConfigDiff) {
	if d.LanguageChanged {
		a.capture.SetLanguage(d.NewLanguage)
		slog.Info("capture language updated", "language", d.NewLanguage)
	}
	if d.KeywordsChanged {
		a.capture.SetKeywords(keywordBoosts(d.NewKeywords))
		slog.Info("capture keywords updated", "count", len(d.NewKeywords))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run listens on the configured address and serves until ctx is cancelled.
// It returns nil on cancellation; call Shutdown afterwards to drain.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	a.mu.Lock()
	a.addr = ln.Addr()
	a.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if tls := a.cfg.Server.TLS; tls != nil {
			errCh <- a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
			return
		}
		errCh <- a.server.Serve(ln)
	}()
	slog.Info("http server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown marks the server as draining, waits for open capture sessions to
// store their remaining transcripts, stops the HTTP server, and then runs the
// closers. It respects the context deadline: if ctx expires, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "open_sessions", len(a.capture.Sessions()), "closers", len(a.closers))
		a.health.SetDraining(true)

		if err := a.capture.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: drain capture sessions: %w", err))
		}
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: stop http server: %w", err))
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				errs = append(errs, ctx.Err())
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return errors.Join(errs...)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func keywordBoosts(kws []config.KeywordConfig) []stt.KeywordBoost {
	if len(kws) == 0 {
		return nil
	}
	out := make([]stt.KeywordBoost, len(kws))
	for i, kw := range kws {
		out[i] = stt.KeywordBoost{Keyword: kw.Keyword, Boost: kw.Boost}
	}
	return out
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
