// Package health serves the liveness and readiness endpoints.
//
// /healthz answers 200 whenever the process can serve HTTP. /readyz answers
// 200 only when the server is accepting new capture sessions and every
// [Checker] passes. While the server drains, /readyz reports 503 with the
// number of capture sessions still open, so an orchestrator can tell a slow
// shutdown from a stuck one.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Check statuses.
const (
	statusOK       = "ok"
	statusFail     = "fail"
	statusDraining = "draining"
)

// Checker tests one dependency. Check returns nil when it is usable and
// must honour ctx.
type Checker struct {
	// Name keys the result in the readiness body ("storage", "stt").
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`

	// OpenSessions is reported while draining.
	OpenSessions *int `json:"open_sessions,omitempty"`
}

// Handler serves both endpoints. Checkers are fixed at construction.
type Handler struct {
	checkers     []Checker
	openSessions func() int
	draining     atomic.Bool
}

// Option configures a [Handler].
type Option func(*Handler)

// WithOpenSessions reports fn's count in the draining response.
func WithOpenSessions(fn func() int) Option {
	return func(h *Handler) { h.openSessions = fn }
}

// New returns a Handler that runs checkers concurrently on each /readyz.
func New(checkers []Checker, opts ...Option) *Handler {
	h := &Handler{checkers: append([]Checker(nil), checkers...)}
	for _, o := range opts {
		o(h)
	}
	return h
}

// SetDraining switches /readyz to 503 without running checks, so load
// balancers stop sending new capture sessions while open ones finish.
func (h *Handler) SetDraining(v bool) {
	h.draining.Store(v)
}

// Healthz always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: statusOK})
}

// Readyz runs every checker with a [checkTimeout] deadline derived from the
// request and reports each outcome.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		res := result{Status: statusDraining}
		if h.openSessions != nil {
			n := h.openSessions()
			res.OpenSessions = &n
		}
		writeJSON(w, http.StatusServiceUnavailable, res)
		return
	}

	checks, healthy := h.run(r.Context())
	res, code := result{Status: statusOK, Checks: checks}, http.StatusOK
	if !healthy {
		res.Status, code = statusFail, http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

// run evaluates all checkers. A failing check never cancels the others.
func (h *Handler) run(ctx context.Context) (map[string]string, bool) {
	var (
		mu      sync.Mutex
		checks  = make(map[string]string, len(h.checkers))
		healthy = true
	)
	var g errgroup.Group
	for _, c := range h.checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			outcome := statusOK
			if err := c.Check(cctx); err != nil {
				outcome = statusFail + ": " + err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			checks[c.Name] = outcome
			if outcome != statusOK {
				healthy = false
			}
			return nil
		})
	}
	_ = g.Wait()
	return checks, healthy
}

// Register mounts both endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
