package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func ok(_ context.Context) error { return nil }

func failWith(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

// serve runs fn against a fresh request and decodes the JSON body.
func serve(t *testing.T, fn http.HandlerFunc, req *http.Request) (int, result) {
	t.Helper()
	if req == nil {
		req = httptest.NewRequest("GET", "/", nil)
	}
	rec := httptest.NewRecorder()
	fn(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New([]Checker{{Name: "storage", Check: failWith("down")}})
	code, body := serve(t, h.Healthz, nil)
	if code != http.StatusOK || body.Status != "ok" {
		t.Errorf("healthz = %d %q, want 200 ok", code, body.Status)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name       string
		checkers   []Checker
		wantStatus int
		wantBody   string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "storage", Check: ok},
				{Name: "stt", Check: ok},
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
			wantChecks: map[string]string{"storage": "ok", "stt": "ok"},
		},
		{
			name: "one fails",
			checkers: []Checker{
				{Name: "storage", Check: failWith("connection refused")},
				{Name: "stt", Check: ok},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{"storage": "fail: connection refused", "stt": "ok"},
		},
		{
			name: "all fail",
			checkers: []Checker{
				{Name: "storage", Check: failWith("timeout")},
				{Name: "stt", Check: failWith("no healthy stt provider")},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "fail",
			wantChecks: map[string]string{"storage": "fail: timeout", "stt": "fail: no healthy stt provider"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := New(tc.checkers)
			code, body := serve(t, h.Readyz, nil)
			if code != tc.wantStatus {
				t.Errorf("status code = %d, want %d", code, tc.wantStatus)
			}
			if body.Status != tc.wantBody {
				t.Errorf("status = %q, want %q", body.Status, tc.wantBody)
			}
			for name, want := range tc.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("check %q = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	// Each check waits for the other; sequential evaluation would time out.
	var arrived atomic.Int32
	both := make(chan struct{})
	rendezvous := func(ctx context.Context) error {
		if arrived.Add(1) == 2 {
			close(both)
		}
		select {
		case <-both:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New([]Checker{{Name: "a", Check: rendezvous}, {Name: "b", Check: rendezvous}})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	code, _ := serve(t, h.Readyz, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if code != http.StatusOK {
		t.Errorf("status = %d, want %d", code, http.StatusOK)
	}
}

func TestReadyz_Draining(t *testing.T) {
	var called atomic.Bool
	open := 2
	h := New([]Checker{{Name: "storage", Check: func(context.Context) error {
		called.Store(true)
		return nil
	}}}, WithOpenSessions(func() int { return open }))

	h.SetDraining(true)
	code, body := serve(t, h.Readyz, nil)
	if code != http.StatusServiceUnavailable || body.Status != "draining" {
		t.Errorf("readyz while draining = %d %q", code, body.Status)
	}
	if body.OpenSessions == nil || *body.OpenSessions != 2 {
		t.Errorf("open_sessions = %v, want 2", body.OpenSessions)
	}
	if called.Load() {
		t.Error("checks should not run while draining")
	}

	h.SetDraining(false)
	if code, _ := serve(t, h.Readyz, nil); code != http.StatusOK {
		t.Errorf("readyz after draining = %d, want 200", code)
	}
}

func TestReadyz_DrainingWithoutSessionCount(t *testing.T) {
	h := New(nil)
	h.SetDraining(true)
	code, body := serve(t, h.Readyz, nil)
	if code != http.StatusServiceUnavailable || body.OpenSessions != nil {
		t.Errorf("readyz = %d, open_sessions = %v; want 503 and no count", code, body.OpenSessions)
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	h := New([]Checker{{Name: "test", Check: ok}})

	mux := http.NewServeMux()
	h.Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		t.Run(path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New([]Checker{{Name: "slow", Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	code, _ := serve(t, h.Readyz, httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx))
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", code, http.StatusServiceUnavailable)
	}
}
