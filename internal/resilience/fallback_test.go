package resilience

import (
	"errors"
	"testing"
	"time"
)

func newGroup(t *testing.T, cb CircuitBreakerConfig) *FallbackGroup[string] {
	t.Helper()
	fg := NewFallbackGroup("deepgram", "deepgram", FallbackConfig{CircuitBreaker: cb})
	fg.AddFallback("whisper", "whisper")
	return fg
}

func TestFallbackGroup_Routing(t *testing.T) {
	tests := []struct {
		name    string
		failing map[string]bool
		want    string
		wantErr bool
	}{
		{"primary healthy", nil, "deepgram", false},
		{"primary down", map[string]bool{"deepgram": true}, "whisper", false},
		{"all down", map[string]bool{"deepgram": true, "whisper": true}, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fg := newGroup(t, CircuitBreakerConfig{MaxFailures: 3})
			var served string
			err := fg.Execute(func(v string) error {
				if tc.failing[v] {
					return errTest
				}
				served = v
				return nil
			})
			if tc.wantErr {
				if !errors.Is(err, ErrAllFailed) {
					t.Fatalf("err = %v, want ErrAllFailed", err)
				}
				if !errors.Is(err, errTest) {
					t.Errorf("err = %v, should also wrap the provider error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if served != tc.want {
				t.Errorf("served by %q, want %q", served, tc.want)
			}
		})
	}
}

func TestFallbackGroup_CircuitBreakerSkipsOpenProvider(t *testing.T) {
	fg := newGroup(t, CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})

	for range 2 {
		_ = fg.Execute(func(v string) error {
			if v == "deepgram" {
				return errTest
			}
			return nil
		})
	}

	primaryCalls := 0
	err := fg.Execute(func(v string) error {
		if v == "deepgram" {
			primaryCalls++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primaryCalls != 0 {
		t.Fatalf("primary called %d times with an open breaker", primaryCalls)
	}
	if got := fg.States()["deepgram"]; got != StateOpen {
		t.Errorf("primary state = %v, want open", got)
	}
	if !fg.Available() {
		t.Error("group should be available while whisper is closed")
	}
}

func TestFallbackGroup_AvailableFalseWhenAllOpen(t *testing.T) {
	fg := newGroup(t, CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	_ = fg.Execute(func(string) error { return errTest })
	if fg.Available() {
		t.Error("Available() = true with every breaker open")
	}
}

func TestFallbackGroup_OnResult(t *testing.T) {
	type result struct {
		provider string
		failed   bool
	}
	var got []result
	fg := NewFallbackGroup("deepgram", "deepgram", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		OnResult: func(provider string, err error) {
			got = append(got, result{provider, err != nil})
		},
	})
	fg.AddFallback("whisper", "whisper")

	call := func(v string) error {
		if v == "deepgram" {
			return errTest
		}
		return nil
	}
	_ = fg.Execute(call)
	_ = fg.Execute(call) // deepgram breaker is open now

	want := []result{{"deepgram", true}, {"whisper", false}, {"whisper", false}}
	if len(got) != len(want) {
		t.Fatalf("OnResult calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	fg := newGroup(t, CircuitBreakerConfig{})
	names := fg.Names()
	if len(names) != 2 || names[0] != "deepgram" || names[1] != "whisper" {
		t.Fatalf("Names() = %v", names)
	}
}

func TestExecuteWithResult_Failover(t *testing.T) {
	fg := NewFallbackGroup(10, "ten", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fg.AddFallback("twenty", 20)

	result, err := ExecuteWithResult(fg, func(v int) (string, error) {
		if v == 10 {
			return "", errTest
		}
		return "from-twenty", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "from-twenty" {
		t.Fatalf("result = %q, want from-twenty", result)
	}
}
