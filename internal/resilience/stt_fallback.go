package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/meetscribe/pkg/provider/stt"
)

// ErrNoHealthyProvider is returned by [STTFallback.Check] when every backend's
// breaker is open.
var ErrNoHealthyProvider = errors.New("resilience: no healthy STT provider")

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Failover happens only when a stream is opened; a session that
// fails mid-meeting is not migrated.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// StartStream opens a session against the first healthy provider. A
// cancelled ctx is returned as is rather than counted against any breaker.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("resilience: start stream: %w", err)
	}
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

// Providers returns the backend names in failover order.
func (f *STTFallback) Providers() []string { return f.group.Names() }

// Check backs readiness: it fails when no backend would accept a new
// stream.
func (f *STTFallback) Check(context.Context) error {
	if f.group.Available() {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrNoHealthyProvider, f.group.States())
}
