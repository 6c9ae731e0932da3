// Package memorytest holds behaviour tests shared by every [memory.Store]
// backend.
package memorytest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/meetscribe/pkg/memory"
)

// Run exercises a store backend. newStore must return an empty store for
// each call.
func Run(t *testing.T, newStore func(t *testing.T) memory.Store) {
	t.Run("CreateAssignsIDAndStart", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m, err := s.CreateMeeting(ctx, memory.Meeting{OwnerID: "u1", Title: "standup", Format: "f32le", SampleRate: 48000, WindowSize: 4096})
		require.NoError(t, err)
		_, err = uuid.Parse(m.ID)
		assert.NoError(t, err, "meeting id should be a uuid")
		assert.False(t, m.StartedAt.IsZero())
		assert.True(t, m.Active())

		got, err := s.GetMeeting(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, "standup", got.Title)
		assert.Equal(t, "u1", got.OwnerID)
		assert.Equal(t, 48000, got.SampleRate)
		assert.Equal(t, 4096, got.WindowSize)
		assert.Equal(t, uint64(0), got.Windows)
	})

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetMeeting(ctx, uuid.NewString())
		assert.ErrorIs(t, err, memory.ErrNotFound)
		_, err = s.GetMeeting(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, memory.ErrNotFound)
	})

	t.Run("FinishAccumulatesWindows", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m, err := s.CreateMeeting(ctx, memory.Meeting{OwnerID: "u1"})
		require.NoError(t, err)
		require.NoError(t, s.FinishMeeting(ctx, m.ID, 10))
		require.NoError(t, s.FinishMeeting(ctx, m.ID, 5))

		got, err := s.GetMeeting(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, uint64(15), got.Windows)
		assert.False(t, got.Active())
		assert.False(t, got.EndedAt.Before(got.StartedAt))

		assert.ErrorIs(t, s.FinishMeeting(ctx, uuid.NewString(), 1), memory.ErrNotFound)
	})

	t.Run("ReopenClearsEndedAt", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m, err := s.CreateMeeting(ctx, memory.Meeting{OwnerID: "u1"})
		require.NoError(t, err)
		require.NoError(t, s.FinishMeeting(ctx, m.ID, 4))

		require.NoError(t, s.ReopenMeeting(ctx, m.ID))
		got, err := s.GetMeeting(ctx, m.ID)
		require.NoError(t, err)
		assert.True(t, got.Active())
		assert.Equal(t, uint64(4), got.Windows)

		require.NoError(t, s.FinishMeeting(ctx, m.ID, 2))
		got, err = s.GetMeeting(ctx, m.ID)
		require.NoError(t, err)
		assert.False(t, got.Active())
		assert.Equal(t, uint64(6), got.Windows)

		assert.ErrorIs(t, s.ReopenMeeting(ctx, uuid.NewString()), memory.ErrNotFound)
		assert.ErrorIs(t, s.ReopenMeeting(ctx, "not-a-uuid"), memory.ErrNotFound)
	})

	t.Run("ListNewestFirstAndScoped", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

		for i, owner := range []string{"u1", "u2", "u1", "u1"} {
			_, err := s.CreateMeeting(ctx, memory.Meeting{
				OwnerID:   owner,
				Title:     fmt.Sprintf("m%d", i),
				StartedAt: base.Add(time.Duration(i) * time.Hour),
			})
			require.NoError(t, err)
		}

		mine, err := s.ListMeetings(ctx, memory.ListOpts{OwnerID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"m3", "m2", "m0"}, titles(mine))

		all, err := s.ListMeetings(ctx, memory.ListOpts{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"m3", "m2"}, titles(all))

		none, err := s.ListMeetings(ctx, memory.ListOpts{OwnerID: "nobody"})
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("TranscriptKeepsWriteOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m, err := s.CreateMeeting(ctx, memory.Meeting{OwnerID: "u1"})
		require.NoError(t, err)

		empty, err := s.Transcript(ctx, m.ID)
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)

		texts := []string{"good morning", "let's start", "first item"}
		for i, text := range texts {
			require.NoError(t, s.WriteEntry(ctx, m.ID, memory.TranscriptEntry{
				SpeakerID:  "speaker_0",
				Text:       text,
				Confidence: 0.9,
				Offset:     time.Duration(i) * time.Second,
				Duration:   800 * time.Millisecond,
			}))
		}

		got, err := s.Transcript(ctx, m.ID)
		require.NoError(t, err)
		require.Len(t, got, 3)
		for i, e := range got {
			assert.Equal(t, texts[i], e.Text)
			assert.Equal(t, time.Duration(i)*time.Second, e.Offset)
			assert.Equal(t, 800*time.Millisecond, e.Duration)
			assert.Equal(t, "speaker_0", e.SpeakerID)
			assert.InDelta(t, 0.9, e.Confidence, 1e-9)
			assert.False(t, e.CreatedAt.IsZero())
		}
	})

	t.Run("EntriesForMissingMeeting", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.WriteEntry(ctx, uuid.NewString(), memory.TranscriptEntry{Text: "orphan"})
		assert.ErrorIs(t, err, memory.ErrNotFound)
		_, err = s.Transcript(ctx, uuid.NewString())
		assert.ErrorIs(t, err, memory.ErrNotFound)
	})

	t.Run("ConcurrentWrites", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		m, err := s.CreateMeeting(ctx, memory.Meeting{OwnerID: "u1"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for i := range 20 {
			wg.Go(func() {
				assert.NoError(t, s.WriteEntry(ctx, m.ID, memory.TranscriptEntry{Text: fmt.Sprint(i)}))
			})
		}
		wg.Wait()

		got, err := s.Transcript(ctx, m.ID)
		require.NoError(t, err)
		assert.Len(t, got, 20)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, newStore(t).Ping(context.Background()))
	})
}

func titles(ms []memory.Meeting) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Title
	}
	return out
}
