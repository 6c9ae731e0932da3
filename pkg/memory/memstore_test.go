package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrWong99/meetscribe/pkg/memory"
	"github.com/MrWong99/meetscribe/pkg/memory/memorytest"
)

func TestMemStore(t *testing.T) {
	memorytest.Run(t, func(*testing.T) memory.Store { return memory.NewMemStore() })
}

func TestMemStore_RejectsDuplicateAndMalformedIDs(t *testing.T) {
	s := memory.NewMemStore()
	ctx := context.Background()

	m, err := s.CreateMeeting(ctx, memory.Meeting{})
	require.NoError(t, err)

	_, err = s.CreateMeeting(ctx, memory.Meeting{ID: m.ID})
	assert.Error(t, err)

	_, err = s.CreateMeeting(ctx, memory.Meeting{ID: "meeting-1"})
	assert.Error(t, err)
}

func TestMemStore_TranscriptIsACopy(t *testing.T) {
	s := memory.NewMemStore()
	ctx := context.Background()

	m, err := s.CreateMeeting(ctx, memory.Meeting{})
	require.NoError(t, err)
	require.NoError(t, s.WriteEntry(ctx, m.ID, memory.TranscriptEntry{Text: "original"}))

	got, err := s.Transcript(ctx, m.ID)
	require.NoError(t, err)
	got[0].Text = "mutated"

	again, err := s.Transcript(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again[0].Text)
}

func TestListOpts_EffectiveLimit(t *testing.T) {
	tests := []struct {
		limit, want int
	}{
		{0, memory.DefaultListLimit},
		{-3, memory.DefaultListLimit},
		{7, 7},
		{memory.MaxListLimit + 1, memory.MaxListLimit},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, memory.ListOpts{Limit: tc.limit}.EffectiveLimit(), "limit %d", tc.limit)
	}
}
