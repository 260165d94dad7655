package dataset

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auralens/auralens/pkg/session"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	rec, err := NewRecorder(filepath.Join(t.TempDir(), "dataset.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	return rec
}

func TestNewRecorder_RequiresPath(t *testing.T) {
	_, err := NewRecorder("", zerolog.Nop())
	require.Error(t, err)
}

func TestRecorder_RecordAndQuery(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	samples := []session.Sample{
		{SessionID: "s1", Operation: session.OpSceneExtraction, Model: "m1", MediaPath: "storage/session_frame_1.jpg", Prompt: "p1", Output: "a cat", ElapsedMS: 120},
		{SessionID: "s1", Operation: session.OpNarrativeFold, Model: "m2", Prompt: "p2", Output: "a cat sits", ElapsedMS: 340},
		{SessionID: "s2", Operation: session.OpContextualQA, Model: "m1", Prompt: "p3", Output: "nothing yet", ElapsedMS: 90},
	}
	for _, s := range samples {
		require.NoError(t, rec.Record(ctx, s))
	}

	entries, err := rec.BySession(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, session.OpSceneExtraction, entries[0].Operation)
	assert.Equal(t, "storage/session_frame_1.jpg", entries[0].MediaPath)
	assert.Equal(t, "a cat", entries[0].Output)
	assert.Equal(t, session.OpNarrativeFold, entries[1].Operation)
	assert.False(t, entries[0].CreatedAt.IsZero())

	entries, err = rec.BySession(ctx, "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRecorder_Status(t *testing.T) {
	rec := newTestRecorder(t)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, session.Sample{SessionID: "s1", Operation: session.OpSceneExtraction, Model: "m", Prompt: "p", Output: "o"}))
	require.NoError(t, rec.Record(ctx, session.Sample{SessionID: "s1", Operation: session.OpSceneExtraction, Model: "m", Prompt: "p", Output: "o"}))
	require.NoError(t, rec.Record(ctx, session.Sample{SessionID: "s1", Operation: session.OpNarrativeFold, Model: "m", Prompt: "p", Output: "o"}))

	stats, err := rec.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, 2, stats.ByOperation[session.OpSceneExtraction])
	assert.Equal(t, 1, stats.ByOperation[session.OpNarrativeFold])
}
