package prompts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEmbedded(t *testing.T) {
	lib, err := NewEmbedded(zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, lib.Has("scene_extraction.event_description"))
	assert.True(t, lib.Has("live_session.narrative_aggregator"))
	assert.True(t, lib.Has("live_session.contextual_qa"))
	assert.True(t, lib.Has("prompt_mode.general"))
	assert.True(t, lib.Has("one_shot.visual_qa"))
	assert.True(t, lib.Has("one_shot.text_extraction"))
	assert.True(t, lib.Has("one_shot.change_detection"))
	assert.False(t, lib.Has("live_session.nope"))
}

func TestRender_Variables(t *testing.T) {
	lib, err := NewEmbedded(zerolog.Nop())
	require.NoError(t, err)

	out, err := lib.Render("live_session.narrative_aggregator", map[string]interface{}{
		"current_narrative": "A cat sits on the table.",
		"next_description":  "A dog enters the room.",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "A cat sits on the table.")
	assert.Contains(t, out, "A dog enters the room.")
}

func TestRender_UnknownKey(t *testing.T) {
	lib, err := NewEmbedded(zerolog.Nop())
	require.NoError(t, err)

	_, err = lib.Render("live_session.missing", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNewFromFile_InvalidPack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scene_extraction: {}\n"), 0644))

	_, err := NewFromFile(path, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid prompt pack")
}

func TestNewFromFile_AndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	pack := `
scene_extraction:
  event_description: "describe it"
live_session:
  narrative_aggregator: "fold {{.next_description}}"
  contextual_qa: "answer {{.question}}"
`
	require.NoError(t, os.WriteFile(path, []byte(pack), 0644))

	lib, err := NewFromFile(path, zerolog.Nop())
	require.NoError(t, err)
	defer lib.Close()

	out, err := lib.Render("live_session.contextual_qa", map[string]interface{}{"question": "who?"})
	require.NoError(t, err)
	assert.Equal(t, "answer who?", out)

	require.NoError(t, lib.Watch())

	updated := `
scene_extraction:
  event_description: "describe it"
live_session:
  narrative_aggregator: "fold {{.next_description}}"
  contextual_qa: "reply {{.question}}"
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0644))

	// The watcher delivers asynchronously
	assert.Eventually(t, func() bool {
		out, err := lib.Render("live_session.contextual_qa", map[string]interface{}{"question": "who?"})
		return err == nil && out == "reply who?"
	}, 2*time.Second, 20*time.Millisecond)
}
