package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/auralens/auralens/pkg/media"
	"github.com/auralens/auralens/pkg/prompts"
	"github.com/auralens/auralens/pkg/vision"
)

// testPack uses echo-style templates so a scripted analyzer that returns its
// prompt verbatim produces deterministic narratives and answers.
const testPack = `
scene_extraction:
  event_description: "Describe the scene"
live_session:
  narrative_aggregator: "{{.current_narrative}} | {{.next_description}}"
  contextual_qa: "{{.mode_prompt}} :: {{.current_narrative}} :: {{.question}}"
prompt_mode:
  general: "general mode"
  brief: "brief mode"
`

func newTestLibrary(t *testing.T) *prompts.Library {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPack), 0644))

	lib, err := prompts.NewFromFile(path, zerolog.Nop())
	require.NoError(t, err)
	return lib
}

// scriptedAnalyzer scripts the model boundary. Image and video calls describe
// the media by filename; text calls echo the prompt, with optional failure
// injection and gating.
type scriptedAnalyzer struct {
	mu       sync.Mutex
	failText func(prompt string) error
	imageErr error

	// gate blocks text calls whose prompt contains gateToken until closed
	gateToken string
	gate      chan struct{}

	textInFlight    int32
	maxTextInFlight int32
	textCalls       int32
}

func (a *scriptedAnalyzer) AnalyzeImage(_ context.Context, m media.File, _, _ string) (*vision.Result, error) {
	a.mu.Lock()
	err := a.imageErr
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &vision.Result{Text: m.Name}, nil
}

func (a *scriptedAnalyzer) AnalyzeVideo(_ context.Context, m media.File, _, _ string) (*vision.Result, error) {
	return &vision.Result{Text: m.Name}, nil
}

func (a *scriptedAnalyzer) AnalyzeText(_ context.Context, prompt, _ string) (*vision.Result, error) {
	cur := atomic.AddInt32(&a.textInFlight, 1)
	defer atomic.AddInt32(&a.textInFlight, -1)
	atomic.AddInt32(&a.textCalls, 1)
	for {
		max := atomic.LoadInt32(&a.maxTextInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&a.maxTextInFlight, max, cur) {
			break
		}
	}

	a.mu.Lock()
	gateToken, gate, fail := a.gateToken, a.gate, a.failText
	a.mu.Unlock()

	if gateToken != "" && gate != nil && strings.Contains(prompt, gateToken) {
		<-gate
	}
	if fail != nil {
		if err := fail(prompt); err != nil {
			return nil, err
		}
	}
	return &vision.Result{Text: prompt}, nil
}

func (a *scriptedAnalyzer) Provider() string { return "scripted" }

// memRecorder collects analysis samples in memory
type memRecorder struct {
	mu   sync.Mutex
	recs []Sample
}

func (r *memRecorder) Record(_ context.Context, sample Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, sample)
	return nil
}

func (r *memRecorder) samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.recs))
	copy(out, r.recs)
	return out
}

// memStore keeps saved media paths in memory
type memStore struct {
	mu    sync.Mutex
	saved []string
}

func (s *memStore) SaveFile(_ []byte, originalName, prefix string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := prefix + "/" + originalName
	s.saved = append(s.saved, path)
	return path, nil
}

func newTestOrchestrator(t *testing.T, analyzer vision.Analyzer) *Orchestrator {
	t.Helper()
	orch, err := NewOrchestrator(Options{
		Registry: NewRegistry(zerolog.Nop()),
		Analyzer: analyzer,
		Store:    &memStore{},
		Prompts:  newTestLibrary(t),
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return orch
}

func testFrame(t *testing.T, name string) media.File {
	t.Helper()
	f, err := media.NewFrame(name, "image/jpeg", []byte{0x1})
	require.NoError(t, err)
	return f
}

func waitForIdle(t *testing.T, s *Session) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.PendingCount() == 0 && !s.AggregatorRunning()
	}, 3*time.Second, 5*time.Millisecond)
}

func TestSessionStartsWithSeedNarrative(t *testing.T) {
	reg := NewRegistry(zerolog.Nop())
	s := reg.Create()

	require.Equal(t, SeedNarrative, s.Narrative())
	require.Zero(t, s.PendingCount())
	require.False(t, s.AggregatorRunning())
}
