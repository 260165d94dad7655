package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/auralens/auralens/internal/observability"
	"github.com/auralens/auralens/pkg/media"
	"github.com/auralens/auralens/pkg/prompts"
	"github.com/auralens/auralens/pkg/storage"
	"github.com/auralens/auralens/pkg/vision"
)

const defaultQueryMode = "general"

// Options configures an Orchestrator. Registry, Analyzer, Store and Prompts
// are required; the rest are optional collaborators.
type Options struct {
	Registry    *Registry
	Analyzer    vision.Analyzer
	Store       storage.Store
	Prompts     *prompts.Library
	Scheduler   Scheduler
	Recorder    AnalysisRecorder
	OnNarrative NarrativeFunc
	Logger      zerolog.Logger
}

// Orchestrator is the entry point for the live-session pipeline. Producers
// submit media through it, consumers query through it; it never blocks a
// producer on analysis work.
type Orchestrator struct {
	registry   *Registry
	analyzer   vision.Analyzer
	store      storage.Store
	prompts    *prompts.Library
	schedule   Scheduler
	recorder   AnalysisRecorder
	aggregator *Aggregator
	logger     zerolog.Logger
}

// NewOrchestrator wires the pipeline together
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Registry == nil {
		return nil, errors.New("session: orchestrator requires a registry")
	}
	if opts.Analyzer == nil {
		return nil, errors.New("session: orchestrator requires an analyzer")
	}
	if opts.Store == nil {
		return nil, errors.New("session: orchestrator requires a media store")
	}
	if opts.Prompts == nil {
		return nil, errors.New("session: orchestrator requires a prompt library")
	}

	logger := opts.Logger.With().Str("module", "orchestrator").Logger()

	schedule := opts.Scheduler
	if schedule == nil {
		schedule = GoScheduler(opts.Logger)
	}

	return &Orchestrator{
		registry:   opts.Registry,
		analyzer:   opts.Analyzer,
		store:      opts.Store,
		prompts:    opts.Prompts,
		schedule:   schedule,
		recorder:   opts.Recorder,
		aggregator: NewAggregator(opts.Analyzer, opts.Prompts, opts.Recorder, opts.OnNarrative, opts.Logger),
		logger:     logger,
	}, nil
}

// CreateSession starts a new session and returns its id
func (o *Orchestrator) CreateSession() string {
	return o.registry.Create().ID()
}

// SubmitMedia validates the session, then hands the event to a background
// task and returns immediately. Failures past this point are logged and the
// event is dropped; they never surface to the producer.
func (o *Orchestrator) SubmitMedia(ctx context.Context, sessionID string, m media.File, extractModel, aggregateModel string) error {
	s, err := o.registry.Get(sessionID)
	if err != nil {
		return err
	}

	o.schedule(func() {
		o.runExtraction(s, m, extractModel, aggregateModel)
	})
	return nil
}

// runExtraction saves the media, extracts a scene description and enqueues
// it, starting the aggregator if the session is idle. Runs detached from the
// producer's request, so it carries its own context.
func (o *Orchestrator) runExtraction(s *Session, m media.File, extractModel, aggregateModel string) {
	ctx := context.Background()
	log := o.logger.With().Str("session_id", s.ID()).Str("kind", m.Kind.String()).Logger()

	path, err := o.store.SaveFile(m.Content, m.Name, m.Kind.StoragePrefix())
	if err != nil {
		log.Error().Err(err).Msg("Failed to save media, event dropped")
		return
	}

	prompt, err := o.prompts.Render("scene_extraction.event_description", nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to render extraction prompt, event dropped")
		return
	}

	extractor := extractorFor(m.Kind, o.analyzer, o.logger)

	start := time.Now()
	description, err := extractor.ExtractScene(ctx, m, prompt, extractModel)
	if err != nil {
		log.Error().Err(err).Msg("Scene extraction failed, event dropped")
		return
	}

	o.record(ctx, log, Sample{
		SessionID: s.ID(),
		Operation: OpSceneExtraction,
		Model:     extractModel,
		MediaPath: path,
		Prompt:    prompt,
		Output:    description,
		ElapsedMS: time.Since(start).Milliseconds(),
	})

	s.mu.Lock()
	s.pending = append(s.pending, description)
	depth := len(s.pending)
	startAggregator := !s.aggregatorRunning
	if startAggregator {
		s.aggregatorRunning = true
	}
	s.mu.Unlock()

	observability.SetPendingDepth(s.ID(), depth)
	log.Debug().Int("pending", depth).Bool("aggregator_started", startAggregator).Msg("Scene description enqueued")

	if startAggregator {
		o.schedule(func() {
			o.aggregator.Run(context.Background(), s, aggregateModel)
		})
	}
}

// QueryRequest asks a question against a session's current narrative
type QueryRequest struct {
	SessionID string
	Question  string
	Model     string

	// Mode selects the answering style from the prompt pack; empty means
	// the general mode.
	Mode string
}

// Query answers a question using a consistent snapshot of the narrative. The
// analysis call runs without any session lock held, so an in-flight fold
// neither blocks the query nor is observed half-written.
func (o *Orchestrator) Query(ctx context.Context, req QueryRequest) (string, error) {
	s, err := o.registry.Get(req.SessionID)
	if err != nil {
		return "", err
	}

	mode := req.Mode
	if mode == "" {
		mode = defaultQueryMode
	}
	modePrompt, err := o.prompts.Render("prompt_mode."+mode, nil)
	if err != nil {
		if mode == defaultQueryMode {
			return "", fmt.Errorf("query mode %s: %w", mode, err)
		}
		o.logger.Warn().Str("mode", mode).Msg("Unknown query mode, falling back to general")
		modePrompt, err = o.prompts.Render("prompt_mode."+defaultQueryMode, nil)
		if err != nil {
			return "", fmt.Errorf("query mode %s: %w", defaultQueryMode, err)
		}
	}

	narrative := s.Narrative()

	prompt, err := o.prompts.Render("live_session.contextual_qa", map[string]interface{}{
		"mode_prompt":       modePrompt,
		"current_narrative": narrative,
		"question":          req.Question,
	})
	if err != nil {
		return "", err
	}

	start := time.Now()
	result, err := o.analyzer.AnalyzeText(ctx, prompt, req.Model)
	elapsed := time.Since(start)
	observability.RecordQuery(elapsed, err == nil)
	observability.RecordAnalysisCall(OpContextualQA, elapsed, err == nil)
	if err != nil {
		return "", err
	}

	answer := strings.TrimSpace(result.Text)

	log := o.logger.With().Str("session_id", s.ID()).Logger()
	o.record(ctx, log, Sample{
		SessionID: s.ID(),
		Operation: OpContextualQA,
		Model:     req.Model,
		Prompt:    prompt,
		Output:    answer,
		ElapsedMS: elapsed.Milliseconds(),
	})

	log.Debug().Dur("elapsed", elapsed).Int("answer_length", len(answer)).Msg("Session query answered")
	return answer, nil
}

// Narrative returns the current narrative for a session
func (o *Orchestrator) Narrative(sessionID string) (string, error) {
	s, err := o.registry.Get(sessionID)
	if err != nil {
		return "", err
	}
	return s.Narrative(), nil
}

func (o *Orchestrator) record(ctx context.Context, log zerolog.Logger, sample Sample) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.Record(ctx, sample); err != nil {
		log.Warn().Err(err).Str("operation", sample.Operation).Msg("Failed to record analysis sample")
	}
}
