package session

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/auralens/auralens/internal/observability"
	"github.com/auralens/auralens/pkg/prompts"
	"github.com/auralens/auralens/pkg/vision"
)

// NarrativeFunc is notified after every successful fold with the updated
// narrative. Called outside the session lock.
type NarrativeFunc func(sessionID, narrative string)

// Aggregator drains a session's pending queue, folding one scene description
// at a time into the narrative. Exactly one Run owns a session's queue at a
// time; the orchestrator enforces that via the aggregatorRunning flag.
type Aggregator struct {
	analyzer    vision.Analyzer
	prompts     *prompts.Library
	recorder    AnalysisRecorder
	onNarrative NarrativeFunc
	logger      zerolog.Logger
}

// NewAggregator creates an aggregator. recorder and onNarrative may be nil.
func NewAggregator(analyzer vision.Analyzer, lib *prompts.Library, recorder AnalysisRecorder, onNarrative NarrativeFunc, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		analyzer:    analyzer,
		prompts:     lib,
		recorder:    recorder,
		onNarrative: onNarrative,
		logger:      logger.With().Str("module", "aggregator").Logger(),
	}
}

// Run drains the session's queue until it is empty or a fold fails. The
// caller must have set aggregatorRunning before scheduling Run; every exit
// path here clears it.
func (a *Aggregator) Run(ctx context.Context, s *Session, model string) {
	log := a.logger.With().Str("session_id", s.ID()).Logger()

	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.aggregatorRunning = false
			s.mu.Unlock()
			log.Debug().Msg("Aggregation queue drained")
			return
		}
		next := s.pending[0]
		s.pending = s.pending[1:]
		current := s.narrative
		depth := len(s.pending)
		s.mu.Unlock()

		observability.SetPendingDepth(s.ID(), depth)

		prompt, err := a.prompts.Render("live_session.narrative_aggregator", map[string]interface{}{
			"current_narrative": current,
			"next_description":  next,
		})
		if err != nil {
			a.abort(s, next, log, err)
			return
		}

		start := time.Now()
		result, err := a.analyzer.AnalyzeText(ctx, prompt, model)
		elapsed := time.Since(start)
		observability.RecordFold(elapsed, err == nil)
		observability.RecordAnalysisCall(OpNarrativeFold, elapsed, err == nil)
		if err != nil {
			a.abort(s, next, log, err)
			return
		}

		updated := strings.TrimSpace(result.Text)

		s.mu.Lock()
		s.narrative = updated
		s.mu.Unlock()

		if a.recorder != nil {
			if err := a.recorder.Record(ctx, Sample{
				SessionID: s.ID(),
				Operation: OpNarrativeFold,
				Model:     model,
				Prompt:    prompt,
				Output:    updated,
				ElapsedMS: elapsed.Milliseconds(),
			}); err != nil {
				log.Warn().Err(err).Msg("Failed to record fold sample")
			}
		}

		if a.onNarrative != nil {
			a.onNarrative(s.ID(), updated)
		}

		log.Debug().
			Dur("elapsed", result.Elapsed).
			Int("narrative_length", len(updated)).
			Int("pending", depth).
			Msg("Scene description folded into narrative")
	}
}

// abort puts the unfolded description back at the head of the queue and
// releases ownership. Resetting aggregatorRunning here is what lets the next
// producer event restart aggregation; skipping it would wedge the session
// forever.
func (a *Aggregator) abort(s *Session, description string, log zerolog.Logger, cause error) {
	s.mu.Lock()
	s.pending = append([]string{description}, s.pending...)
	s.aggregatorRunning = false
	depth := len(s.pending)
	s.mu.Unlock()

	observability.SetPendingDepth(s.ID(), depth)

	log.Error().
		Err(cause).
		Int("pending", depth).
		Msg("Narrative fold failed, description re-queued and aggregation stopped")
}
