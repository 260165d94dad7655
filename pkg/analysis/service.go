// Package analysis implements the one-shot assistance features: visual
// question answering, text extraction, and change detection on a single
// frame. Unlike the live-session pipeline these run synchronously and keep
// no state between calls.
package analysis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/auralens/auralens/internal/observability"
	"github.com/auralens/auralens/pkg/media"
	"github.com/auralens/auralens/pkg/prompts"
	"github.com/auralens/auralens/pkg/session"
	"github.com/auralens/auralens/pkg/storage"
	"github.com/auralens/auralens/pkg/vision"
)

// Operation names recorded with every analysis sample.
const (
	OpVisualQA        = "visual_qa"
	OpTextExtraction  = "text_extraction"
	OpChangeDetection = "change_detection"
)

// changeNone is the sentinel the change-detection prompt asks the model to
// reply with when nothing significant changed.
const changeNone = "NONE"

// Storage prefixes for analyzed frames.
const (
	prefixVisualQA        = "vqa"
	prefixTextExtraction  = "ocr"
	prefixChangeDetection = "video"
)

// VQAResult is the outcome of a visual question answering call.
type VQAResult struct {
	Answer       string
	Elapsed      time.Duration
	AnalyzedPath string
}

// OCRResult is the outcome of a text extraction call.
type OCRResult struct {
	Text         string
	Elapsed      time.Duration
	AnalyzedPath string
}

// ChangeResult is the outcome of a change detection call. AnalyzedPath is
// empty when nothing changed, since unchanged frames are not archived.
type ChangeResult struct {
	Description  string
	Changed      bool
	Elapsed      time.Duration
	AnalyzedPath string
}

// Options holds the Service collaborators
type Options struct {
	Analyzer vision.Analyzer
	Store    storage.Store
	Prompts  *prompts.Library
	Recorder session.AnalysisRecorder // optional
	Logger   zerolog.Logger
}

// Service runs the one-shot analyses
type Service struct {
	analyzer vision.Analyzer
	store    storage.Store
	prompts  *prompts.Library
	recorder session.AnalysisRecorder
	logger   zerolog.Logger
}

// NewService creates a Service, validating its required collaborators
func NewService(opts Options) (*Service, error) {
	if opts.Analyzer == nil {
		return nil, errors.New("analysis: analyzer is required")
	}
	if opts.Store == nil {
		return nil, errors.New("analysis: store is required")
	}
	if opts.Prompts == nil {
		return nil, errors.New("analysis: prompt library is required")
	}

	return &Service{
		analyzer: opts.Analyzer,
		store:    opts.Store,
		prompts:  opts.Prompts,
		recorder: opts.Recorder,
		logger:   opts.Logger.With().Str("module", "analysis").Logger(),
	}, nil
}

// AnswerQuestion answers a free-form question about a single frame.
func (s *Service) AnswerQuestion(ctx context.Context, m media.File, question, model string) (*VQAResult, error) {
	prompt, err := s.prompts.Render("one_shot.visual_qa", map[string]interface{}{
		"question": question,
	})
	if err != nil {
		return nil, err
	}

	result, elapsed, err := s.analyzeFrame(ctx, OpVisualQA, m, prompt, model)
	if err != nil {
		return nil, err
	}

	answer := strings.TrimSpace(result.Text)
	path := s.archive(m, prefixVisualQA)
	s.record(ctx, session.Sample{
		Operation: OpVisualQA,
		Model:     model,
		MediaPath: path,
		Prompt:    prompt,
		Output:    answer,
		ElapsedMS: elapsed.Milliseconds(),
	})

	return &VQAResult{Answer: answer, Elapsed: elapsed, AnalyzedPath: path}, nil
}

// ExtractText reads all text visible in a frame.
func (s *Service) ExtractText(ctx context.Context, m media.File, model string) (*OCRResult, error) {
	prompt, err := s.prompts.Render("one_shot.text_extraction", nil)
	if err != nil {
		return nil, err
	}

	result, elapsed, err := s.analyzeFrame(ctx, OpTextExtraction, m, prompt, model)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(result.Text)
	path := s.archive(m, prefixTextExtraction)
	s.record(ctx, session.Sample{
		Operation: OpTextExtraction,
		Model:     model,
		MediaPath: path,
		Prompt:    prompt,
		Output:    text,
		ElapsedMS: elapsed.Milliseconds(),
	})

	return &OCRResult{Text: text, Elapsed: elapsed, AnalyzedPath: path}, nil
}

// DetectChange compares a frame against the previous scene description and
// reports what changed. The model answers with the NONE sentinel when
// nothing significant changed; that maps to Changed=false and an empty
// description.
func (s *Service) DetectChange(ctx context.Context, m media.File, previous, model string) (*ChangeResult, error) {
	prompt, err := s.prompts.Render("one_shot.change_detection", map[string]interface{}{
		"previous_description": previous,
	})
	if err != nil {
		return nil, err
	}

	result, elapsed, err := s.analyzeFrame(ctx, OpChangeDetection, m, prompt, model)
	if err != nil {
		return nil, err
	}

	description := strings.TrimSpace(result.Text)
	changed := description != "" && !strings.EqualFold(description, changeNone)
	if !changed {
		description = ""
	}

	path := ""
	if changed {
		path = s.archive(m, prefixChangeDetection)
	}
	s.record(ctx, session.Sample{
		Operation: OpChangeDetection,
		Model:     model,
		MediaPath: path,
		Prompt:    prompt,
		Output:    description,
		ElapsedMS: elapsed.Milliseconds(),
	})

	return &ChangeResult{
		Description:  description,
		Changed:      changed,
		Elapsed:      elapsed,
		AnalyzedPath: path,
	}, nil
}

func (s *Service) analyzeFrame(ctx context.Context, operation string, m media.File, prompt, model string) (*vision.Result, time.Duration, error) {
	start := time.Now()
	result, err := s.analyzer.AnalyzeImage(ctx, m, prompt, model)
	elapsed := time.Since(start)
	observability.RecordAnalysisCall(operation, elapsed, err == nil)
	if err != nil {
		s.logger.Error().Err(err).Str("operation", operation).Str("model", model).Msg("Analysis failed")
		return nil, elapsed, err
	}
	return result, elapsed, nil
}

// archive saves the analyzed frame. Archival is best effort: a storage
// failure loses the copy, not the analysis result.
func (s *Service) archive(m media.File, prefix string) string {
	path, err := s.store.SaveFile(m.Content, m.Name, prefix)
	if err != nil {
		s.logger.Warn().Err(err).Str("prefix", prefix).Msg("Failed to archive analyzed frame")
		return ""
	}
	return path
}

func (s *Service) record(ctx context.Context, sample session.Sample) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, sample); err != nil {
		s.logger.Warn().Err(err).Str("operation", sample.Operation).Msg("Failed to record analysis sample")
	}
}
