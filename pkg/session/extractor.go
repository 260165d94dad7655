package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/auralens/auralens/internal/observability"
	"github.com/auralens/auralens/pkg/media"
	"github.com/auralens/auralens/pkg/vision"
)

// SceneExtractor converts one unit of media into a short scene description
type SceneExtractor interface {
	ExtractScene(ctx context.Context, m media.File, prompt, model string) (string, error)
}

// FrameExtractor extracts a scene description from a single image frame
type FrameExtractor struct {
	analyzer vision.Analyzer
	logger   zerolog.Logger
}

// NewFrameExtractor creates a frame extractor
func NewFrameExtractor(analyzer vision.Analyzer, logger zerolog.Logger) *FrameExtractor {
	return &FrameExtractor{
		analyzer: analyzer,
		logger:   logger.With().Str("module", "extractor").Str("kind", "frame").Logger(),
	}
}

// ExtractScene describes a single frame via image analysis
func (e *FrameExtractor) ExtractScene(ctx context.Context, m media.File, prompt, model string) (string, error) {
	if m.Kind != media.KindFrame {
		return "", fmt.Errorf("%w: frame extractor got %s", media.ErrInvalidKind, m.Kind)
	}

	start := time.Now()
	result, err := e.analyzer.AnalyzeImage(ctx, m, prompt, model)
	elapsed := time.Since(start)
	observability.RecordExtraction("frame", elapsed, err == nil)
	observability.RecordAnalysisCall(OpSceneExtraction, elapsed, err == nil)
	if err != nil {
		return "", err
	}

	e.logger.Debug().
		Str("model", model).
		Dur("elapsed", result.Elapsed).
		Int("length", len(result.Text)).
		Msg("Scene extracted from frame")

	return result.Text, nil
}

// ClipExtractor extracts a scene description from a short video clip
type ClipExtractor struct {
	analyzer vision.Analyzer
	logger   zerolog.Logger
}

// NewClipExtractor creates a clip extractor
func NewClipExtractor(analyzer vision.Analyzer, logger zerolog.Logger) *ClipExtractor {
	return &ClipExtractor{
		analyzer: analyzer,
		logger:   logger.With().Str("module", "extractor").Str("kind", "clip").Logger(),
	}
}

// ExtractScene describes a clip via video analysis
func (e *ClipExtractor) ExtractScene(ctx context.Context, m media.File, prompt, model string) (string, error) {
	if m.Kind != media.KindClip {
		return "", fmt.Errorf("%w: clip extractor got %s", media.ErrInvalidKind, m.Kind)
	}

	start := time.Now()
	result, err := e.analyzer.AnalyzeVideo(ctx, m, prompt, model)
	elapsed := time.Since(start)
	observability.RecordExtraction("clip", elapsed, err == nil)
	observability.RecordAnalysisCall(OpSceneExtraction, elapsed, err == nil)
	if err != nil {
		return "", err
	}

	e.logger.Debug().
		Str("model", model).
		Dur("elapsed", result.Elapsed).
		Int("length", len(result.Text)).
		Msg("Scene extracted from clip")

	return result.Text, nil
}

// extractorFor selects the extractor variant matching the media kind
func extractorFor(kind media.Kind, analyzer vision.Analyzer, logger zerolog.Logger) SceneExtractor {
	if kind == media.KindClip {
		return NewClipExtractor(analyzer, logger)
	}
	return NewFrameExtractor(analyzer, logger)
}
