package session

import "context"

// Sample is one analysis exchange worth keeping for dataset building
type Sample struct {
	SessionID string
	Operation string
	Model     string
	MediaPath string
	Prompt    string
	Output    string
	ElapsedMS int64
}

// AnalysisRecorder persists analysis samples. Recording is best effort; a
// failed write never affects the session pipeline.
type AnalysisRecorder interface {
	Record(ctx context.Context, sample Sample) error
}

// Operation labels for recorded samples
const (
	OpSceneExtraction = "scene_extraction"
	OpNarrativeFold   = "narrative_fold"
	OpContextualQA    = "contextual_qa"
)
