package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/auralens/auralens/pkg/media"
)

// Result contains the text produced by an analysis call and how long it took
type Result struct {
	Text    string
	Elapsed time.Duration
}

// Analyzer is the generative-model boundary. Implementations must honor the
// context deadline; callers never hold locks across these calls.
type Analyzer interface {
	// AnalyzeImage describes a single frame guided by the prompt
	AnalyzeImage(ctx context.Context, image media.File, prompt, model string) (*Result, error)

	// AnalyzeVideo describes a short clip guided by the prompt
	AnalyzeVideo(ctx context.Context, video media.File, prompt, model string) (*Result, error)

	// AnalyzeText runs a text-only generation
	AnalyzeText(ctx context.Context, prompt, model string) (*Result, error)

	// Provider returns the provider name
	Provider() string
}

// Timeouts bounds each analysis operation
type Timeouts struct {
	Text  time.Duration
	Image time.Duration
	Video time.Duration
}

// DefaultTimeouts mirrors the limits the service ships with
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Text:  120 * time.Second,
		Image: 120 * time.Second,
		Video: 300 * time.Second,
	}
}

var (
	// ErrModelUnavailable signals the requested model cannot serve the call
	ErrModelUnavailable = errors.New("vision: model unavailable")

	// ErrTimeout signals the analysis call exceeded its deadline
	ErrTimeout = errors.New("vision: analysis timed out")

	// ErrUnsupportedMedia signals the provider cannot process this media kind
	ErrUnsupportedMedia = errors.New("vision: media kind not supported by provider")
)

// ModelError wraps any other failure from the model boundary
type ModelError struct {
	Provider string
	Model    string
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("vision: %s model %s: %v", e.Provider, e.Model, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// classify maps a context deadline onto the taxonomy, everything else
// onto a ModelError.
func classify(provider, model string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s model %s: %w", provider, model, ErrTimeout)
	}
	return &ModelError{Provider: provider, Model: model, Err: err}
}
