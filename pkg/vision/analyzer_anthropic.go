package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/auralens/auralens/pkg/media"
)

const anthropicMaxTokens = 2048

// AnthropicAnalyzer implements Analyzer over the Anthropic messages API.
// Frames travel as base64 image blocks; clips are not supported by the API
// and are rejected.
type AnthropicAnalyzer struct {
	client   anthropic.Client
	timeouts Timeouts
	name     string
}

// NewAnthropicAnalyzer creates a new Anthropic analyzer
func NewAnthropicAnalyzer(apiKey string, timeouts Timeouts) *AnthropicAnalyzer {
	return &AnthropicAnalyzer{
		client:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		timeouts: timeouts,
		name:     "anthropic",
	}
}

// Provider returns the provider name
func (a *AnthropicAnalyzer) Provider() string {
	return a.name
}

// AnalyzeImage describes a single frame
func (a *AnthropicAnalyzer) AnalyzeImage(ctx context.Context, image media.File, prompt, model string) (*Result, error) {
	if image.Kind != media.KindFrame {
		return nil, fmt.Errorf("%w: expected a frame, got %s", media.ErrInvalidKind, image.Kind)
	}

	encoded := base64.StdEncoding.EncodeToString(image.Content)
	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewImageBlockBase64(image.ContentType, encoded),
		anthropic.NewTextBlock(prompt),
	}

	return a.generate(ctx, blocks, model, a.timeouts.Image)
}

// AnalyzeVideo is not supported by the Anthropic messages API
func (a *AnthropicAnalyzer) AnalyzeVideo(ctx context.Context, video media.File, prompt, model string) (*Result, error) {
	if video.Kind != media.KindClip {
		return nil, fmt.Errorf("%w: expected a clip, got %s", media.ErrInvalidKind, video.Kind)
	}
	return nil, fmt.Errorf("%w: %s cannot analyze video clips", ErrUnsupportedMedia, a.name)
}

// AnalyzeText runs a text-only generation
func (a *AnthropicAnalyzer) AnalyzeText(ctx context.Context, prompt, model string) (*Result, error) {
	blocks := []anthropic.ContentBlockParamUnion{
		anthropic.NewTextBlock(prompt),
	}
	return a.generate(ctx, blocks, model, a.timeouts.Text)
}

func (a *AnthropicAnalyzer) generate(ctx context.Context, blocks []anthropic.ContentBlockParamUnion, model string, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	response, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return nil, a.classifyErr(model, err)
	}

	text := ""
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			text += b.Text
		}
	}

	return &Result{
		Text:    text,
		Elapsed: time.Since(start),
	}, nil
}

func (a *AnthropicAnalyzer) classifyErr(model string, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 404:
			return fmt.Errorf("%s model %s: %w", a.name, model, ErrModelUnavailable)
		case 429, 503, 529:
			return fmt.Errorf("%s model %s overloaded: %w", a.name, model, ErrModelUnavailable)
		}
	}
	return classify(a.name, model, err)
}
