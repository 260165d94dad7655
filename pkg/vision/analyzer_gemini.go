package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/auralens/auralens/pkg/media"
)

// geminiBaseURL is Google's OpenAI-compatible endpoint for Gemini models.
const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// GeminiAnalyzer implements Analyzer over the Gemini OpenAI-compatible API.
// Unlike the plain OpenAI endpoint it accepts video clips, sent inline as
// base64 data-URI parts.
type GeminiAnalyzer struct {
	client   openai.Client
	timeouts Timeouts
	name     string
}

// NewGeminiAnalyzer creates a new Gemini analyzer
func NewGeminiAnalyzer(apiKey, baseURL string, timeouts Timeouts) *GeminiAnalyzer {
	if baseURL == "" {
		baseURL = geminiBaseURL
	}
	return &GeminiAnalyzer{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
		),
		timeouts: timeouts,
		name:     "gemini",
	}
}

// Provider returns the provider name
func (a *GeminiAnalyzer) Provider() string {
	return a.name
}

// AnalyzeImage describes a single frame
func (a *GeminiAnalyzer) AnalyzeImage(ctx context.Context, image media.File, prompt, model string) (*Result, error) {
	if image.Kind != media.KindFrame {
		return nil, fmt.Errorf("%w: expected a frame, got %s", media.ErrInvalidKind, image.Kind)
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURI(image.ContentType, image.Content),
		}),
	}

	return a.complete(ctx, parts, model, a.timeouts.Image)
}

// AnalyzeVideo describes a short clip
func (a *GeminiAnalyzer) AnalyzeVideo(ctx context.Context, video media.File, prompt, model string) (*Result, error) {
	if video.Kind != media.KindClip {
		return nil, fmt.Errorf("%w: expected a clip, got %s", media.ErrInvalidKind, video.Kind)
	}

	// The compatibility endpoint takes inline video the same way it takes
	// inline images.
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURI(video.ContentType, video.Content),
		}),
	}

	return a.complete(ctx, parts, model, a.timeouts.Video)
}

// AnalyzeText runs a text-only generation
func (a *GeminiAnalyzer) AnalyzeText(ctx context.Context, prompt, model string) (*Result, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
	}
	return a.complete(ctx, parts, model, a.timeouts.Text)
}

func (a *GeminiAnalyzer) complete(ctx context.Context, parts []openai.ChatCompletionContentPartUnionParam, model string, timeout time.Duration) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	response, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(parts),
		},
	})
	if err != nil {
		return nil, a.classifyErr(model, err)
	}

	if len(response.Choices) == 0 {
		return nil, &ModelError{Provider: a.name, Model: model, Err: errors.New("no response choices returned")}
	}

	return &Result{
		Text:    response.Choices[0].Message.Content,
		Elapsed: time.Since(start),
	}, nil
}

func (a *GeminiAnalyzer) classifyErr(model string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 404:
			return fmt.Errorf("%s model %s: %w", a.name, model, ErrModelUnavailable)
		case 429, 503:
			return fmt.Errorf("%s model %s overloaded: %w", a.name, model, ErrModelUnavailable)
		}
	}
	return classify(a.name, model, err)
}
