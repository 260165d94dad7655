package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/auralens/auralens/pkg/media"
)

// OpenAIAnalyzer implements Analyzer over the OpenAI chat completions API.
// Frames travel as base64 data-URI image parts; clips are not supported by
// the API and are rejected.
type OpenAIAnalyzer struct {
	client   openai.Client
	timeouts Timeouts
	name     string
}

// NewOpenAIAnalyzer creates a new OpenAI analyzer
func NewOpenAIAnalyzer(apiKey, baseURL string, timeouts Timeouts) *OpenAIAnalyzer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIAnalyzer{
		client:   openai.NewClient(opts...),
		timeouts: timeouts,
		name:     "openai",
	}
}

// Provider returns the provider name
func (a *OpenAIAnalyzer) Provider() string {
	return a.name
}

// AnalyzeImage describes a single frame
func (a *OpenAIAnalyzer) AnalyzeImage(ctx context.Context, image media.File, prompt, model string) (*Result, error) {
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

// AnalyzeVideo is not supported by the OpenAI chat API
func (a *OpenAIAnalyzer) AnalyzeVideo(ctx context.Context, video media.File, prompt, model string) (*Result, error) {
	if video.Kind != media.KindClip {
		return nil, fmt.Errorf("%w: expected a clip, got %s", media.ErrInvalidKind, video.Kind)
	}
	return nil, fmt.Errorf("%w: %s cannot analyze video clips", ErrUnsupportedMedia, a.name)
}

// AnalyzeText runs a text-only generation
func (a *OpenAIAnalyzer) AnalyzeText(ctx context.Context, prompt, model string) (*Result, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
	}
	return a.complete(ctx, parts, model, a.timeouts.Text)
}

func (a *OpenAIAnalyzer) complete(ctx context.Context, parts []openai.ChatCompletionContentPartUnionParam, model string, timeout time.Duration) (*Result, error) {
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
		return nil, a.classify(model, err)
	}

	if len(response.Choices) == 0 {
		return nil, &ModelError{Provider: a.name, Model: model, Err: errors.New("no response choices returned")}
	}

	return &Result{
		Text:    response.Choices[0].Message.Content,
		Elapsed: time.Since(start),
	}, nil
}

func (a *OpenAIAnalyzer) classify(model string, err error) error {
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

// dataURI encodes media bytes as an inline data URI
func dataURI(contentType string, content []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(content)
}
