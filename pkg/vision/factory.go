package vision

import (
	"fmt"
)

// Profile identifies a provider account
type Profile struct {
	Provider string // anthropic, openai, gemini
	APIKey   string
	BaseURL  string // optional override
}

// Factory creates analyzers
type Factory struct {
	timeouts Timeouts
}

// NewFactory creates a factory applying the given call timeouts
func NewFactory(timeouts Timeouts) *Factory {
	return &Factory{timeouts: timeouts}
}

// NewAnalyzer creates a new analyzer for the given profile
func (f *Factory) NewAnalyzer(profile Profile) (Analyzer, error) {
	switch profile.Provider {
	case "anthropic":
		return NewAnthropicAnalyzer(profile.APIKey, f.timeouts), nil
	case "openai":
		return NewOpenAIAnalyzer(profile.APIKey, profile.BaseURL, f.timeouts), nil
	case "gemini":
		return NewGeminiAnalyzer(profile.APIKey, profile.BaseURL, f.timeouts), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", profile.Provider)
	}
}
