package config

import (
	"encoding/json"
	"fmt"
)

// Config represents the main AuraLens configuration
type Config struct {
	// Server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Models selects the active model per feature
	Models ModelsConfig `json:"models" mapstructure:"models"`

	// Analysis
	Analysis AnalysisConfig `json:"analysis" mapstructure:"analysis"`

	// AI provider profiles
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Storage
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Prompts
	Prompts PromptsConfig `json:"prompts" mapstructure:"prompts"`

	// Dataset recorder
	Dataset DatasetConfig `json:"dataset" mapstructure:"dataset"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP gateway configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// ModelsConfig holds the per-feature model selection.
// Changing an entry here switches the model used by that feature.
type ModelsConfig struct {
	SceneExtractor      string `json:"scene_extractor" mapstructure:"scene_extractor"`
	NarrativeAggregator string `json:"narrative_aggregator" mapstructure:"narrative_aggregator"`
	ContextualQA        string `json:"contextual_qa" mapstructure:"contextual_qa"`
	VisualQA            string `json:"visual_qa" mapstructure:"visual_qa"`
	TextExtraction      string `json:"text_extraction" mapstructure:"text_extraction"`
	ChangeDetection     string `json:"change_detection" mapstructure:"change_detection"`
}

// AnalysisConfig holds analysis call limits
type AnalysisConfig struct {
	TextTimeoutSeconds  int `json:"text_timeout_seconds" mapstructure:"text_timeout_seconds"`
	ImageTimeoutSeconds int `json:"image_timeout_seconds" mapstructure:"image_timeout_seconds"`
	VideoTimeoutSeconds int `json:"video_timeout_seconds" mapstructure:"video_timeout_seconds"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	// Active names the profile ID to use. Empty selects the first profile.
	Active   string      `json:"active" mapstructure:"active"`
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// ActiveProfile resolves the profile selected by Active, falling back to
// the first configured profile when Active is empty.
func (c *AIConfig) ActiveProfile() (AIProfile, error) {
	if len(c.Profiles) == 0 {
		return AIProfile{}, fmt.Errorf("no AI profiles configured")
	}
	if c.Active == "" {
		return c.Profiles[0], nil
	}
	for _, profile := range c.Profiles {
		if profile.ID == c.Active {
			return profile, nil
		}
	}
	return AIProfile{}, fmt.Errorf("active AI profile %q does not match any configured profile", c.Active)
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai, gemini
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url" mapstructure:"base_url"`
}

// StorageConfig holds media storage configuration
type StorageConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
}

// PromptsConfig holds prompt pack configuration
type PromptsConfig struct {
	File  string `json:"file" mapstructure:"file"`   // empty uses the embedded pack
	Watch bool   `json:"watch" mapstructure:"watch"` // reload on file change
}

// DatasetConfig holds dataset recorder configuration
type DatasetConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Models: ModelsConfig{
			SceneExtractor:      "gemini-2.5-flash",
			NarrativeAggregator: "gemini-2.5-flash-lite",
			ContextualQA:        "gemini-2.5-flash",
			VisualQA:            "gemini-2.5-flash",
			TextExtraction:      "gemini-2.5-pro",
			ChangeDetection:     "gemini-2.5-flash-lite",
		},
		Analysis: AnalysisConfig{
			TextTimeoutSeconds:  120,
			ImageTimeoutSeconds: 120,
			VideoTimeoutSeconds: 300,
		},
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Storage: StorageConfig{
			Dir: "storage",
		},
		Prompts: PromptsConfig{
			Watch: false,
		},
		Dataset: DatasetConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Models.SceneExtractor == "" {
		return fmt.Errorf("models: scene_extractor is required")
	}
	if c.Models.NarrativeAggregator == "" {
		return fmt.Errorf("models: narrative_aggregator is required")
	}
	if c.Models.ContextualQA == "" {
		return fmt.Errorf("models: contextual_qa is required")
	}
	if c.Models.VisualQA == "" {
		return fmt.Errorf("models: visual_qa is required")
	}
	if c.Models.TextExtraction == "" {
		return fmt.Errorf("models: text_extraction is required")
	}
	if c.Models.ChangeDetection == "" {
		return fmt.Errorf("models: change_detection is required")
	}

	if c.Analysis.TextTimeoutSeconds <= 0 {
		return fmt.Errorf("analysis: text_timeout_seconds must be positive")
	}
	if c.Analysis.ImageTimeoutSeconds <= 0 {
		return fmt.Errorf("analysis: image_timeout_seconds must be positive")
	}
	if c.Analysis.VideoTimeoutSeconds <= 0 {
		return fmt.Errorf("analysis: video_timeout_seconds must be positive")
	}

	// Require at least one AI profile
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if profile.Provider == "" {
			return fmt.Errorf("AI profile %s: provider is required", profile.ID)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
		validProviders := []string{"anthropic", "openai", "gemini"}
		valid := false
		for _, vp := range validProviders {
			if profile.Provider == vp {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: anthropic, openai, gemini)", profile.ID, profile.Provider)
		}
	}

	if _, err := c.AI.ActiveProfile(); err != nil {
		return err
	}

	if c.Dataset.Enabled && c.Dataset.Path == "" {
		return fmt.Errorf("dataset: path is required when the recorder is enabled")
	}

	return nil
}
