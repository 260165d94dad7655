package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/auralens/auralens/internal/config"
)

var (
	configureProvider string
	configureAPIKey   string
	configureBaseURL  string
	configureModel    string
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write the AuraLens configuration file",
	Long: `Write the AuraLens configuration file with an AI provider profile.
Existing settings are loaded first, so re-running updates the profile in place.`,
	RunE: runConfigure,
}

func init() {
	configureCmd.Flags().StringVar(&configureProvider, "provider", "gemini", "AI provider (anthropic, openai, gemini)")
	configureCmd.Flags().StringVar(&configureAPIKey, "api-key", "", "API key for the provider")
	configureCmd.Flags().StringVar(&configureBaseURL, "base-url", "", "custom API base URL")
	configureCmd.Flags().StringVar(&configureModel, "model", "", "model for every feature (empty keeps per-feature defaults)")
	configureCmd.MarkFlagRequired("api-key")

	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	profile := config.AIProfile{
		ID:       configureProvider,
		Provider: configureProvider,
		APIKey:   configureAPIKey,
		BaseURL:  configureBaseURL,
	}

	replaced := false
	for i, p := range cfg.AI.Profiles {
		if p.ID == profile.ID {
			cfg.AI.Profiles[i] = profile
			replaced = true
			break
		}
	}
	if !replaced {
		cfg.AI.Profiles = append(cfg.AI.Profiles, profile)
	}
	// The most recently configured provider becomes the active one.
	cfg.AI.Active = profile.ID

	if configureModel != "" {
		cfg.Models.SceneExtractor = configureModel
		cfg.Models.NarrativeAggregator = configureModel
		cfg.Models.ContextualQA = configureModel
		cfg.Models.VisualQA = configureModel
		cfg.Models.TextExtraction = configureModel
		cfg.Models.ChangeDetection = configureModel
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("Configuration written to %s\n", loader.GetConfigPath())
	return nil
}
