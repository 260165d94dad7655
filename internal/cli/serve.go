package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/auralens/auralens/internal/config"
	"github.com/auralens/auralens/internal/logger"
	"github.com/auralens/auralens/pkg/analysis"
	"github.com/auralens/auralens/pkg/dataset"
	"github.com/auralens/auralens/pkg/gateway"
	"github.com/auralens/auralens/pkg/prompts"
	"github.com/auralens/auralens/pkg/session"
	"github.com/auralens/auralens/pkg/storage"
	"github.com/auralens/auralens/pkg/vision"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the AuraLens gateway",
	Long: `Run the AuraLens gateway. It accepts session media uploads, maintains
the live narrative per session, and serves queries until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		File:    cfg.Logging.File,
		Console: cfg.Logging.Console,
		Pretty:  cfg.Logging.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()
	log := lg.GetZerolog()

	log.Info().Str("version", version).Msg("Starting AuraLens")

	var lib *prompts.Library
	if cfg.Prompts.File != "" {
		lib, err = prompts.NewFromFile(cfg.Prompts.File, log)
		if err != nil {
			return err
		}
		if cfg.Prompts.Watch {
			if err := lib.Watch(); err != nil {
				return err
			}
		}
	} else {
		lib, err = prompts.NewEmbedded(log)
		if err != nil {
			return err
		}
	}
	defer lib.Close()

	factory := vision.NewFactory(vision.Timeouts{
		Text:  time.Duration(cfg.Analysis.TextTimeoutSeconds) * time.Second,
		Image: time.Duration(cfg.Analysis.ImageTimeoutSeconds) * time.Second,
		Video: time.Duration(cfg.Analysis.VideoTimeoutSeconds) * time.Second,
	})
	profile, err := cfg.AI.ActiveProfile()
	if err != nil {
		return err
	}
	analyzer, err := factory.NewAnalyzer(vision.Profile{
		Provider: profile.Provider,
		APIKey:   profile.APIKey,
		BaseURL:  profile.BaseURL,
	})
	if err != nil {
		return err
	}
	log.Info().
		Str("provider", analyzer.Provider()).
		Str("profile", profile.ID).
		Int("configured_profiles", len(cfg.AI.Profiles)).
		Msg("Analysis provider ready")

	store, err := storage.NewLocalStore(cfg.Storage.Dir, log)
	if err != nil {
		return err
	}

	var recorder *dataset.Recorder
	var analysisRecorder session.AnalysisRecorder
	if cfg.Dataset.Enabled {
		recorder, err = dataset.NewRecorder(cfg.Dataset.Path, log)
		if err != nil {
			return err
		}
		defer recorder.Close()
		analysisRecorder = recorder
	}

	broadcaster := gateway.NewBroadcaster(log)

	orchestrator, err := session.NewOrchestrator(session.Options{
		Registry:    session.NewRegistry(log),
		Analyzer:    analyzer,
		Store:       store,
		Prompts:     lib,
		Recorder:    analysisRecorder,
		OnNarrative: broadcaster.Publish,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	oneShot, err := analysis.NewService(analysis.Options{
		Analyzer: analyzer,
		Store:    store,
		Prompts:  lib,
		Recorder: analysisRecorder,
		Logger:   log,
	})
	if err != nil {
		return err
	}

	srv, err := gateway.NewServer(gateway.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		Models:       cfg.Models,
		Orchestrator: orchestrator,
		Analysis:     oneShot,
		Broadcaster:  broadcaster,
		Dataset:      recorder,
		Logger:       log,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(ctx)
	}
}
