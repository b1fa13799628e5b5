package app

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"restorepick/internal/config"
	"restorepick/internal/logging"
	"restorepick/internal/metrics"
	"restorepick/internal/services"
	"restorepick/internal/state"
	"restorepick/internal/ui"
)

const mockLatency = 150 * time.Millisecond

// Run loads configuration, wires the listing and restore backends and runs
// the terminal UI until the user quits.
func Run(args []string) error {
	base := config.DefaultConfig()
	loaded, loadErr := config.LoadConfig()
	if loadErr == nil {
		base = loaded
	}
	cfg, err := config.ParseFlags(base, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: "json", OutputPath: cfg.LogFile}); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer func() { _ = logging.Sync() }()
	log := logging.Named("app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	lister, restorer, namespace := backends(cfg)
	if cfg.CacheListings {
		cachePath, err := services.DefaultCachePath()
		if err != nil {
			log.Warn("listing cache kept in memory", zap.Error(err))
			cachePath = ""
		}
		lister = services.NewCachingLister(lister, namespace, cachePath)
	}
	log.Info("starting",
		zap.String("source", string(cfg.Source)),
		zap.String("rewind", cfg.RewindID),
		zap.Bool("safe_mode", cfg.SafeMode),
		zap.Bool("cache", cfg.CacheListings),
	)

	appState := state.NewState(cfg)
	model := ui.NewModel(cfg, appState, lister, restorer)
	if loadErr != nil {
		log.Warn("config load failed", zap.Error(loadErr))
		model = model.WithStatus("Config warning: using defaults")
	}

	program := tea.NewProgram(model, tea.WithAltScreen())
	finalModel, err := program.Run()
	if err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	if provider, ok := finalModel.(ui.ConfigProvider); ok {
		if err := config.SaveConfig(provider.ConfigSnapshot()); err != nil {
			log.Warn("config save failed", zap.Error(err))
		}
	}
	return nil
}

// backends picks the lister and restorer for the configured source. The
// namespace keeps cached listings of different sources apart.
func backends(cfg config.Config) (services.Lister, services.Restorer, string) {
	switch cfg.Source {
	case config.SourceRemote:
		client := services.NewRemoteClient(services.RemoteConfig{
			BaseURL: cfg.APIBase,
			SiteID:  cfg.SiteID,
			Token:   cfg.Token,
			Timeout: cfg.Timeout,
		})
		return client, client, "remote:" + cfg.SiteID
	case config.SourceLocal:
		lister := services.NewLocalLister(cfg.SnapshotDir, cfg.ShowHidden)
		return lister, services.NewLocalRestorer(cfg.SnapshotDir), "local:" + lister.Root()
	default:
		return services.NewMockLister(mockLatency), services.NewMockRestorer(mockLatency), "mock"
	}
}
