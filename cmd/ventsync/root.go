package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ventlearn/progress-sync/internal/auth"
	"github.com/ventlearn/progress-sync/internal/config"
	"github.com/ventlearn/progress-sync/internal/connectivity"
	"github.com/ventlearn/progress-sync/internal/events"
	"github.com/ventlearn/progress-sync/internal/outbox"
	"github.com/ventlearn/progress-sync/internal/platform/logger"
	"github.com/ventlearn/progress-sync/internal/platform/storage"
	"github.com/ventlearn/progress-sync/internal/progress"
	"github.com/ventlearn/progress-sync/internal/remote"
	"github.com/ventlearn/progress-sync/internal/service/tracker"
	"github.com/ventlearn/progress-sync/internal/syncer"
)

var (
	cfg    *config.Config
	engine *tracker.Tracker
	closer func() error
)

var rootCmd = &cobra.Command{
	Use:   "ventsync",
	Short: "Offline-tolerant progress tracking for ventilation courses",
	Long: `ventsync records lesson progress locally and synchronizes it with a
progress API when connectivity allows. Updates always land in local
storage first; nothing is lost to a dropped connection.`,
	PersistentPreRunE: setupEngine,
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if closer != nil {
			return closer()
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func setupEngine(*cobra.Command, []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	log := logger.Setup(cfg.Log)

	kv, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	provider := auth.NewJWTProvider(auth.Static{
		Token:  cfg.Auth.Token,
		UserID: cfg.Auth.UserID,
	})
	api := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Timeout, provider, log)
	monitor := connectivity.AlwaysOnline{}
	emitter := events.NewInMemoryEmitter(log)

	store := progress.NewStore(kv, log)
	queue := outbox.NewQueue(kv, log)
	confirmations := outbox.NewConfirmationLog(kv, cfg.Sync.ConfirmationTTL, log)

	coordinator := syncer.NewCoordinator(syncer.Deps{
		Store:         store,
		Queue:         queue,
		Confirmations: confirmations,
		API:           api,
		Auth:          provider,
		Monitor:       monitor,
		Emitter:       emitter,
		Logger:        log,
	}, syncer.Config{
		FlushInterval:   cfg.Sync.FlushInterval,
		BatchSize:       cfg.Sync.BatchSize,
		ConfirmationTTL: cfg.Sync.ConfirmationTTL,
	})

	engine = tracker.New(tracker.Deps{
		Store:         store,
		Queue:         queue,
		Confirmations: confirmations,
		Coordinator:   coordinator,
		API:           api,
		Monitor:       monitor,
		Emitter:       emitter,
		Logger:        log,
	})
	closer = kv.Close
	return nil
}

func openStorage(cfg config.StorageConfig) (storage.KV, error) {
	switch cfg.Backend {
	case "file":
		return storage.NewFile(cfg.Path)
	case "sqlite":
		return storage.NewSQLite(cfg.Path)
	default:
		return storage.NewMemory(), nil
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
