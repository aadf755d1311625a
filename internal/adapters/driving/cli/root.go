// Package cli implements the ingestd command-line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskdeck/ingestd/internal/adapters/driven/config/file"
	"github.com/taskdeck/ingestd/internal/adapters/driven/download"
	"github.com/taskdeck/ingestd/internal/adapters/driven/storage/sqlite"
	"github.com/taskdeck/ingestd/internal/adapters/driven/tracker"
	"github.com/taskdeck/ingestd/internal/core/ports/driven"
	"github.com/taskdeck/ingestd/internal/core/services"
	"github.com/taskdeck/ingestd/internal/logger"
	"github.com/taskdeck/ingestd/internal/plugins"
	"github.com/taskdeck/ingestd/internal/plugins/manifest"
)

var (
	verbose bool
	homeDir string
)

// Wired collaborators, set up by initDeps before any RunE executes.
var (
	registry    *services.PluginRegistry
	validator   *services.SourceValidator
	sourceStore *file.SourceStore
	settings    *file.SettingsStore
	stateStore  driven.StateStore
	secrets     driven.SecretResolver
	downloader  driven.Downloader
	taskWriter  driven.TaskWriter
	automation  driven.AutomationRunner

	closers []func() error
)

var rootCmd = &cobra.Command{
	Use:   "ingestd",
	Short: "Content ingestion engine",
	Long: `ingestd watches configured sources - feeds, repositories, chat
channels - and turns new items into tasks in your tracker, with
deduplication, filtering, debouncing and attachment capture.`,
	SilenceUsage:      true,
	PersistentPreRunE: initDeps,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "base directory (default ~/.ingestd)")
}

// Execute runs the CLI and releases held resources afterwards.
func Execute() error {
	err := rootCmd.Execute()
	for i := len(closers) - 1; i >= 0; i-- {
		if cerr := closers[i](); cerr != nil {
			logger.Warn("close: %v", cerr)
		}
	}
	return err
}

// initDeps wires every adapter and service the commands share.
func initDeps(cmd *cobra.Command, args []string) error {
	logger.SetVerbose(verbose)

	base, err := resolveHome()
	if err != nil {
		return err
	}

	settings, err = file.NewSettingsStore(base)
	if err != nil {
		return fmt.Errorf("open settings: %w", err)
	}

	registry = services.NewPluginRegistry()
	registry.RegisterAll(plugins.Builtin())
	registry.RegisterAll(manifest.Discover(filepath.Join(base, "plugins")))

	validator = services.NewSourceValidator(registry)
	sourceStore, err = file.NewSourceStore(base, validator)
	if err != nil {
		return fmt.Errorf("open sources: %w", err)
	}
	closers = append(closers, sourceStore.Close)

	store, err := sqlite.NewStore(filepath.Join(base, "data"))
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	closers = append(closers, store.Close)
	stateStore = store.StateStore()

	secrets = services.NewSecretResolver(settings)

	downloadDir := settings.GetString("downloads.dir")
	if downloadDir == "" {
		downloadDir = filepath.Join(base, "downloads")
	}
	downloader, err = download.New(downloadDir)
	if err != nil {
		return fmt.Errorf("open download dir: %w", err)
	}

	taskWriter, automation, err = trackerClients(base)
	if err != nil {
		return err
	}
	return nil
}

// trackerClients selects the tracker backend: the HTTP API when a URL
// is configured, otherwise a filesystem journal that a later import can
// drain.
func trackerClients(base string) (driven.TaskWriter, driven.AutomationRunner, error) {
	if url := settings.GetString("tracker.url"); url != "" {
		client := tracker.NewClient(url, settings.GetString("tracker.token"))
		return client, client, nil
	}
	journal, err := tracker.NewJournal(filepath.Join(base, "outbox"))
	if err != nil {
		return nil, nil, fmt.Errorf("open task journal: %w", err)
	}
	return journal, journal, nil
}

func resolveHome() (string, error) {
	if homeDir != "" {
		return homeDir, nil
	}
	if env := os.Getenv("INGESTD_HOME"); env != "" {
		return env, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".ingestd"), nil
}

func newEngine() *services.Engine {
	cfg := services.EngineConfig{}
	if sec := settings.GetInt("engine.staleAfterSec"); sec > 0 {
		cfg.StaleThreshold = time.Duration(sec) * time.Second
	}
	return services.NewEngine(
		registry,
		sourceStore,
		stateStore,
		downloader,
		taskWriter,
		automation,
		secrets,
		cfg,
	)
}
