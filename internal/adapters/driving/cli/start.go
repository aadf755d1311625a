package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskdeck/ingestd/internal/core/ports/driving"
	"github.com/taskdeck/ingestd/internal/logger"
)

var (
	startSourceID string
	startDryRun   bool
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the ingestion engine",
	Long: `Starts pollers and realtime connections for every enabled source
and runs until interrupted. Edits to sources.json are picked up while
running without a restart.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&startSourceID, "source", "", "run only this source")
	startCmd.Flags().BoolVar(&startDryRun, "dry-run", false, "log what would happen without creating tasks or writing state")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if err := sourceStore.Watch(); err != nil {
		logger.Warn("watch sources file: %v", err)
	}

	engine := newEngine()
	if err := engine.Start(ctx, driving.StartOptions{SourceID: startSourceID, DryRun: startDryRun}); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	if startDryRun {
		cmd.Println("Running in dry-run mode: no tasks will be created.")
	}
	cmd.Println("Engine running. Press Ctrl+C to stop.")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cmd.Println("Shutting down...")
	stopCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := engine.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop engine: %w", err)
	}
	return nil
}
