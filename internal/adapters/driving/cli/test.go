package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var testCmd = &cobra.Command{
	Use:   "test <source-id>",
	Short: "Test a source's connectivity",
	Long: `Runs the source's connectivity test with its configured credentials
and prints a few sample items when the plugin provides them.`,
	Args: cobra.ExactArgs(1),
	RunE: runTest,
}

func init() {
	rootCmd.AddCommand(testCmd)
}

func runTest(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	source, err := sourceStore.Get(ctx, args[0])
	if err != nil {
		return err
	}

	adapter, _, err := registry.NewAdapter(source.Type)
	if err != nil {
		return err
	}

	result, err := adapter.Test(ctx, *source, secrets)
	if err != nil {
		return fmt.Errorf("test %s: %w", source.ID, err)
	}

	if !result.OK {
		return fmt.Errorf("test %s failed: %s", source.ID, result.Message)
	}
	cmd.Printf("OK: %s\n", result.Message)
	for _, item := range result.SampleItems {
		cmd.Printf("  - %s\n", item.Title)
	}
	return nil
}
