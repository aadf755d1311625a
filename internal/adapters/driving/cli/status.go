package cli

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent poll activity per source",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	sources, err := sourceStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	if len(sources) == 0 {
		cmd.Println("No sources configured.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLAST POLL\tFOUND\tNEW\tDURATION\tERROR")
	for _, s := range sources {
		entries, err := stateStore.RecentPolls(ctx, s.ID, 1)
		if err != nil {
			return fmt.Errorf("poll history for %s: %w", s.ID, err)
		}
		if len(entries) == 0 {
			fmt.Fprintf(w, "%s\tnever\t-\t-\t-\t-\n", s.ID)
			continue
		}
		e := entries[0]
		errMsg := "-"
		if e.Error != "" {
			errMsg = e.Error
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			s.ID, e.At.Local().Format(time.RFC3339), e.Found, e.New,
			e.Duration.Round(time.Millisecond), errMsg)
	}
	return w.Flush()
}
