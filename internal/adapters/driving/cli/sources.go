package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Inspect configured sources",
	RunE:  runSourcesList,
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	RunE:  runSourcesList,
}

var sourcesValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the sources file",
	Long: `Checks every source in sources.json against its plugin's schema and
reports all problems at once.`,
	RunE: runSourcesValidate,
}

func init() {
	sourcesCmd.AddCommand(sourcesListCmd)
	sourcesCmd.AddCommand(sourcesValidateCmd)
	rootCmd.AddCommand(sourcesCmd)
}

func runSourcesList(cmd *cobra.Command, args []string) error {
	sources, err := sourceStore.Load(context.Background())
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	if len(sources) == 0 {
		cmd.Println("No sources configured.")
		cmd.Printf("Add sources to %s\n", sourceStore.Path())
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tPROJECT\tMODE\tINTERVAL\tENABLED")
	for _, s := range sources {
		enabled := "yes"
		if !s.Enabled {
			enabled = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Type, s.Project, s.Mode, s.PollInterval(), enabled)
	}
	return w.Flush()
}

func runSourcesValidate(cmd *cobra.Command, args []string) error {
	sources, err := sourceStore.Load(context.Background())
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	if err := validator.ValidateSources(sources); err != nil {
		return err
	}
	cmd.Printf("%d sources OK.\n", len(sources))
	return nil
}
