package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Inspect available source plugins",
	RunE:  runPluginsList,
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available source plugins",
	RunE:  runPluginsList,
}

func init() {
	pluginsCmd.AddCommand(pluginsListCmd)
	rootCmd.AddCommand(pluginsCmd)
}

func runPluginsList(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tVERSION\tREALTIME\tDESCRIPTION")
	for _, m := range registry.List() {
		realtime := "-"
		if m.SupportsRealtime {
			realtime = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.Type, m.Version, realtime, m.Description)
	}
	return w.Flush()
}
