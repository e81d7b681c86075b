package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/exec-trace/internal/catalog"
)

// catalogCmd groups the catalog subcommands
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the registry of saved traces",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered traces",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(func(c catalog.Catalog) error {
			entries, err := c.List(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tEVENTS\tTHREADS\tPERSISTED\tDIR")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%d\t%d\t%v\t%s\n", e.Name, e.Events, e.Threads, e.Persisted, e.Dir)
			}
			return w.Flush()
		})
	},
}

var catalogRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a trace from the catalog; its files are kept",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCatalog(func(c catalog.Catalog) error {
			if err := c.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		})
	},
}

func init() {
	catalogCmd.AddCommand(catalogListCmd, catalogRemoveCmd)
	rootCmd.AddCommand(catalogCmd)
}
