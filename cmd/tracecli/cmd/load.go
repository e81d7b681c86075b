package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/exec-trace/internal/block"
	"github.com/exec-trace/internal/catalog"
	"github.com/exec-trace/internal/trace"
)

var (
	registerAfterLoad bool
	registerName      string
)

// loadCmd represents the load command
var loadCmd = &cobra.Command{
	Use:   "load <trace>",
	Short: "Load a trace and print its summary",
	Long: `Load a trace directory, building block files and history indices on the
first load, and print a summary of what it contains.

With --register the trace is added to the catalog so later commands can
address it by name.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().BoolVar(&registerAfterLoad, "register", false, "Register the trace in the catalog")
	loadCmd.Flags().StringVar(&registerName, "name", "", "Catalog name (defaults to the trace name)")
}

func runLoad(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tr, err := openTrace(ctx, args[0])
	if err != nil {
		return err
	}
	defer tr.Close()

	printSummary(cmd, tr)

	if !registerAfterLoad {
		return nil
	}
	dir, err := filepath.Abs(tr.Dir())
	if err != nil {
		return err
	}
	e := catalog.EntryFromMetadata(registerName, dir, tr.Metadata())
	if err := withCatalog(func(c catalog.Catalog) error { return c.Register(ctx, e) }); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered as %s\n", e.Name)
	return nil
}

func printSummary(cmd *cobra.Command, tr *trace.Trace) {
	out := cmd.OutOrStdout()
	m := tr.Metadata()

	fmt.Fprintf(out, "Trace:     %s\n", m.Name)
	fmt.Fprintf(out, "Directory: %s\n", tr.Dir())
	fmt.Fprintf(out, "Events:    %d\n", m.Events)
	fmt.Fprintf(out, "Objects:   %d\n", m.Objects)
	fmt.Fprintf(out, "Classes:   %d\n", m.Classes)
	fmt.Fprintf(out, "I/O:       %d events\n", tr.IOEvents())
	fmt.Fprintf(out, "Persisted: %v\n", m.Persisted)
	fmt.Fprintf(out, "Threads:   %d\n", len(m.Threads))
	for i, th := range m.Threads {
		fmt.Fprintf(out, "  [%d] %-20s events %d..%d\n", i, th.Name, th.First, th.Last)
	}

	if verbose {
		stats := tr.BlockStats()
		for _, k := range []block.Kind{block.KindIDs, block.KindValues, block.KindCalls} {
			s := stats[k]
			logger.Debug("blocks %s: created=%d loaded=%d flushed=%d evicted=%d",
				k, s.Created, s.Loaded, s.Flushed, s.Evictions)
		}
	}
}
