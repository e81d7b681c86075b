package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/exec-trace/internal/catalog"
	"github.com/exec-trace/internal/program"
	"github.com/exec-trace/internal/trace"
	apperrors "github.com/exec-trace/pkg/errors"
)

var (
	saveName     string
	saveRegister bool
)

// saveCmd represents the save command
var saveCmd = &cobra.Command{
	Use:   "save <trace> <dir>",
	Short: "Save a trace to a directory in random-access form",
	Long: `Write the trace's blocks, history indices and metadata to dir. A trace saved
this way opens without replaying its logs. Saving to the trace's own
directory persists it in place.`,
	Args: cobra.ExactArgs(2),
	RunE: runSave,
}

func init() {
	rootCmd.AddCommand(saveCmd)

	saveCmd.Flags().StringVar(&saveName, "name", "", "Name recorded in the saved metadata")
	saveCmd.Flags().BoolVar(&saveRegister, "register", false, "Register the saved trace in the catalog")
}

func runSave(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tr, err := openTrace(ctx, args[0])
	if err != nil {
		return err
	}
	defer tr.Close()

	dest := args[1]
	last := -1
	listener := program.FuncListener{
		OnNotice: func(text string) { logger.Debug("%s", text) },
		OnProgress: func(f float64) {
			if pct := int(f * 100); pct/10 != last/10 {
				last = pct
				logger.Info("save %d%%", pct)
			}
		},
	}
	if err := tr.Save(ctx, dest, saveName, listener); err != nil {
		return err
	}
	if err := copyProgram(tr.Dir(), dest); err != nil {
		return err
	}

	saved, err := trace.ReadMetadata(dest)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%d events) to %s\n", saved.Name, saved.Events, dest)

	if !saveRegister {
		return nil
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	e := catalog.EntryFromMetadata("", abs, *saved)
	return withCatalog(func(c catalog.Catalog) error { return c.Register(ctx, e) })
}

// copyProgram carries the program model along with the saved trace.
func copyProgram(src, dest string) error {
	from := programFile
	if from == "" {
		from = filepath.Join(src, trace.ProgramFile)
	}
	to := filepath.Join(dest, trace.ProgramFile)
	fromAbs, err := filepath.Abs(from)
	if err != nil {
		return err
	}
	toAbs, err := filepath.Abs(to)
	if err != nil {
		return err
	}
	if fromAbs == toAbs {
		return nil
	}

	in, err := os.Open(from)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeLoadFailure, "open program model", err)
	}
	defer in.Close()
	out, err := os.Create(to)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeBlockIO, "create program model", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return apperrors.Wrap(apperrors.CodeBlockIO, "copy program model", err)
	}
	return out.Close()
}
