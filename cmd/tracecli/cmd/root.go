package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/exec-trace/internal/catalog"
	"github.com/exec-trace/internal/program"
	"github.com/exec-trace/internal/trace"
	"github.com/exec-trace/pkg/config"
	apperrors "github.com/exec-trace/pkg/errors"
	"github.com/exec-trace/pkg/telemetry"
	"github.com/exec-trace/pkg/utils"
)

var (
	// Global flags
	cfgFile     string
	verbose     bool
	programFile string

	appConfig *config.Config
	logger    utils.Logger
	shutdown  telemetry.ShutdownFunc
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "tracecli",
	Short: "Query recorded execution traces",
	Long: `tracecli loads an execution trace directory and answers questions about it.

A trace directory holds one serial log per recorded thread plus metadata.json.
The first load builds block files and history indices next to the logs; later
loads page them in on demand.

Traces can be registered in a catalog database and then addressed by name.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		appConfig = cfg

		level := utils.ParseLogLevel(cfg.Log.Level)
		if verbose {
			level = utils.LevelDebug
		}
		logger = utils.NewLogger(level, utils.LogFormat(cfg.Log.Format), cmd.ErrOrStderr())
		utils.SetGlobalLogger(logger)

		shutdown, err = telemetry.Init(cmd.Context(), telemetry.FromSettings(cfg.Telemetry))
		if err != nil {
			logger.Warn("telemetry disabled: %v", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdown != nil {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("Failed to flush telemetry: %v", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default ./tracecli.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&programFile, "program", "p", "", "Program model JSON (default <trace>/"+trace.ProgramFile+")")

	binName := BinName()
	rootCmd.Example = `  # Load a freshly recorded trace and build its indices
  ` + binName + ` load ./traces/run-1 --register

  # Where did argument 0 of event 1234 come from?
  ` + binName + ` resolve run-1 1234 0

  # Show the call stack at an event
  ` + binName + ` stack run-1 1234

  # Copy a trace to a new location under a new name
  ` + binName + ` save run-1 /archive/run-1 --name nightly`
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}

// resolveDir maps a command argument to a trace directory: an existing
// directory is used as is, anything else is looked up in the catalog.
func resolveDir(ctx context.Context, target string) (string, error) {
	if st, err := os.Stat(target); err == nil && st.IsDir() {
		return target, nil
	}
	if !appConfig.Catalog.Enabled {
		return "", apperrors.Newf(apperrors.CodeNotFound, "no trace directory %s", target)
	}
	var dir string
	err := withCatalog(func(c catalog.Catalog) error {
		e, err := c.Get(ctx, target)
		if err != nil {
			return err
		}
		dir = e.Dir
		return nil
	})
	return dir, err
}

func loadProgram(dir string) (program.Program, error) {
	path := programFile
	if path == "" {
		path = filepath.Join(dir, trace.ProgramFile)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeLoadFailure, "open program model", err)
	}
	defer f.Close()
	return program.ReadJSON(f)
}

// openTrace opens the trace named by target with the configured options.
func openTrace(ctx context.Context, target string) (*trace.Trace, error) {
	dir, err := resolveDir(ctx, target)
	if err != nil {
		return nil, err
	}
	prog, err := loadProgram(dir)
	if err != nil {
		return nil, err
	}
	opts, err := trace.FromConfig(appConfig, logger)
	if err != nil {
		return nil, err
	}
	opts.Listener = program.FuncListener{
		OnNotice: func(text string) { logger.Debug("%s", text) },
	}
	return trace.Open(ctx, dir, prog, opts)
}

func withCatalog(fn func(c catalog.Catalog) error) error {
	if !appConfig.Catalog.Enabled {
		return apperrors.New(apperrors.CodeConfigError, "catalog is disabled; set catalog.enabled in the config")
	}
	c, err := catalog.Open(&appConfig.Catalog)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}
