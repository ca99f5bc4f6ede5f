// Command stitch canonicalizes and incrementally assembles JavaScript
// programs from generated fragments.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"stitcher/internal/config"
	"stitcher/internal/format"
	"stitcher/internal/lint"
	"stitcher/internal/logging"
	"stitcher/internal/merge"
	"stitcher/internal/pipeline"
	"stitcher/internal/store"
)

// app carries state shared by every subcommand.
type app struct {
	verbose    bool
	configPath string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "stitch",
		Short: "Canonicalize and assemble JavaScript programs from generated fragments",
		Long: `stitch merges program fragments into an accumulated program one step at a
time. Each step is structurally merged when possible and concatenated when
not, then canonicalized: duplicate declarations and calls are removed,
declarations are hoisted above calls, and entrypoint calls run last.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
			logging.CloseAll()
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", config.DefaultPath, "Config file")

	root.AddCommand(
		a.canonCmd(),
		a.insertCmd(),
		a.checkCmd(),
		a.lintCmd(),
		a.runCmd(),
		a.historyCmd(),
	)
	return root
}

func (a *app) init() error {
	zcfg := zap.NewProductionConfig()
	if a.verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	a.logger = logger

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", a.configPath, err)
	}
	a.cfg = cfg

	if err := logging.Configure(cfg.Logging.Settings()); err != nil {
		return err
	}
	a.logger.Debug("config loaded", zap.String("path", a.configPath))
	return nil
}

func (a *app) newFormatter() *format.Formatter {
	return format.New(a.cfg.FormatOptions())
}

func (a *app) newLinter() *lint.Linter {
	return lint.New(a.cfg.Lint.DisabledRules...)
}

func (a *app) newInserter() *pipeline.Inserter {
	return pipeline.NewInserter(merge.New(), a.newFormatter(), a.cfg.PipelineOptions())
}

// openJournal opens the journal at path, or the configured one when path is
// empty. It returns nil without error when no journal is wanted.
func (a *app) openJournal(path string, required bool) (*store.Journal, error) {
	if path == "" {
		if !a.cfg.Journal.Enabled && !required {
			return nil, nil
		}
		path = a.cfg.Journal.Path
	}
	return store.Open(a.cfg.Journal.Driver, path)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
