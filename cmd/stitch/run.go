package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stitcher/internal/pipeline"
)

func (a *app) runCmd() *cobra.Command {
	var (
		initialPath string
		outPath     string
		dbPath      string
		watch       bool
		gate        bool
	)

	cmd := &cobra.Command{
		Use:   "run <dir>",
		Short: "Apply every fragment in a directory, in lexical order",
		Long: `Applies the *.js fragments of a directory one step at a time, threading the
accumulated program from step to step. With --watch, fragments added to the
directory afterwards are applied as they appear until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			steps, err := pipeline.LoadSteps(dir)
			if err != nil {
				return err
			}

			initial := ""
			if initialPath != "" {
				data, err := os.ReadFile(initialPath)
				if err != nil {
					return fmt.Errorf("failed to read initial program: %w", err)
				}
				initial = string(data)
			}

			opts := []pipeline.RunnerOption{pipeline.WithLinter(a.newLinter())}
			if gate || a.cfg.Pipeline.GateOnDryRun {
				opts = append(opts, pipeline.WithGate(pipeline.NewValidator(a.newLinter())))
			}
			journal, err := a.openJournal(dbPath, false)
			if err != nil {
				return err
			}
			if journal != nil {
				defer journal.Close()
				opts = append(opts, pipeline.WithJournal(journal))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runner := pipeline.NewRunner(a.newInserter(), opts...)
			session, err := runner.Start(ctx, initial)
			if err != nil {
				return err
			}
			a.logger.Info("run started", zap.String("run_id", session.ID()), zap.Int("steps", len(steps)))

			errOut := cmd.ErrOrStderr()
			for _, step := range steps {
				if err := ctx.Err(); err != nil {
					return err
				}
				report, err := session.Apply(ctx, step)
				printStep(errOut, report)
				if err != nil {
					return err
				}
			}

			if watch {
				w, err := pipeline.NewWatcher(dir, session, true, func(report pipeline.StepReport, err error) {
					printStep(errOut, report)
					if err != nil {
						a.logger.Error("step failed", zap.String("step", report.Name), zap.Error(err))
					}
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(errOut, "watching %s (interrupt to finish)\n", dir)
				if err := w.Run(ctx); err != nil {
					return err
				}
			}

			// Finish with a fresh context so an interrupted watch still closes the run.
			result, err := session.Finish(context.WithoutCancel(ctx))
			if err != nil {
				return err
			}
			a.logger.Info("run finished", zap.String("run_id", result.ID), zap.Int("steps", len(result.Steps)))

			if outPath != "" {
				if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
					return fmt.Errorf("failed to create output directory: %w", err)
				}
				return os.WriteFile(outPath, []byte(result.Code), 0644)
			}
			fmt.Fprint(cmd.OutOrStdout(), result.Code)
			return nil
		},
	}
	cmd.Flags().StringVar(&initialPath, "initial", "", "Initial program (default: empty)")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the final program here instead of stdout")
	cmd.Flags().StringVar(&dbPath, "db", "", "Journal database (default: config journal.path when enabled)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep applying fragments added to the directory")
	cmd.Flags().BoolVar(&gate, "gate", false, "Skip fragments whose dry run reports diagnostics")
	return cmd
}

func printStep(w io.Writer, r pipeline.StepReport) {
	status := string(r.Strategy)
	if r.Rejected {
		status = "rejected"
	}
	fmt.Fprintf(w, "[%d] %-24s %-8s +%d -%d %d diagnostics\n", r.Index, r.Name, status, r.Added, r.Removed, len(r.Diagnostics))
}

func (a *app) historyCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
		patch  bool
	)

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List journaled runs, or the steps of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			journal, err := a.openJournal(dbPath, true)
			if err != nil {
				return err
			}
			defer journal.Close()

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if len(args) == 0 {
				runs, err := journal.Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "RUN\tSTARTED\tSTEPS\tSTATUS")
				for _, r := range runs {
					status := "open"
					if r.Finished() {
						status = "finished"
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.ID, r.StartedAt.Format(time.RFC3339), r.StepCount, status)
				}
				return nil
			}

			steps, err := journal.Steps(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "STEP\tNAME\tSTRATEGY\tCHANGE\tDIAGNOSTICS\tDURATION")
			for _, s := range steps {
				strategy := s.Strategy
				if s.Rejected {
					strategy = "rejected"
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t+%d -%d\t%d\t%s\n",
					s.Index, s.Name, strategy, s.Added, s.Removed, len(s.Diagnostics), s.Duration.Round(time.Microsecond))
			}
			if patch {
				tw.Flush()
				for _, s := range steps {
					if s.Patch != "" {
						fmt.Fprint(out, s.Patch)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Journal database (default: config journal.path)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&patch, "patch", false, "Print each step's diff")
	return cmd
}
