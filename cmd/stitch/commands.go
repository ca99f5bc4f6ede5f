package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stitcher/internal/canon"
	"stitcher/internal/lint"
	"stitcher/internal/pipeline"
)

// fileResult is the outcome for one file of a batch command.
type fileResult struct {
	path  string
	out   string
	diags []lint.Diagnostic
}

// forEachFile runs fn over paths concurrently. Results keep argument order;
// failures are collected rather than stopping the batch.
func forEachFile(ctx context.Context, paths []string, fn func(ctx context.Context, path string, src string) (fileResult, error)) ([]fileResult, error) {
	results := make([]fileResult, len(paths))

	var (
		mu   sync.Mutex
		errs *multierror.Error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err == nil {
				results[i], err = fn(gctx, path, string(data))
			}
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", path, err))
				mu.Unlock()
			}
			results[i].path = path
			return nil
		})
	}
	_ = g.Wait()
	return results, errs.ErrorOrNil()
}

func (a *app) canonCmd() *cobra.Command {
	var write bool

	cmd := &cobra.Command{
		Use:   "canon <files...>",
		Short: "Canonicalize and format JavaScript files",
		Long: `Deduplicates top-level declarations (first wins) and calls (last wins, first
position kept), hoists declarations above calls and moves entrypoint calls to
the end. Prints the result, or rewrites the files with --write.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := a.newFormatter()
			results, err := forEachFile(cmd.Context(), args, func(ctx context.Context, path, src string) (fileResult, error) {
				text, report, err := canon.Source(src)
				if err != nil {
					return fileResult{}, err
				}
				if report.Changed() {
					a.logger.Info("canonicalized",
						zap.String("file", path),
						zap.Strings("dropped", report.DroppedDeclarations),
						zap.Strings("replaced_calls", report.ReplacedCalls))
				}
				text, err = formatter.Format(ctx, text)
				if err != nil {
					return fileResult{}, err
				}
				if write {
					if err := os.WriteFile(path, []byte(text), 0644); err != nil {
						return fileResult{}, err
					}
				}
				return fileResult{out: text}, nil
			})

			if !write {
				out := cmd.OutOrStdout()
				for _, r := range results {
					if r.out == "" {
						continue
					}
					if len(args) > 1 {
						fmt.Fprintf(out, "// %s\n", r.path)
					}
					fmt.Fprint(out, r.out)
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "Rewrite files in place")
	return cmd
}

func (a *app) insertCmd() *cobra.Command {
	var explain bool

	cmd := &cobra.Command{
		Use:   "insert <current> <step>",
		Short: "Insert a fragment into a program and print the result",
		Long: `Structurally merges the step fragment into the current program. When the
merge cannot be done the result is the two texts joined by a newline.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, step, err := readPair(args[0], args[1])
			if err != nil {
				return err
			}
			res := a.newInserter().InsertStep(cmd.Context(), current, step)
			if explain {
				fmt.Fprintf(cmd.ErrOrStderr(), "strategy: %s\n", res.Strategy)
				if res.Cause != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "cause: %v\n", res.Cause)
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Code)
			return nil
		},
	}
	cmd.Flags().BoolVar(&explain, "explain", false, "Report the strategy used on stderr")
	return cmd
}

func (a *app) checkCmd() *cobra.Command {
	var (
		asJSON bool
		show   bool
	)

	cmd := &cobra.Command{
		Use:   "check <current> <step>",
		Short: "Dry-run a fragment: canonicalize and lint it without inserting",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, step, err := readPair(args[0], args[1])
			if err != nil {
				return err
			}
			res := pipeline.NewValidator(a.newLinter()).DryRun(cmd.Context(), current, step)

			out := cmd.OutOrStdout()
			if show {
				fmt.Fprint(out, res.Code)
			}
			if err := printDiagnostics(out, args[1], res.Diagnostics, asJSON); err != nil {
				return err
			}
			if !res.Clean() {
				return fmt.Errorf("%s: %d diagnostics", args[1], len(res.Diagnostics))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print diagnostics as JSON")
	cmd.Flags().BoolVar(&show, "show", false, "Print the canonical fragment")
	return cmd
}

func (a *app) lintCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "lint <files...>",
		Short: "Report diagnostics for JavaScript files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			linter := a.newLinter()
			results, err := forEachFile(cmd.Context(), args, func(ctx context.Context, _ string, src string) (fileResult, error) {
				return fileResult{diags: linter.Lint(ctx, src)}, nil
			})

			total := 0
			for _, r := range results {
				total += len(r.diags)
				if perr := printDiagnostics(cmd.OutOrStdout(), r.path, r.diags, asJSON); perr != nil {
					err = multierror.Append(err, perr)
				}
			}
			if total > 0 {
				err = multierror.Append(err, fmt.Errorf("%d diagnostics", total))
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print diagnostics as JSON")
	return cmd
}

func printDiagnostics(w io.Writer, path string, diags []lint.Diagnostic, asJSON bool) error {
	if asJSON {
		if diags == nil {
			diags = []lint.Diagnostic{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			File        string            `json:"file"`
			Diagnostics []lint.Diagnostic `json:"diagnostics"`
		}{path, diags})
	}
	for _, d := range diags {
		fmt.Fprintf(w, "%s:%s\n", path, d)
	}
	return nil
}

func readPair(currentPath, stepPath string) (string, string, error) {
	current, err := os.ReadFile(currentPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to read current program: %w", err)
	}
	step, err := os.ReadFile(stepPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to read step: %w", err)
	}
	return string(current), string(step), nil
}
