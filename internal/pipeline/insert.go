// Package pipeline applies generated program fragments to an accumulated
// program.
//
// Each step tries a structural merge of the accumulated program and the new
// fragment, optionally canonicalizes the result, and formats it. Any failure
// along the way - a fragment that does not parse, a merge or format error, a
// timeout, a panic in a collaborator - resolves to the plain concatenation
// currentCode + "\n" + stepCode of the untouched inputs. Callers never see
// those errors; they must lint the result before trusting it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stitcher/internal/canon"
	"stitcher/internal/lint"
	"stitcher/internal/logging"
	"stitcher/internal/program"
)

// Merger structurally combines two program fragments.
type Merger interface {
	Merge(ctx context.Context, oldText, newText string) (string, error)
}

// Formatter pretty-prints program text.
type Formatter interface {
	Format(ctx context.Context, text string) (string, error)
}

// Linter reports diagnostics for program text.
type Linter interface {
	Lint(ctx context.Context, text string) []lint.Diagnostic
}

// Strategy names how a step's result was produced.
type Strategy string

const (
	StrategyMerge  Strategy = "merge"
	StrategyConcat Strategy = "concat"
)

// ErrTimeout is returned when a collaborator does not answer in time.
var ErrTimeout = errors.New("collaborator timed out")

// PanicError wraps a panic recovered from a collaborator.
type PanicError struct {
	Op    string
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("%s panicked: %v", e.Op, e.Value)
}

// Options configures an Inserter.
type Options struct {
	// MergeTimeout and FormatTimeout bound each external call; zero means
	// no bound beyond the caller's context.
	MergeTimeout  time.Duration
	FormatTimeout time.Duration

	// Canonicalize runs the canonicalizer between merge and format.
	Canonicalize bool
}

// StepResult is the outcome of one insertion.
type StepResult struct {
	Code     string
	Strategy Strategy
	Report   canon.Report

	// Cause is the failure that forced the concat fallback, nil on merge.
	Cause error
}

// Inserter runs the insertion state machine. It holds no per-step state and
// is safe for concurrent use on independent programs.
type Inserter struct {
	merger    Merger
	formatter Formatter
	opts      Options
}

// NewInserter returns an Inserter backed by the given collaborators.
func NewInserter(m Merger, f Formatter, opts Options) *Inserter {
	return &Inserter{merger: m, formatter: f, opts: opts}
}

// Insert returns the new accumulated program for (current, step).
func (in *Inserter) Insert(ctx context.Context, current, step string) string {
	return in.InsertStep(ctx, current, step).Code
}

// InsertStep is Insert with the details of how the result came about.
func (in *Inserter) InsertStep(ctx context.Context, current, step string) StepResult {
	timer := logging.StartTimer(logging.CategoryPipeline, "InsertStep")
	defer timer.Stop()

	fallback := func(stage string, err error) StepResult {
		logging.PipelineWarn("%s failed, falling back to concatenation: %v", stage, err)
		return StepResult{
			Code:     Concat(current, step),
			Strategy: StrategyConcat,
			Cause:    fmt.Errorf("%s: %w", stage, err),
		}
	}

	merged, err := race(ctx, in.opts.MergeTimeout, "merge", func(ctx context.Context) (string, error) {
		return in.merger.Merge(ctx, current, step)
	})
	if err != nil {
		return fallback("merge", err)
	}

	var report canon.Report
	if in.opts.Canonicalize {
		p, err := program.ParseContext(ctx, merged)
		if err != nil {
			return fallback("canonicalize", err)
		}
		var out *program.Program
		out, report = canon.Run(p)
		merged = program.Print(out)
		if report.Changed() {
			logging.PipelineDebug("canonicalize dropped %v, replaced calls %v",
				report.DroppedDeclarations, report.ReplacedCalls)
		}
	}

	formatted, err := race(ctx, in.opts.FormatTimeout, "format", func(ctx context.Context) (string, error) {
		return in.formatter.Format(ctx, merged)
	})
	if err != nil {
		return fallback("format", err)
	}

	return StepResult{Code: formatted, Strategy: StrategyMerge, Report: report}
}

// Concat is the fallback result: the two inputs joined by one newline.
func Concat(current, step string) string {
	return current + "\n" + step
}

// race runs fn and waits for it, a timeout, or ctx cancellation, whichever
// comes first. A collaborator cannot be interrupted, so on timeout its
// goroutine is abandoned and its eventual result discarded.
func race(ctx context.Context, timeout time.Duration, op string, fn func(context.Context) (string, error)) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: &PanicError{Op: op, Value: r}}
			}
		}()
		out, err := fn(ctx)
		done <- result{out: out, err: err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%s after %v: %w", op, timeout, ErrTimeout)
		}
		return "", ctx.Err()
	}
}
