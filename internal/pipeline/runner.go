package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"stitcher/internal/diff"
	"stitcher/internal/lint"
	"stitcher/internal/logging"
)

// Step is one generated fragment.
type Step struct {
	Name string
	Code string
}

// StepReport records how a step changed the accumulated program.
type StepReport struct {
	Index       int
	Name        string
	Strategy    Strategy
	Rejected    bool // dry-run gate refused the step; the program is unchanged
	Cause       string
	Diagnostics []lint.Diagnostic
	Added       int
	Removed     int
	Patch       string
	Duration    time.Duration
	Code        string
}

// RunResult is the outcome of a whole run.
type RunResult struct {
	ID    string
	Code  string
	Steps []StepReport
}

// Journal persists runs as they progress.
type Journal interface {
	BeginRun(ctx context.Context, runID, initial string) error
	RecordStep(ctx context.Context, runID string, report StepReport) error
	FinishRun(ctx context.Context, runID, final string) error
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithJournal records every run in j.
func WithJournal(j Journal) RunnerOption {
	return func(r *Runner) { r.journal = j }
}

// WithGate refuses steps whose dry run reports diagnostics.
func WithGate(v *Validator) RunnerOption {
	return func(r *Runner) { r.gate = v }
}

// WithLinter lints the accumulated program after every step.
func WithLinter(l Linter) RunnerOption {
	return func(r *Runner) { r.linter = l }
}

// Runner applies steps to an accumulated program.
type Runner struct {
	inserter *Inserter
	gate     *Validator
	linter   Linter
	journal  Journal
	diffs    *diff.Engine
}

// NewRunner returns a Runner that inserts with in.
func NewRunner(in *Inserter, opts ...RunnerOption) *Runner {
	r := &Runner{inserter: in, diffs: diff.NewEngine(3)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run applies steps to initial in order and returns the final program. On
// cancellation it returns the steps applied so far along with the error.
func (r *Runner) Run(ctx context.Context, initial string, steps []Step) (*RunResult, error) {
	s, err := r.Start(ctx, initial)
	if err != nil {
		return nil, err
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return s.result(), err
		}
		if _, err := s.Apply(ctx, step); err != nil {
			return s.result(), err
		}
	}
	return s.Finish(ctx)
}

// Start opens a session for feeding steps one at a time.
func (r *Runner) Start(ctx context.Context, initial string) (*Session, error) {
	s := &Session{runner: r, id: uuid.NewString(), current: initial}
	if r.journal != nil {
		if err := r.journal.BeginRun(ctx, s.id, initial); err != nil {
			return nil, fmt.Errorf("journal run %s: %w", s.id, err)
		}
	}
	logging.Pipeline("run %s started", s.id)
	return s, nil
}

// Session is one run in progress. Steps are applied strictly one after
// another; concurrent Apply calls are serialized.
type Session struct {
	runner *Runner
	id     string

	mu      sync.Mutex
	current string
	reports []StepReport
}

// ID returns the run ID.
func (s *Session) ID() string { return s.id }

// Code returns the current accumulated program.
func (s *Session) Code() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Apply runs one step against the accumulated program.
func (s *Session) Apply(ctx context.Context, step Step) (StepReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.runner
	timer := logging.StartTimer(logging.CategoryPipeline, "Apply "+step.Name)
	defer timer.StopWithThreshold(time.Second)

	start := time.Now()
	report := StepReport{Index: len(s.reports), Name: step.Name}

	if r.gate != nil {
		dry := r.gate.DryRun(ctx, s.current, step.Code)
		if !dry.Clean() {
			report.Rejected = true
			report.Diagnostics = dry.Diagnostics
			report.Code = s.current
			report.Duration = time.Since(start)
			logging.PipelineWarn("run %s: step %q rejected with %d diagnostics", s.id, step.Name, len(dry.Diagnostics))
			return s.record(ctx, report)
		}
	}

	res := r.inserter.InsertStep(ctx, s.current, step.Code)
	report.Strategy = res.Strategy
	if res.Cause != nil {
		report.Cause = res.Cause.Error()
	}

	change := r.diffs.Compute(s.current, res.Code)
	report.Added, report.Removed = change.Added, change.Removed
	report.Patch = change.Unified(fmt.Sprintf("step-%d", report.Index), fmt.Sprintf("step-%d", report.Index+1))

	if r.linter != nil {
		report.Diagnostics = r.linter.Lint(ctx, res.Code)
	}
	report.Code = res.Code
	report.Duration = time.Since(start)

	s.current = res.Code
	logging.PipelineDebug("run %s: step %d %q via %s (+%d -%d)", s.id, report.Index, step.Name, report.Strategy, report.Added, report.Removed)
	return s.record(ctx, report)
}

func (s *Session) record(ctx context.Context, report StepReport) (StepReport, error) {
	s.reports = append(s.reports, report)
	if j := s.runner.journal; j != nil {
		if err := j.RecordStep(ctx, s.id, report); err != nil {
			return report, fmt.Errorf("journal step %d of run %s: %w", report.Index, s.id, err)
		}
	}
	return report, nil
}

// Finish closes the run and returns its result.
func (s *Session) Finish(ctx context.Context) (*RunResult, error) {
	res := s.result()
	if j := s.runner.journal; j != nil {
		if err := j.FinishRun(ctx, s.id, res.Code); err != nil {
			return res, fmt.Errorf("journal finish of run %s: %w", s.id, err)
		}
	}
	logging.Pipeline("run %s finished after %d steps", s.id, len(res.Steps))
	return res, nil
}

func (s *Session) result() *RunResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &RunResult{
		ID:    s.id,
		Code:  s.current,
		Steps: append([]StepReport(nil), s.reports...),
	}
}
