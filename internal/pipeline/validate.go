package pipeline

import (
	"context"

	"stitcher/internal/canon"
	"stitcher/internal/lint"
	"stitcher/internal/logging"
	"stitcher/internal/program"
)

// DryRunResult is what the validator learned about a fragment.
type DryRunResult struct {
	// Code is the canonical text of the fragment, or the fragment itself
	// when it does not parse.
	Code        string
	Diagnostics []lint.Diagnostic
	Report      canon.Report
}

// Clean reports whether the fragment can be committed as-is.
func (r DryRunResult) Clean() bool {
	return len(r.Diagnostics) == 0
}

// Validator answers whether a fragment would canonicalize and lint cleanly
// on its own. It never merges and never touches the accumulated program.
type Validator struct {
	linter Linter
}

// NewValidator returns a Validator that lints with l.
func NewValidator(l Linter) *Validator {
	return &Validator{linter: l}
}

// DryRun validates step in isolation. current is accepted so callers can pass
// the same pair they would pass to Insert; it is not read.
func (v *Validator) DryRun(ctx context.Context, current, step string) DryRunResult {
	p, err := program.ParseContext(ctx, step)
	if err != nil {
		logging.PipelineDebug("dry run: fragment does not parse: %v", err)
		return DryRunResult{
			Code: step,
			Diagnostics: []lint.Diagnostic{{
				Line:    1,
				Column:  0,
				Message: err.Error(),
				RuleID:  lint.RuleParseError,
			}},
		}
	}

	out, report := canon.Run(p)
	code := program.Print(out)
	diags := v.linter.Lint(ctx, code)
	logging.PipelineDebug("dry run: %d diagnostics", len(diags))
	return DryRunResult{Code: code, Diagnostics: diags, Report: report}
}
