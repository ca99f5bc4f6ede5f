package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stitcher/internal/lint"
)

func TestDryRun_CanonicalizesFragment(t *testing.T) {
	v := NewValidator(lint.New())
	res := v.DryRun(context.Background(), "ignored();",
		"main();\nfunction main() {}\nconst a = 1;\nmain();\n")

	assert.Equal(t, "const a = 1;\nfunction main() {}\nmain();\n", res.Code)
	assert.True(t, res.Clean(), "diagnostics: %v", res.Diagnostics)
	assert.Equal(t, []string{"main"}, res.Report.ReplacedCalls)
}

func TestDryRun_ParseFailureIsSingleDiagnostic(t *testing.T) {
	v := NewValidator(lint.New())
	step := "function (\n{{"
	res := v.DryRun(context.Background(), "", step)

	assert.Equal(t, step, res.Code)
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, 1, d.Line)
	assert.Equal(t, 0, d.Column)
	assert.Equal(t, lint.RuleParseError, d.RuleID)
	assert.NotEmpty(t, d.Message)
	assert.False(t, res.Clean())
}

func TestDryRun_ReportsRemainingDiagnostics(t *testing.T) {
	v := NewValidator(lint.New())
	res := v.DryRun(context.Background(), "", "function f() {\n  debugger;\n}\n")
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, lint.RuleNoDebugger, res.Diagnostics[0].RuleID)
}

func TestDryRun_DoesNotAffectInsert(t *testing.T) {
	ctx := context.Background()
	current := "let score = 0;\nfunction tick() {\n  score++;\n}\n"
	step := "function tick() {\n  render();\n}\ntick();\n"

	in := newDefaultInserter(Options{Canonicalize: true})
	before := in.Insert(ctx, current, step)

	v := NewValidator(lint.New())
	for i := 0; i < 3; i++ {
		v.DryRun(ctx, current, step)
	}

	after := in.Insert(ctx, current, step)
	assert.Equal(t, before, after)
}

func TestDryRun_IgnoresCurrentProgram(t *testing.T) {
	ctx := context.Background()
	v := NewValidator(lint.New())
	step := "go();\nfunction go() {}\n"

	want := v.DryRun(ctx, "", step)
	for _, current := range []string{"go();", "const go = 1;", "function ("} {
		got := v.DryRun(ctx, current, step)
		assert.Equal(t, want, got, "current %q", current)
	}
	assert.True(t, want.Clean())
}
