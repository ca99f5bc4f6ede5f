package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stitcher/internal/lint"
	"stitcher/internal/pipeline"
)

func openJournal(t *testing.T, driver string) *Journal {
	t.Helper()
	j, err := Open(driver, filepath.Join(t.TempDir(), "runs", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RoundTrip(t *testing.T) {
	for _, driver := range []string{DriverSQLite, DriverSQLite3} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			j := openJournal(t, driver)

			require.NoError(t, j.BeginRun(ctx, "run-1", "a();\n"))
			require.NoError(t, j.RecordStep(ctx, "run-1", pipeline.StepReport{
				Index:    0,
				Name:     "first",
				Strategy: pipeline.StrategyMerge,
				Added:    1,
				Patch:    "+b();\n",
				Duration: 3 * time.Millisecond,
				Code:     "a();\nb();\n",
			}))
			require.NoError(t, j.RecordStep(ctx, "run-1", pipeline.StepReport{
				Index:    1,
				Name:     "second",
				Rejected: true,
				Diagnostics: []lint.Diagnostic{
					{Line: 1, Column: 0, Message: "Unexpected 'debugger' statement", RuleID: lint.RuleNoDebugger},
				},
				Code: "a();\nb();\n",
			}))
			require.NoError(t, j.FinishRun(ctx, "run-1", "a();\nb();\n"))

			runs, err := j.Runs(ctx, 0)
			require.NoError(t, err)
			require.Len(t, runs, 1)
			assert.Equal(t, "run-1", runs[0].ID)
			assert.Equal(t, "a();\n", runs[0].Initial)
			assert.Equal(t, "a();\nb();\n", runs[0].Final)
			assert.Equal(t, 2, runs[0].StepCount)
			assert.True(t, runs[0].Finished())

			steps, err := j.Steps(ctx, "run-1")
			require.NoError(t, err)
			require.Len(t, steps, 2)

			assert.Equal(t, "first", steps[0].Name)
			assert.Equal(t, "merge", steps[0].Strategy)
			assert.Equal(t, 3*time.Millisecond, steps[0].Duration)
			assert.Equal(t, "+b();\n", steps[0].Patch)
			assert.Empty(t, steps[0].Diagnostics)

			assert.True(t, steps[1].Rejected)
			require.Len(t, steps[1].Diagnostics, 1)
			assert.Equal(t, lint.RuleNoDebugger, steps[1].Diagnostics[0].RuleID)
		})
	}
}

func TestJournal_OpenRunAndLimit(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t, DriverSQLite)

	require.NoError(t, j.BeginRun(ctx, "old", ""))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, j.BeginRun(ctx, "new", ""))

	runs, err := j.Runs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "new", runs[0].ID)
	assert.False(t, runs[0].Finished())
	assert.Equal(t, 0, runs[0].StepCount)
}

func TestJournal_UnknownRun(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t, DriverSQLite)

	_, err := j.Steps(ctx, "missing")
	assert.True(t, errors.Is(err, ErrRunNotFound))

	err = j.FinishRun(ctx, "missing", "")
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestJournal_DuplicateStepRejected(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t, DriverSQLite)
	require.NoError(t, j.BeginRun(ctx, "r", ""))

	report := pipeline.StepReport{Index: 0, Name: "s", Strategy: pipeline.StrategyConcat}
	require.NoError(t, j.RecordStep(ctx, "r", report))
	assert.Error(t, j.RecordStep(ctx, "r", report))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("postgres", filepath.Join(t.TempDir(), "x.db"))
	assert.Error(t, err)
}

func TestJournal_WithRunner(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t, DriverSQLite)

	in := pipeline.NewInserter(mergeConcat{}, formatIdentity{}, pipeline.Options{})
	r := pipeline.NewRunner(in, pipeline.WithJournal(j))
	res, err := r.Run(ctx, "", []pipeline.Step{{Name: "one", Code: "a();"}, {Name: "two", Code: "b();"}})
	require.NoError(t, err)

	steps, err := j.Steps(ctx, res.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, res.Code, steps[1].Code)

	runs, err := j.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.Code, runs[0].Final)
}

type mergeConcat struct{}

func (mergeConcat) Merge(_ context.Context, oldText, newText string) (string, error) {
	return oldText + newText, nil
}

type formatIdentity struct{}

func (formatIdentity) Format(_ context.Context, text string) (string, error) {
	return text, nil
}
