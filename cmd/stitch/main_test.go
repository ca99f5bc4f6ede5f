package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCanonCmd(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "game.js", "main();\nfunction main() {\nstep();\n}\nconst a = 1;\nconst a = 2;\n")

	out, _, err := execute(t, "canon", path)
	require.NoError(t, err)
	assert.Equal(t, "const a = 1;\nfunction main() {\n  step();\n}\nmain();\n", out)

	_, _, err = execute(t, "canon", "--write", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
}

func TestCanonCmd_MultipleFilesAndErrors(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "a.js", "x();\n")
	bad := writeFile(t, dir, "b.js", "function (")
	missing := filepath.Join(dir, "missing.js")

	out, _, err := execute(t, "canon", good, bad, missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.js")
	assert.Contains(t, err.Error(), "missing.js")
	assert.Contains(t, out, "// "+good+"\nx();\n")
}

func TestInsertCmd(t *testing.T) {
	dir := t.TempDir()
	current := writeFile(t, dir, "current.js", "let n = 0;\nfunction tick() {\n  n++;\n}\n")
	step := writeFile(t, dir, "step.js", "function tick() {\n  draw();\n}\ntick();\n")

	out, stderr, err := execute(t, "insert", "--explain", current, step)
	require.NoError(t, err)
	assert.Equal(t, "let n = 0;\nfunction tick() {\n  n++;\n  draw();\n}\ntick();\n", out)
	assert.Contains(t, stderr, "strategy: merge")
}

func TestInsertCmd_Fallback(t *testing.T) {
	dir := t.TempDir()
	current := writeFile(t, dir, "current.js", "a();")
	step := writeFile(t, dir, "step.js", "function (")

	out, stderr, err := execute(t, "insert", "--explain", current, step)
	require.NoError(t, err)
	assert.Equal(t, "a();\nfunction (", out)
	assert.Contains(t, stderr, "strategy: concat")
}

func TestCheckCmd(t *testing.T) {
	dir := t.TempDir()
	current := writeFile(t, dir, "current.js", "")
	clean := writeFile(t, dir, "clean.js", "go();\nfunction go() {}\n")
	broken := writeFile(t, dir, "broken.js", "const = ;")

	out, _, err := execute(t, "check", "--show", current, clean)
	require.NoError(t, err)
	assert.Equal(t, "function go() {}\ngo();\n", out)

	out, _, err = execute(t, "check", "--json", current, broken)
	require.Error(t, err)

	var payload struct {
		File        string `json:"file"`
		Diagnostics []struct {
			Line   int    `json:"line"`
			Column int    `json:"column"`
			RuleID string `json:"ruleId"`
		} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &payload))
	require.Len(t, payload.Diagnostics, 1)
	assert.Equal(t, 1, payload.Diagnostics[0].Line)
	assert.Equal(t, 0, payload.Diagnostics[0].Column)
	assert.Equal(t, "parse-error", payload.Diagnostics[0].RuleID)
}

func TestLintCmd(t *testing.T) {
	dir := t.TempDir()
	clean := writeFile(t, dir, "clean.js", "const a = 1;\n")
	dirty := writeFile(t, dir, "dirty.js", "f();\nf();\n")

	_, _, err := execute(t, "lint", clean)
	require.NoError(t, err)

	out, _, err := execute(t, "lint", clean, dirty)
	require.Error(t, err)
	assert.Equal(t, dirty+":2:0 'f' is already called at top level on line 1 (no-duplicate-call)\n", out)
}

func TestRunAndHistoryCmd(t *testing.T) {
	steps := t.TempDir()
	writeFile(t, steps, "01-state.js", "let score = 0;\n")
	writeFile(t, steps, "02-loop.js", "function loop() {\n  score++;\n}\nloop();\n")
	writeFile(t, steps, "03-render.js", "function loop() {\n  render();\n}\nfunction render() {}\n")

	work := t.TempDir()
	db := filepath.Join(work, "journal.db")
	outFile := filepath.Join(work, "out", "game.js")

	_, stderr, err := execute(t, "run", "--db", db, "--out", outFile, steps)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(stderr, " merge "))

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	want := "let score = 0;\n" +
		"function loop() {\n" +
		"  score++;\n" +
		"  render();\n" +
		"}\n" +
		"function render() {}\n" +
		"loop();\n"
	assert.Equal(t, want, string(data))

	out, _, err := execute(t, "history", "--db", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "finished")
	runID := strings.Fields(lines[1])[0]

	out, _, err = execute(t, "history", "--db", db, "--patch", runID)
	require.NoError(t, err)
	assert.Contains(t, out, "01-state.js")
	assert.Contains(t, out, "03-render.js")
	assert.Contains(t, out, "+  render();")

	_, _, err = execute(t, "history", "--db", db, "no-such-run")
	assert.Error(t, err)
}

func TestRunCmd_GateRejects(t *testing.T) {
	steps := t.TempDir()
	writeFile(t, steps, "01.js", "a();\n")
	writeFile(t, steps, "02.js", "debugger;\n")

	out, stderr, err := execute(t, "run", "--gate", steps)
	require.NoError(t, err)
	assert.Equal(t, "a();\n", out)
	assert.Contains(t, stderr, "rejected")
}

func TestInvalidConfig(t *testing.T) {
	cfgPath := writeFile(t, t.TempDir(), "config.yaml", "format:\n  max_blank_lines: -2\n")
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "lint", cfgPath})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_blank_lines")
}
