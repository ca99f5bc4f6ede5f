package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"STITCH_MERGE_TIMEOUT", "STITCH_FORMAT_TIMEOUT", "STITCH_JOURNAL_PATH", "STITCH_DEBUG"} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.GetMergeTimeout() != 10*time.Second {
		t.Errorf("expected merge timeout 10s, got %v", cfg.GetMergeTimeout())
	}
	if cfg.GetFormatTimeout() != 5*time.Second {
		t.Errorf("expected format timeout 5s, got %v", cfg.GetFormatTimeout())
	}
	if !cfg.Pipeline.CanonicalizeOnInsert {
		t.Error("expected canonicalize_on_insert to default to true")
	}
	if cfg.Journal.Driver != "sqlite" {
		t.Errorf("expected journal driver sqlite, got %s", cfg.Journal.Driver)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Pipeline.MergeTimeout = "250ms"
	cfg.Format.Indent = "\t"
	cfg.Lint.DisabledRules = []string{"no-debugger"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.GetMergeTimeout() != 250*time.Millisecond {
		t.Errorf("expected merge timeout 250ms, got %v", loaded.GetMergeTimeout())
	}
	if loaded.Format.Indent != "\t" {
		t.Errorf("expected tab indent, got %q", loaded.Format.Indent)
	}
	if len(loaded.Lint.DisabledRules) != 1 || loaded.Lint.DisabledRules[0] != "no-debugger" {
		t.Errorf("unexpected disabled rules: %v", loaded.Lint.DisabledRules)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Format.MaxBlankLines != 1 {
		t.Errorf("expected default max_blank_lines 1, got %d", cfg.Format.MaxBlankLines)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pipeline:\n  gate_on_dry_run: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Pipeline.GateOnDryRun {
		t.Error("expected gate_on_dry_run from file")
	}
	if cfg.GetFormatTimeout() != DefaultFormatTimeout {
		t.Errorf("expected default format timeout, got %v", cfg.GetFormatTimeout())
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("pipeline: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STITCH_MERGE_TIMEOUT", "2s")
	t.Setenv("STITCH_FORMAT_TIMEOUT", "1s")
	t.Setenv("STITCH_JOURNAL_PATH", "/tmp/j.db")
	t.Setenv("STITCH_DEBUG", "true")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.GetMergeTimeout() != 2*time.Second {
		t.Errorf("expected merge timeout 2s, got %v", cfg.GetMergeTimeout())
	}
	if cfg.GetFormatTimeout() != time.Second {
		t.Errorf("expected format timeout 1s, got %v", cfg.GetFormatTimeout())
	}
	if !cfg.Journal.Enabled || cfg.Journal.Path != "/tmp/j.db" {
		t.Errorf("journal override not applied: %+v", cfg.Journal)
	}
	if !cfg.Logging.DebugMode {
		t.Error("expected debug mode from STITCH_DEBUG")
	}
}

func TestConfig_EnvDebugIgnoresGarbage(t *testing.T) {
	clearEnv(t)
	t.Setenv("STITCH_DEBUG", "maybe")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Logging.DebugMode {
		t.Error("unparsable STITCH_DEBUG must not enable debug mode")
	}
}

func TestGetTimeouts_FallBackOnBadInput(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.MergeTimeout = "soon"
	cfg.Pipeline.FormatTimeout = "-1s"
	if cfg.GetMergeTimeout() != DefaultMergeTimeout {
		t.Errorf("expected fallback merge timeout, got %v", cfg.GetMergeTimeout())
	}
	if cfg.GetFormatTimeout() != DefaultFormatTimeout {
		t.Errorf("expected fallback format timeout, got %v", cfg.GetFormatTimeout())
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.MergeTimeout = "soon"
	cfg.Format.MaxBlankLines = -1
	cfg.Format.Indent = "--"
	cfg.Lint.DisabledRules = []string{"no-such-rule"}
	cfg.Journal.Enabled = true
	cfg.Journal.Driver = "postgres"
	cfg.Logging.DebugMode = true
	cfg.Logging.Dir = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	msg := err.Error()
	for _, want := range []string{
		"pipeline.merge_timeout",
		"format.max_blank_lines",
		"format.indent",
		"no-such-rule",
		"journal.driver",
		"logging.dir",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected error to mention %q, got:\n%s", want, msg)
		}
	}
}

func TestConversions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.CanonicalizeOnInsert = false
	opts := cfg.PipelineOptions()
	if opts.MergeTimeout != DefaultMergeTimeout || opts.Canonicalize {
		t.Errorf("unexpected pipeline options %+v", opts)
	}
	if f := cfg.FormatOptions(); f.Indent != "  " || f.MaxBlankLines != 1 {
		t.Errorf("unexpected format options %+v", f)
	}
	cfg.Logging.Categories = map[string]bool{"merge": false}
	s := cfg.Logging.Settings()
	if s.Dir != cfg.Logging.Dir || s.Categories["merge"] {
		t.Errorf("unexpected logging settings %+v", s)
	}
}

func TestLoggingConfig_IsCategoryEnabled(t *testing.T) {
	c := LoggingConfig{DebugMode: false}
	if c.IsCategoryEnabled("merge") {
		t.Error("production mode must disable every category")
	}
	c.DebugMode = true
	if !c.IsCategoryEnabled("merge") {
		t.Error("nil category map enables everything")
	}
	c.Categories = map[string]bool{"merge": false}
	if c.IsCategoryEnabled("merge") || !c.IsCategoryEnabled("lint") {
		t.Error("category toggles not honoured")
	}
}
