package config

import (
	"stitcher/internal/format"
	"stitcher/internal/lint"
	"stitcher/internal/pipeline"
)

// PipelineConfig configures the insertion pipeline.
type PipelineConfig struct {
	MergeTimeout         string `yaml:"merge_timeout"`
	FormatTimeout        string `yaml:"format_timeout"`
	CanonicalizeOnInsert bool   `yaml:"canonicalize_on_insert"`
	GateOnDryRun         bool   `yaml:"gate_on_dry_run"` // refuse steps whose dry run has diagnostics
}

// FormatConfig configures the formatter.
type FormatConfig struct {
	Indent        string `yaml:"indent"`
	MaxBlankLines int    `yaml:"max_blank_lines"`
}

// LintConfig configures the diagnostic engine.
type LintConfig struct {
	DisabledRules []string `yaml:"disabled_rules"`
}

// JournalConfig configures the SQLite run journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Driver  string `yaml:"driver"` // sqlite (modernc) or sqlite3 (mattn, cgo)
	Path    string `yaml:"path"`
}

// PipelineOptions returns the inserter options.
func (c *Config) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		MergeTimeout:  c.GetMergeTimeout(),
		FormatTimeout: c.GetFormatTimeout(),
		Canonicalize:  c.Pipeline.CanonicalizeOnInsert,
	}
}

// FormatOptions returns the formatter options.
func (c *Config) FormatOptions() format.Options {
	return format.Options{Indent: c.Format.Indent, MaxBlankLines: c.Format.MaxBlankLines}
}

func isKnownRule(id string) bool {
	for _, r := range lint.Rules {
		if r == id {
			return true
		}
	}
	return false
}
