package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config holds all stitcher configuration.
type Config struct {
	// Insertion pipeline
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Formatter layout
	Format FormatConfig `yaml:"format"`

	// Diagnostic engine
	Lint LintConfig `yaml:"lint"`

	// Run journal
	Journal JournalConfig `yaml:"journal"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultPath is where the CLI looks for a config file.
const DefaultPath = ".stitch/config.yaml"

// Default timeouts.
const (
	DefaultMergeTimeout  = 10 * time.Second
	DefaultFormatTimeout = 5 * time.Second
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			MergeTimeout:         DefaultMergeTimeout.String(),
			FormatTimeout:        DefaultFormatTimeout.String(),
			CanonicalizeOnInsert: true,
			GateOnDryRun:         false,
		},
		Format: FormatConfig{
			Indent:        "  ",
			MaxBlankLines: 1,
		},
		Lint: LintConfig{},
		Journal: JournalConfig{
			Enabled: false,
			Driver:  "sqlite",
			Path:    ".stitch/journal.db",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			Dir:       ".stitch/logs",
			DebugMode: false,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("STITCH_MERGE_TIMEOUT"); v != "" {
		c.Pipeline.MergeTimeout = v
	}
	if v := os.Getenv("STITCH_FORMAT_TIMEOUT"); v != "" {
		c.Pipeline.FormatTimeout = v
	}
	if v := os.Getenv("STITCH_JOURNAL_PATH"); v != "" {
		c.Journal.Path = v
		c.Journal.Enabled = true
	}
	if v := os.Getenv("STITCH_DEBUG"); v != "" {
		if on, err := strconv.ParseBool(v); err == nil {
			c.Logging.DebugMode = on
		}
	}
}

// GetMergeTimeout returns the merge timeout, or the default on bad input.
func (c *Config) GetMergeTimeout() time.Duration {
	return parseDuration(c.Pipeline.MergeTimeout, DefaultMergeTimeout)
}

// GetFormatTimeout returns the format timeout, or the default on bad input.
func (c *Config) GetFormatTimeout() time.Duration {
	return parseDuration(c.Pipeline.FormatTimeout, DefaultFormatTimeout)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	for name, v := range map[string]string{
		"pipeline.merge_timeout":  c.Pipeline.MergeTimeout,
		"pipeline.format_timeout": c.Pipeline.FormatTimeout,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			result = multierror.Append(result, fmt.Errorf("%s: invalid duration %q", name, v))
		}
	}

	if c.Format.MaxBlankLines < 0 {
		result = multierror.Append(result, fmt.Errorf("format.max_blank_lines must be >= 0, got %d", c.Format.MaxBlankLines))
	}
	for _, r := range c.Format.Indent {
		if r != ' ' && r != '\t' {
			result = multierror.Append(result, fmt.Errorf("format.indent may only contain spaces and tabs"))
			break
		}
	}

	for _, id := range c.Lint.DisabledRules {
		if !isKnownRule(id) {
			result = multierror.Append(result, fmt.Errorf("lint.disabled_rules: unknown rule %q", id))
		}
	}

	if c.Journal.Enabled {
		if c.Journal.Driver != "sqlite" && c.Journal.Driver != "sqlite3" {
			result = multierror.Append(result, fmt.Errorf("journal.driver must be sqlite or sqlite3, got %q", c.Journal.Driver))
		}
		if c.Journal.Path == "" {
			result = multierror.Append(result, fmt.Errorf("journal.path is required when the journal is enabled"))
		}
	}

	if c.Logging.DebugMode && c.Logging.Dir == "" {
		result = multierror.Append(result, fmt.Errorf("logging.dir is required in debug mode"))
	}

	return result.ErrorOrNil()
}
