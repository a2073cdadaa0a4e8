package model

import "time"

// Config holds the complete uicheck configuration
type Config struct {
	Explain ExplainConfig `yaml:"explain" mapstructure:"explain"`
	Report  ReportConfig  `yaml:"report" mapstructure:"report"`
	Facts   FactsConfig   `yaml:"facts" mapstructure:"facts"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Batch   BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ExplainConfig configures the interactive explain session
type ExplainConfig struct {
	Binary        string        `yaml:"binary" mapstructure:"binary"`                 // Solver executable
	Args          []string      `yaml:"args,omitempty" mapstructure:"args"`           // Extra arguments before the spec path
	Prompt        string        `yaml:"prompt" mapstructure:"prompt"`                 // Prompt marker terminating each command
	LaunchTimeout time.Duration `yaml:"launch_timeout" mapstructure:"launch_timeout"` // Bound on the first prompt
	PromptTimeout time.Duration `yaml:"prompt_timeout" mapstructure:"prompt_timeout"` // Bound on every later prompt
	FlushQuery    string        `yaml:"flush_query" mapstructure:"flush_query"`       // Throwaway query forcing output flush
	ScratchDir    string        `yaml:"scratch_dir" mapstructure:"scratch_dir"`       // Parent of per-session solver -D dirs (CSV output is discarded)
	TempDir       string        `yaml:"temp_dir,omitempty" mapstructure:"temp_dir"`   // Per-query files ("" = os.TempDir)
}

// ReportConfig configures violation report generation
type ReportConfig struct {
	Prefixes         []string      `yaml:"prefixes" mapstructure:"prefixes"`                   // Relation name prefixes to report
	SampleLimit      int           `yaml:"sample_limit" mapstructure:"sample_limit"`           // Rows explained per relation
	TupleExt         string        `yaml:"tuple_ext" mapstructure:"tuple_ext"`                 // Solver output file extension
	FileName         string        `yaml:"file_name" mapstructure:"file_name"`                 // Report artifact name inside the output dir
	IdentityTypes    []string      `yaml:"identity_types" mapstructure:"identity_types"`       // Field types resolved through the fact index
	ProgressInterval time.Duration `yaml:"progress_interval" mapstructure:"progress_interval"` // Minimum gap between progress log lines
}

// FactsConfig configures loading of auxiliary identity facts
type FactsConfig struct {
	Ext         string `yaml:"ext" mapstructure:"ext"`                   // Fact file extension
	TextContent bool   `yaml:"text_content" mapstructure:"text_content"` // Load textContent and report it
}

// CacheConfig configures the explanation cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// BatchConfig configures multi-report batch runs
type BatchConfig struct {
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	LaunchesPerSecond float64 `yaml:"launches_per_second" mapstructure:"launches_per_second"` // 0 = unlimited
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or console
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Explain: ExplainConfig{
			Binary:        "souffle",
			Args:          []string{"-t", "explain"},
			Prompt:        "> ",
			LaunchTimeout: 360 * time.Second,
			PromptTimeout: 30 * time.Second,
			FlushQuery:    "dummy(1)",
			ScratchDir:    "tmp/output",
		},
		Report: ReportConfig{
			Prefixes:         []string{},
			SampleLimit:      10,
			TupleExt:         ".csv",
			FileName:         "report.json",
			IdentityTypes:    []string{"ViewID"},
			ProgressInterval: 5 * time.Second,
		},
		Facts: FactsConfig{
			Ext: ".facts",
		},
		Cache: CacheConfig{
			Enabled:   false,
			Dir:       ".uicheck-cache",
			MemoryTTL: time.Hour,
			DiskTTL:   24 * time.Hour,
		},
		Batch: BatchConfig{
			Concurrency:       2,
			LaunchesPerSecond: 1,
			Burst:             1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
