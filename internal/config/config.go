// Package config provides process configuration loaded from environment
// variables and pipeline options loaded from a JSON5 file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Output file names: single source of truth for writers and tests
// --------------------------------------------------------------------------

const (
	CombinedFile = "combined.csv"
	SkippedFile  = "skipped.csv"
	ReportFile   = "quality_report.json"
)

// --------------------------------------------------------------------------
// Config struct: populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Files
	InputDir     string
	OutputDir    string
	PipelineFile string // JSON5 pipeline options; empty = built-in defaults
	MetricsFile  string // Prometheus textfile; empty = disabled

	// Run
	Environment string // development, production
	LogLevel    slog.Level
	Workers     int  // 0 = use pipeline file / default
	DryRun      bool // run every stage but write nothing
	Sources     []string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	level, err := parseLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	return &Config{
		InputDir:     envOr("INPUT_DIR", "data/raw"),
		OutputDir:    envOr("OUTPUT_DIR", "data/processed"),
		PipelineFile: envOr("PIPELINE_CONFIG", ""),
		MetricsFile:  envOr("METRICS_FILE", ""),

		Environment: envOr("ENVIRONMENT", "development"),
		LogLevel:    level,
		Workers:     envInt("WORKERS", 0),
		DryRun:      envBool("DRY_RUN", false),
		Sources:     envList("SOURCES", nil),
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL %q: %w", s, err)
	}
	return level, nil
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
