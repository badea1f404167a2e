// Command ingest is the game-deals dataset CLI.
//
// Usage:
//
//	gamedeals-ingest run --input data/raw --output data/processed
//	gamedeals-ingest run --config pipeline.json5 --workers 4 --print
//	gamedeals-ingest validate --config pipeline.json5
//	gamedeals-ingest sources
//	gamedeals-ingest version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/gamedeals-data/internal/audit"
	"github.com/albapepper/gamedeals-data/internal/config"
	"github.com/albapepper/gamedeals-data/internal/pipeline"
	"github.com/albapepper/gamedeals-data/internal/provider"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "gamedeals-ingest",
		Short: "Game-deals normalization and dataset assembly CLI",
	}

	root.AddCommand(runCmd())
	root.AddCommand(validateCmd())
	root.AddCommand(sourcesCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// run command
// --------------------------------------------------------------------------

// runFlags override the environment when set.
type runFlags struct {
	input       string
	output      string
	configFile  string
	metricsFile string
	asOf        string
	workers     int
	sources     []string
	dryRun      bool
	printReport bool
}

func runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Normalize all source files and write the combined dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(f, func(ctx context.Context, cfg *config.Config, p config.Pipeline) error {
				start := time.Now()
				result, err := pipeline.Run(ctx, p, pipeline.Options{
					InputDir:    cfg.InputDir,
					OutputDir:   cfg.OutputDir,
					MetricsFile: cfg.MetricsFile,
					DryRun:      cfg.DryRun,
				}, logger)
				if err != nil {
					return err
				}
				logger.Info("Run finished",
					"duration", time.Since(start).Round(time.Millisecond),
					"summary", result.Summary())
				for _, path := range result.Written {
					logger.Info("Wrote output", "path", path)
				}
				if f.printReport {
					audit.Render(os.Stdout, result.Report)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.input, "input", "", "Directory of raw <source>.csv/.jsonl files (env INPUT_DIR)")
	cmd.Flags().StringVar(&f.output, "output", "", "Output directory (env OUTPUT_DIR)")
	cmd.Flags().StringVar(&f.configFile, "config", "", "JSON5 pipeline config (env PIPELINE_CONFIG)")
	cmd.Flags().StringVar(&f.metricsFile, "metrics", "", "Prometheus textfile to write (env METRICS_FILE)")
	cmd.Flags().StringVar(&f.asOf, "as-of", "", "Reference date for preorder inference, YYYY-MM-DD")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "Concurrent source workers (env WORKERS)")
	cmd.Flags().StringSliceVar(&f.sources, "sources", nil, "Sources to process; empty = config")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Run every stage but write nothing (env DRY_RUN)")
	cmd.Flags().BoolVar(&f.printReport, "print", false, "Print the quality report as tables")
	return cmd
}

// --------------------------------------------------------------------------
// validate command
// --------------------------------------------------------------------------

func validateCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the pipeline configuration without reading any data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(f, func(ctx context.Context, cfg *config.Config, p config.Pipeline) error {
				logger.Info("Configuration is valid",
					"sources", strings.Join(p.Sources, ","),
					"duplicate_key", strings.Join(p.DuplicateKey, ","),
					"workers", p.Workers)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.configFile, "config", "", "JSON5 pipeline config (env PIPELINE_CONFIG)")
	cmd.Flags().StringSliceVar(&f.sources, "sources", nil, "Sources to check; empty = config")
	return cmd
}

// --------------------------------------------------------------------------
// sources command
// --------------------------------------------------------------------------

func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List known sources and their mapping rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := provider.ValidateRegistry(); err != nil {
				return err
			}
			rates := config.DefaultPipeline().CurrencyRates
			t := audit.NewTable(os.Stdout, "Sources")
			t.AppendHeader(table.Row{"source", "storefront", "currency", "default rate", "discounts", "title keys", "price keys"})
			for _, m := range provider.Registry() {
				rate := "1"
				if m.NeedsConversion() {
					rate = fmt.Sprintf("%g", rates[string(m.ID)])
				}
				t.AppendRow(table.Row{
					m.ID, m.Storefront, m.NativeCurrency, rate, m.SupportsDiscount(),
					strings.Join(m.Title, ", "), strings.Join(m.Price, ", "),
				})
			}
			t.Render()
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// withConfig handles config loading, flag overrides, and context cancellation.
func withConfig(f runFlags, fn func(ctx context.Context, cfg *config.Config, p config.Pipeline) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	f.apply(cfg)
	logger = newLogger(cfg)
	slog.SetDefault(logger)
	logger.Debug("Loaded config", "environment", cfg.Environment, "input", cfg.InputDir, "output", cfg.OutputDir)

	p, err := config.ReadPipeline(cfg.PipelineFile)
	if err != nil {
		return err
	}
	p.ApplyEnv(cfg)
	if f.asOf != "" {
		p.AsOf = f.asOf
	}
	if err := p.Validate(); err != nil {
		return err
	}

	return fn(ctx, cfg, p)
}

// newLogger logs text for humans and JSON in production.
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func (f runFlags) apply(cfg *config.Config) {
	if f.input != "" {
		cfg.InputDir = f.input
	}
	if f.output != "" {
		cfg.OutputDir = f.output
	}
	if f.configFile != "" {
		cfg.PipelineFile = f.configFile
	}
	if f.metricsFile != "" {
		cfg.MetricsFile = f.metricsFile
	}
	if f.workers > 0 {
		cfg.Workers = f.workers
	}
	if len(f.sources) > 0 {
		cfg.Sources = f.sources
	}
	if f.dryRun {
		cfg.DryRun = true
	}
}
