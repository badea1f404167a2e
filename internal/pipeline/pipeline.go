// Package pipeline composes a full run: locate and load the raw source files,
// normalize them per source on a worker pool, assemble the combined table,
// derive features, audit, and commit the outputs.
//
// A run either writes every output or nothing. Configuration problems are
// reported before any file is read.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/gamedeals-data/internal/assemble"
	"github.com/albapepper/gamedeals-data/internal/audit"
	"github.com/albapepper/gamedeals-data/internal/config"
	"github.com/albapepper/gamedeals-data/internal/dataset"
	"github.com/albapepper/gamedeals-data/internal/features"
	"github.com/albapepper/gamedeals-data/internal/metrics"
	"github.com/albapepper/gamedeals-data/internal/provider"
)

// ErrUnbalanced means the assembled counts do not add up to the input.
var ErrUnbalanced = errors.New("assembly lost records")

// --------------------------------------------------------------------------
// Types
// --------------------------------------------------------------------------

// Options are the process-level settings of a run.
type Options struct {
	InputDir    string
	OutputDir   string
	MetricsFile string // empty = no metrics textfile
	DryRun      bool   // run every stage but write nothing

	// RunID and Now fix report metadata; generated when empty.
	RunID string
	Now   func() time.Time
}

// Result is the outcome of a run.
type Result struct {
	Assembly assemble.Result
	Rows     []features.Row
	Report   *audit.Report
	Written  []string
	Duration time.Duration
}

// Summary returns a human-readable summary.
func (r *Result) Summary() string {
	return fmt.Sprintf("%s unreliable_sources=%d written=%d dur=%s",
		r.Assembly.Summary(), len(r.Report.UnreliableSources),
		len(r.Written), r.Duration.Round(time.Millisecond))
}

// source is one enabled source and its resolved input file.
type source struct {
	id   provider.SourceID
	path string
}

// --------------------------------------------------------------------------
// Run
// --------------------------------------------------------------------------

// Run executes the pipeline with validated configuration p.
func Run(ctx context.Context, p config.Pipeline, opts Options, logger *slog.Logger) (*Result, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	start := now()

	if err := p.Validate(); err != nil {
		return nil, err
	}
	normalizer := provider.NewNormalizer(p.NormalizerOptions(p.AsOfDate(start)))
	sources, err := resolveSources(p, normalizer, opts.InputDir)
	if err != nil {
		return nil, err
	}
	logger.Info("Starting run", "sources", len(sources), "workers", p.Workers, "dry_run", opts.DryRun)

	tables, err := normalizeSources(ctx, sources, p.Workers, normalizer, logger)
	if err != nil {
		return nil, err
	}

	res := assemble.Assemble(tables, assemble.DuplicateKey(p.DuplicateKey))
	if !res.Balanced() {
		return nil, fmt.Errorf("%w: %s", ErrUnbalanced, res.Summary())
	}
	logger.Info("Assembled combined table", "summary", res.Summary())

	rows := features.Build(res.Records, features.Options{
		DiscountThreshold: p.DiscountThreshold,
		Boundaries:        p.PriceTierBoundaries,
	})

	report := audit.Audit(res, audit.Options{
		Key:                    assemble.DuplicateKey(p.DuplicateKey),
		NearDuplicateThreshold: p.NearDuplicateThreshold(),
		RunID:                  opts.RunID,
		Now:                    now,
	})
	report.AddFeatures(rows)
	for _, id := range report.UnreliableSources {
		logger.Warn("Source has no reliable discounts", "source", id)
	}

	result := &Result{Assembly: res, Rows: rows, Report: report}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run cancelled before commit: %w", err)
	}
	if opts.DryRun {
		result.Duration = now().Sub(start)
		logger.Info("Dry run complete", "summary", result.Summary())
		return result, nil
	}

	written, err := dataset.Commit(opts.OutputDir, dataset.Output{
		Rows:    rows,
		Skipped: res.Skipped,
		Report:  report,
	})
	if err != nil {
		return nil, fmt.Errorf("commit outputs: %w", err)
	}
	result.Written = written
	result.Duration = now().Sub(start)

	if opts.MetricsFile != "" {
		reg := metrics.NewRegistry()
		reg.ObserveAssembly(res)
		reg.ObserveFeatures(rows)
		reg.ObserveSuccess(result.Duration, now())
		if err := reg.WriteTextfile(opts.MetricsFile); err != nil {
			logger.Error("Failed to write metrics", "file", opts.MetricsFile, "error", err)
		} else {
			result.Written = append(result.Written, opts.MetricsFile)
		}
	}

	logger.Info("Run complete", "summary", result.Summary())
	return result, nil
}

// resolveSources checks every enabled source and finds its input file.
// All problems are reported together as one ConfigurationError.
func resolveSources(p config.Pipeline, n *provider.Normalizer, dir string) ([]source, error) {
	var problems []string
	var first error
	note := func(err error) {
		problems = append(problems, err.Error())
		if first == nil {
			first = err
		}
	}

	ids := p.SourceIDs()
	sources := make([]source, 0, len(ids))
	for _, id := range ids {
		if err := n.CheckSource(id); err != nil {
			note(err)
			continue
		}
		override, _ := p.InputFile(id)
		path, err := dataset.Locate(dir, id, override)
		if err != nil {
			note(err)
			continue
		}
		sources = append(sources, source{id: id, path: path})
	}
	if len(problems) > 0 {
		return nil, &config.ConfigurationError{Problems: problems, Err: first}
	}
	return sources, nil
}
