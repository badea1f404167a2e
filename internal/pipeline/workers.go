package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/albapepper/gamedeals-data/internal/assemble"
	"github.com/albapepper/gamedeals-data/internal/dataset"
	"github.com/albapepper/gamedeals-data/internal/provider"
)

// normalizeSources loads and normalizes every source on a pool of workers.
// Each source's table is materialized into its own slot, so the returned
// tables follow the order of sources whatever the worker count.
func normalizeSources(
	ctx context.Context,
	sources []source,
	workers int,
	n *provider.Normalizer,
	logger *slog.Logger,
) ([]assemble.Table, error) {
	if workers < 1 {
		workers = 1
	}
	if workers > len(sources) {
		workers = len(sources)
	}

	tables := make([]assemble.Table, len(sources))
	errs := make([]error, len(sources))

	ch := make(chan int, len(sources))
	for i := range sources {
		ch <- i
	}
	close(ch)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range ch {
				if err := ctx.Err(); err != nil {
					errs[i] = err
					continue
				}
				tables[i], errs[i] = normalizeSource(sources[i], n, logger)
			}
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sources[i].id, err)
		}
	}
	return tables, nil
}

func normalizeSource(src source, n *provider.Normalizer, logger *slog.Logger) (assemble.Table, error) {
	raws, err := dataset.Load(src.path)
	if err != nil {
		return assemble.Table{}, err
	}

	records, skipped, err := n.NormalizeTable(src.id, raws)
	if err != nil {
		return assemble.Table{}, err
	}
	for _, s := range skipped {
		logger.Debug("Skipped record", "source", s.Source, "row", s.Row, "reason", s.Reason, "detail", s.Detail)
	}
	logger.Info("Normalized source",
		"source", src.id, "file", src.path,
		"raw", len(raws), "records", len(records), "skipped", len(skipped))

	return assemble.Table{Source: src.id, Records: records, Rejected: skipped}, nil
}
