package dataset

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/albapepper/gamedeals-data/internal/assemble"
	"github.com/albapepper/gamedeals-data/internal/audit"
	"github.com/albapepper/gamedeals-data/internal/config"
	"github.com/albapepper/gamedeals-data/internal/features"
	"github.com/albapepper/gamedeals-data/internal/provider"
)

// SkippedColumns is the header of the skipped-records file.
var SkippedColumns = []string{"source", "row", "title", "reason", "detail"}

// Output is everything a successful run writes.
type Output struct {
	Rows    []features.Row
	Skipped []assemble.SkippedRecord
	Report  *audit.Report
}

// CombinedColumns is the header of the combined table.
func CombinedColumns() []string {
	cols := make([]string, 0, len(provider.Columns)+len(features.Columns))
	cols = append(cols, provider.Columns...)
	return append(cols, features.Columns...)
}

// rename is swapped in tests to fail a commit half-way.
var rename = os.Rename

// Commit writes the combined table, skipped records and report into dir.
// Every file is first written to a temporary file in dir; the final names
// only appear once all of them were written. Outputs of a previous run are
// moved aside while the new files are renamed in and restored if any rename
// fails, so dir holds either the old set or the new one. It returns the
// written paths.
func Commit(dir string, out Output) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	files := []struct {
		name  string
		write func(io.Writer) error
	}{
		{config.CombinedFile, func(w io.Writer) error { return WriteCombined(w, out.Rows) }},
		{config.SkippedFile, func(w io.Writer) error { return WriteSkipped(w, out.Skipped) }},
		{config.ReportFile, func(w io.Writer) error { return WriteReport(w, out.Report) }},
	}

	temps := make([]string, 0, len(files))
	cleanup := func() {
		for _, t := range temps {
			os.Remove(t)
		}
	}
	for _, f := range files {
		tmp, err := writeTemp(dir, f.name, f.write)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("write %s: %w", f.name, err)
		}
		temps = append(temps, tmp)
	}

	paths := make([]string, len(files))
	backups := make([]string, len(files))
	var committed []string
	rollback := func() {
		for _, p := range committed {
			os.Remove(p)
		}
		for i, b := range backups {
			if b != "" {
				rename(b, paths[i])
			}
		}
		cleanup()
	}
	for i, f := range files {
		paths[i] = filepath.Join(dir, f.name)
		if _, err := os.Lstat(paths[i]); err == nil {
			b := filepath.Join(dir, "."+f.name+".prev")
			if err := rename(paths[i], b); err != nil {
				rollback()
				return nil, fmt.Errorf("move aside %s: %w", f.name, err)
			}
			backups[i] = b
		}
		if err := rename(temps[i], paths[i]); err != nil {
			rollback()
			return nil, fmt.Errorf("commit %s: %w", f.name, err)
		}
		committed = append(committed, paths[i])
	}
	for _, b := range backups {
		if b != "" {
			os.Remove(b)
		}
	}
	return paths, nil
}

func writeTemp(dir, name string, write func(io.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// WriteCombined writes the canonical columns followed by the feature columns.
// An unreliable discount is written as the sentinel so it stays
// distinguishable from a real 0% discount.
func WriteCombined(w io.Writer, rows []features.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CombinedColumns()); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(combinedRecord(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func combinedRecord(r features.Row) []string {
	return []string{
		string(r.Source),
		r.Title,
		string(r.Platform),
		r.Storefront,
		strconv.FormatBool(r.IsPreorder),
		formatFloat(r.PriceEUR),
		formatOptional(r.PriceUSD),
		formatOptional(r.OriginalPriceEUR),
		formatFloat(r.DiscountPct),
		strconv.FormatBool(r.DiscountReliable),
		r.ProductURL,
		r.Category,
		r.ReleaseDate,
		strconv.FormatBool(r.HasDiscount),
		strconv.FormatBool(r.HighDiscount),
		string(r.PriceTier),
		formatOptional(r.SavingsEUR),
	}
}

// WriteSkipped writes one line per skipped record.
func WriteSkipped(w io.Writer, skipped []assemble.SkippedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SkippedColumns); err != nil {
		return err
	}
	for _, s := range skipped {
		if err := cw.Write([]string{string(s.Source), strconv.Itoa(s.Row), s.Title, s.Reason, s.Detail}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteReport writes the quality report as indented JSON.
func WriteReport(w io.Writer, r *audit.Report) error {
	if r == nil {
		return fmt.Errorf("no report")
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
