package audit

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/albapepper/gamedeals-data/internal/features"
)

// NewTable returns a rounded table writer mirrored to w.
func NewTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

// Render prints the report as a set of tables.
func Render(w io.Writer, r *Report) {
	summary := NewTable(w, "Run "+r.RunID)
	summary.AppendRows([]table.Row{
		{"input records", r.InputCount},
		{"combined records", r.RecordCount},
		{"skipped records", r.SkippedCount},
		{"duplicates removed", r.Duplicates.Removed},
		{"residual duplicates", r.Duplicates.Residual},
		{"balanced", r.Balanced},
	})
	summary.Render()

	cols := NewTable(w, "Columns")
	cols.AppendHeader(table.Row{"column", "missing", "missing %", "q1", "q3", "fences", "outliers"})
	for _, c := range r.Columns {
		row := table.Row{c.Name, c.Missing, fmt.Sprintf("%.2f", c.MissingPct), "", "", "", ""}
		if n := c.Numeric; n != nil {
			row[3] = fmt.Sprintf("%.2f", n.Q1)
			row[4] = fmt.Sprintf("%.2f", n.Q3)
			row[5] = fmt.Sprintf("[%.2f, %.2f]", n.LowerFence, n.UpperFence)
			row[6] = n.Outliers
		}
		cols.AppendRow(row)
	}
	cols.Render()

	sources := NewTable(w, "Discount reliability")
	sources.AppendHeader(table.Row{"source", "rows", "unreliable", "unreliable %", "all unreliable"})
	for _, s := range r.Sources {
		sources.AppendRow(table.Row{s.Source, s.Rows, s.Unreliable, fmt.Sprintf("%.2f", s.UnreliablePct), s.AllUnreliable})
	}
	sources.Render()

	if len(r.Skipped) > 0 {
		skipped := NewTable(w, "Skipped records")
		skipped.AppendHeader(table.Row{"reason", "count", "example"})
		for _, g := range r.Skipped {
			example := ""
			if len(g.Samples) > 0 {
				s := g.Samples[0]
				example = fmt.Sprintf("%s row %d %q", s.Source, s.Row, s.Title)
			}
			skipped.AppendRow(table.Row{g.Reason, g.Count, example})
		}
		skipped.Render()
	}

	if r.NearDuplicates.Count > 0 {
		near := NewTable(w, fmt.Sprintf("Near-duplicate titles (%d)", r.NearDuplicates.Count))
		near.AppendHeader(table.Row{"source", "left", "right", "similarity"})
		for _, n := range r.NearDuplicates.Samples {
			near.AppendRow(table.Row{n.Source, n.Left, n.Right, fmt.Sprintf("%.2f", n.Similarity)})
		}
		near.Render()
	}

	if f := r.Features; f != nil {
		feat := NewTable(w, "Features")
		feat.AppendHeader(table.Row{"price tier", "rows"})
		for _, tier := range features.Tiers {
			feat.AppendRow(table.Row{tier, f.Tiers[tier]})
		}
		feat.AppendFooter(table.Row{"has / high discount", fmt.Sprintf("%d / %d", f.HasDiscount, f.HighDiscount)})
		feat.Render()
	}
}
