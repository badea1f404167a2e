// Package audit computes the quality report of an assembled table: missing
// values, IQR outliers, duplicates, per-source discount reliability, skipped
// records and near-duplicate titles. Auditing never modifies its input.
package audit

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/gamedeals-data/internal/assemble"
	"github.com/albapepper/gamedeals-data/internal/features"
	"github.com/albapepper/gamedeals-data/internal/provider"
)

// NumericColumns are the columns that get IQR statistics.
var NumericColumns = []string{"price_eur", "price_usd", "original_price_eur", "discount_pct"}

const defaultSamples = 5

// Options configure an audit run.
type Options struct {
	// Key is the duplicate key; the assembled result's key when empty.
	Key assemble.DuplicateKey
	// NearDuplicateThreshold is the Jaro-Winkler similarity at or above which
	// two titles of one source are reported. 0 disables the check.
	NearDuplicateThreshold float64
	// Samples caps the examples kept per skipped reason and near-duplicates.
	Samples int
	// RunID and Now fix report metadata; generated when empty.
	RunID string
	Now   func() time.Time
}

// --------------------------------------------------------------------------
// Report types
// --------------------------------------------------------------------------

// Report is the quality report of one run. It is derived from the assembly
// result and never modifies it.
type Report struct {
	RunID        string    `json:"run_id"`
	GeneratedAt  time.Time `json:"generated_at"`
	InputCount   int       `json:"input_count"`
	RecordCount  int       `json:"record_count"`
	SkippedCount int       `json:"skipped_count"`
	Balanced     bool      `json:"balanced"`

	DuplicateKey []string       `json:"duplicate_key"`
	Duplicates   DuplicateStats `json:"duplicates"`

	Columns           []ColumnStats       `json:"columns"`
	Sources           []SourceReliability `json:"sources"`
	UnreliableSources []provider.SourceID `json:"unreliable_sources"`
	Skipped           []SkippedGroup      `json:"skipped"`
	NearDuplicates    NearDuplicates      `json:"near_duplicates"`
	Features          *FeatureSummary     `json:"features,omitempty"`
}

// DuplicateStats counts records sharing a duplicate key.
type DuplicateStats struct {
	Removed  int `json:"removed"`  // dropped by the assembler
	Residual int `json:"residual"` // still present in the table
	Total    int `json:"total"`
}

// ColumnStats describes one canonical column. Numeric is set for the price
// and discount columns only.
type ColumnStats struct {
	Name       string        `json:"name"`
	Missing    int           `json:"missing"`
	MissingPct float64       `json:"missing_pct"`
	Numeric    *NumericStats `json:"numeric,omitempty"`
}

// NumericStats summarizes a numeric column. Outliers fall outside the
// 1.5 IQR fences; OutlierRows are indexes into the combined table.
type NumericStats struct {
	Count       int     `json:"count"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Mean        float64 `json:"mean"`
	Q1          float64 `json:"q1"`
	Median      float64 `json:"median"`
	Q3          float64 `json:"q3"`
	IQR         float64 `json:"iqr"`
	LowerFence  float64 `json:"lower_fence"`
	UpperFence  float64 `json:"upper_fence"`
	Outliers    int     `json:"outliers"`
	OutlierRows []int   `json:"outlier_rows"`
}

// SourceReliability is the share of a source's rows without a reliable discount.
type SourceReliability struct {
	Source        provider.SourceID `json:"source"`
	Rows          int               `json:"rows"`
	Unreliable    int               `json:"unreliable"`
	UnreliablePct float64           `json:"unreliable_pct"`
	AllUnreliable bool              `json:"all_unreliable"`
}

// SkippedGroup collects skipped records with the same reason code.
type SkippedGroup struct {
	Reason  string                   `json:"reason"`
	Count   int                      `json:"count"`
	Samples []assemble.SkippedRecord `json:"samples"`
}

// FeatureSummary counts derived features over the combined table.
type FeatureSummary struct {
	Tiers        map[features.Tier]int `json:"price_tiers"`
	HasDiscount  int                   `json:"has_discount"`
	HighDiscount int                   `json:"high_discount"`
}

// --------------------------------------------------------------------------
// Audit
// --------------------------------------------------------------------------

// Audit builds the quality report for an assembled result.
func Audit(res assemble.Result, opts Options) *Report {
	if len(opts.Key) == 0 {
		opts.Key = res.Key
	}
	if len(opts.Key) == 0 {
		opts.Key = assemble.DefaultKey
	}
	if opts.Samples <= 0 {
		opts.Samples = defaultSamples
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	residual := residualDuplicates(res.Records, opts.Key)
	r := &Report{
		RunID:        runID,
		GeneratedAt:  now().UTC(),
		InputCount:   res.InputCount,
		RecordCount:  len(res.Records),
		SkippedCount: len(res.Skipped),
		Balanced:     res.Balanced(),
		DuplicateKey: append([]string(nil), opts.Key...),
		Duplicates: DuplicateStats{
			Removed:  res.DuplicatesRemoved,
			Residual: residual,
			Total:    res.DuplicatesRemoved + residual,
		},
		Columns:        columnStats(res.Records),
		Skipped:        groupSkipped(res.Skipped, opts.Samples),
		NearDuplicates: findNearDuplicates(res.Records, opts.NearDuplicateThreshold, opts.Samples),
	}
	r.Sources, r.UnreliableSources = reliability(res)
	return r
}

// AddFeatures attaches a summary of the derived columns.
func (r *Report) AddFeatures(rows []features.Row) {
	s := &FeatureSummary{Tiers: features.TierCounts(rows)}
	for _, row := range rows {
		if row.HasDiscount {
			s.HasDiscount++
		}
		if row.HighDiscount {
			s.HighDiscount++
		}
	}
	r.Features = s
}

// Column returns the stats of a column by name.
func (r *Report) Column(name string) (ColumnStats, bool) {
	for _, c := range r.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnStats{}, false
}

func residualDuplicates(records []provider.Record, key assemble.DuplicateKey) int {
	seen := make(map[string]bool, len(records))
	n := 0
	for _, rec := range records {
		k := key.Of(rec)
		if seen[k] {
			n++
			continue
		}
		seen[k] = true
	}
	return n
}

func columnStats(records []provider.Record) []ColumnStats {
	numeric := make(map[string]bool, len(NumericColumns))
	for _, c := range NumericColumns {
		numeric[c] = true
	}

	stats := make([]ColumnStats, 0, len(provider.Columns))
	for _, col := range provider.Columns {
		cs := ColumnStats{Name: col}
		var values []float64
		var rows []int
		for i, rec := range records {
			v, _ := rec.Field(col)
			if v == nil {
				cs.Missing++
				continue
			}
			if f, ok := v.(float64); ok && numeric[col] {
				values = append(values, f)
				rows = append(rows, i)
			}
		}
		if len(records) > 0 {
			cs.MissingPct = round2(float64(cs.Missing) / float64(len(records)) * 100)
		}
		if numeric[col] && len(values) > 0 {
			cs.Numeric = numericStats(values, rows)
		}
		stats = append(stats, cs)
	}
	return stats
}

func reliability(res assemble.Result) ([]SourceReliability, []provider.SourceID) {
	var order []provider.SourceID
	bySource := make(map[provider.SourceID]*SourceReliability)
	add := func(id provider.SourceID) *SourceReliability {
		if s, ok := bySource[id]; ok {
			return s
		}
		s := &SourceReliability{Source: id}
		bySource[id] = s
		order = append(order, id)
		return s
	}
	for _, c := range res.Sources {
		add(c.Source)
	}
	for _, rec := range res.Records {
		s := add(rec.Source)
		s.Rows++
		if !rec.DiscountReliable {
			s.Unreliable++
		}
	}

	out := make([]SourceReliability, 0, len(order))
	unreliable := []provider.SourceID{}
	for _, id := range order {
		s := bySource[id]
		if s.Rows > 0 {
			s.UnreliablePct = round2(float64(s.Unreliable) / float64(s.Rows) * 100)
			s.AllUnreliable = s.Unreliable == s.Rows
		}
		if s.AllUnreliable {
			unreliable = append(unreliable, id)
		}
		out = append(out, *s)
	}
	return out, unreliable
}

// groupSkipped aggregates skipped records by reason, most frequent first.
func groupSkipped(skipped []assemble.SkippedRecord, samples int) []SkippedGroup {
	index := make(map[string]int)
	groups := []SkippedGroup{}
	for _, s := range skipped {
		i, ok := index[s.Reason]
		if !ok {
			i = len(groups)
			index[s.Reason] = i
			groups = append(groups, SkippedGroup{Reason: s.Reason})
		}
		g := &groups[i]
		g.Count++
		if len(g.Samples) < samples {
			g.Samples = append(g.Samples, s)
		}
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Count != groups[j].Count {
			return groups[i].Count > groups[j].Count
		}
		return groups[i].Reason < groups[j].Reason
	})
	return groups
}
