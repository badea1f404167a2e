// Package assemble concatenates normalized per-source tables into one combined
// table. Every record is validated against the canonical invariants and
// duplicates on the configured key are removed, keeping the first occurrence.
package assemble

import (
	"fmt"
	"sort"
	"strings"

	"github.com/albapepper/gamedeals-data/internal/provider"
)

// SkippedRecord is a record excluded from the combined table.
type SkippedRecord = provider.Skipped

// DefaultKey is the duplicate key used when none is configured.
var DefaultKey = DuplicateKey{"title", "source"}

// DuplicateKey lists the canonical columns that identify a duplicate.
type DuplicateKey []string

// Of returns the key value of a record. Absent values compare equal.
func (k DuplicateKey) Of(r provider.Record) string {
	parts := make([]string, len(k))
	for i, col := range k {
		v, _ := r.Field(col)
		if v == nil {
			parts[i] = "\x00"
			continue
		}
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "\x1f")
}

// Display renders a key value for reports.
func (k DuplicateKey) Display(r provider.Record) string {
	return strings.ReplaceAll(strings.ReplaceAll(k.Of(r), "\x1f", " | "), "\x00", "")
}

// Table is one source's normalized output. Rejected carries the records the
// normalizer skipped so the whole run can be accounted for.
type Table struct {
	Source   provider.SourceID
	Records  []provider.Record
	Rejected []SkippedRecord
}

// Len is the number of raw records the table was built from.
func (t Table) Len() int {
	return len(t.Records) + len(t.Rejected)
}

// Duplicate is a record dropped because an earlier record had the same key.
type Duplicate struct {
	Source    provider.SourceID `json:"source"`
	Row       int               `json:"row"`
	Title     string            `json:"title"`
	Key       string            `json:"key"`
	KeptIndex int               `json:"kept_index"` // index of the kept record in Result.Records
}

// SourceCounts is the per-source accounting of an assembly run.
type SourceCounts struct {
	Source     provider.SourceID `json:"source"`
	Input      int               `json:"input"`
	Kept       int               `json:"kept"`
	Skipped    int               `json:"skipped"`
	Duplicates int               `json:"duplicates"`
}

// Result is the combined table plus everything that did not make it in.
type Result struct {
	Records           []provider.Record
	Skipped           []SkippedRecord
	Duplicates        []Duplicate
	DuplicatesRemoved int
	InputCount        int
	Key               DuplicateKey
	Sources           []SourceCounts
}

// Balanced reports whether every input record is accounted for.
func (r *Result) Balanced() bool {
	return r.InputCount == len(r.Records)+len(r.Skipped)+r.DuplicatesRemoved
}

// Summary returns a human-readable summary of the assembly.
func (r *Result) Summary() string {
	return fmt.Sprintf(
		"input=%d combined=%d skipped=%d duplicates=%d sources=%d",
		r.InputCount, len(r.Records), len(r.Skipped),
		r.DuplicatesRemoved, len(r.Sources),
	)
}

// Assemble concatenates tables in the given order, keeping each table's own
// record order. Records that violate the canonical invariants are skipped
// with a SchemaViolation reason; records whose key was already seen are
// counted as duplicates. Input tables are not modified.
func Assemble(tables []Table, key DuplicateKey) Result {
	if len(key) == 0 {
		key = DefaultKey
	}
	res := Result{Key: key}
	seen := make(map[string]int)

	for _, t := range tables {
		counts := SourceCounts{Source: t.Source, Input: t.Len()}
		res.InputCount += t.Len()
		res.Skipped = append(res.Skipped, t.Rejected...)
		counts.Skipped += len(t.Rejected)

		rows := rawRows(t)
		for i, rec := range t.Records {
			if err := Validate(t.Source, rec); err != nil {
				res.Skipped = append(res.Skipped, SkippedRecord{
					Source: t.Source,
					Row:    rows[i],
					Title:  rec.Title,
					Reason: err.ReasonCode(),
					Detail: err.Error(),
				})
				counts.Skipped++
				continue
			}

			k := key.Of(rec)
			if kept, dup := seen[k]; dup {
				res.Duplicates = append(res.Duplicates, Duplicate{
					Source:    t.Source,
					Row:       rows[i],
					Title:     rec.Title,
					Key:       key.Display(rec),
					KeptIndex: kept,
				})
				res.DuplicatesRemoved++
				counts.Duplicates++
				continue
			}
			seen[k] = len(res.Records)
			res.Records = append(res.Records, rec)
			counts.Kept++
		}
		res.Sources = append(res.Sources, counts)
	}
	return res
}

// rawRows maps each normalized record of t back to its zero-based row in the
// raw source table: normalized records fill the rows the normalizer did not
// reject, in order.
func rawRows(t Table) []int {
	rejected := make([]int, 0, len(t.Rejected))
	for _, s := range t.Rejected {
		rejected = append(rejected, s.Row)
	}
	sort.Ints(rejected)

	rows := make([]int, len(t.Records))
	row, j := 0, 0
	for i := range t.Records {
		for j < len(rejected) && rejected[j] == row {
			row++
			j++
		}
		rows[i] = row
		row++
	}
	return rows
}
