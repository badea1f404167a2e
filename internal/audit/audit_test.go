package audit

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/gamedeals-data/internal/assemble"
	"github.com/albapepper/gamedeals-data/internal/features"
	"github.com/albapepper/gamedeals-data/internal/provider"
)

var fixedNow = func() time.Time { return time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC) }

func steamRecord(title string, price float64, discount float64) provider.Record {
	return provider.Record{
		Source:           provider.SourceSteam,
		Title:            title,
		Platform:         provider.PlatformPC,
		Storefront:       "Steam",
		PriceEUR:         price,
		PriceUSD:         provider.Float(price * 1.08),
		OriginalPriceEUR: provider.Float(price),
		DiscountPct:      discount,
		DiscountReliable: true,
	}
}

func epicRecord(title string, price float64) provider.Record {
	return provider.Record{
		Source:      provider.SourceEpicGames,
		Title:       title,
		Platform:    provider.PlatformPC,
		Storefront:  "Epic Games Store",
		PriceEUR:    price,
		DiscountPct: provider.DiscountSentinel,
	}
}

func sampleResult() assemble.Result {
	return assemble.Assemble([]assemble.Table{
		{
			Source: provider.SourceSteam,
			Records: []provider.Record{
				steamRecord("A", 10, 0),
				steamRecord("B", 11, 10),
				steamRecord("C", 12, 20),
				steamRecord("D", 13, 0),
				steamRecord("E", 14, 30),
				steamRecord("F", 100, 0),
				steamRecord("A", 10, 0),
			},
			Rejected: []assemble.SkippedRecord{
				{Source: provider.SourceSteam, Row: 7, Reason: "NormalizationError: missing title"},
				{Source: provider.SourceSteam, Row: 8, Reason: "NormalizationError: missing title"},
			},
		},
		{
			Source:  provider.SourceEpicGames,
			Records: []provider.Record{epicRecord("G", 20), epicRecord("H", 25)},
			Rejected: []assemble.SkippedRecord{
				{Source: provider.SourceEpicGames, Row: 2, Reason: "NormalizationError: unparseable price"},
			},
		},
	}, assemble.DefaultKey)
}

func TestAudit_Counts(t *testing.T) {
	r := Audit(sampleResult(), Options{RunID: "run-1", Now: fixedNow})

	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, fixedNow(), r.GeneratedAt)
	assert.Equal(t, 12, r.InputCount)
	assert.Equal(t, 8, r.RecordCount)
	assert.Equal(t, 3, r.SkippedCount)
	assert.True(t, r.Balanced)
	assert.Equal(t, []string{"title", "source"}, r.DuplicateKey)
	assert.Equal(t, DuplicateStats{Removed: 1, Residual: 0, Total: 1}, r.Duplicates)
}

func TestAudit_MissingValues(t *testing.T) {
	r := Audit(sampleResult(), Options{Now: fixedNow})

	discount, ok := r.Column("discount_pct")
	require.True(t, ok)
	assert.Equal(t, 2, discount.Missing, "sentinel discounts count as missing")
	assert.Equal(t, 25.0, discount.MissingPct)

	usd, _ := r.Column("price_usd")
	assert.Equal(t, 2, usd.Missing)

	title, _ := r.Column("title")
	assert.Zero(t, title.Missing)
	assert.Nil(t, title.Numeric)

	category, _ := r.Column("category")
	assert.Equal(t, 8, category.Missing)
	assert.Equal(t, 100.0, category.MissingPct)

	assert.Len(t, r.Columns, len(provider.Columns))
}

func TestAudit_Outliers(t *testing.T) {
	r := Audit(sampleResult(), Options{Now: fixedNow})

	price, _ := r.Column("price_eur")
	require.NotNil(t, price.Numeric)
	n := price.Numeric
	// 10 11 12 13 14 20 25 100
	assert.Equal(t, 8, n.Count)
	assert.Equal(t, 11.75, n.Q1)
	assert.Equal(t, 21.25, n.Q3)
	assert.Equal(t, 9.5, n.IQR)
	assert.Equal(t, 35.5, n.UpperFence)
	assert.Equal(t, 1, n.Outliers)
	assert.Equal(t, []int{5}, n.OutlierRows)

	discount, _ := r.Column("discount_pct")
	assert.Equal(t, 6, discount.Numeric.Count, "only reliable discounts are measured")
}

func TestAudit_Reliability(t *testing.T) {
	r := Audit(sampleResult(), Options{Now: fixedNow})

	require.Len(t, r.Sources, 2)
	assert.Equal(t, SourceReliability{Source: provider.SourceSteam, Rows: 6}, r.Sources[0])
	assert.Equal(t, SourceReliability{
		Source:        provider.SourceEpicGames,
		Rows:          2,
		Unreliable:    2,
		UnreliablePct: 100,
		AllUnreliable: true,
	}, r.Sources[1])
	assert.Equal(t, []provider.SourceID{provider.SourceEpicGames}, r.UnreliableSources)
}

func TestAudit_SkippedGroups(t *testing.T) {
	r := Audit(sampleResult(), Options{Now: fixedNow, Samples: 1})

	require.Len(t, r.Skipped, 2)
	assert.Equal(t, "NormalizationError: missing title", r.Skipped[0].Reason)
	assert.Equal(t, 2, r.Skipped[0].Count)
	assert.Len(t, r.Skipped[0].Samples, 1)
	assert.Equal(t, 7, r.Skipped[0].Samples[0].Row)
	assert.Equal(t, "NormalizationError: unparseable price", r.Skipped[1].Reason)
}

func TestAudit_DoesNotModifyInput(t *testing.T) {
	res := sampleResult()
	before := append([]provider.Record(nil), res.Records...)
	Audit(res, Options{Now: fixedNow, NearDuplicateThreshold: 0.9})
	assert.Equal(t, before, res.Records)
}

func TestAudit_GeneratesRunID(t *testing.T) {
	r := Audit(assemble.Result{}, Options{})
	_, err := uuid.Parse(r.RunID)
	assert.NoError(t, err)
	assert.Empty(t, r.UnreliableSources)
	assert.NotNil(t, r.UnreliableSources)
}

func TestNearDuplicates(t *testing.T) {
	records := []provider.Record{
		steamRecord("Elden Ring", 40, 0),
		steamRecord("ELDEN RING", 40, 0),
		steamRecord("Elden Ring", 40, 0),
		steamRecord("Hades", 20, 0),
		steamRecord("Hades II", 25, 0),
		epicRecord("Elden Ring", 40),
	}

	nd := findNearDuplicates(records, 0.97, 5)
	assert.Equal(t, 1, nd.Count)
	require.Len(t, nd.Samples, 1)
	assert.Equal(t, NearDuplicate{
		Source:     provider.SourceSteam,
		Left:       "Elden Ring",
		Right:      "ELDEN RING",
		Similarity: 1,
	}, nd.Samples[0])

	disabled := findNearDuplicates(records, 0, 5)
	assert.Zero(t, disabled.Count)
}

func TestQuantile(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	assert.Equal(t, 1.75, quantile(data, 0.25))
	assert.Equal(t, 2.5, quantile(data, 0.5))
	assert.Equal(t, 3.25, quantile(data, 0.75))
	assert.Equal(t, 7.0, quantile([]float64{7}, 0.75))
}

func TestRender(t *testing.T) {
	r := Audit(sampleResult(), Options{RunID: "run-1", Now: fixedNow, NearDuplicateThreshold: 0.97})
	rows := features.Build(sampleResult().Records, features.DefaultOptions())
	r.AddFeatures(rows)

	var buf bytes.Buffer
	Render(&buf, r)
	out := buf.String()
	assert.Contains(t, out, "Run run-1")
	assert.Contains(t, out, "epic_games")
	assert.Contains(t, out, "NormalizationError: missing title")
	assert.Contains(t, out, "Budget")

	require.NotNil(t, r.Features)
	assert.Equal(t, 3, r.Features.HasDiscount)
	assert.Equal(t, 1, r.Features.HighDiscount)
}
