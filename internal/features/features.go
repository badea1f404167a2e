// Package features derives the engineered columns used by downstream analysis:
// discount flags, price tiers and savings.
package features

import (
	"github.com/shopspring/decimal"

	"github.com/albapepper/gamedeals-data/internal/provider"
)

// Tier is an ordered price bucket.
type Tier string

const (
	TierFree    Tier = "Free"
	TierBudget  Tier = "Budget"
	TierMid     Tier = "Mid"
	TierPremium Tier = "Premium"
	TierUltra   Tier = "Ultra"
)

// Tiers lists the buckets from cheapest to most expensive.
var Tiers = []Tier{TierFree, TierBudget, TierMid, TierPremium, TierUltra}

// Columns are the feature columns appended to the combined table.
var Columns = []string{"has_discount", "high_discount", "price_tier", "savings_eur"}

// Options configure the derived columns.
type Options struct {
	// DiscountThreshold is the inclusive lower bound for high_discount.
	DiscountThreshold float64
	// Boundaries are the four upper-inclusive tier edges: Free up to [0],
	// Budget up to [1], Mid up to [2], Premium up to [3], Ultra above.
	Boundaries []float64
}

// DefaultOptions returns threshold 25 and boundaries [0, 10, 30, 60].
func DefaultOptions() Options {
	return Options{
		DiscountThreshold: 25,
		Boundaries:        []float64{0, 10, 30, 60},
	}
}

// Features are the derived values for one record.
type Features struct {
	HasDiscount  bool     `json:"has_discount"`
	HighDiscount bool     `json:"high_discount"`
	PriceTier    Tier     `json:"price_tier"`
	SavingsEUR   *float64 `json:"savings_eur,omitempty"`
}

// Row is a canonical record with its features.
type Row struct {
	provider.Record
	Features
}

// Build computes features for every record, preserving order.
func Build(records []provider.Record, opts Options) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = Row{Record: r, Features: Compute(r, opts)}
	}
	return rows
}

// Compute derives the features of a single record. An unreliable discount
// never sets either discount flag, whatever value is stored.
func Compute(r provider.Record, opts Options) Features {
	f := Features{PriceTier: PriceTier(r.PriceEUR, opts.Boundaries)}
	if !r.DiscountReliable {
		return f
	}

	f.HasDiscount = r.DiscountPct > 0
	f.HighDiscount = r.DiscountPct >= opts.DiscountThreshold
	if r.OriginalPriceEUR != nil {
		savings := decimal.NewFromFloat(*r.OriginalPriceEUR).Sub(decimal.NewFromFloat(r.PriceEUR))
		f.SavingsEUR = provider.Float(savings.Round(2).InexactFloat64())
	}
	return f
}

// PriceTier buckets a EUR price. A price equal to a boundary belongs to the
// lower bucket, so 10.00 is Budget and 10.01 is Mid with the defaults.
func PriceTier(price float64, boundaries []float64) Tier {
	p := decimal.NewFromFloat(price)
	for i, b := range boundaries {
		if i >= len(Tiers)-1 {
			break
		}
		if p.LessThanOrEqual(decimal.NewFromFloat(b)) {
			return Tiers[i]
		}
	}
	return TierUltra
}

// TierCounts counts rows per tier. Every tier has an entry.
func TierCounts(rows []Row) map[Tier]int {
	counts := make(map[Tier]int, len(Tiers))
	for _, t := range Tiers {
		counts[t] = 0
	}
	for _, r := range rows {
		counts[r.PriceTier]++
	}
	return counts
}
