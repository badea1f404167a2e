package assemble

import (
	"fmt"
	"math"
	"strings"

	"github.com/albapepper/gamedeals-data/internal/provider"
)

// Schema violation reasons.
const (
	ReasonUnknownSource           = "unknown source"
	ReasonSourceMismatch          = "source mismatch"
	ReasonMissingTitle            = "missing title"
	ReasonInvalidPlatform         = "invalid platform"
	ReasonNegativePrice           = "negative price"
	ReasonInvalidPrice            = "invalid price"
	ReasonOriginalBelowPrice      = "original below price"
	ReasonDiscountOutOfRange      = "discount out of range"
	ReasonInvalidDiscountSentinel = "invalid discount sentinel"
	ReasonInvalidReleaseDate      = "invalid release date"
)

// SchemaViolation reports a normalized record that breaks a canonical
// invariant. Like a normalization failure it only skips the record.
type SchemaViolation struct {
	Source provider.SourceID
	Title  string
	Field  string
	Reason string
}

func (e *SchemaViolation) Error() string {
	return fmt.Sprintf("%s record %q: %s (%s)", e.Source, e.Title, e.Reason, e.Field)
}

// ReasonCode is the reason as it appears in the skipped-records list.
func (e *SchemaViolation) ReasonCode() string {
	return "SchemaViolation: " + e.Reason
}

// Validate checks a record from the table of the given source against the
// canonical invariants.
func Validate(source provider.SourceID, r provider.Record) *SchemaViolation {
	fail := func(field, reason string) *SchemaViolation {
		return &SchemaViolation{Source: source, Title: r.Title, Field: field, Reason: reason}
	}

	if _, ok := provider.Lookup(r.Source); !ok {
		return fail("source", ReasonUnknownSource)
	}
	if r.Source != source {
		return fail("source", ReasonSourceMismatch)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fail("title", ReasonMissingTitle)
	}
	if !r.Platform.Valid() {
		return fail("platform", ReasonInvalidPlatform)
	}

	if v := checkMoney(r.PriceEUR); v != "" {
		return fail("price_eur", v)
	}
	if r.PriceUSD != nil {
		if v := checkMoney(*r.PriceUSD); v != "" {
			return fail("price_usd", v)
		}
	}
	if r.OriginalPriceEUR != nil {
		if v := checkMoney(*r.OriginalPriceEUR); v != "" {
			return fail("original_price_eur", v)
		}
		if *r.OriginalPriceEUR < r.PriceEUR {
			return fail("original_price_eur", ReasonOriginalBelowPrice)
		}
	}

	if r.DiscountReliable {
		if math.IsNaN(r.DiscountPct) || r.DiscountPct < 0 || r.DiscountPct > 100 {
			return fail("discount_pct", ReasonDiscountOutOfRange)
		}
	} else if r.DiscountPct != provider.DiscountSentinel {
		return fail("discount_pct", ReasonInvalidDiscountSentinel)
	}

	if r.ReleaseDate != "" && !provider.ValidReleaseDate(r.ReleaseDate) {
		return fail("release_date", ReasonInvalidReleaseDate)
	}
	return nil
}

func checkMoney(v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return ReasonInvalidPrice
	case v < 0:
		return ReasonNegativePrice
	}
	return ""
}
