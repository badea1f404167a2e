// Package provider defines the canonical record shape that every storefront
// normalizes into, together with the per-source adapters that perform that
// normalization. These types are the contract between the raw files produced
// by the scrapers and the assembler. Sources output raw maps, the normalizer
// turns them into Records, everything downstream only sees Records.
//
// Adding a new storefront means adding a SourceID and a mapping entry in
// sources.go. The assembler, auditor and feature builder never change.
package provider

// SourceID identifies the storefront a record was scraped from.
type SourceID string

const (
	SourceSteam         SourceID = "steam"
	SourceEpicGames     SourceID = "epic_games"
	SourceXbox          SourceID = "xbox"
	SourceGOG           SourceID = "gog"
	SourceLoaded        SourceID = "loaded"
	SourceInstantGaming SourceID = "instantgaming"
)

// AllSources lists every known source in canonical output order.
var AllSources = []SourceID{
	SourceSteam,
	SourceEpicGames,
	SourceXbox,
	SourceGOG,
	SourceLoaded,
	SourceInstantGaming,
}

// Platform is the normalized hardware platform of a listing.
type Platform string

const (
	PlatformPC          Platform = "PC"
	PlatformXbox        Platform = "Xbox"
	PlatformPlayStation Platform = "PlayStation"
	PlatformSwitch      Platform = "Switch"
	PlatformUnknown     Platform = "Unknown"
)

// Valid reports whether p is one of the canonical platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformPC, PlatformXbox, PlatformPlayStation, PlatformSwitch, PlatformUnknown:
		return true
	}
	return false
}

// DiscountSentinel is stored in DiscountPct when the source cannot supply a
// trustworthy discount. It is deliberately outside [0,100].
const DiscountSentinel = -1.0

// RawRecord is one row exactly as a scraper emitted it. Values are strings when
// read from CSV and JSON scalars when read from JSON Lines.
type RawRecord map[string]interface{}

// Record is the canonical listing shape written to the combined table.
// Optional money fields are pointers; optional strings use "" for absent.
type Record struct {
	Source           SourceID `json:"source"`
	Title            string   `json:"title"`
	Platform         Platform `json:"platform"`
	Storefront       string   `json:"storefront"`
	IsPreorder       bool     `json:"is_preorder"`
	PriceEUR         float64  `json:"price_eur"`
	PriceUSD         *float64 `json:"price_usd,omitempty"`
	OriginalPriceEUR *float64 `json:"original_price_eur,omitempty"`
	DiscountPct      float64  `json:"discount_pct"`
	DiscountReliable bool     `json:"discount_reliable"`
	ProductURL       string   `json:"product_url,omitempty"`
	Category         string   `json:"category,omitempty"`
	ReleaseDate      string   `json:"release_date,omitempty"` // "YYYY-MM-DD"
}

// Columns is the canonical column order used by writers and the auditor.
var Columns = []string{
	"source",
	"title",
	"platform",
	"storefront",
	"is_preorder",
	"price_eur",
	"price_usd",
	"original_price_eur",
	"discount_pct",
	"discount_reliable",
	"product_url",
	"category",
	"release_date",
}

// Field returns the value of a canonical column by name, using nil for absent
// optional values. The second result is false for unknown column names.
func (r Record) Field(column string) (interface{}, bool) {
	switch column {
	case "source":
		return string(r.Source), true
	case "title":
		return r.Title, true
	case "platform":
		return string(r.Platform), true
	case "storefront":
		return nilEmpty(r.Storefront), true
	case "is_preorder":
		return r.IsPreorder, true
	case "price_eur":
		return r.PriceEUR, true
	case "price_usd":
		return derefFloat(r.PriceUSD), true
	case "original_price_eur":
		return derefFloat(r.OriginalPriceEUR), true
	case "discount_pct":
		if !r.DiscountReliable {
			return nil, true
		}
		return r.DiscountPct, true
	case "discount_reliable":
		return r.DiscountReliable, true
	case "product_url":
		return nilEmpty(r.ProductURL), true
	case "category":
		return nilEmpty(r.Category), true
	case "release_date":
		return nilEmpty(r.ReleaseDate), true
	}
	return nil, false
}

// IsColumn reports whether name is a canonical column.
func IsColumn(name string) bool {
	for _, c := range Columns {
		if c == name {
			return true
		}
	}
	return false
}

// nilEmpty returns nil for empty strings.
func nilEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func derefFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

// Float returns a pointer to v. Used for optional money fields.
func Float(v float64) *float64 {
	return &v
}
