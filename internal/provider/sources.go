package provider

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 code for the currencies the storefronts price in.
type Currency string

const (
	EUR Currency = "EUR"
	USD Currency = "USD"
	GBP Currency = "GBP"
	INR Currency = "INR"
)

// PlatformRule selects how a source's platform column is derived.
type PlatformRule int

const (
	PlatformFixed     PlatformRule = iota // always Mapping.DefaultPlatform
	PlatformFromField                     // parsed from Mapping.PlatformFields
	PlatformFromTitle                     // inferred from the listing title
)

// PreorderRule selects how is_preorder is derived.
type PreorderRule int

const (
	PreorderNever           PreorderRule = iota
	PreorderFromTitle                    // title mentions pre-order
	PreorderFromField                    // Mapping.PreorderFields mention pre-order
	PreorderFromReleaseDate              // release date is in the future or "coming soon"
)

// Mapping is the static adapter description for one source. Each field list
// holds raw key aliases tried in order; the first present, non-blank key wins.
type Mapping struct {
	ID             SourceID
	Storefront     string
	NativeCurrency Currency

	Title         []string
	Price         []string
	OriginalPrice []string
	Discount      []string
	Currency      []string
	URL           []string
	Category      []string
	ReleaseDate   []string

	Platform        PlatformRule
	PlatformFields  []string
	DefaultPlatform Platform

	Preorder       PreorderRule
	PreorderFields []string

	// StorefrontFromTitle takes the reseller storefront from a trailing
	// "(Steam)" style suffix of the title when present.
	StorefrontFromTitle bool
	// BlankDiscountMeansNone treats a row with neither an original price nor a
	// discount as "not on sale" rather than unknown. Only valid for sources
	// whose listings show a discount badge on every sale item.
	BlankDiscountMeansNone bool
	LowercaseCategory      bool
}

// SupportsDiscount reports whether the source can ever supply an original
// price or a discount. Sources that cannot are unreliable on every row.
func (m Mapping) SupportsDiscount() bool {
	return len(m.OriginalPrice) > 0 || len(m.Discount) > 0
}

// NeedsConversion reports whether prices must be converted to EUR.
func (m Mapping) NeedsConversion() bool {
	return m.NativeCurrency != EUR
}

// --------------------------------------------------------------------------
// Source registry
// --------------------------------------------------------------------------

var (
	titleKeys = []string{"title", "name"}
	urlKeys   = []string{"product_url", "url"}
)

var registry = []Mapping{
	{
		ID:                     SourceSteam,
		Storefront:             "Steam",
		NativeCurrency:         USD,
		Title:                  titleKeys,
		Price:                  []string{"price_raw", "price"},
		OriginalPrice:          []string{"original_price", "original"},
		Discount:               []string{"discount_raw", "discount_pct", "discount"},
		URL:                    urlKeys,
		Category:               []string{"category"},
		ReleaseDate:            []string{"release_date"},
		Platform:               PlatformFixed,
		DefaultPlatform:        PlatformPC,
		Preorder:               PreorderFromReleaseDate,
		BlankDiscountMeansNone: true,
	},
	{
		ID:              SourceEpicGames,
		Storefront:      "Epic Games Store",
		NativeCurrency:  INR,
		Title:           []string{"name", "title"},
		Price:           []string{"price of game", "price"},
		URL:             urlKeys,
		ReleaseDate:     []string{"date release", "release_date"},
		Platform:        PlatformFromField,
		PlatformFields:  []string{"platform", "platforms"},
		DefaultPlatform: PlatformPC,
		Preorder:        PreorderNever,
	},
	{
		ID:              SourceXbox,
		Storefront:      "Microsoft Store",
		NativeCurrency:  USD,
		Title:           titleKeys,
		Price:           []string{"price_text", "price"},
		URL:             urlKeys,
		Category:        []string{"category"},
		Platform:        PlatformFixed,
		DefaultPlatform: PlatformXbox,
		Preorder:        PreorderFromTitle,
	},
	{
		ID:              SourceGOG,
		Storefront:      "GOG",
		NativeCurrency:  USD,
		Title:           titleKeys,
		Price:           []string{"price_final", "price"},
		OriginalPrice:   []string{"price_base", "original"},
		Discount:        []string{"discount_percentage", "discount"},
		Currency:        []string{"price_currency", "currency"},
		URL:             urlKeys,
		ReleaseDate:     []string{"release_date"},
		Platform:        PlatformFixed,
		DefaultPlatform: PlatformPC,
		Preorder:        PreorderNever,
	},
	{
		ID:                SourceLoaded,
		Storefront:        "Loaded/CDKeys",
		NativeCurrency:    GBP,
		Title:             titleKeys,
		Price:             []string{"price_raw", "price"},
		URL:               urlKeys,
		Category:          []string{"category"},
		Platform:          PlatformFromTitle,
		DefaultPlatform:   PlatformUnknown,
		Preorder:          PreorderFromTitle,
		LowercaseCategory: true,
	},
	{
		ID:                     SourceInstantGaming,
		Storefront:             "Instant Gaming",
		NativeCurrency:         EUR,
		Title:                  titleKeys,
		Price:                  []string{"price_raw", "price"},
		OriginalPrice:          []string{"original"},
		Discount:               []string{"discount"},
		URL:                    urlKeys,
		Platform:               PlatformFromTitle,
		DefaultPlatform:        PlatformUnknown,
		Preorder:               PreorderFromField,
		PreorderFields:         []string{"preorder_info"},
		StorefrontFromTitle:    true,
		BlankDiscountMeansNone: true,
	},
}

var registryByID = func() map[SourceID]Mapping {
	m := make(map[SourceID]Mapping, len(registry))
	for _, entry := range registry {
		m[entry.ID] = entry
	}
	return m
}()

// Lookup returns the mapping for a source.
func Lookup(id SourceID) (Mapping, bool) {
	m, ok := registryByID[id]
	return m, ok
}

// Registry returns all mappings in canonical source order.
func Registry() []Mapping {
	out := make([]Mapping, 0, len(AllSources))
	for _, id := range AllSources {
		out = append(out, registryByID[id])
	}
	return out
}

// ParseSourceID resolves a user-supplied identifier (case-insensitive).
func ParseSourceID(s string) (SourceID, bool) {
	id := SourceID(strings.ToLower(strings.TrimSpace(s)))
	_, ok := registryByID[id]
	return id, ok
}

// ValidateRegistry checks that the closed set of sources and the mapping
// table agree exactly and that every mapping can resolve a title and a price.
func ValidateRegistry() error {
	if len(registryByID) != len(registry) {
		return fmt.Errorf("duplicate source in registry")
	}
	if len(registry) != len(AllSources) {
		return fmt.Errorf("registry has %d mappings for %d sources", len(registry), len(AllSources))
	}
	for _, id := range AllSources {
		m, ok := registryByID[id]
		if !ok {
			return fmt.Errorf("source %q has no mapping", id)
		}
		if len(m.Title) == 0 || len(m.Price) == 0 {
			return fmt.Errorf("source %q mapping lacks title or price keys", id)
		}
		if m.Storefront == "" {
			return fmt.Errorf("source %q mapping lacks storefront", id)
		}
		if !m.DefaultPlatform.Valid() {
			return fmt.Errorf("source %q has invalid default platform %q", id, m.DefaultPlatform)
		}
		if m.Platform == PlatformFromField && len(m.PlatformFields) == 0 {
			return fmt.Errorf("source %q derives platform from fields but lists none", id)
		}
		if m.Preorder == PreorderFromField && len(m.PreorderFields) == 0 {
			return fmt.Errorf("source %q derives preorder from fields but lists none", id)
		}
		if m.BlankDiscountMeansNone && !m.SupportsDiscount() {
			return fmt.Errorf("source %q treats blank discounts as none but has no discount keys", id)
		}
	}
	return nil
}
