package provider

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Normalization failure reasons. These are stable and appear in reports.
const (
	ReasonMissingTitle       = "missing title"
	ReasonMissingPrice       = "missing price"
	ReasonUnparseablePrice   = "unparseable price"
	ReasonUnmappableCurrency = "unmappable currency"
)

// ErrUnknownSource is returned for a source identifier with no mapping.
var ErrUnknownSource = errors.New("unknown source")

// ErrMissingRate is returned when a source priced in a foreign currency has no
// conversion rate. Callers treat it as a configuration problem, not a
// per-record one.
var ErrMissingRate = errors.New("missing currency rate")

// NormalizationError reports a raw record that cannot become a Record.
// It is recoverable: the caller skips the record and continues.
type NormalizationError struct {
	Source SourceID
	Reason string
	Field  string
	Value  string
}

func (e *NormalizationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("normalize %s record: %s (%s=%q)", e.Source, e.Reason, e.Field, e.Value)
	}
	return fmt.Sprintf("normalize %s record: %s", e.Source, e.Reason)
}

// ReasonCode is the reason as it appears in the skipped-records list.
func (e *NormalizationError) ReasonCode() string {
	return "NormalizationError: " + e.Reason
}

// Skipped is a record excluded from the combined table, with the reason code.
// Row is the zero-based position within the record's source table.
type Skipped struct {
	Source SourceID `json:"source"`
	Row    int      `json:"row"`
	Title  string   `json:"title,omitempty"`
	Reason string   `json:"reason"`
	Detail string   `json:"detail,omitempty"`
}

// Options are the conversion settings the normalizer needs.
type Options struct {
	// Rates converts each source's native currency to EUR.
	Rates map[SourceID]float64
	// ExchangeRates converts an explicitly stated foreign currency to EUR.
	ExchangeRates map[Currency]float64
	// EURToUSD derives price_usd for cells not priced in USD.
	EURToUSD float64
	// AsOf is the reference date for "future release" preorder inference.
	// Zero disables date-based inference.
	AsOf time.Time
}

// Normalizer converts raw records into canonical Records. It holds no mutable
// state and is safe for concurrent use.
type Normalizer struct {
	rates         map[SourceID]decimal.Decimal
	exchangeRates map[Currency]decimal.Decimal
	eurToUSD      decimal.Decimal
	asOf          time.Time
}

// NewNormalizer creates a Normalizer, copying the option maps.
func NewNormalizer(opts Options) *Normalizer {
	n := &Normalizer{
		rates:         make(map[SourceID]decimal.Decimal, len(opts.Rates)),
		exchangeRates: make(map[Currency]decimal.Decimal, len(opts.ExchangeRates)),
		eurToUSD:      decimal.NewFromFloat(opts.EURToUSD),
	}
	for id, r := range opts.Rates {
		n.rates[id] = decimal.NewFromFloat(r)
	}
	for c, r := range opts.ExchangeRates {
		n.exchangeRates[c] = decimal.NewFromFloat(r)
	}
	if !opts.AsOf.IsZero() {
		y, m, d := opts.AsOf.Date()
		n.asOf = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return n
}

// CheckSource reports configuration problems for a source before any record
// is processed: an unknown identifier or a missing conversion rate.
func (n *Normalizer) CheckSource(id SourceID) error {
	m, ok := Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, id)
	}
	if m.NeedsConversion() {
		if _, ok := n.rates[id]; !ok {
			return fmt.Errorf("%w: source %q prices in %s", ErrMissingRate, id, m.NativeCurrency)
		}
	}
	return nil
}

// Normalize converts one raw record from the given source.
// Per-record problems are returned as *NormalizationError.
func (n *Normalizer) Normalize(id SourceID, raw RawRecord) (Record, error) {
	if err := n.CheckSource(id); err != nil {
		return Record{}, err
	}
	m, _ := Lookup(id)

	title, _ := lookupText(raw, m.Title)
	title = normalizeTitle(title)
	if title == "" {
		return Record{}, &NormalizationError{Source: id, Reason: ReasonMissingTitle, Field: "title"}
	}

	priceVal, priceKey, ok := lookup(raw, m.Price)
	if !ok {
		return Record{}, &NormalizationError{Source: id, Reason: ReasonMissingPrice, Field: "price"}
	}
	price, reason := parseMoney(priceVal, m.NativeCurrency)
	if reason != "" {
		return Record{}, &NormalizationError{Source: id, Reason: reason, Field: priceKey, Value: fmt.Sprint(priceVal)}
	}
	cellCurrency, reason := n.resolveCurrency(m, raw, price.currency)
	if reason != "" {
		return Record{}, &NormalizationError{Source: id, Reason: reason, Field: priceKey, Value: fmt.Sprint(priceVal)}
	}
	priceEUR, priceUSD, reason := n.convert(m, price.amount, cellCurrency)
	if reason != "" {
		return Record{}, &NormalizationError{Source: id, Reason: reason, Field: priceKey, Value: fmt.Sprint(priceVal)}
	}

	rec := Record{
		Source:     id,
		Title:      title,
		Platform:   resolvePlatform(m, raw, title),
		Storefront: resolveStorefront(m, title),
		IsPreorder: n.resolvePreorder(m, raw, title),
		PriceEUR:   roundMoney(priceEUR),
		PriceUSD:   Float(roundMoney(priceUSD)),
	}
	rec.ProductURL, _ = lookupString(raw, m.URL)
	rec.Category = resolveCategory(m, raw)
	if s, ok := lookupString(raw, m.ReleaseDate); ok {
		if t, ok := parseReleaseDate(s); ok {
			rec.ReleaseDate = t.Format(isoDate)
		}
	}

	n.applyDiscount(&rec, m, raw, cellCurrency)
	return rec, nil
}

// applyDiscount fills OriginalPriceEUR, DiscountPct and DiscountReliable.
//
// A discount is only reliable when it comes from a usable original price or
// discount cell. A cell that is present but unreadable leaves it unknown, as
// does a percentage on a free price, which says nothing about the original.
// Only a row with both cells blank gets the not-on-sale default.
func (n *Normalizer) applyDiscount(rec *Record, m Mapping, raw RawRecord, fallback Currency) {
	rec.DiscountPct = DiscountSentinel
	rec.DiscountReliable = false
	if !m.SupportsDiscount() {
		return
	}

	price := decimal.NewFromFloat(rec.PriceEUR)
	orig, origPresent, ok := n.originalEUR(m, raw, fallback)
	if ok {
		discount := decimal.Zero
		if !orig.IsZero() {
			discount = decimal.NewFromInt(1).Sub(price.Div(orig)).Mul(hundred)
		}
		rec.OriginalPriceEUR = Float(roundMoney(orig))
		rec.DiscountPct = discount.Round(2).InexactFloat64()
		rec.DiscountReliable = true
		return
	}

	if v, _, present := lookup(raw, m.Discount); present {
		d, ok := parseDiscount(v)
		if !ok || (price.IsZero() && !d.IsZero()) {
			return
		}
		rec.DiscountPct = d.Round(2).InexactFloat64()
		rec.DiscountReliable = true
		if d.LessThan(hundred) {
			orig := price.Div(decimal.NewFromInt(1).Sub(d.Div(hundred)))
			rec.OriginalPriceEUR = Float(roundMoney(orig))
		}
		return
	}

	if m.BlankDiscountMeansNone && !origPresent {
		rec.DiscountPct = 0
		rec.DiscountReliable = true
		rec.OriginalPriceEUR = Float(rec.PriceEUR)
	}
}

// originalEUR parses and converts the original-price cell. The second result
// reports a non-blank cell, the third that it could be used.
func (n *Normalizer) originalEUR(m Mapping, raw RawRecord, fallback Currency) (decimal.Decimal, bool, bool) {
	v, _, ok := lookup(raw, m.OriginalPrice)
	if !ok {
		return decimal.Zero, false, false
	}
	orig, reason := parseMoney(v, fallback)
	if reason != "" {
		return decimal.Zero, true, false
	}
	cur := orig.currency
	if cur == "" {
		cur = fallback
	}
	eur, _, reason := n.convert(m, orig.amount, cur)
	if reason != "" {
		return decimal.Zero, true, false
	}
	return eur.Round(moneyScale), true, true
}

// resolveCurrency picks the currency of a price cell: stated in the cell,
// else stated in the source's currency column, else the native currency.
func (n *Normalizer) resolveCurrency(m Mapping, raw RawRecord, stated Currency) (Currency, string) {
	if stated != "" {
		return stated, ""
	}
	if code, ok := lookupString(raw, m.Currency); ok {
		c, ok := parseCurrencyCode(code)
		if !ok {
			return "", ReasonUnmappableCurrency
		}
		return c, ""
	}
	return m.NativeCurrency, ""
}

// convert returns (EUR, USD) amounts for an amount in currency cur.
func (n *Normalizer) convert(m Mapping, amount decimal.Decimal, cur Currency) (decimal.Decimal, decimal.Decimal, string) {
	var rate decimal.Decimal
	switch {
	case cur == EUR:
		rate = decimal.NewFromInt(1)
	case cur == m.NativeCurrency:
		r, ok := n.rates[m.ID]
		if !ok {
			return decimal.Zero, decimal.Zero, ReasonUnmappableCurrency
		}
		rate = r
	default:
		r, ok := n.exchangeRates[cur]
		if !ok {
			return decimal.Zero, decimal.Zero, ReasonUnmappableCurrency
		}
		rate = r
	}

	eur := amount.Mul(rate)
	usd := eur.Mul(n.eurToUSD)
	if cur == USD {
		usd = amount
	}
	return eur, usd, ""
}

func parseCurrencyCode(code string) (Currency, bool) {
	p, reason := parseMoneyText("0 "+code, "")
	if reason != "" || p.currency == "" {
		return "", false
	}
	return p.currency, true
}

func resolveCategory(m Mapping, raw RawRecord) string {
	c, ok := lookupString(raw, m.Category)
	if !ok {
		return ""
	}
	if m.LowercaseCategory {
		c = lowerTrim(c)
	}
	return c
}

func (n *Normalizer) resolvePreorder(m Mapping, raw RawRecord, title string) bool {
	switch m.Preorder {
	case PreorderFromTitle:
		return mentionsPreorder(title)
	case PreorderFromField:
		s, ok := lookupString(raw, m.PreorderFields)
		return ok && mentionsPreorder(s)
	case PreorderFromReleaseDate:
		s, ok := lookupString(raw, m.ReleaseDate)
		if !ok {
			return false
		}
		if containsFold(s, "coming soon", "tba", "to be announced") {
			return true
		}
		if n.asOf.IsZero() {
			return false
		}
		t, ok := parseReleaseDate(s)
		return ok && t.After(n.asOf)
	}
	return false
}

// NormalizeTable normalizes every raw record of one source, preserving order.
// Records that fail are returned as Skipped with their reason code. The error
// is non-nil only for configuration problems, in which case no records are
// returned.
func (n *Normalizer) NormalizeTable(id SourceID, raws []RawRecord) ([]Record, []Skipped, error) {
	if err := n.CheckSource(id); err != nil {
		return nil, nil, err
	}

	records := make([]Record, 0, len(raws))
	var skipped []Skipped
	for i, raw := range raws {
		rec, err := n.Normalize(id, raw)
		if err != nil {
			var nerr *NormalizationError
			if !errors.As(err, &nerr) {
				return nil, nil, err
			}
			title, _ := lookupText(raw, mustLookup(id).Title)
			skipped = append(skipped, Skipped{
				Source: id,
				Row:    i,
				Title:  normalizeTitle(title),
				Reason: nerr.ReasonCode(),
				Detail: nerr.Error(),
			})
			continue
		}
		records = append(records, rec)
	}
	return records, skipped, nil
}

func mustLookup(id SourceID) Mapping {
	m, ok := Lookup(id)
	if !ok {
		panic(fmt.Sprintf("provider: no mapping for %q", id))
	}
	return m
}
