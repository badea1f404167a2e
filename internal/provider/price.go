package provider

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

var (
	reAmount   = regexp.MustCompile(`\d(?:[\d.,' ]*\d)?`)
	rePercent  = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	hundred    = decimal.NewFromInt(100)
	moneyScale = int32(2)
)

// currencyTokens are matched against the upper-cased non-numeric part of a
// price cell. Longer tokens come first so "US$" wins over "$".
var currencyTokens = []struct {
	token    string
	currency Currency
}{
	{"US$", USD},
	{"€", EUR},
	{"£", GBP},
	{"₹", INR},
	{"$", USD},
	{"EUR", EUR},
	{"USD", USD},
	{"GBP", GBP},
	{"INR", INR},
	{"RS.", INR},
	{"RS", INR},
}

// money is a parsed price cell. An empty currency means the cell did not
// state one and the source's native currency applies.
type money struct {
	amount   decimal.Decimal
	currency Currency
}

// parseMoney parses a raw price value. Strings may carry currency symbols or
// codes, thousands separators and either decimal convention; "Free" in any
// form is zero. native is the currency assumed when the cell states none.
// The returned reason is empty on success.
func parseMoney(val interface{}, native Currency) (money, string) {
	if s, ok := val.(string); ok {
		return parseMoneyText(s, native)
	}
	if f, ok := ExtractValue(val); ok {
		return money{amount: decimal.NewFromFloat(f)}, ""
	}
	return money{}, ReasonUnparseablePrice
}

// parseMoneyText parses a price string. A cell holding several amounts in one
// currency and nothing else ("£25.99 £39.99", current price first) yields the
// first amount; several amounts mixed with other text are unparseable.
func parseMoneyText(raw string, native Currency) (money, string) {
	s := normalizeMoneyText(raw)
	if containsFold(s, "free") {
		return money{amount: decimal.Zero}, ""
	}

	locs := reAmount.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return money{}, ReasonUnparseablePrice
	}
	first := locs[0]
	negative := strings.Contains(s[:first[0]], "-")

	var sb strings.Builder
	prev := 0
	for _, loc := range locs {
		sb.WriteString(s[prev:loc[0]])
		sb.WriteString(" ")
		prev = loc[1]
	}
	sb.WriteString(s[prev:])
	rest := strings.ReplaceAll(strings.ToUpper(sb.String()), "-", "")

	var currency Currency
	for _, ct := range currencyTokens {
		if !strings.Contains(rest, ct.token) {
			continue
		}
		if currency != "" && currency != ct.currency {
			return money{}, ReasonUnmappableCurrency
		}
		currency = ct.currency
		rest = strings.ReplaceAll(rest, ct.token, "")
	}
	if strings.Trim(rest, " .:*+/") != "" {
		if len(locs) > 1 {
			return money{}, ReasonUnparseablePrice
		}
		return money{}, ReasonUnmappableCurrency
	}

	decimalComma := currency == EUR || (currency == "" && native == EUR)
	amount, err := decimal.NewFromString(normalizeSeparators(s[first[0]:first[1]], decimalComma))
	if err != nil {
		return money{}, ReasonUnparseablePrice
	}
	if negative {
		amount = amount.Neg()
	}
	return money{amount: amount, currency: currency}, ""
}

// normalizeSeparators rewrites a numeric token to plain "1234.56" form.
//
// When both separators occur, whichever comes last is the decimal point.
// A lone comma followed by exactly three digits is a thousands separator
// ("₹3,249"), any other lone comma is a decimal comma ("55,49 €"). In a
// decimal-comma currency a lone dot followed by exactly three digits is a
// thousands separator too ("1.299 €"), unless the integer part is zero.
func normalizeSeparators(tok string, decimalComma bool) string {
	tok = strings.NewReplacer(" ", "", "'", "").Replace(tok)
	lastComma := strings.LastIndex(tok, ",")
	lastDot := strings.LastIndex(tok, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			tok = strings.ReplaceAll(tok, ".", "")
			return strings.Replace(tok, ",", ".", 1)
		}
		return strings.ReplaceAll(tok, ",", "")
	case lastComma >= 0:
		if strings.Count(tok, ",") == 1 && len(tok)-lastComma-1 != 3 {
			return strings.Replace(tok, ",", ".", 1)
		}
		return strings.ReplaceAll(tok, ",", "")
	case strings.Count(tok, ".") > 1:
		return strings.ReplaceAll(tok, ".", "")
	case lastDot >= 0 && decimalComma && len(tok)-lastDot-1 == 3 && strings.TrimLeft(tok[:lastDot], "0") != "":
		return strings.Replace(tok, ".", "", 1)
	}
	return tok
}

// parseDiscount reads a discount percentage ("-15%", "15", 15.0) as a
// positive number.
func parseDiscount(val interface{}) (decimal.Decimal, bool) {
	switch v := val.(type) {
	case string:
		m := rePercent.FindString(normalizeMoneyText(v))
		if m == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(strings.Replace(m, ",", ".", 1))
		if err != nil {
			return decimal.Zero, false
		}
		return d.Abs(), true
	case bool:
		return decimal.Zero, false
	}
	f, err := cast.ToFloat64E(val)
	if err != nil {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f).Abs(), true
}

// roundMoney rounds to cents and returns the float form stored in Records.
func roundMoney(d decimal.Decimal) float64 {
	return d.Round(moneyScale).InexactFloat64()
}
