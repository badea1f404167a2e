package provider

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/unicode/norm"
)

// repairMojibake undoes the common "UTF-8 bytes decoded as Windows-1252"
// corruption found in some scraper exports ("â‚¹3,249" for "₹3,249",
// "Â£25.99" for "£25.99"). Strings that do not round-trip to valid UTF-8 are
// returned unchanged.
func repairMojibake(s string) string {
	if !strings.ContainsAny(s, "ÃÂâ") {
		return s
	}
	enc, err := charmap.Windows1252.NewEncoder().String(s)
	if err != nil || enc == s || !utf8.ValidString(enc) {
		return s
	}
	return enc
}

// normalizeTitle returns the display title: repaired, NFC-composed, with runs
// of whitespace collapsed to one space.
func normalizeTitle(s string) string {
	s = norm.NFC.String(repairMojibake(s))
	return strings.Join(strings.Fields(s), " ")
}

// normalizeMoneyText prepares a price cell for parsing. NFKC folds
// non-breaking spaces and full-width digits to their ASCII forms.
func normalizeMoneyText(s string) string {
	s = norm.NFKC.String(repairMojibake(s))
	return strings.TrimSpace(s)
}
