package provider

import (
	"regexp"
	"strings"
	"time"
)

const isoDate = "2006-01-02"

var (
	reXbox        = regexp.MustCompile(`(?i)\bxbox\b`)
	rePlayStation = regexp.MustCompile(`(?i)\b(ps[1-5]|playstation|ps vita|ps vr|psn)\b`)
	reSwitch      = regexp.MustCompile(`(?i)\b(nintendo|switch)\b`)
	rePC          = regexp.MustCompile(`(?i)\b(pc|windows|win|steam|mac|macos|linux|steamos)\b`)
	reStorefront  = regexp.MustCompile(`\(([^)]+)\)\s*$`)
)

// releaseLayouts are tried in order when parsing release dates.
var releaseLayouts = []string{
	isoDate,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2 Jan, 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 January 2006",
	"01/02/06",
	"01/02/2006",
}

// resolvePlatform derives the canonical platform for a record.
func resolvePlatform(m Mapping, raw RawRecord, title string) Platform {
	switch m.Platform {
	case PlatformFromField:
		if s, ok := lookupString(raw, m.PlatformFields); ok {
			if p := platformFromList(s); p != PlatformUnknown {
				return p
			}
		}
	case PlatformFromTitle:
		if p := matchPlatform(title); p != PlatformUnknown {
			return p
		}
	}
	return m.DefaultPlatform
}

// platformFromList maps a list such as "Windows, MacOS / Linux" to the first
// recognizable platform.
func platformFromList(s string) Platform {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '/' || r == '|' })
	for _, part := range parts {
		if p := matchPlatform(part); p != PlatformUnknown {
			return p
		}
	}
	return PlatformUnknown
}

// matchPlatform recognizes a platform mention in free text. Consoles are
// checked first so "Xbox Series X|S (PC Game Pass)" is Xbox.
func matchPlatform(s string) Platform {
	switch {
	case reXbox.MatchString(s):
		return PlatformXbox
	case rePlayStation.MatchString(s):
		return PlatformPlayStation
	case reSwitch.MatchString(s):
		return PlatformSwitch
	case rePC.MatchString(s):
		return PlatformPC
	}
	return PlatformUnknown
}

// resolveStorefront returns the reseller storefront, honoring a trailing
// "(Steam)" suffix for sources that embed it in the title.
func resolveStorefront(m Mapping, title string) string {
	if m.StorefrontFromTitle {
		if sub := reStorefront.FindStringSubmatch(title); sub != nil {
			if s := strings.TrimSpace(sub[1]); s != "" {
				return s
			}
		}
	}
	return m.Storefront
}

func mentionsPreorder(s string) bool {
	return containsFold(s, "pre-order", "preorder", "pre order")
}

// parseReleaseDate parses the release date formats seen across storefronts.
func parseReleaseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range releaseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// Timestamps with an unexpected time part: keep the date.
	if len(s) > 10 && (s[10] == 'T' || s[10] == ' ') {
		if t, err := time.Parse(isoDate, s[:10]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ValidReleaseDate reports whether s is an ISO 8601 calendar date.
func ValidReleaseDate(s string) bool {
	_, err := time.Parse(isoDate, s)
	return err == nil
}

func lowerTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
