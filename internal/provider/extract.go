package provider

import (
	"strings"

	"github.com/spf13/cast"
)

// blankMarkers are placeholder strings scrapers write for "no value".
var blankMarkers = map[string]bool{
	"":     true,
	"n/a":  true,
	"na":   true,
	"nan":  true,
	"none": true,
	"null": true,
	"nil":  true,
}

// isBlank reports whether a raw value carries no information.
func isBlank(val interface{}) bool {
	if val == nil {
		return true
	}
	switch v := val.(type) {
	case string:
		return blankMarkers[strings.ToLower(strings.TrimSpace(v))]
	case map[string]interface{}:
		return len(v) == 0
	}
	return false
}

// lookup returns the first present, non-blank value among keys.
func lookup(raw RawRecord, keys []string) (interface{}, string, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && !isBlank(v) {
			return v, k, true
		}
	}
	return nil, "", false
}

// lookupString is lookup coerced to a trimmed string.
func lookupString(raw RawRecord, keys []string) (string, bool) {
	v, _, ok := lookup(raw, keys)
	if !ok {
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// lookupText is lookupString for free-text fields. Placeholder markers such
// as "none" are real values here ("None", "NA" are valid game titles); only
// missing, null or whitespace-only cells count as absent.
func lookupText(raw RawRecord, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok || v == nil {
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, true
		}
	}
	return "", false
}

// ExtractValue normalizes a numeric value from the shapes scrapers emit.
//
// CSV sources deliver strings, JSON Lines sources deliver float64 or bool, and
// the GOG catalog API nests amounts as {"finalAmount": "9.99", ...}. This
// handles all of them and returns ok=false if no number can be extracted.
// Currency-bearing strings are handled by parseMoney, not here.
func ExtractValue(val interface{}) (float64, bool) {
	if val == nil {
		return 0, false
	}

	switch v := val.(type) {
	case bool:
		return 0, false
	case string:
		s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%"))
		if s == "" {
			return 0, false
		}
		f, err := cast.ToFloat64E(s)
		if err != nil {
			return 0, false
		}
		return f, true
	case map[string]interface{}:
		for _, key := range []string{"finalAmount", "amount", "value", "total"} {
			if inner, exists := v[key]; exists && inner != nil {
				return ExtractValue(inner)
			}
		}
		return 0, false
	default:
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, false
		}
		return f, true
	}
}

// containsFold reports whether s contains any needle, case-insensitively.
func containsFold(s string, needles ...string) bool {
	lower := strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
