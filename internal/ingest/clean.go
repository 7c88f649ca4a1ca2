package ingest

import (
	"strconv"
	"strings"
)

// ParseNumber converts a formatted export cell into a float. It tolerates
// currency symbols, thousands separators, percent signs, accounting-style
// parenthesized negatives, and surrounding whitespace. The second return
// value reports whether a number was found.
func ParseNumber(s string) (float64, bool) {
	cleaned := strings.TrimSpace(s)
	if cleaned == "" || cleaned == "-" || strings.EqualFold(cleaned, "n/a") {
		return 0, false
	}

	negative := false
	if strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")") {
		negative = true
		cleaned = cleaned[1 : len(cleaned)-1]
	}

	cleaned = strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(cleaned)
	cleaned = strings.TrimSpace(cleaned)

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		v = -v
	}
	return v, true
}

// IsPercent reports whether a raw cell was expressed as a percentage.
func IsPercent(s string) bool {
	return strings.Contains(s, "%")
}
