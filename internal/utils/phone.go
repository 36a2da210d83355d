package utils

import "strings"

// NormalizePhone strips everything but digits and turns a local leading 0
// into the given country code, e.g. 0812... -> 62812... for "62".
// Returns "" when the result is not 8-15 digits long.
func NormalizePhone(raw, countryCode string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if countryCode != "" && strings.HasPrefix(digits, "0") {
		digits = countryCode + strings.TrimPrefix(digits, "0")
	}
	if len(digits) < 8 || len(digits) > 15 {
		return ""
	}
	return digits
}
