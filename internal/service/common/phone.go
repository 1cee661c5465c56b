package common

import "strings"

// DefaultCountryCode is prefixed to numbers that do not carry one.
const DefaultCountryCode = "34"

// minPhoneDigits rejects placeholders such as "0" or "N/A".
const minPhoneDigits = 6

// NormalizePhone reduces a phone number to +<country><subscriber>.
// It returns "" when the input has too few digits to be dialable.
func NormalizePhone(raw, countryCode string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < minPhoneDigits {
		return ""
	}
	if strings.HasPrefix(digits, countryCode) {
		return "+" + digits
	}
	return "+" + countryCode + digits
}

// DigitsOnly strips formatting so numbers can be compared loosely.
func DigitsOnly(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
