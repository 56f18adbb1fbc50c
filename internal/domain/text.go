package domain

import "unicode/utf8"

// Column widths of the free-text fields, in characters.
const (
	MaxMerchantLen      = 255
	MaxDescriptionLen   = 255
	MaxVendorLen        = 100
	MaxSourceLen        = 100
	MaxBudgetNameLen    = 100
	MaxPaymentMethodLen = 50
)

// Truncate cuts s to at most n characters.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func tooLong(s string, n int) bool {
	return utf8.RuneCountInString(s) > n
}
