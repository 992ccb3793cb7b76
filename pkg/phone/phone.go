// Package phone normalizes raw phone strings into the canonical 11-digit
// form used as the index key, and derives the partition prefix from it.
package phone

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPhone indicates the input cannot be reduced to a canonical phone.
var ErrInvalidPhone = errors.New("invalid phone number")

// PrefixLen is the number of leading digits of a canonical phone that
// select its partition.
const PrefixLen = 3

// Normalize reduces a raw phone string to the canonical form: exactly 11
// digits with a leading '7'. Accepted inputs after stripping non-digits:
//
//	10 digits            -> '7' is prepended
//	11 digits leading '8' -> leading digit replaced with '7'
//	11 digits leading '7' -> unchanged
//
// Anything else fails with ErrInvalidPhone. Normalize is idempotent over
// its own output.
func Normalize(raw string) (string, error) {
	digits := stripNonDigits(raw)

	switch {
	case len(digits) == 10:
		return "7" + digits, nil
	case len(digits) == 11 && digits[0] == '8':
		return "7" + digits[1:], nil
	case len(digits) == 11 && digits[0] == '7':
		return digits, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
	}
}

// Prefix returns the partition prefix of a canonical phone: its first
// PrefixLen digits. The input must already be canonical.
func Prefix(canonical string) string {
	if len(canonical) < PrefixLen {
		return canonical
	}
	return canonical[:PrefixLen]
}

// Format renders a canonical phone in the human-readable domestic form,
// e.g. "+7 (999) 123-45-67". Non-canonical input is returned unchanged.
func Format(canonical string) string {
	if len(canonical) != 11 || canonical[0] != '7' {
		return canonical
	}
	return fmt.Sprintf("+7 (%s) %s-%s-%s",
		canonical[1:4], canonical[4:7], canonical[7:9], canonical[9:11])
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
