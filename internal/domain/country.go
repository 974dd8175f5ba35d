package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPhone indicates a phone number that does not match the country's national format.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrInvalidAmount indicates a missing, unparseable, or non-positive amount.
	ErrInvalidAmount = errors.New("invalid amount")
)

// Country describes the national numbering plan recharges are accepted for.
type Country struct {
	// Code is the ISO 3166-1 alpha-2 code the provider expects (e.g. "HT").
	Code string
	// CallingCode is the international calling code without "+" (e.g. "509").
	CallingCode string
	// NationalLength is the exact digit count of a national number.
	NationalLength int
	// AllowedPrefixes restricts the leading digits of a national number. Empty allows any.
	AllowedPrefixes []string
}

// Haiti is the default country.
func Haiti() Country {
	return Country{Code: "HT", CallingCode: "509", NationalLength: 8}
}

// Phone is a normalized national-format number (digits only, no calling code).
type Phone string

func (p Phone) String() string { return string(p) }

// Normalize converts a free-form phone string into the canonical national format.
//
// All non-digits are stripped, then an international "00" prefix, then the calling code
// when what remains is exactly calling code + national number.
func (c Country) Normalize(raw string) (Phone, error) {
	digits := onlyDigits(raw)
	if digits == "" {
		return "", fmt.Errorf("%w: no digits in %q", ErrInvalidPhone, raw)
	}
	if strings.HasPrefix(digits, "00") && len(digits) > c.NationalLength+2 {
		digits = digits[2:]
	}
	if c.CallingCode != "" &&
		len(digits) == len(c.CallingCode)+c.NationalLength &&
		strings.HasPrefix(digits, c.CallingCode) {
		digits = digits[len(c.CallingCode):]
	}
	if len(digits) != c.NationalLength {
		return "", fmt.Errorf("%w: want %d national digits, got %d", ErrInvalidPhone, c.NationalLength, len(digits))
	}
	if len(c.AllowedPrefixes) > 0 && !hasAnyPrefix(digits, c.AllowedPrefixes) {
		return "", fmt.Errorf("%w: prefix not allowed for %s", ErrInvalidPhone, c.Code)
	}
	return Phone(digits), nil
}

// International renders the phone with its calling code, e.g. "+50912345678".
func (c Country) International(p Phone) string {
	return "+" + c.CallingCode + string(p)
}

func onlyDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
