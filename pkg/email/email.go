package email

import (
	"strings"
	"unicode"
)

// DeriveNameFromEmail guesses a display name from an email local part.
// Used when staging an inbox claim notification for a recipient who has no
// profile yet, so the claim email can greet them with something better than
// their raw address.
func DeriveNameFromEmail(email string) (string, string) {
	localPart := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		localPart = email[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})

	if len(parts) == 0 {
		return "User", "User"
	}

	first := capitalize(parts[0])
	last := "User"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}

	return first, last
}

// Mask redacts an email or phone value for logs: keeps the first character
// and the domain (for emails) or the last two digits (for phones).
func Mask(value string) string {
	if at := strings.IndexByte(value, '@'); at > 0 {
		return value[:1] + "***" + value[at:]
	}
	if len(value) > 2 {
		return "***" + value[len(value)-2:]
	}
	return "***"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
