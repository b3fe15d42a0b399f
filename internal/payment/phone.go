package payment

import (
	"strings"
	"unicode"

	pkgerrors "github.com/angelmondragon/pos-agent/pkg/errors"
)

const subscriberDigits = 9

// NormalizePhone turns a local or international mobile number into the
// country-prefixed digits form the push provider expects (e.g. 254712345678).
func NormalizePhone(raw, countryCode string) (string, error) {
	invalid := pkgerrors.New(pkgerrors.CodeValidation, "invalid mobile number").
		WithDetails(map[string]any{"phoneNumber": raw})

	var b strings.Builder
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')':
		case r == '+' && i == 0:
		default:
			return "", invalid
		}
	}
	digits := b.String()

	var subscriber string
	switch {
	case countryCode != "" && strings.HasPrefix(digits, countryCode) && len(digits) == len(countryCode)+subscriberDigits:
		subscriber = digits[len(countryCode):]
	case strings.HasPrefix(digits, "0") && len(digits) == subscriberDigits+1:
		subscriber = digits[1:]
	case len(digits) == subscriberDigits:
		subscriber = digits
	default:
		return "", invalid
	}

	// Mobile ranges start with 7 or 1.
	if subscriber[0] != '7' && subscriber[0] != '1' {
		return "", invalid
	}
	return countryCode + subscriber, nil
}
