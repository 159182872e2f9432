package domain

import (
	"fmt"
	"strings"
)

// AllowedTermCounts are the only schedule lengths a loan may have.
var AllowedTermCounts = []int{3, 6}

// ValidateTermCount returns ErrInvalidTermCount unless terms is 3 or 6.
func ValidateTermCount(terms int) error {
	for _, allowed := range AllowedTermCounts {
		if terms == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: got %d", ErrInvalidTermCount, terms)
}

// ValidateAmount checks that a monetary amount in minor units is positive.
func ValidateAmount(amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}
	return nil
}

// ParseCurrency converts a currency code into a supported Currency tag.
func ParseCurrency(code string) (Currency, error) {
	for _, c := range SupportedCurrencies {
		if string(c) == code {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q (supported: %s)", ErrInvalidCurrency, code, supportedCurrencyList())
}

func supportedCurrencyList() string {
	codes := make([]string, len(SupportedCurrencies))
	for i, c := range SupportedCurrencies {
		codes[i] = string(c)
	}
	return strings.Join(codes, ",")
}
