package converter

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const amountPlaces = 2

// FormatAmount prints whole amounts without a fractional part and everything
// else with two digits.
func FormatAmount(amount decimal.Decimal) string {
	amount = amount.Round(amountPlaces)
	if amount.Equal(amount.Truncate(0)) {
		return amount.StringFixed(0)
	}

	return amount.StringFixed(amountPlaces)
}

// ParseAmount reads an operator-typed amount. Both "1490.50" and "1490,50" are
// accepted; a currency sign and spaces are ignored.
func ParseAmount(input string) (decimal.Decimal, error) {
	input = strings.NewReplacer(" ", "", "₽", "", ",", ".").Replace(strings.TrimSpace(input))

	amount, err := decimal.NewFromString(input)
	if err != nil {
		return decimal.Zero, fmt.Errorf("cannot parse amount %q: %w", input, err)
	}

	return amount.Round(amountPlaces), nil
}
