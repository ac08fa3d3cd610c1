package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var amountReplacer = strings.NewReplacer("$", "", ",", "")

// ParseAmount parses portal money and quantity strings such as "$1,234.50"
func ParseAmount(raw string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(amountReplacer.Replace(raw))
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return d, nil
}

// IsZeroTotal reports whether a declared node total means "no contracts".
// Unparseable totals are treated as non-zero so the node is still visited.
func IsZeroTotal(total string) bool {
	if strings.TrimSpace(total) == "0.00" {
		return true
	}
	d, err := ParseAmount(total)
	if err != nil {
		return false
	}
	return d.IsZero()
}

// SumTotals adds up the declared totals of a period's categories
func SumTotals(categories []*Category) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range categories {
		if d, err := ParseAmount(c.Total); err == nil {
			sum = sum.Add(d)
		}
	}
	return sum
}
