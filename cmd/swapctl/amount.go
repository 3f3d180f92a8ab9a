package main

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// decimals of the native coin and of every jetton
const decimals = 9

// parseAmount converts a human amount like "1.5" to nano units.
func parseAmount(name, v string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("--%s: negative amount %s", name, v)
	}
	nano := d.Shift(decimals)
	if !nano.Equal(nano.Truncate(0)) {
		return nil, fmt.Errorf("--%s: more than %d decimals in %s", name, decimals, v)
	}
	out, err := uint256.FromDecimal(nano.StringFixed(0))
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return out, nil
}

// formatAmount renders nano units as a human amount.
func formatAmount(v *uint256.Int) string {
	return decimal.NewFromBigInt(v.ToBig(), -decimals).String()
}
