package chain

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatUnits renders raw as a decimal string with the given decimals.
func FormatUnits(raw *big.Int, decimals int) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, int32(-decimals)).String()
}

// FormatEther renders a wei amount in ether.
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, 18)
}

// ParseUnits converts a human amount like "0.5" into base units.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", amount)
	}
	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimals", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// ParseEther converts an ether amount into wei.
func ParseEther(amount string) (*big.Int, error) {
	return ParseUnits(amount, 18)
}
