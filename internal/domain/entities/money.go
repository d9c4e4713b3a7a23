package entities

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the base-unit precision of the ledger currency
const EtherDecimals = 18

// MaxAmountBits is the width of a ledger uint256
const MaxAmountBits = 256

// parsed amounts outside these bounds are rejected before any scaling
const (
	maxAmountExponent  = 80
	minAmountExponent  = -80
	maxCoefficientBits = 512
)

// ParseEther converts a human-entered decimal amount ("1.5") into wei.
// Amounts with more than 18 fractional digits, a negative sign, or a wei value wider
// than uint256 are rejected.
func ParseEther(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	// scientific notation can encode huge exponents in a few bytes
	if exp := d.Exponent(); exp > maxAmountExponent || exp < minAmountExponent || d.Coefficient().BitLen() > maxCoefficientBits {
		return nil, fmt.Errorf("invalid amount %q: out of range", s)
	}

	wei := d.Shift(EtherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimal places", s, EtherDecimals)
	}

	amount := wei.BigInt()
	if amount.BitLen() > MaxAmountBits {
		return nil, fmt.Errorf("invalid amount %q: exceeds uint256", s)
	}
	return amount, nil
}

// FormatEther renders a wei amount as a decimal ether string without trailing zeros
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals).String()
}
