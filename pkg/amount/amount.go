// Package amount holds the fixed-point representation of transfer amounts.
// Amounts are integer counts of the smallest transferable unit; decimal
// strings only appear at the presentation boundary.
package amount

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

// ICPDecimals is the number of decimal places of the native ICP token (1 ICP = 1e8 e8s).
const ICPDecimals = 8

var (
	// ErrNegative is returned when a negative quantity is supplied
	ErrNegative = errors.New("amount must not be negative")

	// ErrPrecision is returned when the value has more decimals than the asset supports
	ErrPrecision = errors.New("amount exceeds asset precision")

	// ErrOverflow is returned when the value does not fit in 64 bits of minor units
	ErrOverflow = errors.New("amount overflows minor units")
)

// Amount is a non-negative count of minor units (e.g. e8s).
type Amount uint64

// Zero reports whether the amount is zero
func (a Amount) Zero() bool {
	return a == 0
}

// Minor returns the raw minor unit count
func (a Amount) Minor() uint64 {
	return uint64(a)
}

// String returns the minor unit count in base 10
func (a Amount) String() string {
	return strconv.FormatUint(uint64(a), 10)
}

// FromMinor converts a signed minor unit count. Negative values are rejected
// so callers working with signed arithmetic cannot smuggle a debit in.
func FromMinor(v int64) (Amount, error) {
	if v < 0 {
		return 0, fmt.Errorf("%w: %d", ErrNegative, v)
	}
	return Amount(v), nil
}

// Parse converts a decimal string in major units ("1.25") into minor units
// for an asset with the given number of decimals.
func Parse(s string, decimals int32) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %v", s, err)
	}
	return FromDecimal(d, decimals)
}

// FromDecimal converts a major unit decimal into minor units.
func FromDecimal(d decimal.Decimal, decimals int32) (Amount, error) {
	if d.Sign() < 0 {
		return 0, fmt.Errorf("%w: %s", ErrNegative, d.String())
	}

	minor := d.Shift(decimals)
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %s with %d decimals", ErrPrecision, d.String(), decimals)
	}

	bi := minor.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("%w: %s", ErrOverflow, d.String())
	}
	return Amount(bi.Uint64()), nil
}

// Decimal returns the amount in major units
func (a Amount) Decimal(decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(a)), -decimals)
}

// Format renders the amount in major units, trimming trailing zeros
func Format(a Amount, decimals int32) string {
	return a.Decimal(decimals).String()
}

// Add returns a+b, failing on overflow
func Add(a, b Amount) (Amount, error) {
	if uint64(a) > math.MaxUint64-uint64(b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}
