package amount

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		decimals int32
		expected Amount
		wantErr  error
	}{
		{name: "whole ICP", input: "1", decimals: ICPDecimals, expected: 100_000_000},
		{name: "fractional ICP", input: "1.5", decimals: ICPDecimals, expected: 150_000_000},
		{name: "one e8", input: "0.00000001", decimals: ICPDecimals, expected: 1},
		{name: "zero", input: "0", decimals: ICPDecimals, expected: 0},
		{name: "too precise", input: "0.000000001", decimals: ICPDecimals, wantErr: ErrPrecision},
		{name: "negative", input: "-1", decimals: ICPDecimals, wantErr: ErrNegative},
		{name: "overflow", input: "184467440737.09551616", decimals: ICPDecimals, wantErr: ErrOverflow},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.input, tc.decimals)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("one icp", ICPDecimals)
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.5", Format(150_000_000, ICPDecimals))
	assert.Equal(t, "0.00000001", Format(1, ICPDecimals))
	assert.Equal(t, "0", Format(0, ICPDecimals))
	assert.Equal(t, "42", Format(42, 0))
}

func TestFromMinor(t *testing.T) {
	a, err := FromMinor(100)
	require.NoError(t, err)
	assert.Equal(t, Amount(100), a)

	_, err = FromMinor(-1)
	assert.ErrorIs(t, err, ErrNegative)
}

func TestDecimalRoundTripKeepsExactValue(t *testing.T) {
	// 0.1 + 0.2 is exact in minor units
	a, err := Parse("0.1", ICPDecimals)
	require.NoError(t, err)
	b, err := Parse("0.2", ICPDecimals)
	require.NoError(t, err)

	sum, err := Add(a, b)
	require.NoError(t, err)
	assert.True(t, sum.Decimal(ICPDecimals).Equal(decimal.RequireFromString("0.3")))
}

func TestAddOverflow(t *testing.T) {
	_, err := Add(Amount(math.MaxUint64), 1)
	assert.ErrorIs(t, err, ErrOverflow)
}
