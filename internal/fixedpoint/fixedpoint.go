// Package fixedpoint provides exact integer arithmetic over amounts
// expressed in base units scaled by 10^18.
//
// All monetary values use shopspring/decimal — never float64 for money.
// Every amount flowing through the engine is an integral decimal in the
// smallest-unit domain; division is always floor division, so results
// match fixed-point ledger arithmetic bit for bit.
package fixedpoint

import (
	"errors"

	"github.com/shopspring/decimal"
)

// DecimalPlaces is the number of fractional digits in the external
// fixed-point convention. One whole token = 10^18 base units.
const DecimalPlaces = 18

// BasisPointDenominator is the divisor for basis-point fee math.
const BasisPointDenominator = 10000

var (
	// ErrNotIntegral is returned when an amount carries fractional
	// base units.
	ErrNotIntegral = errors.New("fixedpoint: amount is not an integral number of base units")

	// ErrDivisionByZero is returned when a mul-div denominator is zero.
	ErrDivisionByZero = errors.New("fixedpoint: division by zero")

	// Unit is 10^18, the number of base units per whole token.
	Unit = decimal.New(1, DecimalPlaces)
)

// FromUnits converts a whole-token count into base units.
func FromUnits(whole int64) decimal.Decimal {
	return decimal.NewFromInt(whole).Mul(Unit)
}

// IsIntegral reports whether d has no fractional part.
func IsIntegral(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(0))
}

// MulDivFloor computes floor(a * b / den) exactly.
// The QuoRem call keeps the quotient in the integer domain with an
// exact remainder, so no precision setting can round the result up.
func MulDivFloor(a, b, den decimal.Decimal) (decimal.Decimal, error) {
	if den.IsZero() {
		return decimal.Zero, ErrDivisionByZero
	}
	q, _ := a.Mul(b).QuoRem(den, 0)
	return q, nil
}

// ApplyFeeBps returns floor(amount * (10000 - feeBps) / 10000), the
// amount remaining after deducting a basis-point fee from the input.
func ApplyFeeBps(amount decimal.Decimal, feeBps int64) decimal.Decimal {
	keep := decimal.NewFromInt(BasisPointDenominator - feeBps)
	q, _ := amount.Mul(keep).QuoRem(decimal.NewFromInt(BasisPointDenominator), 0)
	return q
}
