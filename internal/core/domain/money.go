package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// Round2 rounds v to cents, half away from zero.
//
// Non-finite input rounds to 0.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// FormatMoney always renders two decimal places.
func FormatMoney(v float64) string {
	return Dec(v).StringFixed(2)
}

// Dec converts a money value to a decimal, mapping non-finite values to zero.
func Dec(v float64) decimal.Decimal {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

// Money converts back to a float rounded to cents.
func Money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// Cents converts an amount to the smallest currency unit.
func Cents(v float64) int64 {
	return Dec(v).Round(2).Shift(2).IntPart()
}

// MoneyEqual reports whether a and b differ by no more than one cent.
func MoneyEqual(a, b float64) bool {
	return Dec(Round2(a)).Sub(Dec(Round2(b))).Abs().LessThanOrEqual(decimal.New(1, -2))
}

// Finite returns v when it is finite and non-negative, otherwise fallback.
func Finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fallback
	}
	return v
}
