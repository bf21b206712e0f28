package domain

import "github.com/shopspring/decimal"

// AmountTolerance is the relative difference accepted between the price of a
// product and the amount the gateway reports as paid.
var AmountTolerance = decimal.NewFromFloat(0.01)

// AmountMatches reports whether received is within AmountTolerance of expected.
func AmountMatches(expected, received decimal.Decimal) bool {
	if !received.IsPositive() {
		return false
	}
	return expected.Sub(received).Abs().LessThanOrEqual(expected.Mul(AmountTolerance))
}
