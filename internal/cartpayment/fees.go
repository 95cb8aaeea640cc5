package cartpayment

import "github.com/shopspring/decimal"

// applicationFeeCents computes the platform fee for a captured amount from
// basis points, rounding half up to the nearest cent.
func applicationFeeCents(amountCents, feeBPS int64) int64 {
	if feeBPS <= 0 || amountCents <= 0 {
		return 0
	}
	fee := decimal.NewFromInt(amountCents).
		Mul(decimal.NewFromInt(feeBPS)).
		Div(decimal.NewFromInt(10_000))
	return fee.Round(0).IntPart()
}
