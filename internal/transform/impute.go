package transform

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ImputePercentage returns pct unchanged when it is present. Otherwise it
// derives the negotiated percentage as amount/max*100, rounded to two
// decimals, or nil when either input is missing or max is not positive.
func ImputePercentage(pct, amount, max *float64) *float64 {
	if pct != nil {
		return pct
	}
	if amount == nil || max == nil || !finite(*amount) || !finite(*max) || *max <= 0 {
		return nil
	}

	v, _ := decimal.NewFromFloat(*amount).
		Mul(hundred).
		Div(decimal.NewFromFloat(*max)).
		Round(2).
		Float64()
	return &v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
