package sizing

import "github.com/shopspring/decimal"

// quantizeToStep rounds a quantity down to the exchange lot step. Decimal
// arithmetic avoids the float residue that makes modulo-based rounding
// produce quantities exchanges reject.
func quantizeToStep(quantity, step float64) float64 {
	if step <= 0 {
		return quantity
	}
	q := decimal.NewFromFloat(quantity)
	s := decimal.NewFromFloat(step)
	steps := q.Div(s).Floor()
	out, _ := steps.Mul(s).Float64()
	return out
}
