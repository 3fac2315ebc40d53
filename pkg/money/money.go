// Package money holds the rounding rules shared by the billing engine.
package money

import "math"

// Tolerance is the rounding slack allowed when comparing payment sums
// against invoice totals (one cent).
const Tolerance = 0.01

// Round2 rounds a monetary amount to two decimals, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
