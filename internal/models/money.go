package models

import "math"

// Round2 rounds to 2 decimal places. Currency math is rounded at each step,
// not once at the end, so line-item totals match the cent-level amounts the
// payment gateway independently validates.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// MinorUnits converts a monetary amount to integer cents.
func MinorUnits(v float64) int64 {
	return int64(math.Round(v * 100))
}
