package utils

import "math"

// Round rounds v half away from zero to the given number of decimal
// places.
func Round(v float64, places int) float64 {
	pow := math.Pow(10, float64(places))
	return math.Round(v*pow) / pow
}
