// Package mathx contains small numeric helpers.
package mathx

import "math"

// Round rounds a float to the nearest "unit" (0.1 for tenth, 0.01 for hundredth, and so on).
func Round(x, unit float64) float64 {
	return math.Round(x/unit) * unit
}

// Even rounds n down to an even number
func Even(n int) int {
	return n &^ 1
}

// MinMax returns the smallest and largest of xs.  Both are zero for an empty slice.
func MinMax(xs []float32) (lo, hi float32) {
	if len(xs) == 0 {
		return 0, 0
	}
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < lo {
			lo = x
		}
		if x > hi {
			hi = x
		}
	}
	return lo, hi
}
