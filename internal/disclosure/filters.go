// Package disclosure implements statistical disclosure control: low-number
// suppression and rounding, composed through an ordered filter chain.
package disclosure

import "math"

// Filter transforms a count for disclosure control purposes.
type Filter func(n int) int

// Suppress returns a Filter that zeroes any count at or below threshold.
func Suppress(threshold int) Filter {
	return func(n int) int {
		return LowNumberSuppression(n, threshold)
	}
}

// Round returns a Filter that rounds a count to the nearest multiple of
// nearest, half-away-from-zero.
func Round(nearest int) Filter {
	return func(n int) int {
		return Rounding(n, nearest)
	}
}

// LowNumberSuppression returns 0 if n <= threshold, else n unchanged.
func LowNumberSuppression(n, threshold int) int {
	if n <= threshold {
		return 0
	}
	return n
}

// Rounding rounds n to the nearest multiple of nearest, half-away-from-zero.
// nearest <= 0 is treated as "no rounding."
func Rounding(n, nearest int) int {
	if nearest <= 0 {
		return n
	}
	ratio := float64(n) / float64(nearest)
	rounded := math.Round(math.Abs(ratio))
	if ratio < 0 {
		rounded = -rounded
	}
	return int(rounded) * nearest
}

// ApplyFilters applies filters to n in the given order. Order matters: a
// count suppressed to 0 by Suppress first stays 0 through later filters,
// but a count rounded up past the suppression threshold before Suppress
// runs will leak as a nonzero rounded value instead of being suppressed —
// e.g. ApplyFilters(60, Round(100), Suppress(70)) == 100, not 0. Callers
// choosing filter order own this hazard; it is deliberately not
// corrected here.
func ApplyFilters(n int, filters ...Filter) int {
	for _, f := range filters {
		n = f(n)
	}
	return n
}
