// Package stats holds the small set of sample statistics the market and the
// diffusion pass need. Degenerate inputs report ok=false instead of NaN.
package stats

import (
	"math"
	"sort"

	"golang.org/x/exp/constraints"
)

// Number is any real numeric type.
type Number interface {
	constraints.Integer | constraints.Float
}

// Mean returns the arithmetic mean. ok is false for an empty slice.
func Mean[T Number](xs []T) (mean float64, ok bool) {
	if len(xs) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, x := range xs {
		sum += float64(x)
	}
	return sum / float64(len(xs)), true
}

// StdDev returns the Bessel-corrected sample standard deviation.
// ok is false when fewer than two samples exist.
func StdDev[T Number](xs []T) (sd float64, ok bool) {
	if len(xs) < 2 {
		return 0, false
	}
	mean, _ := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := float64(x) - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1)), true
}

// Pearson returns the sample correlation of xs and ys.
// ok is false for mismatched lengths, fewer than two samples, or a
// zero-variance input.
func Pearson(xs, ys []float64) (r float64, ok bool) {
	if len(xs) != len(ys) || len(xs) < 2 {
		return 0, false
	}
	mx, _ := Mean(xs)
	my, _ := Mean(ys)
	sx, _ := StdDev(xs)
	sy, _ := StdDev(ys)
	if sx == 0 || sy == 0 {
		return 0, false
	}
	cov := 0.0
	for i := range xs {
		cov += (xs[i] - mx) * (ys[i] - my)
	}
	cov /= float64(len(xs) - 1)
	r = cov / (sx * sy)
	// Clamp rounding drift so a perfect correlation compares as exactly 1.
	if r > 1 {
		r = 1
	} else if r < -1 {
		r = -1
	}
	return r, true
}

// Median returns the upper median (element len/2 after sorting), matching
// the cash median reported by the original tooling.
func Median(xs []float64) (float64, bool) {
	if len(xs) == 0 {
		return 0, false
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)
	return sorted[len(sorted)/2], true
}

// LogReturns returns ln(p[t]/p[t+1]) for a newest-first price series.
// Non-positive prices yield no return for that pair.
func LogReturns(newestFirst []float64) []float64 {
	if len(newestFirst) < 2 {
		return nil
	}
	out := make([]float64, 0, len(newestFirst)-1)
	for t := 0; t+1 < len(newestFirst); t++ {
		a, b := newestFirst[t], newestFirst[t+1]
		if a <= 0 || b <= 0 {
			continue
		}
		out = append(out, math.Log(a/b))
	}
	return out
}
