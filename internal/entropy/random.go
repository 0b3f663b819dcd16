// Package entropy owns every random source used by a simulation run.
// All stochastic choices draw from an explicitly seeded *rand.Rand so that a
// run is reproducible from its seed. A zero seed is replaced with one drawn
// from crypto/rand.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
)

// Source is the random source threaded through the simulation.
type Source = mrand.Rand

// New returns a deterministic source for the given seed.
func New(seed int64) *Source {
	return mrand.New(mrand.NewSource(seed))
}

// Derive returns an independent source for a sub-stream (repetition, component)
// of the given seed. Streams with different salts do not overlap in practice.
func Derive(seed int64, salt int64) *Source {
	return New(seed*1_000_003 + salt)
}

// ResolveSeed returns seed unchanged unless it is zero, in which case a fresh
// non-zero seed is drawn from crypto/rand.
func ResolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	for {
		if s := cryptoSeed(); s != 0 {
			return s
		}
	}
}

func cryptoSeed() int64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms.
		return 42
	}
	return int64(binary.LittleEndian.Uint64(buf[:]) >> 1)
}

// Normal draws from N(mean, sd). A non-positive sd returns mean exactly.
func Normal(rng *Source, mean, sd float64) float64 {
	if sd <= 0 {
		return mean
	}
	return mean + rng.NormFloat64()*sd
}

// Bernoulli reports true with probability p.
func Bernoulli(rng *Source, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return rng.Float64() < p
}

// SampleDistinct draws k distinct integers uniformly from [0, n) using Floyd's
// algorithm. The result order follows the draw order, so it is reproducible for
// a given source state. k is capped at n.
func SampleDistinct(rng *Source, n, k int) []int {
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}
	seen := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for j := n - k; j < n; j++ {
		t := rng.Intn(j + 1)
		if _, dup := seen[t]; dup {
			t = j
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
