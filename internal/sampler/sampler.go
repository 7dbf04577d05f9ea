// Package sampler builds reproducible generators from historical observations.
//
// Every generator owns a private pseudo-random stream seeded from a single
// integer, so a simulation built from the same seed and calibration data
// replays identically.
package sampler

import (
	"math"
	"math/rand/v2"
	"sort"

	"mmsim/internal/domain"
)

// Sampler draws integer values.
type Sampler interface {
	Sample() int64
}

// BoolSampler draws weighted booleans.
type BoolSampler interface {
	Sample() bool
}

func newStream(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), uint64(seed)))
}

// Empirical samples from the empirical distribution of a set of observations
// via histogram-based inverse-CDF lookup.
type Empirical struct {
	edges []float64 // bin edges, len = bins+1
	cum   []float64 // cumulative mass at each edge, cum[0] = 0, cum[bins] = 1

	constant   float64
	degenerate bool

	rng *rand.Rand
}

// NewEmpirical builds a sampler over obs using the given number of equal-width bins.
// Data with no spread yields a sampler that always returns the single observed value.
func NewEmpirical(obs []float64, bins int, seed int64) (*Empirical, error) {
	if len(obs) == 0 {
		return nil, domain.ErrNoObservations
	}
	if bins < 1 {
		bins = 1
	}

	lo, hi := obs[0], obs[0]
	for _, v := range obs[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	e := &Empirical{rng: newStream(seed)}
	if lo == hi {
		e.degenerate = true
		e.constant = lo
		return e, nil
	}

	width := (hi - lo) / float64(bins)
	counts := make([]int, bins)
	for _, v := range obs {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1 // the maximum belongs to the last bin
		}
		counts[idx]++
	}

	e.edges = make([]float64, bins+1)
	e.cum = make([]float64, bins+1)
	running := 0
	for i := 0; i <= bins; i++ {
		e.edges[i] = lo + float64(i)*width
		if i > 0 {
			running += counts[i-1]
			e.cum[i] = float64(running) / float64(len(obs))
		}
	}
	e.edges[bins] = hi
	e.cum[bins] = 1

	return e, nil
}

// NewEmpiricalInts is NewEmpirical for integer observations.
func NewEmpiricalInts(obs []int64, bins int, seed int64) (*Empirical, error) {
	f := make([]float64, len(obs))
	for i, v := range obs {
		f[i] = float64(v)
	}
	return NewEmpirical(f, bins, seed)
}

// SampleFloat draws one value.
func (e *Empirical) SampleFloat() float64 {
	u := e.rng.Float64()
	if e.degenerate {
		return e.constant
	}
	return e.inverse(u)
}

// Sample draws one value truncated toward zero.
func (e *Empirical) Sample() int64 {
	return int64(math.Trunc(e.SampleFloat()))
}

func (e *Empirical) inverse(u float64) float64 {
	i := sort.SearchFloat64s(e.cum, u)
	if i == 0 {
		return e.edges[0]
	}
	if i >= len(e.cum) {
		return e.edges[len(e.edges)-1]
	}
	c0, c1 := e.cum[i-1], e.cum[i]
	x0, x1 := e.edges[i-1], e.edges[i]
	return x0 + (u-c0)/(c1-c0)*(x1-x0)
}

// Boolean returns true with probability trueCount/(trueCount+falseCount).
type Boolean struct {
	threshold float64
	rng       *rand.Rand
}

// NewBoolean builds a weighted boolean sampler. With no counts at all it is a fair coin.
func NewBoolean(trueCount, falseCount int, seed int64) *Boolean {
	threshold := 0.5
	if total := trueCount + falseCount; total > 0 {
		threshold = float64(trueCount) / float64(total)
	}
	return &Boolean{threshold: threshold, rng: newStream(seed)}
}

// Sample draws one boolean.
func (b *Boolean) Sample() bool {
	return b.rng.Float64() < b.threshold
}

// Threshold returns the probability of drawing true.
func (b *Boolean) Threshold() float64 {
	return b.threshold
}

// Constant always returns the same value.
type Constant int64

// Sample returns the constant.
func (c Constant) Sample() int64 { return int64(c) }
