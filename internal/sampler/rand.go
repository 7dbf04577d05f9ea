package sampler

import (
	"math"
	"math/rand/v2"
)

// Rand is the positional randomness an order book needs.
type Rand interface {
	// Float64 returns a uniform draw in [0, 1).
	Float64() float64
	// Geometric returns the number of Bernoulli(p) trials up to and including the first success (>= 1).
	Geometric(p float64) int
}

// Source is the seeded Rand used by books.
type Source struct {
	rng *rand.Rand
}

// NewRand creates a seeded Source.
func NewRand(seed int64) *Source {
	return &Source{rng: newStream(seed)}
}

// Float64 returns a uniform draw in [0, 1).
func (s *Source) Float64() float64 {
	return s.rng.Float64()
}

// Geometric draws from a geometric distribution by inversion.
func (s *Source) Geometric(p float64) int {
	if p >= 1 {
		return 1
	}
	u := s.rng.Float64()
	k := int(math.Ceil(math.Log1p(-u) / math.Log1p(-p)))
	if k < 1 {
		k = 1
	}
	return k
}
