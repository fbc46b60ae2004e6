package engine

import (
	"math/rand"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler is the minimal randomness interface the simulation core sees.
// Two implementations exist: a scalar math/rand sampler and a gonum
// distuv-backed one. Algorithmic code never branches on the backend.
type Sampler interface {
	// Float64 returns a uniform draw in [0, 1)
	Float64() float64
	// NormFloat64 returns a standard normal draw
	NormFloat64() float64
}

// ScalarSampler wraps math/rand. Deterministic for a fixed seed.
type ScalarSampler struct {
	rng *rand.Rand
}

// NewScalarSampler creates a seeded scalar sampler
func NewScalarSampler(seed int64) *ScalarSampler {
	return &ScalarSampler{rng: rand.New(rand.NewSource(seed))}
}

func (s *ScalarSampler) Float64() float64 {
	return s.rng.Float64()
}

func (s *ScalarSampler) NormFloat64() float64 {
	return s.rng.NormFloat64()
}

// DistuvSampler draws from gonum distribution primitives over a shared
// seeded source. Deterministic for a fixed seed, though its sequence
// differs from the scalar backend's.
type DistuvSampler struct {
	uniform distuv.Uniform
	normal  distuv.Normal
}

// NewDistuvSampler creates a seeded gonum-backed sampler
func NewDistuvSampler(seed uint64) *DistuvSampler {
	src := exprand.NewSource(seed)
	return &DistuvSampler{
		uniform: distuv.Uniform{Min: 0, Max: 1, Src: src},
		normal:  distuv.Normal{Mu: 0, Sigma: 1, Src: src},
	}
}

func (s *DistuvSampler) Float64() float64 {
	return s.uniform.Rand()
}

func (s *DistuvSampler) NormFloat64() float64 {
	return s.normal.Rand()
}

// NewSampler selects a sampler backend by name, defaulting to scalar
func NewSampler(backend string, seed int64) Sampler {
	if backend == "gonum" {
		return NewDistuvSampler(uint64(seed))
	}
	return NewScalarSampler(seed)
}

// WeightedOutcome pairs an outcome label with its probability mass
type WeightedOutcome struct {
	Outcome string  `json:"outcome"`
	Prob    float64 `json:"prob"`
}

// Dist is an ordered discrete distribution. Order is stable so that
// cumulative sampling is reproducible for a fixed seed.
type Dist []WeightedOutcome

// Sum returns total probability mass
func (d Dist) Sum() float64 {
	total := 0.0
	for _, wo := range d {
		total += wo.Prob
	}
	return total
}

// Normalize rescales the distribution to sum to 1.0 in place.
// A zero-mass distribution is left untouched.
func (d Dist) Normalize() {
	total := d.Sum()
	if total <= 0 {
		return
	}
	for i := range d {
		d[i].Prob /= total
	}
}

// Scale multiplies the named outcome's mass by factor, capping the
// result at cap when cap > 0
func (d Dist) Scale(outcome string, factor, cap float64) {
	for i := range d {
		if d[i].Outcome == outcome {
			d[i].Prob *= factor
			if cap > 0 && d[i].Prob > cap {
				d[i].Prob = cap
			}
			return
		}
	}
}

// Prob returns the mass assigned to an outcome, zero if absent
func (d Dist) Prob(outcome string) float64 {
	for _, wo := range d {
		if wo.Outcome == outcome {
			return wo.Prob
		}
	}
	return 0
}

// Clone returns an independent copy
func (d Dist) Clone() Dist {
	out := make(Dist, len(d))
	copy(out, d)
	return out
}

// SampleOutcome draws one outcome by cumulative probability. Floating
// residual falls through to the last outcome so a draw never fails on a
// normalized distribution. Returns ok=false only for an empty one.
func SampleOutcome(s Sampler, d Dist) (string, bool) {
	if len(d) == 0 {
		return "", false
	}

	draw := s.Float64()
	cumulative := 0.0
	for _, wo := range d {
		cumulative += wo.Prob
		if draw < cumulative {
			return wo.Outcome, true
		}
	}

	// Floating error left a residual; fall back to the final outcome
	return d[len(d)-1].Outcome, true
}
