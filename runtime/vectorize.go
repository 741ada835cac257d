package runtime

import (
	"fmt"
	"math/rand"

	"github.com/lowvariance/marginal/factor"
)

// Vectorize draws every unobserved, un-enumerated choice N times along a
// shared replication dimension. Each replication index owns an independent
// RNG stream, so particle i of a vectorized run reproduces a scalar run
// seeded with that stream.
type Vectorize struct {
	Base
	dim  string
	n    int
	rngs []*rand.Rand
}

// NewVectorize allocates the replication dimension from the environment's
// allocator and derives one RNG stream per particle from seed.
func NewVectorize(env *Env, n int, seed int64) (*Vectorize, error) {
	if n < 1 {
		return nil, fmt.Errorf("runtime: particle count %d must be >= 1", n)
	}
	dim, err := env.Dims().Fresh("particle")
	if err != nil {
		return nil, err
	}
	v := &Vectorize{dim: dim, n: n}
	for i := 0; i < n; i++ {
		v.rngs = append(v.rngs, rand.New(rand.NewSource(ParticleSeed(seed, i))))
	}
	return v, nil
}

// ParticleSeed derives the RNG seed for one particle index.
func ParticleSeed(base int64, i int) int64 {
	return base + int64(i)*0x9E3779B9
}

// Dim returns the replication dimension's name.
func (v *Vectorize) Dim() string { return v.dim }

// N returns the particle count.
func (v *Vectorize) N() int { return v.n }

// Process draws n values along the replication dimension for sites no inner
// handler has filled. Observed sites keep their scalar value; scoring
// broadcasts it.
func (v *Vectorize) Process(_ *Env, s *Site) error {
	if s.Observed || s.Value != nil || s.draw == nil {
		return nil
	}
	data := make([]float64, v.n)
	for i := range data {
		x, err := s.draw(v.rngs[i])
		if err != nil {
			return err
		}
		data[i] = x
	}
	value, err := factor.New([]factor.Dim{{Name: v.dim, Size: v.n}}, data)
	if err != nil {
		return err
	}
	s.Value = value
	return nil
}
