package dist

import (
	"fmt"
	"math"
	"math/rand"
)

const log2Pi = 1.8378770664093453 // log(2*pi)

// Normal is a Gaussian with location and scale.
type Normal struct {
	loc, scale float64
}

// NewNormal validates scale > 0.
func NewNormal(loc, scale float64) (*Normal, error) {
	if math.IsNaN(loc) || math.IsNaN(scale) || scale <= 0 {
		return nil, fmt.Errorf("dist: Normal(loc=%v, scale=%v) needs positive scale", loc, scale)
	}
	return &Normal{loc: loc, scale: scale}, nil
}

func (n *Normal) Kind() string { return "Normal" }

func (n *Normal) LogProb(x float64) float64 {
	z := (x - n.loc) / n.scale
	return -0.5*(z*z+log2Pi) - math.Log(n.scale)
}

func (n *Normal) Sample(rng *rand.Rand) float64 {
	return n.loc + n.scale*rng.NormFloat64()
}

// Exponential has density rate * exp(-rate * x) on x >= 0.
type Exponential struct {
	rate float64
}

// NewExponential validates rate > 0.
func NewExponential(rate float64) (*Exponential, error) {
	if math.IsNaN(rate) || rate <= 0 {
		return nil, fmt.Errorf("dist: Exponential rate %v must be positive", rate)
	}
	return &Exponential{rate: rate}, nil
}

func (e *Exponential) Kind() string { return "Exponential" }

func (e *Exponential) LogProb(x float64) float64 {
	if x < 0 {
		return math.Inf(-1)
	}
	return math.Log(e.rate) - e.rate*x
}

func (e *Exponential) Sample(rng *rand.Rand) float64 {
	return rng.ExpFloat64() / e.rate
}
