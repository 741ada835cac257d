package dist

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/lowvariance/marginal/kernels"
)

// Bernoulli is a coin flip over {0, 1}.
type Bernoulli struct {
	p float64
}

// NewBernoulli validates p in [0, 1].
func NewBernoulli(p float64) (*Bernoulli, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return nil, fmt.Errorf("dist: Bernoulli probability %v outside [0, 1]", p)
	}
	return &Bernoulli{p: p}, nil
}

func (b *Bernoulli) Kind() string { return "Bernoulli" }

func (b *Bernoulli) LogProb(x float64) float64 {
	switch x {
	case 1:
		return math.Log(b.p)
	case 0:
		return math.Log1p(-b.p)
	default:
		return math.Inf(-1)
	}
}

func (b *Bernoulli) Sample(rng *rand.Rand) float64 {
	if rng.Float64() < b.p {
		return 1
	}
	return 0
}

func (b *Bernoulli) Support() ([]float64, error) {
	return []float64{0, 1}, nil
}

// Categorical is a distribution over the indices 0..K-1.
type Categorical struct {
	logProbs []float64
}

// NewCategorical normalizes the given non-negative weights. At least one
// weight must be positive.
func NewCategorical(weights ...float64) (*Categorical, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("dist: Categorical needs at least one weight")
	}
	total := 0.0
	for i, w := range weights {
		if math.IsNaN(w) || w < 0 {
			return nil, fmt.Errorf("dist: Categorical weight[%d] = %v is invalid", i, w)
		}
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("dist: Categorical weights sum to %v", total)
	}
	lp := make([]float64, len(weights))
	for i, w := range weights {
		lp[i] = math.Log(w / total)
	}
	return &Categorical{logProbs: lp}, nil
}

// NewCategoricalLogits builds a Categorical from unnormalized log-weights.
func NewCategoricalLogits(logits ...float64) (*Categorical, error) {
	if len(logits) == 0 {
		return nil, fmt.Errorf("dist: Categorical needs at least one logit")
	}
	z := kernels.LogSumExp(logits)
	if math.IsInf(z, -1) || math.IsNaN(z) {
		return nil, fmt.Errorf("dist: Categorical logits normalize to %v", z)
	}
	lp := make([]float64, len(logits))
	for i, l := range logits {
		lp[i] = l - z
	}
	return &Categorical{logProbs: lp}, nil
}

func (c *Categorical) Kind() string { return "Categorical" }

// CountCategories returns K.
func (c *Categorical) CountCategories() int { return len(c.logProbs) }

func (c *Categorical) LogProb(x float64) float64 {
	k := int(x)
	if float64(k) != x || k < 0 || k >= len(c.logProbs) {
		return math.Inf(-1)
	}
	return c.logProbs[k]
}

// Sample draws an index by inverse CDF over the normalized probabilities.
func (c *Categorical) Sample(rng *rand.Rand) float64 {
	u := rng.Float64()
	acc := 0.0
	for k, lp := range c.logProbs {
		acc += math.Exp(lp)
		if u < acc {
			return float64(k)
		}
	}
	return float64(len(c.logProbs) - 1)
}

func (c *Categorical) Support() ([]float64, error) {
	out := make([]float64, len(c.logProbs))
	for k := range out {
		out[k] = float64(k)
	}
	return out, nil
}

// Poisson is a count distribution with unbounded support. It participates in
// sampling and scoring but refuses enumeration.
type Poisson struct {
	rate float64
}

// NewPoisson validates rate > 0.
func NewPoisson(rate float64) (*Poisson, error) {
	if math.IsNaN(rate) || rate <= 0 {
		return nil, fmt.Errorf("dist: Poisson rate %v must be positive", rate)
	}
	return &Poisson{rate: rate}, nil
}

func (p *Poisson) Kind() string { return "Poisson" }

func (p *Poisson) LogProb(x float64) float64 {
	k := int(x)
	if float64(k) != x || k < 0 {
		return math.Inf(-1)
	}
	lg, _ := math.Lgamma(float64(k) + 1)
	return float64(k)*math.Log(p.rate) - p.rate - lg
}

// Sample uses Knuth's product method, adequate for the moderate rates these
// models use.
func (p *Poisson) Sample(rng *rand.Rand) float64 {
	l := math.Exp(-p.rate)
	k := 0
	acc := 1.0
	for {
		acc *= rng.Float64()
		if acc <= l {
			return float64(k)
		}
		k++
	}
}

// Support always fails: the support is countably infinite.
func (p *Poisson) Support() ([]float64, error) {
	return nil, fmt.Errorf("%w: Poisson", ErrNotEnumerable)
}
