// Package dist provides the probability distributions used by marginal models.
//
// Distributions expose pointwise log-densities and sampling; discrete
// distributions with finite support additionally enumerate it, which is what
// makes exact marginalization possible. All constructors validate their
// parameters up front so that inference never has to reason about NaN
// densities mid-run.
package dist

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/lowvariance/marginal/factor"
)

// ErrNotEnumerable is returned when a distribution's support cannot be laid
// out along a finite dimension.
var ErrNotEnumerable = errors.New("dist: distribution has no finite support")

// Distribution is a univariate probability distribution.
type Distribution interface {
	// Kind names the distribution family, for diagnostics.
	Kind() string
	// LogProb returns the log-density (or log-mass) at x. Points outside the
	// support yield -Inf, never an error.
	LogProb(x float64) float64
	// Sample draws one value using the given source.
	Sample(rng *rand.Rand) float64
}

// Discrete is a distribution whose support can potentially be enumerated.
type Discrete interface {
	Distribution
	// Support returns every point of positive mass in a fixed order, or
	// ErrNotEnumerable when the support is infinite.
	Support() ([]float64, error)
}

// LogProbFactor evaluates d's log-density pointwise over a factor of values,
// returning a factor of log-densities with the same dimensions. This is the
// bridge from sample sites to the factor algebra: an enumerated value factor
// over dimension "z" becomes a density factor over "z".
func LogProbFactor(d Distribution, value *factor.Factor) (*factor.Factor, error) {
	data := value.Data()
	for i, x := range data {
		data[i] = d.LogProb(x)
	}
	out, err := factor.New(value.Dims(), data)
	if err != nil {
		return nil, fmt.Errorf("dist: log-prob factor for %s: %w", d.Kind(), err)
	}
	return out, nil
}
