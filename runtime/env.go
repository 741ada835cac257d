// Package runtime implements the effect-handler machinery that marginal
// models execute under.
//
// A model is an ordinary Go function that declares random choices by calling
// Sample and Observe on an Env. Each call materializes a Site and pushes it
// through a LIFO stack of handlers. Handlers may fill in the site's value
// before the default behavior runs (enumeration, vectorized draws, replay
// from a recorded trace) or react after it exists (tracing, log-joint
// accumulation). Execution is single-threaded and synchronous: an Env and
// everything on its stack belongs to one model run at a time.
//
// The package also owns the parameter store (params.go) and its binary
// snapshot codec (snapshot.go).
package runtime

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/lowvariance/marginal/dist"
	"github.com/lowvariance/marginal/factor"
)

// Common runtime errors.
var (
	ErrNoValue       = errors.New("runtime: site has no value and no handler produced one")
	ErrNonScalarArgs = errors.New("runtime: cannot draw from a conditional with non-scalar arguments")
)

// Program is a model or guide body executed under an Env.
type Program func(env *Env) error

// Site records one sampling event.
type Site struct {
	Name       string
	Kind       string
	Observed   bool
	Enumerated bool
	// EnumDim names the dimension holding the enumerated support, when
	// Enumerated is set.
	EnumDim string
	// Value is the site's realized value: a scalar factor for plain draws
	// and observations, or a factor over named dimensions once enumeration
	// or vectorization has touched it.
	Value *factor.Factor
	// LogProb is the site's log-density factor, filled by LogJoint.
	LogProb *factor.Factor

	draw    func(rng *rand.Rand) (float64, error)
	score   func(v *factor.Factor) (*factor.Factor, error)
	support func() ([]float64, error)
}

// Score evaluates the site's log-density at v, broadcasting over v's
// dimensions and any conditional-argument dimensions.
func (s *Site) Score(v *factor.Factor) (*factor.Factor, error) {
	return s.score(v)
}

// Handler intercepts sampling effects. Process runs before the default
// draw, innermost handler first; Postprocess runs after the value exists,
// outermost handler first.
type Handler interface {
	Process(env *Env, s *Site) error
	Postprocess(env *Env, s *Site) error
}

// Base is a no-op Handler for embedding.
type Base struct{}

func (Base) Process(*Env, *Site) error     { return nil }
func (Base) Postprocess(*Env, *Site) error { return nil }

// Env carries the handler stack, RNG, dimension allocator, and parameter
// store for one model execution.
type Env struct {
	stack []Handler
	rng   *rand.Rand
	store *Store
	dims  *DimAlloc
}

// NewEnv creates an execution environment with a deterministic RNG stream.
func NewEnv(store *Store, seed int64) *Env {
	return &Env{
		rng:   rand.New(rand.NewSource(seed)),
		store: store,
		dims:  NewDimAlloc(DefaultMaxDims),
	}
}

// Push installs a handler as the new innermost layer.
func (e *Env) Push(h Handler) {
	e.stack = append(e.stack, h)
}

// Pop removes the innermost handler.
func (e *Env) Pop() {
	if len(e.stack) > 0 {
		e.stack = e.stack[:len(e.stack)-1]
	}
}

// With runs fn with h installed, uninstalling it afterwards even on error.
func (e *Env) With(h Handler, fn func() error) error {
	e.Push(h)
	defer e.Pop()
	return fn()
}

// Dims exposes the environment's dimension allocator.
func (e *Env) Dims() *DimAlloc { return e.dims }

// SetMaxDims replaces the dimension allocator with one bounded at max.
// Enumeration allocates one dimension per discrete site, so models with
// many sites need a limit above DefaultMaxDims. Must be called before any
// site executes; max <= 0 restores the default bound.
func (e *Env) SetMaxDims(max int) {
	e.dims = NewDimAlloc(max)
}

// RNG exposes the environment's base random stream.
func (e *Env) RNG() *rand.Rand { return e.rng }

// Param resolves a named parameter from the store in constrained space.
func (e *Env) Param(name string) (float64, error) {
	if e.store == nil {
		return 0, fmt.Errorf("runtime: no store attached, cannot resolve %q", name)
	}
	return e.store.Get(name)
}

// Sample declares a latent choice with an unconditional distribution and
// returns its realized value factor.
func (e *Env) Sample(name string, d dist.Distribution) (*factor.Factor, error) {
	site := &Site{
		Name: name,
		Kind: d.Kind(),
		draw: func(rng *rand.Rand) (float64, error) {
			return d.Sample(rng), nil
		},
		score: func(v *factor.Factor) (*factor.Factor, error) {
			return dist.LogProbFactor(d, v)
		},
		support: func() ([]float64, error) {
			disc, ok := d.(dist.Discrete)
			if !ok {
				return nil, fmt.Errorf("%w: %s", dist.ErrNotEnumerable, d.Kind())
			}
			return disc.Support()
		},
	}
	return e.run(site)
}

// Observe declares an observed value scored under d.
func (e *Env) Observe(name string, d dist.Distribution, x float64) error {
	site := &Site{
		Name:     name,
		Kind:     d.Kind(),
		Observed: true,
		Value:    factor.Scalar(x),
		score: func(v *factor.Factor) (*factor.Factor, error) {
			return dist.LogProbFactor(d, v)
		},
	}
	_, err := e.run(site)
	return err
}

// Conditional constructs a distribution from pointwise argument values. The
// support of the resulting distribution must not depend on the arguments
// for enumeration over such a site to be sound.
type Conditional func(args []float64) (dist.Distribution, error)

// SampleC declares a latent choice whose distribution depends on previously
// sampled factors, aligned elementwise by dimension name.
func (e *Env) SampleC(name string, cond Conditional, args ...*factor.Factor) (*factor.Factor, error) {
	site := conditionalSite(name, cond, args)
	return e.run(site)
}

// ObserveC declares an observed value scored under a conditional
// distribution.
func (e *Env) ObserveC(name string, cond Conditional, x float64, args ...*factor.Factor) error {
	site := conditionalSite(name, cond, args)
	site.Observed = true
	site.Value = factor.Scalar(x)
	_, err := e.run(site)
	return err
}

func conditionalSite(name string, cond Conditional, args []*factor.Factor) *Site {
	return &Site{
		Name: name,
		Kind: "Conditional",
		draw: func(rng *rand.Rand) (float64, error) {
			vals := make([]float64, len(args))
			for i, a := range args {
				v, err := a.Scalar()
				if err != nil {
					return 0, fmt.Errorf("%w: argument %d has dims", ErrNonScalarArgs, i)
				}
				vals[i] = v
			}
			d, err := cond(vals)
			if err != nil {
				return 0, err
			}
			return d.Sample(rng), nil
		},
		score: func(v *factor.Factor) (*factor.Factor, error) {
			operands := append([]*factor.Factor{v}, args...)
			return factor.MapN(func(vals []float64) (float64, error) {
				d, err := cond(vals[1:])
				if err != nil {
					return 0, err
				}
				return d.LogProb(vals[0]), nil
			}, operands...)
		},
		support: func() ([]float64, error) {
			// Probe the conditional at the first argument cell; enumeration
			// requires the support to be argument-independent.
			vals := make([]float64, len(args))
			for i, a := range args {
				vals[i] = a.Data()[0]
			}
			d, err := cond(vals)
			if err != nil {
				return nil, err
			}
			disc, ok := d.(dist.Discrete)
			if !ok {
				return nil, fmt.Errorf("%w: %s", dist.ErrNotEnumerable, d.Kind())
			}
			return disc.Support()
		},
	}
}

// run pushes a site through the handler stack and applies the default draw
// when no handler produced a value.
func (e *Env) run(site *Site) (*factor.Factor, error) {
	for i := len(e.stack) - 1; i >= 0; i-- {
		if err := e.stack[i].Process(e, site); err != nil {
			return nil, fmt.Errorf("runtime: site %q: %w", site.Name, err)
		}
	}

	if site.Value == nil {
		if site.draw == nil {
			return nil, fmt.Errorf("%w: %q", ErrNoValue, site.Name)
		}
		x, err := site.draw(e.rng)
		if err != nil {
			return nil, fmt.Errorf("runtime: site %q: %w", site.Name, err)
		}
		site.Value = factor.Scalar(x)
	}

	for i := 0; i < len(e.stack); i++ {
		if err := e.stack[i].Postprocess(e, site); err != nil {
			return nil, fmt.Errorf("runtime: site %q: %w", site.Name, err)
		}
	}
	return site.Value, nil
}
