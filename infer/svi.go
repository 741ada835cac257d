package infer

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/lowvariance/marginal/runtime"
)

// Optimizer applies one gradient-ascent step in unconstrained space.
type Optimizer interface {
	Step(store *runtime.Store, grads map[string]float64) error
}

// SGD is plain gradient ascent with a fixed learning rate.
type SGD struct {
	LR float64
}

// Step moves every parameter along its gradient.
func (o *SGD) Step(store *runtime.Store, grads map[string]float64) error {
	for name, g := range grads {
		u, err := store.Unconstrained(name)
		if err != nil {
			return err
		}
		if err := store.SetUnconstrained(name, u+o.LR*g); err != nil {
			return err
		}
	}
	return nil
}

// Adam keeps per-parameter first and second moment estimates.
type Adam struct {
	LR    float64
	Beta1 float64
	Beta2 float64
	Eps   float64

	t int
	m map[string]float64
	v map[string]float64
}

// NewAdam builds an Adam optimizer with the usual defaults for unset fields.
func NewAdam(lr float64) *Adam {
	return &Adam{
		LR:    lr,
		Beta1: 0.9,
		Beta2: 0.999,
		Eps:   1e-8,
		m:     make(map[string]float64),
		v:     make(map[string]float64),
	}
}

// Step applies a bias-corrected Adam ascent step.
func (o *Adam) Step(store *runtime.Store, grads map[string]float64) error {
	if o.m == nil {
		o.m = make(map[string]float64)
		o.v = make(map[string]float64)
	}
	o.t++
	for name, g := range grads {
		o.m[name] = o.Beta1*o.m[name] + (1-o.Beta1)*g
		o.v[name] = o.Beta2*o.v[name] + (1-o.Beta2)*g*g
		mHat := o.m[name] / (1 - math.Pow(o.Beta1, float64(o.t)))
		vHat := o.v[name] / (1 - math.Pow(o.Beta2, float64(o.t)))

		u, err := store.Unconstrained(name)
		if err != nil {
			return err
		}
		if err := store.SetUnconstrained(name, u+o.LR*mHat/(math.Sqrt(vHat)+o.Eps)); err != nil {
			return err
		}
	}
	return nil
}

// SVI runs stochastic variational inference: repeated bound-and-gradient
// evaluations feeding an optimizer.
type SVI struct {
	elbo   *TraceEnumELBO
	opt    Optimizer
	logger *zap.Logger
}

// NewSVI wires a driver to an optimizer. logger may be nil.
func NewSVI(elbo *TraceEnumELBO, opt Optimizer, logger *zap.Logger) *SVI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SVI{elbo: elbo, opt: opt, logger: logger}
}

// stepSeedStride decorrelates Monte-Carlo draws across steps while keeping
// the whole run reproducible from the base seed.
const stepSeedStride = 0x5DEECE66D

// Run performs steps optimization steps over the named parameters and
// returns the bound at the final parameters.
func (s *SVI) Run(store *runtime.Store, names []string, steps int) (float64, error) {
	if steps < 1 {
		return 0, fmt.Errorf("infer: step count %d must be >= 1", steps)
	}
	base := s.elbo.opts.Seed

	var bound float64
	for step := 0; step < steps; step++ {
		stepELBO := &TraceEnumELBO{model: s.elbo.model, guide: s.elbo.guide, opts: s.elbo.opts}
		stepELBO.opts.Seed = base + int64(step)*stepSeedStride

		b, grads, err := stepELBO.BoundAndGrad(store, names...)
		if err != nil {
			return 0, fmt.Errorf("infer: svi step %d: %w", step, err)
		}
		if err := s.opt.Step(store, grads); err != nil {
			return 0, fmt.Errorf("infer: svi step %d: %w", step, err)
		}
		bound = b

		if step%10 == 0 {
			s.logger.Info("svi step", zap.Int("step", step), zap.Float64("bound", b))
		} else {
			s.logger.Debug("svi step", zap.Int("step", step), zap.Float64("bound", b))
		}
	}

	final, err := s.elbo.Bound(store)
	if err != nil {
		return 0, err
	}
	s.logger.Info("svi finished", zap.Int("steps", steps), zap.Float64("last_step_bound", bound), zap.Float64("final_bound", final))
	return final, nil
}
