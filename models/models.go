// Package models provides the built-in model/guide pairs used by the CLI
// and the inference tests.
//
// Each Spec couples a generative model with its variational guide and the
// parameter declarations both need. The models are deliberately small: a
// two-component Gaussian mixture whose assignments are enumerated, and a
// two-state hidden Markov model whose state chain exercises elimination
// ordering, optionally with a shared continuous drift latent that takes the
// Monte-Carlo path.
package models

import (
	"fmt"
	"math"

	"github.com/lowvariance/marginal/dist"
	"github.com/lowvariance/marginal/factor"
	"github.com/lowvariance/marginal/kernels"
	"github.com/lowvariance/marginal/runtime"
)

// Spec couples a model/guide pair with its parameter declarations.
type Spec interface {
	Name() string
	DeclareParams(st *runtime.Store) error
	ParamNames() []string
	Model(env *runtime.Env) error
	Guide(env *runtime.Env) error
}

// New builds a named Spec over the given observations. Known names are
// "mixture", "hmm", and "hmm-drift".
func New(name string, data []float64, scale float64) (Spec, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("models: %q needs at least one observation", name)
	}
	if scale <= 0 {
		return nil, fmt.Errorf("models: observation scale %v must be positive", scale)
	}
	switch name {
	case "mixture":
		return &Mixture{Data: data, Scale: scale}, nil
	case "hmm":
		return &HMM{Data: data, Scale: scale}, nil
	case "hmm-drift":
		return &HMM{Data: data, Scale: scale, Drift: true}, nil
	default:
		return nil, fmt.Errorf("models: unknown model %q", name)
	}
}

// Mixture is a two-component Gaussian mixture. Every assignment is discrete
// and enumerated, so the mixture has no guide sites and its bound equals the
// exact log-likelihood.
type Mixture struct {
	Data  []float64
	Scale float64
}

func (m *Mixture) Name() string { return "mixture" }

// DeclareParams registers the mixing weight and the two component means.
func (m *Mixture) DeclareParams(st *runtime.Store) error {
	if err := st.Declare("mix", 0.5, runtime.UnitInterval); err != nil {
		return err
	}
	if err := st.Declare("loc0", -1, runtime.Real); err != nil {
		return err
	}
	return st.Declare("loc1", 1, runtime.Real)
}

func (m *Mixture) ParamNames() []string { return []string{"mix", "loc0", "loc1"} }

// Model assigns each observation to a component and scores it under that
// component's Gaussian.
func (m *Mixture) Model(env *runtime.Env) error {
	mix, err := env.Param("mix")
	if err != nil {
		return err
	}
	loc0, err := env.Param("loc0")
	if err != nil {
		return err
	}
	loc1, err := env.Param("loc1")
	if err != nil {
		return err
	}
	locs := []float64{loc0, loc1}

	assign, err := dist.NewBernoulli(mix)
	if err != nil {
		return err
	}

	for i, x := range m.Data {
		z, err := env.Sample(fmt.Sprintf("z[%d]", i), assign)
		if err != nil {
			return err
		}
		err = env.ObserveC(fmt.Sprintf("x[%d]", i), func(args []float64) (dist.Distribution, error) {
			return dist.NewNormal(locs[int(args[0])], m.Scale)
		}, x, z)
		if err != nil {
			return err
		}
	}
	return nil
}

// Guide is empty: the mixture has no continuous latents.
func (m *Mixture) Guide(*runtime.Env) error { return nil }

// ExactLogLikelihood evaluates the closed-form marginal log-likelihood at
// the store's current parameters, for checking the bound.
func (m *Mixture) ExactLogLikelihood(st *runtime.Store) (float64, error) {
	mix, err := st.Get("mix")
	if err != nil {
		return 0, err
	}
	loc0, err := st.Get("loc0")
	if err != nil {
		return 0, err
	}
	loc1, err := st.Get("loc1")
	if err != nil {
		return 0, err
	}
	c0, err := dist.NewNormal(loc0, m.Scale)
	if err != nil {
		return 0, err
	}
	c1, err := dist.NewNormal(loc1, m.Scale)
	if err != nil {
		return 0, err
	}

	total := 0.0
	for _, x := range m.Data {
		total += kernels.LogSumExp([]float64{
			math.Log1p(-mix) + c0.LogProb(x),
			math.Log(mix) + c1.LogProb(x),
		})
	}
	return total, nil
}

// HMM is a two-state hidden Markov model with Gaussian emissions. The state
// chain is enumerated; with Drift set, a shared continuous offset is drawn
// through the guide and takes the Monte-Carlo path.
type HMM struct {
	Data  []float64
	Scale float64
	Drift bool
}

func (h *HMM) Name() string {
	if h.Drift {
		return "hmm-drift"
	}
	return "hmm"
}

// DeclareParams registers the transition stay-probability, the two emission
// means, and, with Drift, the guide's variational parameters.
func (h *HMM) DeclareParams(st *runtime.Store) error {
	if err := st.Declare("stay", 0.7, runtime.UnitInterval); err != nil {
		return err
	}
	if err := st.Declare("eloc0", -1, runtime.Real); err != nil {
		return err
	}
	if err := st.Declare("eloc1", 1, runtime.Real); err != nil {
		return err
	}
	if !h.Drift {
		return nil
	}
	if err := st.Declare("drift.loc", 0, runtime.Real); err != nil {
		return err
	}
	return st.Declare("drift.scale", 0.5, runtime.Positive)
}

func (h *HMM) ParamNames() []string {
	names := []string{"stay", "eloc0", "eloc1"}
	if h.Drift {
		names = append(names, "drift.loc", "drift.scale")
	}
	return names
}

// Model walks the state chain, scoring transitions against the previous
// state and emissions against the current one.
func (h *HMM) Model(env *runtime.Env) error {
	stay, err := env.Param("stay")
	if err != nil {
		return err
	}
	eloc0, err := env.Param("eloc0")
	if err != nil {
		return err
	}
	eloc1, err := env.Param("eloc1")
	if err != nil {
		return err
	}
	elocs := []float64{eloc0, eloc1}

	drift := factor.Scalar(0)
	if h.Drift {
		prior, err := dist.NewNormal(0, 1)
		if err != nil {
			return err
		}
		drift, err = env.Sample("drift", prior)
		if err != nil {
			return err
		}
	}

	initial, err := dist.NewBernoulli(0.5)
	if err != nil {
		return err
	}
	transition := func(args []float64) (dist.Distribution, error) {
		if args[0] == 1 {
			return dist.NewBernoulli(stay)
		}
		return dist.NewBernoulli(1 - stay)
	}
	emission := func(args []float64) (dist.Distribution, error) {
		return dist.NewNormal(elocs[int(args[0])]+args[1], h.Scale)
	}

	var prev *factor.Factor
	for t, x := range h.Data {
		var z *factor.Factor
		if t == 0 {
			z, err = env.Sample("z[0]", initial)
		} else {
			z, err = env.SampleC(fmt.Sprintf("z[%d]", t), transition, prev)
		}
		if err != nil {
			return err
		}
		if err := env.ObserveC(fmt.Sprintf("x[%d]", t), emission, x, z, drift); err != nil {
			return err
		}
		prev = z
	}
	return nil
}

// Guide samples the drift latent from its variational Gaussian; without
// Drift it is empty.
func (h *HMM) Guide(env *runtime.Env) error {
	if !h.Drift {
		return nil
	}
	loc, err := env.Param("drift.loc")
	if err != nil {
		return err
	}
	scale, err := env.Param("drift.scale")
	if err != nil {
		return err
	}
	q, err := dist.NewNormal(loc, scale)
	if err != nil {
		return err
	}
	_, err = env.Sample("drift", q)
	return err
}

// ForwardLogLikelihood computes the exact log marginal likelihood of the
// driftless chain with the classic forward recursion, for checking the
// elimination path.
func (h *HMM) ForwardLogLikelihood(st *runtime.Store) (float64, error) {
	if h.Drift {
		return 0, fmt.Errorf("models: forward likelihood is only exact without drift")
	}
	stay, err := st.Get("stay")
	if err != nil {
		return 0, err
	}
	eloc0, err := st.Get("eloc0")
	if err != nil {
		return 0, err
	}
	eloc1, err := st.Get("eloc1")
	if err != nil {
		return 0, err
	}
	em0, err := dist.NewNormal(eloc0, h.Scale)
	if err != nil {
		return 0, err
	}
	em1, err := dist.NewNormal(eloc1, h.Scale)
	if err != nil {
		return 0, err
	}

	// alpha[s] = log p(x[0..t], z[t]=s)
	logStay := math.Log(stay)
	logFlip := math.Log1p(-stay)
	alpha := [2]float64{
		math.Log(0.5) + em0.LogProb(h.Data[0]),
		math.Log(0.5) + em1.LogProb(h.Data[0]),
	}
	for _, x := range h.Data[1:] {
		next := [2]float64{
			kernels.LogAddExp(alpha[0]+logStay, alpha[1]+logFlip) + em0.LogProb(x),
			kernels.LogAddExp(alpha[0]+logFlip, alpha[1]+logStay) + em1.LogProb(x),
		}
		alpha = next
	}
	return kernels.LogAddExp(alpha[0], alpha[1]), nil
}
