// Package marginal implements exact marginalization of discrete latent
// variables in probabilistic programs.
//
// Marginal expresses inference as a stack of effect handlers wrapped around
// an ordinary Go function (the "model") that declares random choices through
// sampling statements. Discrete latent choices are not sampled at all:
// an enumeration handler replaces each one with its full support, laid out
// along a named tensor dimension, and a variable-elimination pass sums the
// resulting log-joint factors back down to a scalar evidence lower bound.
// Continuous choices are handled Monte-Carlo style through a guide program
// and a replication ("particle") dimension.
//
// # Architecture Overview
//
// The engine consists of several key components:
//
//   - Factors: Dense log-space tensors with named dimensions
//   - Kernels: Numerically stable log-space reductions over flat buffers
//   - Runtime: Effect-handler stack driving sites, traces, and parameters
//   - Infer: The enumeration ELBO driver, gradients, and an SVI loop
//
// # Basic Usage
//
//	st := runtime.NewStore()
//	st.Declare("loc", 0, runtime.Real)
//	st.Declare("scale", 1, runtime.Positive)
//
//	elbo := infer.NewTraceEnumELBO(model, guide, infer.Options{Particles: 8})
//	bound, grads, err := elbo.BoundAndGrad(st, "loc", "scale")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Package Structure
//
//   - kernels: log-space numeric primitives over []float64
//   - factor: named-dimension factors and variable elimination
//   - dist: probability distributions with enumerable support
//   - runtime: handler stack, traces, parameter store, snapshots
//   - infer: ELBO driver, finite-difference gradients, SVI
//   - models: built-in demonstration model/guide pairs
//   - cmd/marginal: command-line front end
package marginal
