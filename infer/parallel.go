package infer

import (
	"golang.org/x/sync/errgroup"

	"github.com/lowvariance/marginal/runtime"
)

// BoundParallel evaluates the bound by fanning one single-particle run per
// particle index across at most workers goroutines and averaging.
//
// Each particle run is seeded with the same derived stream the vectorized
// path uses, so BoundParallel and Bound agree exactly for the same options;
// the fan-out only changes where the work happens. The store is read but
// never written during evaluation, so concurrent runs are safe.
func (e *TraceEnumELBO) BoundParallel(store *runtime.Store, workers int) (float64, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]float64, e.opts.Particles)

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range results {
		i := i
		g.Go(func() error {
			b, err := e.boundSeeded(store, runtime.ParticleSeed(e.opts.Seed, i), 1)
			if err != nil {
				return err
			}
			results[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	sum := 0.0
	for _, b := range results {
		sum += b
	}
	return sum / float64(len(results)), nil
}
