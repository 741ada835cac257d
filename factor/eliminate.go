package factor

import (
	"fmt"
	"sort"
)

// Eliminate sums the named dimensions out of the product of factors and
// returns the remaining product.
//
// Rather than materializing the full joint, dimensions are eliminated one at
// a time: the next dimension is chosen greedily by the volume of the
// intermediate factor its elimination would create, the factors mentioning
// it are multiplied (log-space Add), and the dimension is log-sum-exp'd
// away. For chain-structured models this reproduces the classic
// forward-algorithm cost instead of the exponential joint.
//
// The result is exact regardless of the chosen order; the order only
// affects intermediate sizes.
func Eliminate(factors []*Factor, drop []string) (*Factor, error) {
	if len(factors) == 0 {
		return Scalar(0), nil
	}

	work := append([]*Factor(nil), factors...)
	remaining := append([]string(nil), drop...)

	for len(remaining) > 0 {
		name, err := cheapestDim(work, remaining)
		if err != nil {
			return nil, err
		}

		joined, rest, err := joinMentioning(work, name)
		if err != nil {
			return nil, err
		}
		reduced, err := joined.LogSumExp(name)
		if err != nil {
			return nil, err
		}
		work = append(rest, reduced)

		next := remaining[:0]
		for _, d := range remaining {
			if d != name {
				next = append(next, d)
			}
		}
		remaining = next
	}

	out := work[0]
	for _, f := range work[1:] {
		joined, err := Add(out, f)
		if err != nil {
			return nil, err
		}
		out = joined
	}
	return out, nil
}

// cheapestDim scores each candidate by the element count of the factor that
// joining its mentions would produce, and returns the smallest. Ties break
// lexicographically so elimination is deterministic.
func cheapestDim(factors []*Factor, candidates []string) (string, error) {
	type scored struct {
		name string
		cost int
	}
	var scores []scored

	for _, name := range candidates {
		dims, mentioned, err := joinedDims(factors, name)
		if err != nil {
			return "", err
		}
		if !mentioned {
			return "", fmt.Errorf("%w: %q not mentioned by any factor", ErrNoSuchDim, name)
		}
		cost := 1
		for _, d := range dims {
			cost *= d.Size
		}
		scores = append(scores, scored{name: name, cost: cost})
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].cost != scores[j].cost {
			return scores[i].cost < scores[j].cost
		}
		return scores[i].name < scores[j].name
	})
	return scores[0].name, nil
}

// joinedDims computes the dimension union of all factors mentioning name.
func joinedDims(factors []*Factor, name string) ([]Dim, bool, error) {
	var dims []Dim
	mentioned := false
	for _, f := range factors {
		if _, ok := f.Size(name); !ok {
			continue
		}
		mentioned = true
		u, err := unionDims(dims, f.dims)
		if err != nil {
			return nil, false, err
		}
		dims = u
	}
	return dims, mentioned, nil
}

// joinMentioning multiplies every factor that carries name and returns the
// product plus the untouched remainder.
func joinMentioning(factors []*Factor, name string) (*Factor, []*Factor, error) {
	var joined *Factor
	var rest []*Factor
	for _, f := range factors {
		if _, ok := f.Size(name); !ok {
			rest = append(rest, f)
			continue
		}
		if joined == nil {
			joined = f
			continue
		}
		next, err := Add(joined, f)
		if err != nil {
			return nil, nil, err
		}
		joined = next
	}
	if joined == nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrNoSuchDim, name)
	}
	return joined, rest, nil
}
