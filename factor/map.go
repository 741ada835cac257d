package factor

import "fmt"

// MapN applies op elementwise over the aligned union of the operands'
// dimensions. Each operand broadcasts along the dimensions it lacks, exactly
// as in Add. op receives the operand values in argument order and may fail,
// which aborts the map.
//
// This is how conditional densities are scored: the value factor and every
// parameter factor line up by dimension name and op evaluates one
// distribution per joint cell.
func MapN(op func(vals []float64) (float64, error), fs ...*Factor) (*Factor, error) {
	if len(fs) == 0 {
		return nil, fmt.Errorf("factor: MapN needs at least one operand")
	}

	var dims []Dim
	for _, f := range fs {
		u, err := unionDims(dims, f.dims)
		if err != nil {
			return nil, err
		}
		dims = u
	}

	out := zeros(dims)
	strides := make([][]int, len(fs))
	for i, f := range fs {
		strides[i] = stridesFor(f, dims)
	}

	counters := make([]int, len(dims))
	offsets := make([]int, len(fs))
	vals := make([]float64, len(fs))
	for i := range out.data {
		for j, f := range fs {
			vals[j] = f.data[offsets[j]]
		}
		v, err := op(vals)
		if err != nil {
			out.Recycle()
			return nil, err
		}
		out.data[i] = v

		for ax := len(dims) - 1; ax >= 0; ax-- {
			counters[ax]++
			for j := range offsets {
				offsets[j] += strides[j][ax]
			}
			if counters[ax] < dims[ax].Size {
				break
			}
			counters[ax] = 0
			for j := range offsets {
				offsets[j] -= strides[j][ax] * dims[ax].Size
			}
		}
	}
	return out, nil
}
