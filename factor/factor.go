// Package factor implements dense log-space tensors with named dimensions.
//
// A Factor holds a row-major float64 block whose axes carry names instead of
// positions. Binary operations align their operands by dimension name and
// broadcast missing axes, so callers never transpose or reshape by hand.
// Values live in log space throughout: Add is the pointwise product of the
// underlying densities, and LogSumExp reduction is exact marginalization of
// a dimension.
//
// The package also provides variable elimination over sets of factors (see
// eliminate.go), which is the summation engine behind enumeration-based
// inference.
package factor

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lowvariance/marginal/kernels"
)

// Common factor errors.
var (
	ErrDimMismatch = errors.New("factor: conflicting sizes for shared dimension")
	ErrNoSuchDim   = errors.New("factor: dimension not present")
)

// Dim is a named tensor axis.
type Dim struct {
	Name string
	Size int
}

// Factor is a dense log-space tensor over named dimensions. Axis order is
// row-major with the first dimension outermost. A factor with no dimensions
// is a scalar and holds exactly one element.
type Factor struct {
	dims []Dim
	data []float64
}

// New constructs a factor over dims with the given row-major data. The data
// length must equal the product of the dimension sizes and dimension names
// must be unique.
func New(dims []Dim, data []float64) (*Factor, error) {
	n := 1
	seen := make(map[string]bool, len(dims))
	for _, d := range dims {
		if d.Size <= 0 {
			return nil, fmt.Errorf("factor: dimension %q has size %d", d.Name, d.Size)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("factor: duplicate dimension %q", d.Name)
		}
		seen[d.Name] = true
		n *= d.Size
	}
	if len(data) != n {
		return nil, fmt.Errorf("factor: data length %d does not match shape volume %d", len(data), n)
	}
	f := &Factor{dims: append([]Dim(nil), dims...), data: append([]float64(nil), data...)}
	return f, nil
}

// Scalar returns a zero-dimensional factor holding v.
func Scalar(v float64) *Factor {
	return &Factor{data: []float64{v}}
}

// zeros allocates a factor of zeros over dims, reusing pooled buffers.
func zeros(dims []Dim) *Factor {
	n := 1
	for _, d := range dims {
		n *= d.Size
	}
	buf := getBuf(n)
	for i := range buf {
		buf[i] = 0
	}
	return &Factor{dims: append([]Dim(nil), dims...), data: buf}
}

// Dims returns a copy of the factor's dimensions in axis order.
func (f *Factor) Dims() []Dim {
	return append([]Dim(nil), f.dims...)
}

// Data returns a copy of the row-major payload.
func (f *Factor) Data() []float64 {
	return append([]float64(nil), f.data...)
}

// NumElems returns the number of stored elements.
func (f *Factor) NumElems() int {
	return len(f.data)
}

// Size returns the size of the named dimension and whether it is present.
func (f *Factor) Size(name string) (int, bool) {
	for _, d := range f.dims {
		if d.Name == name {
			return d.Size, true
		}
	}
	return 0, false
}

// Scalar extracts the value of a zero-dimensional factor.
func (f *Factor) Scalar() (float64, error) {
	if len(f.dims) != 0 {
		return 0, fmt.Errorf("factor: not a scalar, has dims %s", f.dimNames())
	}
	return f.data[0], nil
}

// At reads a single element by named index. Every dimension of the factor
// must be indexed; extra names are ignored.
func (f *Factor) At(idx map[string]int) (float64, error) {
	pos := 0
	for _, d := range f.dims {
		i, ok := idx[d.Name]
		if !ok {
			return 0, fmt.Errorf("%w: %q unindexed", ErrNoSuchDim, d.Name)
		}
		if i < 0 || i >= d.Size {
			return 0, fmt.Errorf("factor: index %d out of range for %q (size %d)", i, d.Name, d.Size)
		}
		pos = pos*d.Size + i
	}
	return f.data[pos], nil
}

// Clone returns a deep copy of the factor.
func (f *Factor) Clone() *Factor {
	return &Factor{
		dims: append([]Dim(nil), f.dims...),
		data: append([]float64(nil), f.data...),
	}
}

// AddScalar returns a copy of f with v added to every element.
func (f *Factor) AddScalar(v float64) *Factor {
	out := f.Clone()
	for i := range out.data {
		out.data[i] += v
	}
	return out
}

// Add returns the pointwise sum of two log-space factors, broadcasting over
// the union of their dimensions. In density terms this is the product.
func Add(a, b *Factor) (*Factor, error) {
	return binary(a, b, func(x, y float64) float64 { return x + y })
}

// Sub returns a - b with the same broadcasting rules as Add. In density
// terms this is the ratio, used for importance corrections.
func Sub(a, b *Factor) (*Factor, error) {
	return binary(a, b, func(x, y float64) float64 { return x - y })
}

// binary applies op elementwise over the aligned union of dimensions.
func binary(a, b *Factor, op func(x, y float64) float64) (*Factor, error) {
	dims, err := unionDims(a.dims, b.dims)
	if err != nil {
		return nil, err
	}
	out := zeros(dims)
	sa := stridesFor(a, dims)
	sb := stridesFor(b, dims)

	counters := make([]int, len(dims))
	ia, ib := 0, 0
	for i := range out.data {
		out.data[i] = op(a.data[ia], b.data[ib])
		for ax := len(dims) - 1; ax >= 0; ax-- {
			counters[ax]++
			ia += sa[ax]
			ib += sb[ax]
			if counters[ax] < dims[ax].Size {
				break
			}
			counters[ax] = 0
			ia -= sa[ax] * dims[ax].Size
			ib -= sb[ax] * dims[ax].Size
		}
	}
	return out, nil
}

// BroadcastTo expands f to cover dims, which must include every dimension of
// f at its existing size.
func (f *Factor) BroadcastTo(dims []Dim) (*Factor, error) {
	for _, d := range f.dims {
		found := false
		for _, t := range dims {
			if t.Name == d.Name {
				if t.Size != d.Size {
					return nil, fmt.Errorf("%w: %q is %d, target wants %d", ErrDimMismatch, d.Name, d.Size, t.Size)
				}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q missing from broadcast target", ErrNoSuchDim, d.Name)
		}
	}
	return Add(f, zeros(dims))
}

// Reduce collapses the named dimensions with the reduction opcode from the
// kernels catalog, one axis at a time.
func (f *Factor) Reduce(op uint8, names ...string) (*Factor, error) {
	if kernels.GetReduce(op) == nil {
		return nil, fmt.Errorf("factor: unknown reduction opcode %#x", op)
	}
	out := f
	for _, name := range names {
		next, err := out.reduceOne(name, op)
		if err != nil {
			return nil, err
		}
		out = next
	}
	if out == f {
		out = f.Clone()
	}
	return out, nil
}

// LogSumExp marginalizes the named dimensions exactly.
func (f *Factor) LogSumExp(names ...string) (*Factor, error) {
	return f.Reduce(kernels.OpLogSumExp, names...)
}

// Mean averages over the named dimension, used for the particle axis.
func (f *Factor) Mean(name string) (*Factor, error) {
	return f.Reduce(kernels.OpMean, name)
}

// reduceOne collapses a single axis in place of the stored layout.
func (f *Factor) reduceOne(name string, op uint8) (*Factor, error) {
	ax := -1
	for i, d := range f.dims {
		if d.Name == name {
			ax = i
			break
		}
	}
	if ax < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchDim, name)
	}

	outer, inner := 1, 1
	for i := 0; i < ax; i++ {
		outer *= f.dims[i].Size
	}
	for i := ax + 1; i < len(f.dims); i++ {
		inner *= f.dims[i].Size
	}
	n := f.dims[ax].Size

	dst := getBuf(outer * inner)
	kernels.ReduceAxis(dst, f.data, outer, n, inner, op)

	dims := make([]Dim, 0, len(f.dims)-1)
	dims = append(dims, f.dims[:ax]...)
	dims = append(dims, f.dims[ax+1:]...)
	return &Factor{dims: dims, data: dst}, nil
}

// unionDims merges two dimension lists, preserving a's order and appending
// b's extras, rejecting size conflicts.
func unionDims(a, b []Dim) ([]Dim, error) {
	out := append([]Dim(nil), a...)
	for _, d := range b {
		dup := false
		for _, e := range out {
			if e.Name == d.Name {
				if e.Size != d.Size {
					return nil, fmt.Errorf("%w: %q is %d vs %d", ErrDimMismatch, d.Name, e.Size, d.Size)
				}
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, d)
		}
	}
	return out, nil
}

// stridesFor computes, for each target axis, f's stride along it (0 for axes
// f does not carry, which is what realizes broadcasting).
func stridesFor(f *Factor, dims []Dim) []int {
	own := make([]int, len(f.dims))
	s := 1
	for i := len(f.dims) - 1; i >= 0; i-- {
		own[i] = s
		s *= f.dims[i].Size
	}
	out := make([]int, len(dims))
	for t, d := range dims {
		for i, fd := range f.dims {
			if fd.Name == d.Name {
				out[t] = own[i]
				break
			}
		}
	}
	return out
}

func (f *Factor) dimNames() string {
	names := make([]string, len(f.dims))
	for i, d := range f.dims {
		names[i] = fmt.Sprintf("%s=%d", d.Name, d.Size)
	}
	return "[" + strings.Join(names, " ") + "]"
}

// String renders the shape and element count, not the payload.
func (f *Factor) String() string {
	return fmt.Sprintf("Factor%s{%d elems}", f.dimNames(), len(f.data))
}
