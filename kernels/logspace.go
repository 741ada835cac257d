// Package kernels provides numerically stable log-space primitives for marginal.
//
// This package implements the numeric core that factor reductions dispatch to:
// log-sum-exp, max, and sum reductions over flat float64 buffers, plus a
// strided variant that reduces a single axis of a dense row-major block.
// All kernels are allocation-free on their hot paths and tolerate -Inf
// entries, which the log-space representation uses for zero probability.
//
// Reduction kernels are registered in the Catalog array for dispatch by
// opcode, so callers can carry the reduction choice as data.
package kernels

import "math"

// ReduceFn collapses a flat buffer to a scalar.
type ReduceFn func(data []float64) float64

// Reduction opcodes.
const (
	OpNoop      = 0x00
	OpSum       = 0x01
	OpMax       = 0x02
	OpLogSumExp = 0x03
	OpMean      = 0x04
)

// Catalog maps opcodes to reduction implementations.
var Catalog = [16]ReduceFn{
	OpSum:       Sum,
	OpMax:       Max,
	OpLogSumExp: LogSumExp,
	OpMean:      Mean,
}

// GetReduce returns the reduction for the given opcode, or nil if unknown.
func GetReduce(op uint8) ReduceFn {
	if int(op) >= len(Catalog) {
		return nil
	}
	return Catalog[op]
}

// Sum returns the arithmetic sum of data. Empty input yields 0.
func Sum(data []float64) float64 {
	s := 0.0
	for _, v := range data {
		s += v
	}
	return s
}

// Max returns the largest element. Empty input yields -Inf.
func Max(data []float64) float64 {
	m := math.Inf(-1)
	for _, v := range data {
		if v > m {
			m = v
		}
	}
	return m
}

// Mean returns the arithmetic mean. Empty input yields NaN.
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return math.NaN()
	}
	return Sum(data) / float64(len(data))
}

// LogSumExp returns log(sum(exp(data))) with max-shifting for stability.
// Empty or all -Inf input yields -Inf; the all -Inf case must not poison
// the result with NaN from exp(-Inf - -Inf).
func LogSumExp(data []float64) float64 {
	m := Max(data)
	if math.IsInf(m, -1) {
		return math.Inf(-1)
	}
	if math.IsInf(m, 1) {
		return math.Inf(1)
	}
	s := 0.0
	for _, v := range data {
		s += math.Exp(v - m)
	}
	return m + math.Log(s)
}

// LogAddExp returns log(exp(a) + exp(b)) without overflow.
func LogAddExp(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if math.IsInf(a, -1) {
		return math.Inf(-1)
	}
	return a + math.Log1p(math.Exp(b-a))
}

// AXPY computes y[i] += alpha * x[i]. Slices must have equal length.
func AXPY(alpha float64, x, y []float64) {
	for i, v := range x {
		y[i] += alpha * v
	}
}

// ExpNormalize overwrites data with exp(data - logsumexp(data)), turning a
// log-weight vector into a probability vector. All -Inf input is left as a
// zero vector rather than NaN.
func ExpNormalize(data []float64) {
	z := LogSumExp(data)
	if math.IsInf(z, -1) {
		for i := range data {
			data[i] = 0
		}
		return
	}
	for i := range data {
		data[i] = math.Exp(data[i] - z)
	}
}

// ReduceAxis collapses the middle axis of a dense row-major block.
//
// src is laid out as [outer][n][inner]; dst as [outer][inner]. For each
// (o, i) pair the n entries src[(o*n+k)*inner+i] are reduced with the kernel
// named by op. dst and src must not alias.
func ReduceAxis(dst, src []float64, outer, n, inner int, op uint8) {
	fn := GetReduce(op)
	if fn == nil || n == 0 {
		return
	}
	// The strided gather buffer is tiny (n elements) and reused across cells.
	lane := make([]float64, n)
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			base := o*n*inner + i
			for k := 0; k < n; k++ {
				lane[k] = src[base+k*inner]
			}
			dst[o*inner+i] = fn(lane)
		}
	}
}
