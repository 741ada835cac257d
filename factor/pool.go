package factor

import "sync"

// bufPool recycles float64 scratch buffers across factor operations.
// Elimination produces many short-lived intermediates of similar sizes, so
// pooling keeps steady-state allocation near zero.
var bufPool = sync.Pool{
	New: func() interface{} {
		return make([]float64, 0, 256)
	},
}

// getBuf returns a length-n buffer, reusing pooled capacity when possible.
func getBuf(n int) []float64 {
	buf := bufPool.Get().([]float64)
	if cap(buf) < n {
		return make([]float64, n)
	}
	return buf[:n]
}

// Recycle returns a factor's payload to the pool. The factor must not be
// used afterwards. Calling Recycle is optional; unrecycled buffers are
// simply collected.
func (f *Factor) Recycle() {
	if f == nil || f.data == nil {
		return
	}
	bufPool.Put(f.data[:0])
	f.data = nil
	f.dims = nil
}
