package runtime

import (
	"errors"
	"fmt"
)

// DefaultMaxDims bounds how many named dimensions one execution may allocate.
const DefaultMaxDims = 64

// ErrDimExhausted is returned when the allocator runs out of dimensions.
var ErrDimExhausted = errors.New("runtime: dimension allocator exhausted")

// DimAlloc hands out fresh dimension names for one execution. Names embed a
// monotone counter so every enumerated site and every particle axis gets a
// distinct dimension even when site names repeat across handler scopes.
type DimAlloc struct {
	next int
	max  int
}

// NewDimAlloc creates an allocator bounded at max dimensions.
func NewDimAlloc(max int) *DimAlloc {
	if max <= 0 {
		max = DefaultMaxDims
	}
	return &DimAlloc{max: max}
}

// Fresh allocates a new dimension name with the given prefix.
func (a *DimAlloc) Fresh(prefix string) (string, error) {
	if a.next >= a.max {
		return "", fmt.Errorf("%w: limit %d", ErrDimExhausted, a.max)
	}
	name := fmt.Sprintf("%s#%d", prefix, a.next)
	a.next++
	return name, nil
}

// Allocated reports how many dimensions have been handed out.
func (a *DimAlloc) Allocated() int { return a.next }
