package runtime

import (
	"errors"
	"fmt"

	"github.com/lowvariance/marginal/dist"
	"github.com/lowvariance/marginal/factor"
)

// Enumerate replaces unobserved discrete choices with their full support,
// laid out along a freshly allocated dimension. Sites that already carry a
// value (observed, replayed, or filled by an inner handler) pass through
// untouched, as do continuous sites.
type Enumerate struct {
	Base
	dims []string
}

// NewEnumerate creates an enumeration handler.
func NewEnumerate() *Enumerate {
	return &Enumerate{}
}

// Dims returns the dimensions allocated so far, in allocation order. These
// are the dimensions a driver must eliminate.
func (en *Enumerate) Dims() []string {
	return append([]string(nil), en.dims...)
}

// Process enumerates the site when it is discrete and still valueless.
func (en *Enumerate) Process(env *Env, s *Site) error {
	if s.Observed || s.Value != nil || s.support == nil {
		return nil
	}
	support, err := s.support()
	if err != nil {
		if errors.Is(err, dist.ErrNotEnumerable) {
			// Continuous or unbounded site: leave it for sampling handlers.
			return nil
		}
		return err
	}
	if len(support) == 0 {
		return fmt.Errorf("runtime: site %q has empty support", s.Name)
	}

	dim, err := env.Dims().Fresh(s.Name)
	if err != nil {
		return err
	}
	value, err := factor.New([]factor.Dim{{Name: dim, Size: len(support)}}, support)
	if err != nil {
		return err
	}

	s.Value = value
	s.Enumerated = true
	s.EnumDim = dim
	en.dims = append(en.dims, dim)
	return nil
}
