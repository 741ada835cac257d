package runtime

import (
	"fmt"
	"math"
	"sort"
)

// Constraint restricts a parameter's constrained-space domain. Parameters
// are stored unconstrained and transformed on read, so optimizers can take
// unconstrained gradient steps without violating domains.
type Constraint uint8

const (
	// Real parameters pass through untransformed.
	Real Constraint = iota
	// Positive parameters are stored as log values and read through exp.
	Positive
	// UnitInterval parameters are stored as logits and read through the
	// logistic function.
	UnitInterval
)

// String names the constraint for diagnostics and snapshots.
func (c Constraint) String() string {
	switch c {
	case Real:
		return "real"
	case Positive:
		return "positive"
	case UnitInterval:
		return "unit"
	default:
		return fmt.Sprintf("constraint(%d)", uint8(c))
	}
}

func (c Constraint) valid() bool { return c <= UnitInterval }

// toUnconstrained maps an initial constrained value into storage space.
func (c Constraint) toUnconstrained(v float64) (float64, error) {
	switch c {
	case Real:
		return v, nil
	case Positive:
		if v <= 0 {
			return 0, fmt.Errorf("runtime: positive parameter initialized to %v", v)
		}
		return math.Log(v), nil
	case UnitInterval:
		if v <= 0 || v >= 1 {
			return 0, fmt.Errorf("runtime: unit-interval parameter initialized to %v", v)
		}
		return math.Log(v / (1 - v)), nil
	default:
		return 0, fmt.Errorf("runtime: unknown constraint %d", uint8(c))
	}
}

// fromUnconstrained maps storage space back to the constrained domain.
func (c Constraint) fromUnconstrained(u float64) float64 {
	switch c {
	case Positive:
		return math.Exp(u)
	case UnitInterval:
		return 1 / (1 + math.Exp(-u))
	default:
		return u
	}
}

type param struct {
	value      float64 // unconstrained
	constraint Constraint
}

// Store holds named scalar parameters. It is the single mutable state shared
// between inference runs; everything else is rebuilt per execution.
type Store struct {
	params map[string]*param
}

// NewStore creates an empty parameter store.
func NewStore() *Store {
	return &Store{params: make(map[string]*param)}
}

// Declare registers a parameter with an initial value in constrained space.
// Re-declaring an existing name is an error.
func (s *Store) Declare(name string, init float64, c Constraint) error {
	if name == "" {
		return fmt.Errorf("runtime: parameter name must be non-empty")
	}
	if !c.valid() {
		return fmt.Errorf("runtime: unknown constraint %d for %q", uint8(c), name)
	}
	if _, dup := s.params[name]; dup {
		return fmt.Errorf("runtime: parameter %q already declared", name)
	}
	u, err := c.toUnconstrained(init)
	if err != nil {
		return fmt.Errorf("%w (parameter %q)", err, name)
	}
	s.params[name] = &param{value: u, constraint: c}
	return nil
}

// Get returns the parameter's value in constrained space.
func (s *Store) Get(name string) (float64, error) {
	p, ok := s.params[name]
	if !ok {
		return 0, fmt.Errorf("runtime: parameter %q not declared", name)
	}
	return p.constraint.fromUnconstrained(p.value), nil
}

// Unconstrained returns the parameter's storage-space value.
func (s *Store) Unconstrained(name string) (float64, error) {
	p, ok := s.params[name]
	if !ok {
		return 0, fmt.Errorf("runtime: parameter %q not declared", name)
	}
	return p.value, nil
}

// SetUnconstrained overwrites the parameter's storage-space value.
func (s *Store) SetUnconstrained(name string, u float64) error {
	p, ok := s.params[name]
	if !ok {
		return fmt.Errorf("runtime: parameter %q not declared", name)
	}
	if math.IsNaN(u) {
		return fmt.Errorf("runtime: refusing NaN for parameter %q", name)
	}
	p.value = u
	return nil
}

// ConstraintOf returns the parameter's declared constraint.
func (s *Store) ConstraintOf(name string) (Constraint, error) {
	p, ok := s.params[name]
	if !ok {
		return 0, fmt.Errorf("runtime: parameter %q not declared", name)
	}
	return p.constraint, nil
}

// Names returns all parameter names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.params))
	for name := range s.params {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of declared parameters.
func (s *Store) Len() int { return len(s.params) }
