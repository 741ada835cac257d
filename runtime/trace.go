package runtime

import (
	"fmt"
)

// Trace records every site of one execution in order.
type Trace struct {
	Base
	sites map[string]*Site
	order []string
}

// NewTrace creates an empty trace handler.
func NewTrace() *Trace {
	return &Trace{sites: make(map[string]*Site)}
}

// Postprocess records the finished site. Duplicate site names are an error:
// they would silently alias random choices.
func (t *Trace) Postprocess(_ *Env, s *Site) error {
	if _, dup := t.sites[s.Name]; dup {
		return fmt.Errorf("runtime: duplicate site name %q", s.Name)
	}
	t.sites[s.Name] = s
	t.order = append(t.order, s.Name)
	return nil
}

// Site returns the recorded site by name.
func (t *Trace) Site(name string) (*Site, bool) {
	s, ok := t.sites[name]
	return s, ok
}

// Names returns site names in execution order.
func (t *Trace) Names() []string {
	return append([]string(nil), t.order...)
}

// Len returns the number of recorded sites.
func (t *Trace) Len() int { return len(t.order) }

// Replay substitutes recorded values into matching unobserved sites of a
// later execution, leaving unmatched sites to the rest of the stack.
type Replay struct {
	Base
	trace *Trace
}

// NewReplay creates a replay handler over a recorded trace.
func NewReplay(trace *Trace) *Replay {
	return &Replay{trace: trace}
}

// Process fills the site's value from the trace when present.
func (r *Replay) Process(_ *Env, s *Site) error {
	if s.Observed || s.Value != nil {
		return nil
	}
	rec, ok := r.trace.Site(s.Name)
	if !ok || rec.Value == nil {
		return nil
	}
	s.Value = rec.Value
	return nil
}
