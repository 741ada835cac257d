package runtime

import (
	"github.com/lowvariance/marginal/factor"
)

// LogJoint accumulates one log-density factor per site. The handler only
// collects terms; summation and marginalization are deferred to the driver,
// which knows which dimensions to eliminate.
type LogJoint struct {
	Base
	terms []*factor.Factor
}

// NewLogJoint creates an empty accumulator.
func NewLogJoint() *LogJoint {
	return &LogJoint{}
}

// Postprocess scores the site at its realized value and collects the term.
func (lj *LogJoint) Postprocess(_ *Env, s *Site) error {
	if s.score == nil {
		return nil
	}
	lp, err := s.score(s.Value)
	if err != nil {
		return err
	}
	s.LogProb = lp
	lj.terms = append(lj.terms, lp)
	return nil
}

// Terms returns the collected log-density factors in site order.
func (lj *LogJoint) Terms() []*factor.Factor {
	return append([]*factor.Factor(nil), lj.terms...)
}

// Sum adds all collected terms into one factor over the union of their
// dimensions.
func (lj *LogJoint) Sum() (*factor.Factor, error) {
	out := factor.Scalar(0)
	for _, t := range lj.terms {
		next, err := factor.Add(out, t)
		if err != nil {
			return nil, err
		}
		out = next
	}
	return out, nil
}
