package optimization

import (
	"context"

	"github.com/quenchlab/crucible/internal/domain"
)

// CandidateSet optimizes an objective by evaluating a pre-supplied, finite
// set of candidate points and returning the one with minimum objective
// value. Candidates must lie within the optimizer's domain.
type CandidateSet struct {
	Optimizer
	domain     *domain.Domain
	candidates [][]float64
}

// NewCandidateSet creates a fixed-candidate optimizer. Every candidate must
// have one coordinate per continuous dimension of d and lie within the
// domain's bounds.
func NewCandidateSet(d *domain.Domain, candidates [][]float64) (*CandidateSet, error) {
	const op = "NewCandidateSet"
	if len(candidates) == 0 {
		return nil, NewError("candidate set must not be empty").WithComponent("candidate_set").WithOperation(op)
	}
	bounds := DomainBounds(d)
	for i, c := range candidates {
		if len(c) != len(bounds) {
			return nil, NewErrorf("candidate %d has %d dimensions but the domain has %d",
				i, len(c), len(bounds)).WithComponent("candidate_set").WithOperation(op)
		}
		for j, v := range c {
			if v < bounds[j][0] || v > bounds[j][1] {
				return nil, NewErrorf("candidate %d is outside the domain in dimension %d", i, j).
					WithComponent("candidate_set").WithOperation(op)
			}
		}
	}
	cs := &CandidateSet{domain: d}
	cs.candidates = make([][]float64, len(candidates))
	for i, c := range candidates {
		cs.candidates[i] = append([]float64(nil), c...)
	}
	cs.impl = cs
	return cs, nil
}

func (cs *CandidateSet) multiObjective() bool { return false }

func (cs *CandidateSet) search(ctx context.Context, obj *trackedObjective) (*Result, error) {
	return selectBest(ctx, obj, cs.candidates)
}

// Candidates returns a copy of the current candidate set.
func (cs *CandidateSet) Candidates() [][]float64 {
	out := make([][]float64, len(cs.candidates))
	for i, c := range cs.candidates {
		out[i] = append([]float64(nil), c...)
	}
	return out
}

// SetDomain rebinds the optimizer to a new domain and re-expresses every
// candidate in it via a per-dimension affine forward mapping between the
// two domains' bounds. The new domain must have the same number of
// continuous dimensions.
func (cs *CandidateSet) SetDomain(d *domain.Domain) error {
	const op = "CandidateSet.SetDomain"
	oldBounds := DomainBounds(cs.domain)
	newBounds := DomainBounds(d)
	if len(newBounds) != len(oldBounds) {
		return NewErrorf("new domain has %d continuous dimensions but candidates have %d",
			len(newBounds), len(oldBounds)).WithComponent("candidate_set").WithOperation(op)
	}
	for _, c := range cs.candidates {
		for j := range c {
			oldSpan := oldBounds[j][1] - oldBounds[j][0]
			if oldSpan == 0 {
				c[j] = newBounds[j][0]
				continue
			}
			frac := (c[j] - oldBounds[j][0]) / oldSpan
			c[j] = newBounds[j][0] + frac*(newBounds[j][1]-newBounds[j][0])
		}
	}
	cs.domain = d
	return nil
}
