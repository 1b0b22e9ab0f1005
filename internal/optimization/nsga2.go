package optimization

import (
	"context"

	"github.com/quenchlab/crucible/internal/domain"
)

// NSGAII is a placeholder for a multi-objective genetic optimizer. It
// reports itself as multi-objective so callers can route accordingly, but
// its search is not implemented yet.
type NSGAII struct {
	Optimizer
	domain *domain.Domain
}

// NewNSGAII creates the multi-objective optimizer shell for the given domain.
func NewNSGAII(d *domain.Domain) *NSGAII {
	n := &NSGAII{domain: d}
	n.impl = n
	return n
}

func (n *NSGAII) multiObjective() bool { return true }

func (n *NSGAII) search(ctx context.Context, obj *trackedObjective) (*Result, error) {
	return nil, WrapError(ErrNotImplemented, "NSGA-II search").WithComponent("nsga2").WithOperation("search")
}
