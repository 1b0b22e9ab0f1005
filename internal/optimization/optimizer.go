// Package optimization provides the optimizer abstraction wrapping arbitrary
// black-box search procedures with batch-aware, interrupt-safe execution,
// together with the generic multi-start local-optimization helper.
package optimization

import (
	"context"
	"errors"
)

// Result is the canonical record returned by every optimizer invocation.
type Result struct {
	// X is the best point (or points, flattened) found.
	X []float64
	// Success reports whether the search ran to completion.
	Success bool
	// Fun is the objective value at X.
	Fun float64
	// NFev is the true number of objective evaluations, maintained by the
	// wrapper regardless of what the search itself computed.
	NFev int
	// Message is a human-readable status.
	Message string
}

// searcher is the subclass hook: a concrete search strategy run against the
// tracked objective.
type searcher interface {
	search(ctx context.Context, obj *trackedObjective) (*Result, error)
	multiObjective() bool
}

// Optimizer wraps a raw objective so that every call is counted, safely
// interruptible, and returned in the canonical result record. Concrete
// variants embed Optimizer and supply the search.
type Optimizer struct {
	impl searcher
}

// Optimize runs the wrapped search against fn. If the search is interrupted
// by context cancellation mid-run, the interruption is not propagated as a
// hard failure: the result is marked unsuccessful and carries the last input
// evaluated before the interrupt. NFev is always overwritten with the
// tracker's true call count.
func (o *Optimizer) Optimize(ctx context.Context, fn Objective) (*Result, error) {
	if o.impl == nil {
		return nil, NewError("optimizer has no search implementation").WithOperation("Optimize")
	}
	obj := newTrackedObjective(fn)
	res, err := o.impl.search(ctx, obj)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			res = &Result{
				X:       obj.last(),
				Success: false,
				Message: "search interrupted, returning last evaluated point",
			}
		} else {
			return nil, err
		}
	}
	res.NFev = obj.nfev
	return res, nil
}

// IsMultiObjective reports whether the optimizer performs multi-objective
// optimization.
func (o *Optimizer) IsMultiObjective() bool {
	return o.impl != nil && o.impl.multiObjective()
}
