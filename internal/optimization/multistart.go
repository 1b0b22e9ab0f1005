package optimization

import (
	"context"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// MultiStart runs a bounds-constrained local minimization of fn from every
// starting point independently, evaluates fn at each resulting local
// optimum, and returns the single best (x, fn(x)) pair by minimum objective
// value, ties broken by first occurrence in start order. Local solves that
// fail to converge are still scored rather than retried or excluded, which
// keeps the cost bounded and the reduction deterministic.
//
// The context is checked between starts; on cancellation the best result
// found so far is returned along with the context error, so the caller
// decides between degrading and failing hard.
func MultiStart(ctx context.Context, fn Objective, starts [][]float64, bounds [][2]float64) ([]float64, float64, error) {
	const op = "MultiStart"

	if len(starts) == 0 {
		return nil, 0, NewError("at least one starting point is required").WithOperation(op)
	}
	for _, start := range starts {
		if len(start) != len(bounds) {
			return nil, 0, NewErrorf("start point has %d dimensions but %d bounds given",
				len(start), len(bounds)).WithOperation(op)
		}
	}

	// The local solver is derivative-free Nelder-Mead; bounds are enforced
	// by clamping inside the problem function.
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			for i := range x {
				x[i] = math.Max(bounds[i][0], math.Min(x[i], bounds[i][1]))
			}
			return fn(x)
		},
	}
	settings := &optimize.Settings{
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-6,
			Relative:   1e-6,
			Iterations: 100,
		},
	}

	var bestX []float64
	bestVal := math.Inf(1)

	for _, start := range starts {
		select {
		case <-ctx.Done():
			return bestX, bestVal, ctx.Err()
		default:
		}

		method := &optimize.NelderMead{
			Reflection:  1.0,
			Expansion:   2.0,
			Contraction: 0.5,
			Shrink:      0.5,
			SimplexSize: 0.2,
		}

		x0 := append([]float64(nil), start...)
		result, _ := optimize.Minimize(problem, x0, settings, method)

		candidate := chooseCandidate(start, result)
		clamp(candidate, bounds)

		if val := fn(candidate); val < bestVal {
			bestVal = val
			bestX = candidate
		}
	}

	return bestX, bestVal, nil
}

// chooseCandidate picks the point to score for one start: the solver's
// terminal point whenever the solver produced one, even if the solve itself
// reported an error, and the start point only when there is nothing to use.
func chooseCandidate(start []float64, result *optimize.Result) []float64 {
	if result != nil && len(result.X) == len(start) {
		return append([]float64(nil), result.X...)
	}
	return append([]float64(nil), start...)
}

// clamp projects x onto the bounds in place.
func clamp(x []float64, bounds [][2]float64) {
	for i := range x {
		x[i] = math.Max(bounds[i][0], math.Min(x[i], bounds[i][1]))
	}
}
