package strategy

import (
	"math/rand"

	"github.com/quenchlab/crucible/internal/data"
	"github.com/quenchlab/crucible/internal/domain"
	"github.com/quenchlab/crucible/internal/errors"
)

// lhsDesigner produces space-filling cold-start designs. Continuous
// variables are sampled by stratified Latin hypercube sampling; discrete and
// descriptor variables cycle through their levels in a shuffled round-robin
// so every level appears as evenly as possible.
type lhsDesigner struct {
	domain *domain.Domain
	rng    *rand.Rand
}

// suggest returns n experiments, one column per input variable, in raw units
// and levels.
func (l *lhsDesigner) suggest(n int) (*data.Table, error) {
	const op = "lhsDesigner.suggest"
	if n < 1 {
		return nil, errors.Errorf("number of experiments must be positive, got %d", n).
			WithComponent("lhs").WithOperation(op)
	}

	inVars := l.domain.InputVariables()
	if len(inVars) == 0 {
		return nil, errors.New("domain has no input variables").WithComponent("lhs").WithOperation(op)
	}
	names := make([]string, len(inVars))
	for i, v := range inVars {
		names[i] = v.Name()
	}

	cols := make([][]data.Value, len(inVars))
	for i, v := range inVars {
		switch v.Type() {
		case domain.Continuous:
			samples := l.latinHypercubeSample(n, v.LowerBound(), v.UpperBound())
			col := make([]data.Value, n)
			for r, s := range samples {
				col[r] = data.Number(s)
			}
			cols[i] = col
		default:
			levels := v.Levels()
			if len(levels) == 0 {
				return nil, errors.Errorf("variable %q has no levels to sample", v.Name()).
					WithComponent("lhs").WithOperation(op)
			}
			col := make([]data.Value, n)
			for r, li := range l.roundRobin(n, len(levels)) {
				col[r] = data.Text(levels[li])
			}
			cols[i] = col
		}
	}

	out := data.NewData(names...)
	for r := 0; r < n; r++ {
		cells := make([]data.Value, len(inVars))
		for i := range inVars {
			cells[i] = cols[i][r]
		}
		if err := out.AppendRow(cells...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// latinHypercubeSample draws n stratified samples on [lower, upper]: one
// uniform draw per equal-width stratum, visited in shuffled order.
func (l *lhsDesigner) latinHypercubeSample(n int, lower, upper float64) []float64 {
	span := upper - lower
	samples := make([]float64, n)
	for j := 0; j < n; j++ {
		frac := (float64(j) + l.rng.Float64()) / float64(n)
		samples[j] = lower + frac*span
	}
	l.rng.Shuffle(n, func(a, b int) {
		samples[a], samples[b] = samples[b], samples[a]
	})
	return samples
}

// roundRobin assigns n rows to k levels as evenly as possible and shuffles
// the assignment order.
func (l *lhsDesigner) roundRobin(n, k int) []int {
	assign := make([]int, n)
	for j := range assign {
		assign[j] = j % k
	}
	l.rng.Shuffle(n, func(a, b int) {
		assign[a], assign[b] = assign[b], assign[a]
	})
	return assign
}
