package optimization

import (
	"context"
	"math"
	"math/rand"

	"github.com/quenchlab/crucible/internal/domain"
)

// MonteCarlo optimizes an objective by evaluating a fixed number of random
// points drawn uniformly from the domain. Each call to Optimize evaluates a
// fresh sample; nothing is cached between calls.
type MonteCarlo struct {
	Optimizer
	domain   *domain.Domain
	nsamples int
	rng      *rand.Rand
}

// NewMonteCarlo creates a Monte-Carlo optimizer drawing nsamples points per
// call from the continuous representation of d.
func NewMonteCarlo(d *domain.Domain, nsamples int, seed int64) (*MonteCarlo, error) {
	if nsamples < 1 {
		return nil, NewError("number of samples must be positive").WithComponent("monte_carlo")
	}
	if d.NumContinuousDimensions() == 0 {
		return nil, NewError("domain has no continuous dimensions").WithComponent("monte_carlo")
	}
	mc := &MonteCarlo{
		domain:   d,
		nsamples: nsamples,
		rng:      rand.New(rand.NewSource(seed)),
	}
	mc.impl = mc
	return mc, nil
}

func (mc *MonteCarlo) multiObjective() bool { return false }

func (mc *MonteCarlo) search(ctx context.Context, obj *trackedObjective) (*Result, error) {
	points := mc.samplePoints()
	return selectBest(ctx, obj, points)
}

// samplePoints draws a fresh uniform sample of the domain's continuous
// representation.
func (mc *MonteCarlo) samplePoints() [][]float64 {
	bounds := DomainBounds(mc.domain)
	points := make([][]float64, mc.nsamples)
	for i := range points {
		p := make([]float64, len(bounds))
		for j, b := range bounds {
			p[j] = b[0] + mc.rng.Float64()*(b[1]-b[0])
		}
		points[i] = p
	}
	return points
}

// selectBest evaluates every point and returns the one with minimum
// objective value, first on tie. The context is checked between
// evaluations.
func selectBest(ctx context.Context, obj *trackedObjective, points [][]float64) (*Result, error) {
	var bestX []float64
	bestVal := math.Inf(1)
	for _, p := range points {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if val := obj.eval(p); val < bestVal {
			bestVal = val
			bestX = p
		}
	}
	return &Result{
		X:       append([]float64(nil), bestX...),
		Success: true,
		Fun:     bestVal,
		Message: "OK",
	}, nil
}

// DomainBounds returns one [low, high] pair per continuous dimension of the
// domain: the variable's own bounds for continuous variables and the
// normalized [0, 1] range for each descriptor column.
func DomainBounds(d *domain.Domain) [][2]float64 {
	var bounds [][2]float64
	for _, v := range d.InputVariables() {
		switch v.Type() {
		case domain.Continuous:
			bounds = append(bounds, v.Bounds())
		case domain.Descriptors:
			for i := 0; i < v.NumDescriptors(); i++ {
				bounds = append(bounds, [2]float64{0, 1})
			}
		}
	}
	return bounds
}
