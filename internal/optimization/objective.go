package optimization

// Objective is a scalar function of a flattened decision vector. Optimizers
// always minimize; callers negate for maximization.
type Objective func(x []float64) float64

// trackedObjective wraps an Objective so that every call is counted and the
// most recently evaluated input is remembered. The wrapper is what lets
// Optimizer report a uniform evaluation count and degrade gracefully on
// interruption.
type trackedObjective struct {
	fn    Objective
	nfev  int
	lastX []float64
}

func newTrackedObjective(fn Objective) *trackedObjective {
	return &trackedObjective{fn: fn}
}

// eval evaluates the wrapped objective, recording the call.
func (o *trackedObjective) eval(x []float64) float64 {
	o.nfev++
	o.lastX = append(o.lastX[:0], x...)
	return o.fn(x)
}

// last returns a copy of the most recently evaluated input, or nil if the
// objective was never called.
func (o *trackedObjective) last() []float64 {
	if o.lastX == nil {
		return nil
	}
	return append([]float64(nil), o.lastX...)
}
