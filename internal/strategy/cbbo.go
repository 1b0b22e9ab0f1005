// Package strategy implements the batch Bayesian optimization strategy that
// proposes experiments: Thompson-sampled surrogates per batch slot, a joint
// acquisition over the whole batch, and Latin hypercube sampling for the
// cold start.
package strategy

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/quenchlab/crucible/internal/data"
	"github.com/quenchlab/crucible/internal/domain"
	"github.com/quenchlab/crucible/internal/errors"
	"github.com/quenchlab/crucible/internal/optimization"
	"github.com/quenchlab/crucible/internal/surrogate"
	"github.com/quenchlab/crucible/internal/transform"
)

// StrategyName is recorded in the strategy metadata column of every proposed
// batch after a model-based round.
const StrategyName = "CBBO"

const (
	defaultFitRetries     = 10
	defaultSpectralPoints = 1500
	defaultRestarts       = 50
)

// Surrogate is one Thompson-sampled model: Fit draws and fixes a posterior
// function sample, RFF evaluates it.
type Surrogate interface {
	Fit(X *mat.Dense, y *mat.VecDense, retries, spectralPoints int) error
	RFF(x []float64) float64
}

// SurrogateFactory builds a surrogate for one batch slot. The label
// identifies the slot in logs and errors; the seed makes the fit
// reproducible.
type SurrogateFactory func(label string, seed int64) Surrogate

// Transform converts between raw experiment tables and the standardized
// encoded space the surrogates are fitted in.
type Transform interface {
	TransformInputsOutputs(history *data.Table, opts transform.Options) (*data.Table, *data.Table, error)
	UnTransform(t *data.Table, opts transform.Options) (*data.Table, error)
	EncodedBounds(opts transform.Options) ([][2]float64, []string, error)
}

// BatchBayes proposes batches of q experiments. The first call with no
// history falls back to a Latin hypercube design; subsequent calls fit q
// independently seeded surrogates on the accumulated history and minimize
// the summed sampled functions jointly over all q slots.
//
// BatchBayes is not safe for concurrent use.
type BatchBayes struct {
	domain      *domain.Domain
	categorical transform.CategoricalMethod
	pipeline    Transform
	factory     SurrogateFactory

	restarts       int
	spectralPoints int
	fitRetries     int

	rng    *rand.Rand
	logger *zap.Logger

	history    *data.Table
	iterations int
	slotSeeds  []int64
}

// Option configures a BatchBayes strategy.
type Option func(*BatchBayes)

// WithSeed seeds the strategy's random source. Without it the strategy is
// seeded from the clock.
func WithSeed(seed int64) Option {
	return func(b *BatchBayes) { b.rng = rand.New(rand.NewSource(seed)) }
}

// WithCategoricalMethod selects how categorical variables are encoded.
func WithCategoricalMethod(m transform.CategoricalMethod) Option {
	return func(b *BatchBayes) { b.categorical = m }
}

// WithTransform replaces the default transform pipeline.
func WithTransform(t Transform) Option {
	return func(b *BatchBayes) { b.pipeline = t }
}

// WithSurrogateFactory replaces the default Thompson model factory.
func WithSurrogateFactory(f SurrogateFactory) Option {
	return func(b *BatchBayes) { b.factory = f }
}

// WithRestarts sets the number of acquisition search restarts.
func WithRestarts(n int) Option {
	return func(b *BatchBayes) { b.restarts = n }
}

// WithSpectralPoints sets the number of random Fourier features per
// surrogate fit.
func WithSpectralPoints(n int) Option {
	return func(b *BatchBayes) { b.spectralPoints = n }
}

// WithFitRetries sets the number of fit attempts per surrogate.
func WithFitRetries(n int) Option {
	return func(b *BatchBayes) { b.fitRetries = n }
}

// WithLogger replaces the strategy's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *BatchBayes) {
		if logger != nil {
			b.logger = logger.Named("batch_bayes")
		}
	}
}

// NewBatchBayes creates the strategy over the given domain.
func NewBatchBayes(d *domain.Domain, opts ...Option) (*BatchBayes, error) {
	const op = "NewBatchBayes"
	if d == nil {
		return nil, errors.New("domain must not be nil").WithComponent("strategy").WithOperation(op)
	}
	if len(d.OutputVariables()) == 0 {
		return nil, errors.New("domain must declare an objective variable").
			WithComponent("strategy").WithOperation(op)
	}

	logger, _ := zap.NewDevelopment()
	b := &BatchBayes{
		domain:         d,
		categorical:    transform.OneHot,
		restarts:       defaultRestarts,
		spectralPoints: defaultSpectralPoints,
		fitRetries:     defaultFitRetries,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:         logger.Named("batch_bayes"),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.pipeline == nil {
		b.pipeline = transform.NewPipeline(d)
	}
	if b.factory == nil {
		b.factory = func(label string, seed int64) Surrogate {
			m := surrogate.NewThompsonModel(label, seed)
			m.SetLogger(b.logger)
			return m
		}
	}
	switch b.categorical {
	case transform.OneHot, transform.DescriptorBased:
	default:
		return nil, errors.Errorf("unsupported categorical method %q", b.categorical).
			WithComponent("strategy").WithOperation(op)
	}
	if b.restarts < 1 {
		return nil, errors.Errorf("restarts must be positive, got %d", b.restarts).
			WithComponent("strategy").WithOperation(op)
	}
	if b.spectralPoints < 1 {
		return nil, errors.Errorf("spectral points must be positive, got %d", b.spectralPoints).
			WithComponent("strategy").WithOperation(op)
	}
	return b, nil
}

// Suggest proposes the next batch of q experiments. prevRes carries the
// measured results of the previously suggested batch and is appended to the
// strategy's history; pass nil on the first call. The batch size must be at
// least 2 because the acquisition couples the slots.
func (b *BatchBayes) Suggest(ctx context.Context, q int, prevRes *data.Table) (*data.Table, error) {
	const op = "BatchBayes.Suggest"

	if q < 2 {
		return nil, errors.Errorf("batch size must be at least 2, got %d", q).
			WithComponent("strategy").WithOperation(op)
	}
	if prevRes != nil {
		if b.history == nil {
			b.history = prevRes.Clone()
		} else if err := b.history.Append(prevRes); err != nil {
			return nil, errors.Wrap(err, "appending previous results to history").
				WithComponent("strategy").WithOperation(op)
		}
	}
	b.iterations++

	if b.history == nil || b.history.NumRows() == 0 {
		return b.coldStart(q)
	}

	opts := transform.Options{
		Categorical:        b.categorical,
		StandardizeInputs:  true,
		StandardizeOutputs: true,
	}
	inputs, outputs, err := b.pipeline.TransformInputsOutputs(b.history, opts)
	if err != nil {
		return nil, errors.Wrap(err, "transforming experiment history").
			WithComponent("strategy").WithOperation(op)
	}
	X, err := inputs.Matrix()
	if err != nil {
		return nil, errors.Wrap(err, "building input matrix").
			WithComponent("strategy").WithOperation(op)
	}

	objVar := b.domain.OutputVariables()[0]
	yCol, err := outputs.ColumnFloats(objVar.Name())
	if err != nil {
		return nil, errors.Wrapf(err, "reading objective column %q", objVar.Name()).
			WithComponent("strategy").WithOperation(op)
	}
	y := mat.NewVecDense(len(yCol), yCol)

	b.logger.Info("Fitting batch surrogates",
		zap.Int("iteration", b.iterations),
		zap.Int("batch_size", q),
		zap.Int("history_rows", b.history.NumRows()),
		zap.Int("spectral_points", b.spectralPoints),
	)

	models := make([]Surrogate, q)
	seeds := make([]int64, q)
	for i := 0; i < q; i++ {
		seeds[i] = b.rng.Int63()
		label := fmt.Sprintf("thompson_i%d_s%d", b.iterations, i)
		models[i] = b.factory(label, seeds[i])
		if err := models[i].Fit(X, y, b.fitRetries, b.spectralPoints); err != nil {
			return nil, errors.Wrapf(err, "fitting surrogate for batch slot %d", i).
				WithComponent("strategy").WithOperation(op)
		}
	}
	b.slotSeeds = seeds

	bounds, encodedNames, err := b.pipeline.EncodedBounds(opts)
	if err != nil {
		return nil, errors.Wrap(err, "deriving encoded bounds").
			WithComponent("strategy").WithOperation(op)
	}
	m := len(bounds)
	jointBounds := make([][2]float64, 0, q*m)
	for i := 0; i < q; i++ {
		jointBounds = append(jointBounds, bounds...)
	}

	// The search minimizes; flip the sampled functions for maximization
	// objectives.
	sign := 1.0
	if objVar.Maximize() {
		sign = -1.0
	}
	joint := func(x []float64) float64 {
		total := 0.0
		for i := 0; i < q; i++ {
			total += sign * models[i].RFF(x[i*m:(i+1)*m])
		}
		return total
	}

	starts := make([][]float64, b.restarts)
	for s := range starts {
		pt := make([]float64, len(jointBounds))
		for j, bd := range jointBounds {
			pt[j] = bd[0] + b.rng.Float64()*(bd[1]-bd[0])
		}
		starts[s] = pt
	}

	best, bestVal, err := optimization.MultiStart(ctx, joint, starts, jointBounds)
	if err != nil {
		return nil, errors.Wrap(err, "batch acquisition search failed").
			WithComponent("strategy").WithOperation(op)
	}

	batch := mat.NewDense(q, m, nil)
	for i := 0; i < q; i++ {
		for j := 0; j < m; j++ {
			batch.Set(i, j, best[i*m+j])
		}
	}
	encoded, err := data.FromMatrix(batch, encodedNames)
	if err != nil {
		return nil, errors.Wrap(err, "assembling encoded batch").
			WithComponent("strategy").WithOperation(op)
	}
	proposed, err := b.pipeline.UnTransform(encoded, opts)
	if err != nil {
		return nil, errors.Wrap(err, "decoding proposed batch").
			WithComponent("strategy").WithOperation(op)
	}
	proposed.SetMetadata("strategy", StrategyName)

	b.logger.Info("Proposed batch",
		zap.Int("iteration", b.iterations),
		zap.Int("batch_size", q),
		zap.Float64("acquisition_value", bestVal),
	)
	return proposed, nil
}

// coldStart proposes a Latin hypercube design when no history is available.
func (b *BatchBayes) coldStart(q int) (*data.Table, error) {
	b.logger.Info("No history available, proposing Latin hypercube design",
		zap.Int("iteration", b.iterations),
		zap.Int("batch_size", q),
	)
	lhs := &lhsDesigner{domain: b.domain, rng: b.rng}
	proposed, err := lhs.suggest(q)
	if err != nil {
		return nil, errors.Wrap(err, "cold start design failed").
			WithComponent("strategy").WithOperation("BatchBayes.coldStart")
	}
	proposed.SetMetadata("strategy", "LHS")
	return proposed, nil
}

// Reset discards history and iteration state so the next Suggest call starts
// cold again.
func (b *BatchBayes) Reset() {
	b.history = nil
	b.iterations = 0
	b.slotSeeds = nil
}

// Iterations returns the number of Suggest rounds completed.
func (b *BatchBayes) Iterations() int { return b.iterations }

// AllExperiments returns a copy of the accumulated experiment history, or
// nil before any results have been recorded.
func (b *BatchBayes) AllExperiments() *data.Table {
	if b.history == nil {
		return nil
	}
	return b.history.Clone()
}

// SlotSeeds returns the surrogate seeds used in the most recent model-based
// round, one per batch slot.
func (b *BatchBayes) SlotSeeds() []int64 {
	return append([]int64(nil), b.slotSeeds...)
}
