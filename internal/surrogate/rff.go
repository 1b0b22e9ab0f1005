// Package surrogate implements the randomized regression model used for
// Thompson sampling: Bayesian linear regression in a random Fourier feature
// basis. Each fitted model carries one fixed posterior weight sample, so the
// sampled function can be evaluated cheaply and deterministically.
package surrogate

import (
	stderrors "errors"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/quenchlab/crucible/internal/errors"
)

const (
	defaultLengthScale = 1.0
	// baseRidge regularizes the normal equations; it is escalated tenfold on
	// every failed factorization attempt.
	baseRidge = 1e-6
	// minNoiseVar floors the residual variance estimate.
	minNoiseVar = 1e-8
)

// ThompsonModel is a random-Fourier-feature surrogate. Fit draws spectral
// features and a single posterior weight sample; RFF evaluates that sample.
// The seed is explicit and stored so a batch of models can be reproduced
// exactly.
type ThompsonModel struct {
	label       string
	seed        int64
	rng         *rand.Rand
	lengthScale float64
	logger      *zap.Logger

	// Fitted state.
	freq    *mat.Dense // spectralPoints x dims
	phase   []float64
	weights []float64
	scale   float64
	fitted  bool
}

// NewThompsonModel creates a surrogate identified by label and seeded with
// the given seed.
func NewThompsonModel(label string, seed int64) *ThompsonModel {
	logger, _ := zap.NewDevelopment()
	return &ThompsonModel{
		label:       label,
		seed:        seed,
		rng:         rand.New(rand.NewSource(seed)),
		lengthScale: defaultLengthScale,
		logger:      logger.Named("thompson_model"),
	}
}

// SetLogger replaces the model's logger.
func (m *ThompsonModel) SetLogger(logger *zap.Logger) {
	if logger != nil {
		m.logger = logger.Named("thompson_model")
	}
}

// Label returns the model's identifying label.
func (m *ThompsonModel) Label() string { return m.label }

// Seed returns the seed the model was constructed with.
func (m *ThompsonModel) Seed() int64 { return m.seed }

// Fitted reports whether Fit has succeeded.
func (m *ThompsonModel) Fitted() bool { return m.fitted }

// Fit fits the model on the full standardized dataset. Each attempt draws a
// fresh random feature basis and solves the regularized normal equations by
// Cholesky factorization; on failure the ridge term is escalated and the fit
// retried, up to retries attempts.
func (m *ThompsonModel) Fit(X *mat.Dense, y *mat.VecDense, retries, spectralPoints int) error {
	const op = "ThompsonModel.Fit"

	if X == nil || y == nil {
		return errors.New("input matrices must not be nil").WithComponent(m.label).WithOperation(op)
	}
	n, d := X.Dims()
	if n == 0 || d == 0 {
		return errors.New("input matrix X must not be empty").WithComponent(m.label).WithOperation(op)
	}
	if n != y.Len() {
		return errors.Errorf("dimension mismatch: X has %d samples but y has length %d", n, y.Len()).
			WithComponent(m.label).WithOperation(op)
	}
	if spectralPoints <= 0 {
		return errors.New("number of spectral points must be positive").WithComponent(m.label).WithOperation(op)
	}
	if retries < 1 {
		retries = 1
	}

	m.logger.Debug("Fitting Thompson-sampled model",
		zap.String("label", m.label),
		zap.Int("samples", n),
		zap.Int("features", d),
		zap.Int("spectral_points", spectralPoints),
	)

	ridge := baseRidge
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if err := m.fitOnce(X, y, n, d, spectralPoints, ridge); err != nil {
			m.logger.Debug("Fit attempt failed, escalating ridge",
				zap.Int("attempt", attempt+1),
				zap.Float64("ridge", ridge),
				zap.Error(err),
			)
			lastErr = err
			ridge *= 10
			continue
		}
		return nil
	}
	return errors.Wrapf(lastErr, "fit failed after %d retries", retries).
		WithComponent(m.label).WithOperation(op)
}

// fitOnce performs one fit attempt with the given ridge regularization.
func (m *ThompsonModel) fitOnce(X *mat.Dense, y *mat.VecDense, n, d, spectralPoints int, ridge float64) error {
	// Draw spectral frequencies and phases for the feature basis
	// cos(w.x + b). Frequencies follow the Gaussian spectral density of an
	// RBF kernel with the model's length scale.
	freq := mat.NewDense(spectralPoints, d, nil)
	for i := 0; i < spectralPoints; i++ {
		for j := 0; j < d; j++ {
			freq.Set(i, j, m.rng.NormFloat64()/m.lengthScale)
		}
	}
	phase := make([]float64, spectralPoints)
	for i := range phase {
		phase[i] = 2 * math.Pi * m.rng.Float64()
	}
	scale := math.Sqrt(2.0 / float64(spectralPoints))

	// Feature matrix, one row per sample.
	phi := mat.NewDense(n, spectralPoints, nil)
	for r := 0; r < n; r++ {
		x := X.RawRowView(r)
		for i := 0; i < spectralPoints; i++ {
			dot := 0.0
			for j := 0; j < d; j++ {
				dot += freq.At(i, j) * x[j]
			}
			phi.Set(r, i, scale*math.Cos(dot+phase[i]))
		}
	}

	// Normal equations A = phi^T phi + ridge I, b = phi^T y.
	var gram mat.Dense
	gram.Mul(phi.T(), phi)
	A := mat.NewSymDense(spectralPoints, nil)
	for i := 0; i < spectralPoints; i++ {
		for j := i; j < spectralPoints; j++ {
			v := gram.At(i, j)
			if i == j {
				v += ridge
			}
			A.SetSym(i, j, v)
		}
	}
	b := mat.NewVecDense(spectralPoints, nil)
	b.MulVec(phi.T(), y)

	var chol mat.Cholesky
	if ok := chol.Factorize(A); !ok {
		return stderrors.New("Cholesky factorization failed: matrix is not positive definite")
	}

	mean := mat.NewVecDense(spectralPoints, nil)
	if err := chol.SolveVecTo(mean, b); err != nil {
		return err
	}

	// Residual noise variance of the mean fit, floored for near-exact fits.
	pred := mat.NewVecDense(n, nil)
	pred.MulVec(phi, mean)
	noiseVar := 0.0
	for i := 0; i < n; i++ {
		r := y.AtVec(i) - pred.AtVec(i)
		noiseVar += r * r
	}
	noiseVar = math.Max(noiseVar/float64(n), minNoiseVar)

	// One posterior weight sample: theta = mean + sigma L^-T z, with A = LL^T.
	var L mat.TriDense
	chol.LTo(&L)
	z := mat.NewVecDense(spectralPoints, nil)
	for i := 0; i < spectralPoints; i++ {
		z.SetVec(i, m.rng.NormFloat64())
	}
	u := mat.NewVecDense(spectralPoints, nil)
	if err := u.SolveVec(L.T(), z); err != nil {
		return err
	}
	sigma := math.Sqrt(noiseVar)
	weights := make([]float64, spectralPoints)
	for i := range weights {
		weights[i] = mean.AtVec(i) + sigma*u.AtVec(i)
	}

	m.freq = freq
	m.phase = phase
	m.weights = weights
	m.scale = scale
	m.fitted = true
	return nil
}

// RFF evaluates the fitted model's sampled function at a single point. The
// evaluation is deterministic for a given fitted instance and does not
// mutate fit state. Calling RFF before a successful Fit returns NaN.
func (m *ThompsonModel) RFF(x []float64) float64 {
	if !m.fitted {
		return math.NaN()
	}
	_, d := m.freq.Dims()
	if len(x) != d {
		return math.NaN()
	}
	sum := 0.0
	for i, w := range m.weights {
		dot := 0.0
		for j := 0; j < d; j++ {
			dot += m.freq.At(i, j) * x[j]
		}
		sum += w * m.scale * math.Cos(dot+m.phase[i])
	}
	return sum
}
