package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quenchlab/crucible/internal/data"
	"github.com/quenchlab/crucible/internal/domain"
)

func TestStandardize(t *testing.T) {
	scaled, mean, std := Standardize([]float64{1, 2, 3})
	assert.InDelta(t, 2.0, mean, 1e-12)
	// The spread is the corrected sample standard deviation, not the
	// population one: sqrt(2/2) rather than sqrt(2/3).
	assert.InDelta(t, 1.0, std, 1e-12)
	assert.InDelta(t, 0.0, scaled[1], 1e-12)
	assert.InDelta(t, -scaled[0], scaled[2], 1e-12)
}

func TestStandardizeSingleValue(t *testing.T) {
	// A one-row column has an undefined sample deviation; it is floored the
	// same way a constant column is.
	scaled, mean, std := Standardize([]float64{4.2})
	assert.Equal(t, 4.2, mean)
	assert.Equal(t, 1e-5, std)
	assert.Equal(t, 0.0, scaled[0])
}

func TestStandardizeConstantColumn(t *testing.T) {
	// A constant column has zero variance; the scale is floored so the
	// inverse transform stays finite.
	scaled, mean, std := Standardize([]float64{5, 5, 5})
	assert.Equal(t, 5.0, mean)
	assert.Equal(t, 1e-5, std)
	for _, v := range scaled {
		assert.Equal(t, 0.0, v)
	}
}

func makeDomain(t *testing.T) *domain.Domain {
	t.Helper()
	temp, err := domain.NewContinuous("temperature", "", 30, 100)
	require.NoError(t, err)
	solvent, err := domain.NewDiscrete("solvent", "", []string{"thf", "toluene", "dmso"})
	require.NoError(t, err)
	yield, err := domain.NewContinuous("yield", "", 0, 100)
	require.NoError(t, err)
	return domain.New(temp, solvent, yield.AsObjective(true))
}

func makeHistory(t *testing.T) *data.Table {
	t.Helper()
	history := data.NewData("temperature", "solvent", "yield")
	rows := []struct {
		temp    float64
		solvent string
		yield   float64
	}{
		{40, "thf", 20},
		{60, "toluene", 55},
		{80, "dmso", 90},
		{95, "thf", 75},
	}
	for _, r := range rows {
		require.NoError(t, history.AppendRow(data.Number(r.temp), data.Text(r.solvent), data.Number(r.yield)))
	}
	return history
}

func TestTransformRoundTripOneHot(t *testing.T) {
	d := makeDomain(t)
	p := NewPipeline(d)
	opts := Options{Categorical: OneHot, StandardizeInputs: true, StandardizeOutputs: true}

	inputs, outputs, err := p.TransformInputsOutputs(makeHistory(t), opts)
	require.NoError(t, err)

	// One continuous column plus a one-hot column per level.
	assert.Equal(t, []string{"temperature", "solvent_thf", "solvent_toluene", "solvent_dmso"},
		inputs.ColumnNames())
	assert.Equal(t, []string{"yield"}, outputs.ColumnNames())

	// One-hot indicators keep their raw 0/1 coding.
	v, _ := inputs.At(1, "solvent_toluene")
	assert.Equal(t, 1.0, v.Float())
	v, _ = inputs.At(1, "solvent_thf")
	assert.Equal(t, 0.0, v.Float())

	// Standardized outputs have approximately zero mean.
	yCol, err := outputs.ColumnFloats("yield")
	require.NoError(t, err)
	sum := 0.0
	for _, y := range yCol {
		sum += y
	}
	assert.InDelta(t, 0.0, sum, 1e-9)

	back, err := p.UnTransform(inputs, opts)
	require.NoError(t, err)
	require.Equal(t, 4, back.NumRows())
	assert.Equal(t, []string{"temperature", "solvent"}, back.ColumnNames())

	temp, _ := back.At(0, "temperature")
	assert.InDelta(t, 40.0, temp.Float(), 1e-9)
	solvent, _ := back.At(2, "solvent")
	assert.Equal(t, "dmso", solvent.Text())
}

func TestTransformRoundTripDescriptors(t *testing.T) {
	table, err := domain.NewDescriptorTable(
		[]string{"thf", "toluene", "dmso"},
		[]string{"polarity", "bp"},
		[][]float64{{7.5, 66}, {2.4, 111}, {7.2, 189}},
	)
	require.NoError(t, err)
	solvent, err := domain.NewDescriptors("solvent", "", table)
	require.NoError(t, err)
	yield, err := domain.NewContinuous("yield", "", 0, 100)
	require.NoError(t, err)
	d := domain.New(solvent, yield.AsObjective(true))

	history := data.NewData("solvent", "yield")
	for _, r := range []struct {
		solvent string
		yield   float64
	}{{"thf", 20}, {"toluene", 55}, {"dmso", 90}} {
		require.NoError(t, history.AppendRow(data.Text(r.solvent), data.Number(r.yield)))
	}

	p := NewPipeline(d)
	opts := Options{Categorical: DescriptorBased, StandardizeInputs: true, StandardizeOutputs: true}
	inputs, _, err := p.TransformInputsOutputs(history, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"solvent_polarity", "solvent_bp"}, inputs.ColumnNames())

	back, err := p.UnTransform(inputs, opts)
	require.NoError(t, err)
	for r, want := range []string{"thf", "toluene", "dmso"} {
		got, _ := back.At(r, "solvent")
		assert.Equal(t, want, got.Text())
	}
}

func TestDescriptorMethodRequiresDescriptors(t *testing.T) {
	d := makeDomain(t)
	p := NewPipeline(d)

	_, _, err := p.TransformInputsOutputs(makeHistory(t), Options{
		Categorical:       DescriptorBased,
		StandardizeInputs: true,
	})
	assert.Error(t, err, "plain discrete variables cannot be descriptor encoded")
}

func TestEncodedBounds(t *testing.T) {
	d := makeDomain(t)
	p := NewPipeline(d)
	opts := Options{Categorical: OneHot, StandardizeInputs: true, StandardizeOutputs: true}

	// Bounds require the scales recorded by a transform.
	_, _, err := p.EncodedBounds(opts)
	assert.Error(t, err)

	_, _, err = p.TransformInputsOutputs(makeHistory(t), opts)
	require.NoError(t, err)

	bounds, names, err := p.EncodedBounds(opts)
	require.NoError(t, err)
	require.Len(t, bounds, 4)
	assert.Equal(t, []string{"temperature", "solvent_thf", "solvent_toluene", "solvent_dmso"}, names)

	mean, ok := p.InputMean("temperature")
	require.True(t, ok)
	std, ok := p.InputStd("temperature")
	require.True(t, ok)
	assert.InDelta(t, (30-mean)/std, bounds[0][0], 1e-12)
	assert.InDelta(t, (100-mean)/std, bounds[0][1], 1e-12)

	// One-hot columns keep unit bounds.
	assert.Equal(t, [2]float64{0, 1}, bounds[1])
}

func TestUnTransformTieBreaksOnFirstLevel(t *testing.T) {
	d := makeDomain(t)
	p := NewPipeline(d)
	opts := Options{Categorical: OneHot}

	encoded := data.NewData("temperature", "solvent_thf", "solvent_toluene", "solvent_dmso")
	require.NoError(t, encoded.AppendRow(data.Number(50), data.Number(0.5), data.Number(0.5), data.Number(0.2)))

	back, err := p.UnTransform(encoded, opts)
	require.NoError(t, err)
	solvent, _ := back.At(0, "solvent")
	assert.Equal(t, "thf", solvent.Text(), "ties resolve to the first level in declaration order")
}
