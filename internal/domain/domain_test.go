package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariableNameValidation(t *testing.T) {
	tests := []struct {
		name    string
		varName string
		wantErr bool
	}{
		{"valid simple", "temperature", false},
		{"valid with underscore", "flow_rate", false},
		{"valid with dash", "flow-rate", false},
		{"empty", "", true},
		{"space", "flow rate", true},
		{"tab", "flow\trate", true},
		{"newline", "flow\nrate", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewContinuous(tt.varName, "", 0, 1)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRenameValidatesName(t *testing.T) {
	v, err := NewContinuous("temperature", "", 30, 100)
	require.NoError(t, err)

	assert.Error(t, v.Rename("bad name"))
	assert.Equal(t, "temperature", v.Name())

	require.NoError(t, v.Rename("temp"))
	assert.Equal(t, "temp", v.Name())
}

func TestDiscreteLevels(t *testing.T) {
	v, err := NewDiscrete("solvent", "", []string{"thf", "toluene"})
	require.NoError(t, err)

	// Duplicate levels rejected at construction.
	_, err = NewDiscrete("solvent", "", []string{"thf", "thf"})
	assert.Error(t, err)

	// Adding an existing level fails and leaves the list unchanged.
	assert.Error(t, v.AddLevel("thf"))
	assert.Equal(t, []string{"thf", "toluene"}, v.Levels())

	require.NoError(t, v.AddLevel("dmso"))
	assert.Equal(t, 3, v.NumLevels())

	// Removing an absent level fails.
	assert.Error(t, v.RemoveLevel("water"))

	require.NoError(t, v.RemoveLevel("toluene"))
	assert.Equal(t, []string{"thf", "dmso"}, v.Levels())
}

func TestLevelOpsRejectNonDiscrete(t *testing.T) {
	v, err := NewContinuous("temperature", "", 30, 100)
	require.NoError(t, err)

	assert.Error(t, v.AddLevel("x"))
	assert.Error(t, v.RemoveLevel("x"))
	assert.Nil(t, v.Levels())
}

func TestDescriptorTable(t *testing.T) {
	table, err := NewDescriptorTable(
		[]string{"a", "b", "c"},
		[]string{"polarity", "weight"},
		[][]float64{{1, 10}, {2, 20}, {3, 30}},
	)
	require.NoError(t, err)

	// Duplicate index rejected.
	_, err = NewDescriptorTable([]string{"a", "a"}, []string{"x"}, [][]float64{{1}, {2}})
	assert.Error(t, err)

	// Ragged rows rejected.
	_, err = NewDescriptorTable([]string{"a", "b"}, []string{"x"}, [][]float64{{1}, {2, 3}})
	assert.Error(t, err)

	// Normalization maps each column onto [0, 1].
	norm, ok := table.Normalized("a")
	require.True(t, ok)
	assert.Equal(t, []float64{0, 0}, norm)
	norm, ok = table.Normalized("c")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 1}, norm)
	norm, ok = table.Normalized("b")
	require.True(t, ok)
	assert.InDelta(t, 0.5, norm[0], 1e-12)

	// Subset restricts eligible levels; unknown levels are rejected.
	assert.Error(t, table.SelectSubset([]string{"z"}))
	require.NoError(t, table.SelectSubset([]string{"b", "c"}))
	assert.Equal(t, []string{"b", "c"}, table.EligibleLevels())
	assert.Equal(t, []string{"a", "b", "c"}, table.Index())
}

func TestEmptyDescriptorTableRejected(t *testing.T) {
	// A table with declared columns but no rows must fail construction
	// instead of blowing up during normalization.
	_, err := NewDescriptorTable(nil, []string{"mw"}, nil)
	assert.Error(t, err)

	_, err = NewDescriptorTable([]string{}, []string{"mw"}, [][]float64{})
	assert.Error(t, err)
}

func TestConstantDescriptorColumnNormalizesToZero(t *testing.T) {
	table, err := NewDescriptorTable(
		[]string{"a", "b"},
		[]string{"constant"},
		[][]float64{{5}, {5}},
	)
	require.NoError(t, err)

	norm, ok := table.Normalized("b")
	require.True(t, ok)
	assert.Equal(t, 0.0, norm[0])
}

func TestDomainCounts(t *testing.T) {
	temp, err := NewContinuous("temperature", "reaction temperature", 30, 100)
	require.NoError(t, err)
	solvent, err := NewDiscrete("solvent", "", []string{"thf", "toluene"})
	require.NoError(t, err)
	table, err := NewDescriptorTable(
		[]string{"l1", "l2"},
		[]string{"d1", "d2", "d3"},
		[][]float64{{1, 2, 3}, {4, 5, 6}},
	)
	require.NoError(t, err)
	ligand, err := NewDescriptors("ligand", "", table)
	require.NoError(t, err)
	yield, err := NewContinuous("yield", "", 0, 100)
	require.NoError(t, err)

	d := New(temp, solvent, ligand, yield.AsObjective(true))

	assert.Equal(t, 4, d.NumVariables())
	assert.Equal(t, 1, d.NumDiscreteVariables())
	// Temperature, three descriptor columns, and the continuous objective.
	assert.Equal(t, 5, d.NumContinuousDimensions())
	assert.Len(t, d.InputVariables(), 3)
	require.Len(t, d.OutputVariables(), 1)
	assert.True(t, d.OutputVariables()[0].Maximize())
}
