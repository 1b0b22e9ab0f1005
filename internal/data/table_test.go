package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableAppendRowArity(t *testing.T) {
	tbl := NewData("x", "y")

	require.NoError(t, tbl.AppendRow(Number(1), Number(2)))
	assert.Error(t, tbl.AppendRow(Number(1)))
	assert.Equal(t, 1, tbl.NumRows())
}

func TestColumnFloats(t *testing.T) {
	tbl := NewData("x", "label")
	require.NoError(t, tbl.AppendRow(Number(1.5), Text("a")))
	require.NoError(t, tbl.AppendRow(Number(2.5), Text("b")))

	col, err := tbl.ColumnFloats("x")
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2.5}, col)

	_, err = tbl.ColumnFloats("label")
	assert.Error(t, err, "text column should not convert to floats")

	_, err = tbl.ColumnFloats("missing")
	assert.Error(t, err)
}

func TestAppendRequiresMatchingSchema(t *testing.T) {
	a := NewData("x", "y")
	require.NoError(t, a.AppendRow(Number(1), Number(2)))

	b := NewData("x", "y")
	require.NoError(t, b.AppendRow(Number(3), Number(4)))
	require.NoError(t, a.Append(b))
	assert.Equal(t, 2, a.NumRows())

	c := NewData("x", "z")
	assert.Error(t, a.Append(c))

	// Same name but different kind is a different schema.
	d := New(Column{Name: "x", Kind: KindData}, Column{Name: "y", Kind: KindMetadata})
	assert.Error(t, a.Append(d))
}

func TestSetMetadata(t *testing.T) {
	tbl := NewData("x")
	require.NoError(t, tbl.AppendRow(Number(1)))
	require.NoError(t, tbl.AppendRow(Number(2)))

	tbl.SetMetadata("strategy", "LHS")
	v, ok := tbl.At(0, "strategy")
	require.True(t, ok)
	assert.Equal(t, "LHS", v.Text())

	// Metadata columns stay out of the data view.
	assert.Equal(t, []string{"x"}, tbl.DataColumnNames())
	assert.Equal(t, []string{"x", "strategy"}, tbl.ColumnNames())

	// Overwriting replaces the value on every row.
	tbl.SetMetadata("strategy", "CBBO")
	v, _ = tbl.At(1, "strategy")
	assert.Equal(t, "CBBO", v.Text())
}

func TestMatrixRoundTrip(t *testing.T) {
	tbl := NewData("x", "y")
	require.NoError(t, tbl.AppendRow(Number(1), Number(2)))
	require.NoError(t, tbl.AppendRow(Number(3), Number(4)))
	tbl.SetMetadata("strategy", "LHS")

	m, err := tbl.Matrix()
	require.NoError(t, err)
	rows, cols := m.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols, "metadata columns should be excluded")
	assert.Equal(t, 3.0, m.At(1, 0))

	back, err := FromMatrix(m, []string{"x", "y"})
	require.NoError(t, err)
	v, _ := back.At(0, "y")
	assert.Equal(t, 2.0, v.Float())
}

func TestCloneIsIndependent(t *testing.T) {
	tbl := NewData("x")
	require.NoError(t, tbl.AppendRow(Number(1)))

	cp := tbl.Clone()
	require.NoError(t, cp.AppendRow(Number(2)))
	cp.SetMetadata("strategy", "LHS")

	assert.Equal(t, 1, tbl.NumRows())
	assert.False(t, tbl.HasColumn("strategy"))
}
