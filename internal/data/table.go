// Package data provides the tabular container used to carry experiment
// histories and proposed designs between the strategy, the transform
// pipeline, and callers.
package data

import (
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/quenchlab/crucible/internal/errors"
)

// Kind distinguishes data columns (variable values) from metadata columns
// (annotations such as the strategy that produced a row).
type Kind int

const (
	KindData Kind = iota
	KindMetadata
)

// Column is a named, kinded table column.
type Column struct {
	Name string
	Kind Kind
}

// Value is a single table cell, either numeric or text. Categorical levels
// and metadata annotations are text; everything else is numeric.
type Value struct {
	num  float64
	str  string
	text bool
}

// Number creates a numeric cell.
func Number(f float64) Value { return Value{num: f} }

// Text creates a text cell.
func Text(s string) Value { return Value{str: s, text: true} }

// Float returns the numeric value of the cell. Zero for text cells.
func (v Value) Float() float64 { return v.num }

// Text returns the text value of the cell. Empty for numeric cells.
func (v Value) Text() string { return v.str }

// IsText reports whether the cell holds text.
func (v Value) IsText() bool { return v.text }

// String renders the cell for display.
func (v Value) String() string {
	if v.text {
		return v.str
	}
	return strconv.FormatFloat(v.num, 'g', -1, 64)
}

// Table is an ordered collection of columns holding experiment rows.
type Table struct {
	columns []Column
	rows    [][]Value
}

// New creates an empty table with the given columns.
func New(columns ...Column) *Table {
	return &Table{columns: append([]Column(nil), columns...)}
}

// NewData creates an empty table whose columns are all data columns.
func NewData(names ...string) *Table {
	cols := make([]Column, len(names))
	for i, n := range names {
		cols[i] = Column{Name: n, Kind: KindData}
	}
	return &Table{columns: cols}
}

// Columns returns the table's columns in order.
func (t *Table) Columns() []Column { return append([]Column(nil), t.columns...) }

// ColumnNames returns all column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.Name
	}
	return names
}

// DataColumnNames returns the names of the data columns in order.
func (t *Table) DataColumnNames() []string {
	var names []string
	for _, c := range t.columns {
		if c.Kind == KindData {
			names = append(names, c.Name)
		}
	}
	return names
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return len(t.rows) }

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.columns) }

// columnIndex returns the position of the named column, or -1.
func (t *Table) columnIndex(name string) int {
	for i, c := range t.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool { return t.columnIndex(name) >= 0 }

// AppendRow appends a row. The number of cells must match the number of
// columns.
func (t *Table) AppendRow(cells ...Value) error {
	if len(cells) != len(t.columns) {
		return errors.Errorf("table: row has %d cells but table has %d columns", len(cells), len(t.columns)).
			WithComponent("data")
	}
	t.rows = append(t.rows, append([]Value(nil), cells...))
	return nil
}

// At returns the cell at the given row and named column.
func (t *Table) At(row int, column string) (Value, bool) {
	i := t.columnIndex(column)
	if i < 0 || row < 0 || row >= len(t.rows) {
		return Value{}, false
	}
	return t.rows[row][i], true
}

// ColumnFloats returns a named column as a float slice. It fails if the
// column is missing or holds text cells.
func (t *Table) ColumnFloats(name string) ([]float64, error) {
	i := t.columnIndex(name)
	if i < 0 {
		return nil, errors.Errorf("table: no column named %q", name).WithComponent("data")
	}
	out := make([]float64, len(t.rows))
	for r, row := range t.rows {
		if row[i].IsText() {
			return nil, errors.Errorf("table: column %q holds text at row %d", name, r).
				WithComponent("data")
		}
		out[r] = row[i].Float()
	}
	return out, nil
}

// Append appends all rows of other. The two tables must have identical
// column names and kinds in the same order.
func (t *Table) Append(other *Table) error {
	if len(other.columns) != len(t.columns) {
		return errors.Errorf("table: cannot append, %d columns vs %d", len(other.columns), len(t.columns)).
			WithComponent("data")
	}
	for i, c := range t.columns {
		if other.columns[i] != c {
			return errors.Errorf("table: cannot append, column %d is %q but expected %q",
				i, other.columns[i].Name, c.Name).WithComponent("data")
		}
	}
	for _, row := range other.rows {
		t.rows = append(t.rows, append([]Value(nil), row...))
	}
	return nil
}

// SetMetadata sets a metadata column to the given text value on every row,
// creating the column if it does not exist.
func (t *Table) SetMetadata(name, value string) {
	i := t.columnIndex(name)
	if i < 0 {
		t.columns = append(t.columns, Column{Name: name, Kind: KindMetadata})
		for r := range t.rows {
			t.rows[r] = append(t.rows[r], Text(value))
		}
		return
	}
	for r := range t.rows {
		t.rows[r][i] = Text(value)
	}
}

// Matrix returns the numeric data columns as a dense matrix, one row per
// table row. It fails if any data cell holds text.
func (t *Table) Matrix() (*mat.Dense, error) {
	names := t.DataColumnNames()
	if len(names) == 0 || len(t.rows) == 0 {
		return nil, errors.New("table: no numeric data to convert").WithComponent("data")
	}
	m := mat.NewDense(len(t.rows), len(names), nil)
	for j, name := range names {
		col, err := t.ColumnFloats(name)
		if err != nil {
			return nil, err
		}
		for r, v := range col {
			m.Set(r, j, v)
		}
	}
	return m, nil
}

// FromMatrix creates a data table from a dense matrix and column names.
func FromMatrix(m *mat.Dense, names []string) (*Table, error) {
	rows, cols := m.Dims()
	if cols != len(names) {
		return nil, errors.Errorf("table: matrix has %d columns but %d names given", cols, len(names)).
			WithComponent("data")
	}
	t := NewData(names...)
	for r := 0; r < rows; r++ {
		cells := make([]Value, cols)
		for c := 0; c < cols; c++ {
			cells[c] = Number(m.At(r, c))
		}
		if err := t.AppendRow(cells...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Clone returns a deep copy of the table.
func (t *Table) Clone() *Table {
	c := &Table{columns: append([]Column(nil), t.columns...)}
	c.rows = make([][]Value, len(t.rows))
	for i, row := range t.rows {
		c.rows[i] = append([]Value(nil), row...)
	}
	return c
}
