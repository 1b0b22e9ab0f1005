package domain

import (
	"github.com/quenchlab/crucible/internal/errors"
)

// DescriptorTable is a table of numeric descriptor columns indexed by
// categorical level. It keeps both the raw values and a min-max normalized
// view where every column is independently scaled into [0, 1].
type DescriptorTable struct {
	index      []string
	columns    []string
	values     [][]float64
	normalized [][]float64

	// subset, when non-nil, restricts which index rows are eligible for use
	// in designs and optimizations.
	subset []string
}

// NewDescriptorTable creates a descriptor table. index holds the level names
// (one per row), columns the descriptor names, and values the numeric rows.
func NewDescriptorTable(index, columns []string, values [][]float64) (*DescriptorTable, error) {
	if len(index) == 0 {
		return nil, errors.New("descriptor table must have at least one row").WithComponent("domain")
	}
	if len(index) != len(values) {
		return nil, errors.Errorf("descriptor table: %d index rows but %d value rows", len(index), len(values)).
			WithComponent("domain")
	}
	seen := make(map[string]struct{}, len(index))
	for _, level := range index {
		if _, dup := seen[level]; dup {
			return nil, errors.Errorf("descriptor table: duplicate index level %q", level).
				WithComponent("domain")
		}
		seen[level] = struct{}{}
	}
	for i, row := range values {
		if len(row) != len(columns) {
			return nil, errors.Errorf("descriptor table: row %d has %d values but %d columns declared",
				i, len(row), len(columns)).WithComponent("domain")
		}
	}
	t := &DescriptorTable{
		index:   append([]string(nil), index...),
		columns: append([]string(nil), columns...),
	}
	t.values = make([][]float64, len(values))
	for i, row := range values {
		t.values[i] = append([]float64(nil), row...)
	}
	t.normalized = normalizeColumns(t.values, len(columns))
	return t, nil
}

// normalizeColumns scales each column independently into [0, 1]. A constant
// column maps to zero.
func normalizeColumns(values [][]float64, ncols int) [][]float64 {
	out := make([][]float64, len(values))
	for i := range out {
		out[i] = make([]float64, ncols)
	}
	for j := 0; j < ncols; j++ {
		lo, hi := values[0][j], values[0][j]
		for _, row := range values {
			if row[j] < lo {
				lo = row[j]
			}
			if row[j] > hi {
				hi = row[j]
			}
		}
		span := hi - lo
		for i, row := range values {
			if span == 0 {
				out[i][j] = 0
				continue
			}
			out[i][j] = (row[j] - lo) / span
		}
	}
	return out
}

// NumDescriptors returns the number of descriptor columns.
func (t *DescriptorTable) NumDescriptors() int { return len(t.columns) }

// NumExamples returns the number of index rows.
func (t *DescriptorTable) NumExamples() int { return len(t.index) }

// Columns returns the descriptor column names.
func (t *DescriptorTable) Columns() []string { return append([]string(nil), t.columns...) }

// Index returns all index level names, ignoring any subset restriction.
func (t *DescriptorTable) Index() []string { return append([]string(nil), t.index...) }

// Row returns the raw descriptor values of the given level.
func (t *DescriptorTable) Row(level string) ([]float64, bool) {
	for i, l := range t.index {
		if l == level {
			return append([]float64(nil), t.values[i]...), true
		}
	}
	return nil, false
}

// Normalized returns the min-max normalized descriptor values of the given
// level.
func (t *DescriptorTable) Normalized(level string) ([]float64, bool) {
	for i, l := range t.index {
		if l == level {
			return append([]float64(nil), t.normalized[i]...), true
		}
	}
	return nil, false
}

// SelectSubset restricts the eligible index rows to the given levels. Every
// level must exist in the index.
func (t *DescriptorTable) SelectSubset(levels []string) error {
	for _, level := range levels {
		if _, ok := t.Row(level); !ok {
			return errors.Errorf("descriptor table: subset level %q is not in the index", level).
				WithComponent("domain")
		}
	}
	t.subset = append([]string(nil), levels...)
	return nil
}

// EligibleLevels returns the levels eligible for designs and optimizations:
// the selected subset when one is set, otherwise the full index.
func (t *DescriptorTable) EligibleLevels() []string {
	if t.subset != nil {
		return append([]string(nil), t.subset...)
	}
	return t.Index()
}
