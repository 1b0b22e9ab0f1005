// Package transform maps raw experiment tables to and from the standardized
// numeric representation consumed by the surrogate models: categorical
// variables are encoded (one-hot or via descriptors) and numeric columns are
// standardized with a recorded, invertible scale.
package transform

import (
	"math"

	"github.com/quenchlab/crucible/internal/data"
	"github.com/quenchlab/crucible/internal/domain"
	"github.com/quenchlab/crucible/internal/errors"
)

// CategoricalMethod selects how categorical variables are encoded.
type CategoricalMethod string

const (
	OneHot          CategoricalMethod = "one-hot"
	DescriptorBased CategoricalMethod = "descriptors"
)

// Options controls a transform invocation.
type Options struct {
	Categorical        CategoricalMethod
	StandardizeInputs  bool
	StandardizeOutputs bool
}

// colSpec describes one encoded input column.
type colSpec struct {
	name     string
	variable *domain.Variable
	// level is set for one-hot columns.
	level string
	// descriptor is the descriptor column index for descriptor encoding,
	// -1 otherwise.
	descriptor int
}

// Pipeline is the transform collaborator for a single domain. The means and
// stds recorded by the most recent TransformInputsOutputs call are used to
// invert the scale in UnTransform and to derive standardized bounds.
//
// A Pipeline is not safe for concurrent use.
type Pipeline struct {
	domain *domain.Domain

	inputMeans  map[string]float64
	inputStds   map[string]float64
	outputMeans map[string]float64
	outputStds  map[string]float64
}

// NewPipeline creates a transform pipeline over the given domain.
func NewPipeline(d *domain.Domain) *Pipeline {
	return &Pipeline{
		domain:      d,
		inputMeans:  make(map[string]float64),
		inputStds:   make(map[string]float64),
		outputMeans: make(map[string]float64),
		outputStds:  make(map[string]float64),
	}
}

// layout builds the encoded input column specs for the given categorical
// method, in domain order.
func (p *Pipeline) layout(method CategoricalMethod) ([]colSpec, error) {
	const op = "Pipeline.layout"
	var specs []colSpec
	for _, v := range p.domain.InputVariables() {
		switch v.Type() {
		case domain.Continuous:
			specs = append(specs, colSpec{name: v.Name(), variable: v, descriptor: -1})
		case domain.Discrete:
			if method != OneHot {
				return nil, errors.Errorf("categorical method %q requires descriptors, but variable %q has none", method, v.Name()).
					WithComponent("transform").WithOperation(op)
			}
			for _, level := range v.Levels() {
				specs = append(specs, colSpec{name: v.Name() + "_" + level, variable: v, level: level, descriptor: -1})
			}
		case domain.Descriptors:
			switch method {
			case OneHot:
				for _, level := range v.Levels() {
					specs = append(specs, colSpec{name: v.Name() + "_" + level, variable: v, level: level, descriptor: -1})
				}
			case DescriptorBased:
				for j, dc := range v.DescriptorTable().Columns() {
					specs = append(specs, colSpec{name: v.Name() + "_" + dc, variable: v, descriptor: j})
				}
			default:
				return nil, errors.Errorf("unsupported categorical method %q", method).
					WithComponent("transform").WithOperation(op)
			}
		}
	}
	return specs, nil
}

// TransformInputsOutputs converts an experiment history into standardized
// numeric input and output tables. Means and stds of the scaled columns are
// recorded for later inversion, keyed by encoded column name (which for
// continuous variables is the variable name).
func (p *Pipeline) TransformInputsOutputs(history *data.Table, opts Options) (*data.Table, *data.Table, error) {
	const op = "Pipeline.TransformInputsOutputs"

	specs, err := p.layout(opts.Categorical)
	if err != nil {
		return nil, nil, err
	}
	n := history.NumRows()
	if n == 0 {
		return nil, nil, errors.New("empty experiment history").WithComponent("transform").WithOperation(op)
	}

	// Encode input columns.
	encoded := make([][]float64, len(specs))
	for ci, spec := range specs {
		col := make([]float64, n)
		for r := 0; r < n; r++ {
			cell, ok := history.At(r, spec.variable.Name())
			if !ok {
				return nil, nil, errors.Errorf("history is missing column %q", spec.variable.Name()).
					WithComponent("transform").WithOperation(op)
			}
			switch {
			case spec.variable.Type() == domain.Continuous:
				if cell.IsText() {
					return nil, nil, errors.Errorf("continuous column %q holds text at row %d", spec.name, r).
						WithComponent("transform").WithOperation(op)
				}
				col[r] = cell.Float()
			case spec.level != "": // one-hot
				if cell.Text() == spec.level {
					col[r] = 1
				}
			default: // descriptor encoding
				row, ok := spec.variable.DescriptorTable().Normalized(cell.Text())
				if !ok {
					return nil, nil, errors.Errorf("level %q of variable %q is not in its descriptor table",
						cell.Text(), spec.variable.Name()).WithComponent("transform").WithOperation(op)
				}
				col[r] = row[spec.descriptor]
			}
		}
		encoded[ci] = col
	}

	// Standardize everything except one-hot indicator columns, which keep
	// their raw [0, 1] coding.
	if opts.StandardizeInputs {
		for ci, spec := range specs {
			if spec.level != "" {
				continue
			}
			scaled, mean, std := Standardize(encoded[ci])
			encoded[ci] = scaled
			p.inputMeans[spec.name] = mean
			p.inputStds[spec.name] = std
		}
	}

	names := make([]string, len(specs))
	for i, s := range specs {
		names[i] = s.name
	}
	inputs := data.NewData(names...)
	for r := 0; r < n; r++ {
		cells := make([]data.Value, len(specs))
		for ci := range specs {
			cells[ci] = data.Number(encoded[ci][r])
		}
		if err := inputs.AppendRow(cells...); err != nil {
			return nil, nil, err
		}
	}

	// Outputs: one numeric column per objective variable.
	outVars := p.domain.OutputVariables()
	if len(outVars) == 0 {
		return nil, nil, errors.New("domain has no objective variable").
			WithComponent("transform").WithOperation(op)
	}
	outCols := make([][]float64, len(outVars))
	outNames := make([]string, len(outVars))
	for i, v := range outVars {
		col, err := history.ColumnFloats(v.Name())
		if err != nil {
			return nil, nil, errors.Wrapf(err, "objective column %q", v.Name()).
				WithComponent("transform").WithOperation(op)
		}
		if opts.StandardizeOutputs {
			scaled, mean, std := Standardize(col)
			col = scaled
			p.outputMeans[v.Name()] = mean
			p.outputStds[v.Name()] = std
		}
		outCols[i] = col
		outNames[i] = v.Name()
	}
	outputs := data.NewData(outNames...)
	for r := 0; r < n; r++ {
		cells := make([]data.Value, len(outVars))
		for i := range outVars {
			cells[i] = data.Number(outCols[i][r])
		}
		if err := outputs.AppendRow(cells...); err != nil {
			return nil, nil, err
		}
	}

	return inputs, outputs, nil
}

// UnTransform inverts the input encoding: numeric columns are unscaled with
// the recorded means/stds, one-hot groups decode to the level with the
// largest indicator, and descriptor groups decode to the nearest eligible
// level in normalized descriptor space. The result has one column per input
// variable, in original units and levels.
func (p *Pipeline) UnTransform(t *data.Table, opts Options) (*data.Table, error) {
	const op = "Pipeline.UnTransform"

	specs, err := p.layout(opts.Categorical)
	if err != nil {
		return nil, err
	}

	inVars := p.domain.InputVariables()
	names := make([]string, len(inVars))
	for i, v := range inVars {
		names[i] = v.Name()
	}
	out := data.NewData(names...)

	for r := 0; r < t.NumRows(); r++ {
		cells := make([]data.Value, 0, len(inVars))
		for _, v := range inVars {
			group := specsFor(specs, v)
			switch v.Type() {
			case domain.Continuous:
				val, err := p.cellFloat(t, r, group[0].name, opts.StandardizeInputs)
				if err != nil {
					return nil, err
				}
				cells = append(cells, data.Number(val))
			default:
				if group[0].level != "" {
					// One-hot: pick the level with the largest indicator,
					// first on tie. Indicator columns are never scaled.
					best, bestVal := "", math.Inf(-1)
					for _, spec := range group {
						cell, ok := t.At(r, spec.name)
						if !ok {
							return nil, errors.Errorf("missing encoded column %q", spec.name).
								WithComponent("transform").WithOperation(op)
						}
						if cell.Float() > bestVal {
							best, bestVal = spec.level, cell.Float()
						}
					}
					cells = append(cells, data.Text(best))
				} else {
					// Descriptors: nearest eligible level in normalized space.
					point := make([]float64, len(group))
					for i, spec := range group {
						val, err := p.cellFloat(t, r, spec.name, opts.StandardizeInputs)
						if err != nil {
							return nil, err
						}
						point[i] = val
					}
					level, err := nearestLevel(v.DescriptorTable(), point)
					if err != nil {
						return nil, err
					}
					cells = append(cells, data.Text(level))
				}
			}
		}
		if err := out.AppendRow(cells...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// cellFloat reads a numeric cell and inverts the recorded standardization
// when requested.
func (p *Pipeline) cellFloat(t *data.Table, row int, column string, unscale bool) (float64, error) {
	cell, ok := t.At(row, column)
	if !ok {
		return 0, errors.Errorf("missing encoded column %q", column).
			WithComponent("transform").WithOperation("Pipeline.cellFloat")
	}
	v := cell.Float()
	if unscale {
		mean, okM := p.inputMeans[column]
		std, okS := p.inputStds[column]
		if !okM || !okS {
			return 0, errors.Errorf("no recorded scale for column %q, transform inputs first", column).
				WithComponent("transform").WithOperation("Pipeline.cellFloat")
		}
		v = v*std + mean
	}
	return v, nil
}

// specsFor returns the encoded columns belonging to one variable.
func specsFor(specs []colSpec, v *domain.Variable) []colSpec {
	var group []colSpec
	for _, s := range specs {
		if s.variable == v {
			group = append(group, s)
		}
	}
	return group
}

// nearestLevel finds the eligible level whose normalized descriptor row is
// closest to point in Euclidean distance.
func nearestLevel(table *domain.DescriptorTable, point []float64) (string, error) {
	best, bestDist := "", math.Inf(1)
	for _, level := range table.EligibleLevels() {
		row, ok := table.Normalized(level)
		if !ok {
			continue
		}
		d := 0.0
		for i := range row {
			diff := row[i] - point[i]
			d += diff * diff
		}
		if d < bestDist {
			best, bestDist = level, d
		}
	}
	if best == "" {
		return "", errors.New("descriptor table has no eligible levels").WithComponent("transform")
	}
	return best, nil
}

// EncodedBounds returns the search box of the encoded input space, one
// [lower, upper] pair per encoded column, along with the encoded column
// names in order. One-hot indicator columns span [0, 1] and are never
// scaled; descriptor columns span the normalized [0, 1] descriptor range.
// When opts.StandardizeInputs is set the bounds of scaled columns are
// expressed in the standardized space using the scales recorded by the most
// recent TransformInputsOutputs call.
func (p *Pipeline) EncodedBounds(opts Options) ([][2]float64, []string, error) {
	const op = "Pipeline.EncodedBounds"

	specs, err := p.layout(opts.Categorical)
	if err != nil {
		return nil, nil, err
	}
	bounds := make([][2]float64, len(specs))
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.name
		var lo, hi float64
		switch {
		case spec.variable.Type() == domain.Continuous:
			lo, hi = spec.variable.LowerBound(), spec.variable.UpperBound()
		case spec.level != "":
			bounds[i] = [2]float64{0, 1}
			continue
		default:
			lo, hi = 0, 1
		}
		if opts.StandardizeInputs {
			mean, okM := p.inputMeans[spec.name]
			std, okS := p.inputStds[spec.name]
			if !okM || !okS {
				return nil, nil, errors.Errorf("no recorded scale for column %q, transform inputs first", spec.name).
					WithComponent("transform").WithOperation(op)
			}
			lo, hi = (lo-mean)/std, (hi-mean)/std
		}
		bounds[i] = [2]float64{lo, hi}
	}
	return bounds, names, nil
}

// InputMean returns the mean recorded for an encoded input column by the
// most recent transform, keyed by column name.
func (p *Pipeline) InputMean(column string) (float64, bool) {
	m, ok := p.inputMeans[column]
	return m, ok
}

// InputStd returns the standard deviation recorded for an encoded input
// column by the most recent transform.
func (p *Pipeline) InputStd(column string) (float64, bool) {
	s, ok := p.inputStds[column]
	return s, ok
}

// OutputMean returns the mean recorded for an objective column.
func (p *Pipeline) OutputMean(name string) (float64, bool) {
	m, ok := p.outputMeans[name]
	return m, ok
}

// OutputStd returns the standard deviation recorded for an objective column.
func (p *Pipeline) OutputStd(name string) (float64, bool) {
	s, ok := p.outputStds[name]
	return s, ok
}
