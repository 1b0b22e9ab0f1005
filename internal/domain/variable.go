package domain

import (
	"strings"

	"github.com/quenchlab/crucible/internal/errors"
)

// VariableType identifies the variant of a Variable. It is fixed at
// construction and never changes afterwards.
type VariableType string

const (
	Continuous  VariableType = "continuous"
	Discrete    VariableType = "discrete"
	Descriptors VariableType = "descriptors"
)

// Variable is a single decision or objective variable in the search space.
// It is a closed tagged union: the shared header (name, description, type)
// is common to all variants and the payload fields are only meaningful for
// the variant named by vtype.
type Variable struct {
	name        string
	description string
	vtype       VariableType

	// Continuous payload.
	lower float64
	upper float64

	// Discrete payload.
	levels []string

	// Descriptors payload.
	descriptors *DescriptorTable

	// Objective flags, only meaningful for output variables.
	objective bool
	maximize  bool
}

// checkName validates a variable name: non-empty and free of whitespace.
func checkName(name string) error {
	if name == "" {
		return errors.New("variable name must not be empty").WithComponent("domain")
	}
	if strings.ContainsAny(name, " \t\n\r") {
		return errors.Errorf("variable name %q must not contain whitespace, use _ or - instead", name).
			WithComponent("domain")
	}
	return nil
}

// NewContinuous creates a continuous variable on the closed interval
// [lower, upper].
func NewContinuous(name, description string, lower, upper float64) (*Variable, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	return &Variable{
		name:        name,
		description: description,
		vtype:       Continuous,
		lower:       lower,
		upper:       upper,
	}, nil
}

// NewDiscrete creates a discrete variable with the given ordered levels.
// Levels must be unique.
func NewDiscrete(name, description string, levels []string) (*Variable, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(levels))
	for _, l := range levels {
		if _, dup := seen[l]; dup {
			return nil, errors.Errorf("discrete variable %q: levels must have unique values", name).
				WithComponent("domain")
		}
		seen[l] = struct{}{}
	}
	return &Variable{
		name:        name,
		description: description,
		vtype:       Discrete,
		levels:      append([]string(nil), levels...),
	}, nil
}

// NewDescriptors creates a descriptor-set variable backed by the given table.
func NewDescriptors(name, description string, table *DescriptorTable) (*Variable, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if table == nil {
		return nil, errors.Errorf("descriptors variable %q: table must not be nil", name).
			WithComponent("domain")
	}
	return &Variable{
		name:        name,
		description: description,
		vtype:       Descriptors,
		descriptors: table,
	}, nil
}

// Name returns the variable's name.
func (v *Variable) Name() string { return v.name }

// Rename changes the variable's name. The new name is validated the same way
// as on construction.
func (v *Variable) Rename(name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	v.name = name
	return nil
}

// Description returns the free-text description.
func (v *Variable) Description() string { return v.description }

// SetDescription replaces the free-text description.
func (v *Variable) SetDescription(d string) { v.description = d }

// Type returns the variant tag.
func (v *Variable) Type() VariableType { return v.vtype }

// AsObjective marks the variable as an optimization objective. maximize
// selects the optimization direction. Returns the variable for chaining
// into Domain construction.
func (v *Variable) AsObjective(maximize bool) *Variable {
	v.objective = true
	v.maximize = maximize
	return v
}

// IsObjective reports whether the variable is an output objective.
func (v *Variable) IsObjective() bool { return v.objective }

// Maximize reports the optimization direction for objective variables.
func (v *Variable) Maximize() bool { return v.maximize }

// LowerBound returns the lower bound of a continuous variable.
func (v *Variable) LowerBound() float64 { return v.lower }

// UpperBound returns the upper bound of a continuous variable.
func (v *Variable) UpperBound() float64 { return v.upper }

// Bounds returns the [lower, upper] pair of a continuous variable.
func (v *Variable) Bounds() [2]float64 { return [2]float64{v.lower, v.upper} }

// Levels returns a copy of the level sequence of a discrete variable, or of
// the eligible index levels of a descriptors variable.
func (v *Variable) Levels() []string {
	switch v.vtype {
	case Discrete:
		return append([]string(nil), v.levels...)
	case Descriptors:
		return v.descriptors.EligibleLevels()
	default:
		return nil
	}
}

// NumLevels returns the number of levels of a discrete or descriptors
// variable.
func (v *Variable) NumLevels() int { return len(v.Levels()) }

// AddLevel appends a level to a discrete variable. It fails if the value is
// already present or the variable is not discrete.
func (v *Variable) AddLevel(level string) error {
	if v.vtype != Discrete {
		return errors.Errorf("variable %q is not discrete", v.name).WithComponent("domain")
	}
	for _, l := range v.levels {
		if l == level {
			return errors.Errorf("discrete variable %q: level %q already exists", v.name, level).
				WithComponent("domain")
		}
	}
	v.levels = append(v.levels, level)
	return nil
}

// RemoveLevel removes a level from a discrete variable. It fails if the value
// is absent or the variable is not discrete.
func (v *Variable) RemoveLevel(level string) error {
	if v.vtype != Discrete {
		return errors.Errorf("variable %q is not discrete", v.name).WithComponent("domain")
	}
	for i, l := range v.levels {
		if l == level {
			v.levels = append(v.levels[:i], v.levels[i+1:]...)
			return nil
		}
	}
	return errors.Errorf("discrete variable %q: level %q is not in the list of levels", v.name, level).
		WithComponent("domain")
}

// DescriptorTable returns the backing table of a descriptors variable, or
// nil for other variants.
func (v *Variable) DescriptorTable() *DescriptorTable { return v.descriptors }

// NumDescriptors returns the number of descriptor columns of a descriptors
// variable, or zero for other variants.
func (v *Variable) NumDescriptors() int {
	if v.vtype != Descriptors {
		return 0
	}
	return v.descriptors.NumDescriptors()
}
