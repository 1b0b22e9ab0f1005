// Package domain declares the search space for sequential experimental
// design: the variables an experiment can vary and the objectives it
// measures.
package domain

// Domain is an ordered, append-only sequence of variables.
//
// Variable names are expected to be unique within a domain; uniqueness is
// not enforced here and duplicate names lead to ambiguous column lookups
// downstream.
type Domain struct {
	variables []*Variable
}

// New creates a domain from the given variables, preserving order.
func New(variables ...*Variable) *Domain {
	return &Domain{variables: append([]*Variable(nil), variables...)}
}

// Add appends a variable to the domain and returns the domain for chaining.
func (d *Domain) Add(v *Variable) *Domain {
	d.variables = append(d.variables, v)
	return d
}

// Variables returns the variables in declaration order.
func (d *Domain) Variables() []*Variable {
	return append([]*Variable(nil), d.variables...)
}

// NumVariables returns the number of variables in the domain.
func (d *Domain) NumVariables() int { return len(d.variables) }

// NumDiscreteVariables returns the number of discrete variables.
func (d *Domain) NumDiscreteVariables() int {
	n := 0
	for _, v := range d.variables {
		if v.Type() == Discrete {
			n++
		}
	}
	return n
}

// NumContinuousDimensions returns the number of continuous dimensions.
// A continuous variable contributes one dimension; a descriptors variable
// contributes one dimension per descriptor column.
func (d *Domain) NumContinuousDimensions() int {
	k := 0
	for _, v := range d.variables {
		switch v.Type() {
		case Continuous:
			k++
		case Descriptors:
			k += v.NumDescriptors()
		}
	}
	return k
}

// InputVariables returns the decision variables, in declaration order.
func (d *Domain) InputVariables() []*Variable {
	var in []*Variable
	for _, v := range d.variables {
		if !v.IsObjective() {
			in = append(in, v)
		}
	}
	return in
}

// OutputVariables returns the objective variables, in declaration order.
// The first output variable is treated as the sole objective by the
// single-objective strategies.
func (d *Domain) OutputVariables() []*Variable {
	var out []*Variable
	for _, v := range d.variables {
		if v.IsObjective() {
			out = append(out, v)
		}
	}
	return out
}
