package formula

import (
	"strings"
)

// -----------------------------------------------------------------------------

// Options is the configure/build/install option triple handed to a build
// driver. Each field is a single space-separated option string.
type Options struct {
	Configure string
	Build     string
	Install   string
}

// join concatenates the option strings of parts field by field, separated by
// a single space. Empty parts yield empty segments.
func join(parts []Options) Options {
	conf := make([]string, len(parts))
	bld := make([]string, len(parts))
	inst := make([]string, len(parts))
	for i, p := range parts {
		conf[i] = p.Configure
		bld[i] = p.Build
		inst[i] = p.Install
	}
	return Options{
		Configure: strings.Join(conf, " "),
		Build:     strings.Join(bld, " "),
		Install:   strings.Join(inst, " "),
	}
}

// -----------------------------------------------------------------------------

// AxisValue is one allowed value of an Axis together with the option
// fragment it contributes.
type AxisValue struct {
	Name    string
	Label   string // human readable form, defaults to Name
	Options Options
}

func (v AxisValue) label() string {
	if v.Label != "" {
		return v.Label
	}
	return v.Name
}

// Axis is an ordered dimension of the build matrix.
type Axis struct {
	Name   string
	Values []AxisValue
}

// Selection maps axis names to the value chosen for that axis.
type Selection map[string]string

// Matrix is an ordered list of axes. Derive, when set, is called for every
// combination and its result is appended after the per-axis fragments.
type Matrix struct {
	Axes   []Axis
	Derive func(sel Selection) Options
}

// Variant is one point in the cross product of a Matrix.
type Variant struct {
	Index     int
	Selection Selection
	Label     string
	Options   Options
}

// Value returns the value chosen for the named axis.
func (v Variant) Value(axis string) string {
	return v.Selection[axis]
}

// CombinationCount returns the number of variants Plan produces.
func (m *Matrix) CombinationCount() int {
	count := 1
	for _, axis := range m.Axes {
		count *= len(axis.Values)
	}
	return count
}

// Plan expands the matrix into its variants. The first axis is the outer
// loop and the last axis the inner loop. Every option string of a variant is
// the space-joined axis fragments, the derived fragment if any, and finally
// the matching string of common.
func (m *Matrix) Plan(common Options) []Variant {
	n := m.CombinationCount()
	if n == 0 {
		return nil
	}
	variants := make([]Variant, 0, n)
	picked := make([]AxisValue, len(m.Axes))

	var expand func(depth int)
	expand = func(depth int) {
		if depth < len(m.Axes) {
			for _, v := range m.Axes[depth].Values {
				picked[depth] = v
				expand(depth + 1)
			}
			return
		}
		variants = append(variants, m.variant(len(variants), picked, common))
	}
	expand(0)
	return variants
}

func (m *Matrix) variant(index int, picked []AxisValue, common Options) Variant {
	sel := make(Selection, len(picked))
	labels := make([]string, len(picked))
	parts := make([]Options, 0, len(picked)+2)
	for i, v := range picked {
		sel[m.Axes[i].Name] = v.Name
		labels[i] = v.label()
		parts = append(parts, v.Options)
	}
	if m.Derive != nil {
		parts = append(parts, m.Derive(sel))
	}
	parts = append(parts, common)
	return Variant{
		Index:     index,
		Selection: sel,
		Label:     strings.Join(labels, " "),
		Options:   join(parts),
	}
}

// -----------------------------------------------------------------------------
