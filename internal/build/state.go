package build

import (
	"fmt"

	"github.com/goplus/gmxbuild/formula"
)

// Phase is the lifecycle position of a State.
type Phase int

const (
	Planned Phase = iota
	Running
	Completed
	Failed
)

func (p Phase) String() string {
	switch p {
	case Planned:
		return "planned"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// State is the mutable state of one matrix run. It is created by NewState,
// consumed by a single Runner.Run and then discarded.
type State struct {
	// Common is the baseline captured before expansion. It is never
	// modified after NewState.
	Common formula.Options

	Variants []formula.Variant
	Total    int

	// Current is the zero-based index of the variant being processed,
	// -1 before the run starts.
	Current int

	// Active is the option triple in force: the current variant's options
	// while running, Common before and after.
	Active formula.Options

	Phase Phase
}

// NewState captures common as the baseline and records the variants
// planned from it.
func NewState(common formula.Options, variants []formula.Variant) *State {
	return &State{
		Common:   common,
		Variants: variants,
		Total:    len(variants),
		Current:  -1,
		Active:   common,
		Phase:    Planned,
	}
}

// Plan expands m against common and returns the resulting state.
func Plan(m *formula.Matrix, common formula.Options) *State {
	return NewState(common, m.Plan(common))
}

// IsLast reports whether the current variant is the final one.
func (s *State) IsLast() bool {
	return s.Total > 0 && s.Current == s.Total-1
}

// Labels returns the labels of all planned variants in order.
func (s *State) Labels() []string {
	labels := make([]string, len(s.Variants))
	for i, v := range s.Variants {
		labels[i] = v.Label
	}
	return labels
}
