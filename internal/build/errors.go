package build

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigConflict reports mutually exclusive settings, such as double
	// precision requested together with a GPU build.
	ErrConfigConflict = errors.New("configuration conflict")

	// ErrToolMissing reports a required executable missing from $PATH.
	ErrToolMissing = errors.New("required tool not found")
)

// Step names one stage of the per-variant pipeline.
type Step string

const (
	StepConfigure Step = "configure"
	StepBuild     Step = "build"
	StepTest      Step = "test"
	StepInstall   Step = "install"
	StepFinalize  Step = "finalize"
)

// StepError is returned when a step of a variant fails. The run stops at
// the first StepError.
type StepError struct {
	Index int
	Label string
	Step  Step
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("variant %d (%s): %s step failed: %v", e.Index, e.Label, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
