package build

import (
	"context"
	"fmt"
	"strings"

	"github.com/goplus/gmxbuild/formula"
	"github.com/qiniu/x/log"
)

// Driver runs the external pipeline steps of a single variant.
type Driver interface {
	// Configure returns the output of the configure run.
	Configure(ctx context.Context, opts formula.Options) (string, error)
	Build(ctx context.Context, opts formula.Options) error
	Test(ctx context.Context, opts formula.Options) error
	Install(ctx context.Context, opts formula.Options) error
}

// Runner drives a Driver over every variant of a State, one after another.
type Runner struct {
	Driver Driver

	// Skip reports whether all steps of v must be skipped, and why.
	Skip func(v formula.Variant) (bool, string)

	// Finalize runs once, after the steps of the last variant.
	Finalize func(ctx context.Context, st *State) error

	Log *log.Logger
}

// Result summarizes a run.
type Result struct {
	Labels  []string // every variant visited, in order
	Built   []string
	Skipped []string

	// Common is the restored baseline, for callers that expect a single
	// option triple after the matrix.
	Common formula.Options
}

// Run processes the variants of st in order: configure, build, test and
// install. The first failing step aborts the run with a *StepError; the
// Result collected so far is returned alongside. Whatever the outcome,
// st.Active is reset to st.Common before Run returns.
func (r *Runner) Run(ctx context.Context, st *State) (res *Result, err error) {
	if st.Phase != Planned {
		return nil, fmt.Errorf("build: cannot run matrix in phase %s", st.Phase)
	}
	logger := r.logger()
	res = &Result{}

	st.Phase = Running
	defer func() {
		st.Active = st.Common
		res.Common = st.Common
		if err != nil {
			st.Phase = Failed
			return
		}
		st.Phase = Completed
	}()

	if st.Total == 0 {
		logger.Warn("build: no variants to build")
		return res, nil
	}
	logger.Infof("Building these variants: %s", strings.Join(st.Labels(), ", "))

	for i, v := range st.Variants {
		st.Current = i
		st.Active = v.Options
		res.Labels = append(res.Labels, v.Label)

		if skip, reason := r.skip(v); skip {
			logger.Infof("skipping variant %d/%d (%s): %s", i+1, st.Total, v.Label, reason)
			res.Skipped = append(res.Skipped, v.Label)
		} else {
			logger.Infof("building variant %d/%d: %s", i+1, st.Total, v.Label)
			if err := r.runSteps(ctx, i, v); err != nil {
				return res, err
			}
			res.Built = append(res.Built, v.Label)
		}

		if r.Finalize == nil {
			continue
		}
		if !st.IsLast() {
			logger.Debugf("skipping finalize step %d", i)
			continue
		}
		if err := r.Finalize(ctx, st); err != nil {
			return res, &StepError{Index: i, Label: v.Label, Step: StepFinalize, Err: err}
		}
	}
	return res, nil
}

func (r *Runner) runSteps(ctx context.Context, index int, v formula.Variant) error {
	steps := []struct {
		step Step
		run  func() error
	}{
		{StepConfigure, func() error {
			out, err := r.Driver.Configure(ctx, v.Options)
			r.logger().Debugf("configure output of %s: %d bytes", v.Label, len(out))
			return err
		}},
		{StepBuild, func() error { return r.Driver.Build(ctx, v.Options) }},
		{StepTest, func() error { return r.Driver.Test(ctx, v.Options) }},
		{StepInstall, func() error { return r.Driver.Install(ctx, v.Options) }},
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Index: index, Label: v.Label, Step: s.step, Err: err}
		}
		if err := s.run(); err != nil {
			return &StepError{Index: index, Label: v.Label, Step: s.step, Err: err}
		}
	}
	return nil
}

func (r *Runner) skip(v formula.Variant) (bool, string) {
	if r.Skip == nil {
		return false, ""
	}
	return r.Skip(v)
}

func (r *Runner) logger() *log.Logger {
	if r.Log != nil {
		return r.Log
	}
	return log.Std
}
