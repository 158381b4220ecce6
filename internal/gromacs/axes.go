package gromacs

import (
	"fmt"

	"github.com/goplus/gmxbuild/formula"
	"github.com/goplus/gmxbuild/internal/build"
	"github.com/goplus/gmxbuild/internal/env"
	"github.com/goplus/gmxbuild/internal/version"
	"github.com/qiniu/x/log"
)

// Axis names and values of the GROMACS build matrix.
const (
	AxisPrecision = "precision"
	AxisMPI       = "mpi"

	Single = "single"
	Double = "double"
	NoMPI  = "nompi"
	MPI    = "mpi"
)

// usesCMake reports whether v is configured with CMake rather than the
// configure script.
func usesCMake(v string) bool {
	return version.AtLeast(v, "4.6")
}

// gpuBuild reports whether a CUDA dependency turns this into a GPU build.
func gpuBuild(cfg *Config, probe env.Probe) bool {
	return cudaLoaded(probe) && usesCMake(cfg.Version)
}

// cudaLoaded reports whether CUDA is present at all. Double precision
// steps are skipped whenever it is, GPU build or not.
func cudaLoaded(probe env.Probe) bool {
	_, ok := probe.Root("CUDA")
	return ok
}

// InstallCommand returns the install command. Before 5.0 the install
// target depends on the variant and comes from the install options.
func InstallCommand(v string) []string {
	if version.Less(v, "5") {
		return []string{"make"}
	}
	return []string{"make", "install"}
}

// NewMatrix returns the precision × MPI matrix of cfg.
//
// Double precision is dropped when the caller disables it, and for GPU
// builds unless explicitly requested, which is a configuration conflict.
func NewMatrix(cfg *Config, probe env.Probe, logger *log.Logger) (*formula.Matrix, error) {
	logger = stdOr(logger)
	double := cfg.DoublePrecision == nil || *cfg.DoublePrecision
	if gpuBuild(cfg, probe) && double {
		if cfg.DoublePrecision != nil {
			return nil, fmt.Errorf("%w: double precision is not available for GPU builds, "+
				"set double_precision = false or remove it", build.ErrConfigConflict)
		}
		logger.Info("Double precision is not available for GPU builds, skipping the double precision build")
		double = false
	}

	precOpts := map[string]string{Single: "--disable-double", Double: "--enable-double"}
	mpiOpts := map[string]string{NoMPI: "--disable-mpi", MPI: "--enable-mpi"}
	if usesCMake(cfg.Version) {
		precOpts = map[string]string{Single: "-DGMX_DOUBLE=OFF", Double: "-DGMX_DOUBLE=ON"}
		mpiOpts = map[string]string{
			NoMPI: "-DGMX_MPI=OFF -DGMX_THREAD_MPI=ON",
			MPI:   "-DGMX_MPI=ON -DGMX_THREAD_MPI=OFF",
		}
	}
	var buildOpts, installOpts map[string]string
	if version.Less(cfg.Version, "5") {
		// only mdrun is built and installed for MPI
		buildOpts = map[string]string{MPI: "mdrun"}
		installOpts = map[string]string{NoMPI: "install", MPI: "install-mdrun"}
	}

	precision := formula.Axis{Name: AxisPrecision}
	for _, p := range []string{Single, Double} {
		if p == Double && !double {
			continue
		}
		precision.Values = append(precision.Values, formula.AxisValue{
			Name:    p,
			Label:   p + " precision",
			Options: formula.Options{Configure: precOpts[p]},
		})
	}

	mpiTypes := []string{NoMPI}
	if cfg.UseMPI {
		mpiTypes = append(mpiTypes, MPI)
	}
	mpiAxis := formula.Axis{Name: AxisMPI}
	for _, t := range mpiTypes {
		mpiAxis.Values = append(mpiAxis.Values, formula.AxisValue{
			Name: t,
			Options: formula.Options{
				Configure: mpiOpts[t],
				Build:     buildOpts[t],
				Install:   installOpts[t],
			},
		})
	}

	m := &formula.Matrix{Axes: []formula.Axis{precision, mpiAxis}}
	if !usesCMake(cfg.Version) {
		suffix := cfg.MPISuffix
		m.Derive = func(sel formula.Selection) formula.Options {
			if sel[AxisMPI] != MPI {
				return formula.Options{}
			}
			s := "--program-suffix=" + suffix
			if sel[AxisPrecision] == Double {
				s += "_d"
			}
			return formula.Options{Configure: s}
		}
	}
	return m, nil
}

// Plan expands the matrix of cfg against its common options.
func Plan(cfg *Config, probe env.Probe, logger *log.Logger) (*build.State, error) {
	m, err := NewMatrix(cfg, probe, logger)
	if err != nil {
		return nil, err
	}
	st := build.Plan(m, cfg.Common())
	for _, v := range st.Variants {
		stdOr(logger).Debugf("configure options of %s: %s", v.Label, v.Options.Configure)
	}
	return st, nil
}

// SkipDoubleCUDA returns the skip predicate for double precision variants
// while CUDA is loaded, whatever the version. It consults probe at call
// time.
func SkipDoubleCUDA(probe env.Probe) func(formula.Variant) (bool, string) {
	return func(v formula.Variant) (bool, string) {
		if v.Value(AxisPrecision) == Double && cudaLoaded(probe) {
			return true, "double precision is not available with CUDA"
		}
		return false, ""
	}
}

func stdOr(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return log.Std
}
