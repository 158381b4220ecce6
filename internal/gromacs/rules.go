package gromacs

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/goplus/gmxbuild/formula"
	"github.com/goplus/gmxbuild/internal/build"
	"github.com/goplus/gmxbuild/internal/env"
	"github.com/goplus/gmxbuild/internal/hostcpu"
	"github.com/goplus/gmxbuild/internal/version"
	"github.com/qiniu/x/log"
	"mvdan.cc/sh/v3/syntax"
)

// Commander runs helper tools such as plumed-patch.
type Commander interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// envFlags is the command environment of the variant being configured.
type envFlags interface {
	Getenv(key string) string
	Env(key, value string)
	AppendFlag(key, flag string)
}

type ruleContext struct {
	cfg      *Config
	variant  formula.Variant
	probe    env.Probe
	host     hostcpu.Info
	env      envFlags
	tools    Commander
	lookPath func(string) (string, error)
	log      *log.Logger
	dryRun   bool

	opts []string

	// plumedPatch holds the plumed-patch arguments once the PLUMED engine
	// check passed.
	plumedPatch []string
}

func (rc *ruleContext) add(opts ...string) {
	rc.opts = append(rc.opts, opts...)
}

func (rc *ruleContext) onOff(name string, on bool) {
	if on {
		rc.add(name + "=ON")
	} else {
		rc.add(name + "=OFF")
	}
}

func (rc *ruleContext) root(name string) (string, bool) {
	return rc.probe.Root(name)
}

// rule adds configure options for the GROMACS versions in when.
type rule struct {
	name  string
	when  version.Range
	apply func(ctx context.Context, rc *ruleContext) error
}

var (
	anyVersion   = version.Range{}
	configureSh  = version.Range{Before: "4.6"}
	cmakeVersion = version.Range{Since: "4.6"}
)

// Evaluated in order for every variant.
var rules = []rule{
	{"precise-fp", anyVersion, preciseFP},
	{"gpu", cmakeVersion, gpu},
	{"plumed-engine", anyVersion, plumedEngine},

	{"configure-libs", configureSh, configureLibs},
	{"configure-blas", configureSh, configureBLAS},
	{"configure-x11", configureSh, static("--without-x")},
	{"configure-threads", version.Range{Since: "4.5", Before: "4.6"}, configureThreads},
	{"configure-openmp", version.Range{Before: "4.5"}, openMPUnsupported},
	{"configure-gsl", configureSh, configureGSL},

	{"mpiexec", cmakeVersion, mpiexec},
	{"gmxapi", version.Range{Since: "2019"}, static("-DGMXAPI=ON")},
	{"python", version.Range{Since: "2020"}, python},
	{"plumed-patch", cmakeVersion, plumedPatch},
	{"static-libs", cmakeVersion, preferStatic},
	{"external-blas", cmakeVersion, static("-DGMX_EXTERNAL_BLAS=ON -DGMX_EXTERNAL_LAPACK=ON")},
	{"x11", cmakeVersion, static("-DGMX_X11=OFF")},
	{"simd", cmakeVersion, simd},
	{"regressiontest", cmakeVersion, regressionTest},
	{"openmp", cmakeVersion, openMP},
	{"fft-blas", cmakeVersion, fftBLAS},
	{"gsl", version.Range{Since: "4.6", Before: "5.0"}, gsl},
	{"ldflags", cmakeVersion, compressionLDFlags},
}

func applyRules(ctx context.Context, rc *ruleContext) error {
	for _, r := range rules {
		if !r.when.Contains(rc.cfg.Version) {
			continue
		}
		if err := r.apply(ctx, rc); err != nil {
			return fmt.Errorf("%s: %w", r.name, err)
		}
	}
	return nil
}

func static(opts string) func(context.Context, *ruleContext) error {
	return func(_ context.Context, rc *ruleContext) error {
		rc.add(opts)
		return nil
	}
}

// quote returns s as a single shell word.
func quote(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return strconv.Quote(s)
	}
	return q
}

func isIntel(tc *Toolchain) bool {
	if tc == nil {
		return false
	}
	for _, s := range []string{tc.Compiler, tc.Family} {
		s = strings.ToLower(s)
		if strings.Contains(s, "intel") || s == "icc" || s == "iccifort" {
			return true
		}
	}
	return false
}

func isCrayPE(tc *Toolchain) bool {
	return tc != nil && strings.EqualFold(tc.Family, "CrayPE")
}

// The Intel compilers flush denormals to zero, which breaks results on
// CPUs without FMA.
func preciseFP(_ context.Context, rc *ruleContext) error {
	if !isIntel(rc.cfg.Toolchain) || rc.host.Has("fma") {
		return nil
	}
	rc.log.Infof("FMA instruction not supported by this CPU: %v", rc.host.List())
	rc.log.Info("Using -fp-model precise to keep denormal results")
	for _, key := range []string{"CFLAGS", "CXXFLAGS", "FFLAGS"} {
		rc.env.AppendFlag(key, "-fp-model precise")
	}
	return nil
}

func gpu(_ context.Context, rc *ruleContext) error {
	if cuda, ok := rc.root("CUDA"); ok {
		rc.add("-DGMX_GPU=ON -DCUDA_TOOLKIT_ROOT_DIR=" + quote(cuda))
		return nil
	}
	// keep GROMACS away from a system-wide CUDA compiler
	rc.add("-DGMX_GPU=OFF")
	return nil
}

func plumedEngine(ctx context.Context, rc *ruleContext) error {
	if _, ok := rc.root("PLUMED"); !ok {
		return nil
	}
	engine := "gromacs-" + rc.cfg.Version
	out, err := rc.tools.Output(ctx, "plumed-patch", "-l")
	if err != nil {
		return err
	}
	if !rc.dryRun && !strings.Contains(out, engine) {
		return fmt.Errorf("%w: PLUMED %s has no engine for GROMACS %s: %s",
			build.ErrConfigConflict, rc.probe.Version("PLUMED"), rc.cfg.Version, out)
	}
	rc.plumedPatch = []string{"-p", "-e", engine}
	return nil
}

// plumedPatch patches the sources before cmake runs. Older versions are
// patched after the configure script, see Block.Configure.
func plumedPatch(ctx context.Context, rc *ruleContext) error {
	if rc.plumedPatch == nil {
		return nil
	}
	if version.AtLeast(rc.cfg.Version, "5.1") {
		mode := "static"
		if rc.cfg.SharedLibs() {
			mode = "shared"
		}
		rc.plumedPatch = append(rc.plumedPatch, "-m", mode)
	}
	return rc.tools.Run(ctx, "plumed-patch", rc.plumedPatch...)
}

func configureLibs(_ context.Context, rc *ruleContext) error {
	rc.log.Info("Using configure script for configuring GROMACS build.")
	if rc.cfg.SharedLibs() {
		rc.add("--enable-shared --disable-static")
	} else {
		rc.add("--enable-static")
	}
	return nil
}

func configureBLAS(_ context.Context, rc *ruleContext) error {
	rc.add("--with-external-blas --with-external-lapack")
	libs := strings.TrimSpace(rc.env.Getenv("LIBLAPACK") + " " + rc.env.Getenv("LIBS"))
	rc.env.Env("LIBS", libs)
	return nil
}

func configureThreads(_ context.Context, rc *ruleContext) error {
	if rc.cfg.OpenMP {
		rc.add("--enable-threads")
	} else {
		rc.add("--disable-threads")
	}
	return nil
}

func openMPUnsupported(_ context.Context, rc *ruleContext) error {
	if rc.cfg.OpenMP {
		return fmt.Errorf("%w: GROMACS %s does not support OpenMP", build.ErrConfigConflict, rc.cfg.Version)
	}
	return nil
}

func configureGSL(_ context.Context, rc *ruleContext) error {
	if _, ok := rc.root("GSL"); ok {
		rc.add("--with-gsl")
	} else {
		rc.add("--without-gsl")
	}
	return nil
}

func mpiexec(_ context.Context, rc *ruleContext) error {
	if rc.variant.Value(AxisMPI) != MPI {
		return nil
	}
	cfg := rc.cfg
	numprocs := cfg.MPINumProcsOrDefault()
	switch {
	case cfg.MPINumProcs <= 0:
		rc.log.Infof("No number of test MPI tasks specified, using default: %d", cfg.Parallel)
	case cfg.MPINumProcs > cfg.Parallel:
		rc.log.Warnf("Number of test MPI tasks (%d) is greater than value for 'parallel': %d",
			cfg.MPINumProcs, cfg.Parallel)
	}

	path, err := rc.lookPath(cfg.MPIExec)
	if err != nil {
		if cfg.explicitTests() {
			return fmt.Errorf("%w: %q not found in $PATH", build.ErrToolMissing, cfg.MPIExec)
		}
		// GROMACS looks for a launcher itself without -DMPIEXEC
		rc.log.Infof("%s not found in $PATH, leaving the MPI launcher to GROMACS", cfg.MPIExec)
		return nil
	}
	rc.add(
		"-DMPIEXEC="+quote(path),
		"-DMPIEXEC_NUMPROC_FLAG="+quote(cfg.MPIExecNumProcFlag),
		"-DNUMPROC="+strconv.Itoa(numprocs),
	)
	rc.log.Infof("Using %s as MPI executable when testing, with numprocs flag '%s' and %d tasks",
		cfg.MPIExec, cfg.MPIExecNumProcFlag, numprocs)
	return nil
}

func python(_ context.Context, rc *ruleContext) error {
	root, ok := rc.root("Python")
	if !ok {
		return nil
	}
	rc.add("-DPYTHON_EXECUTABLE="+quote(filepath.Join(root, "bin", "python")), "-DGMX_PYTHON_PACKAGE=ON")
	return nil
}

func preferStatic(_ context.Context, rc *ruleContext) error {
	rc.onOff("-DGMX_PREFER_STATIC_LIBS", !rc.cfg.SharedLibs())
	return nil
}

// simd pins the SIMD level so binaries also run on older CPUs than the
// build host. CrayPE sets the target architecture itself.
func simd(_ context.Context, rc *ruleContext) error {
	if isCrayPE(rc.cfg.Toolchain) {
		return nil
	}
	target := SIMD(rc.cfg.OptArch, rc.cfg.Version, rc.host.Arch, rc.log)
	switch {
	case target == "":
	case version.Less(rc.cfg.Version, "5.0"):
		rc.add("-DGMX_CPU_ACCELERATION=" + target)
	default:
		rc.add("-DGMX_SIMD=" + target)
	}
	return nil
}

func regressionTest(_ context.Context, rc *ruleContext) error {
	if rc.cfg.RegressionTestDir != "" {
		rc.add("-DREGRESSIONTEST_PATH=" + quote(rc.cfg.RegressionTestDir))
	}
	return nil
}

func openMP(_ context.Context, rc *ruleContext) error {
	rc.onOff("-DGMX_OPENMP", rc.cfg.OpenMP)
	return nil
}

// staticLibs splits a comma separated $<NAME>_STATIC_LIBS list and drops
// libgfortran.a, reporting whether it was listed.
func staticLibs(list string) (libs []string, gfortran bool) {
	for _, lib := range strings.Split(list, ",") {
		switch lib = strings.TrimSpace(lib); lib {
		case "":
		case "libgfortran.a":
			gfortran = true
		default:
			libs = append(libs, lib)
		}
	}
	return
}

func fftBLAS(_ context.Context, rc *ruleContext) error {
	if _, ok := rc.root("imkl"); ok {
		// MKL provides FFT, and therefore BLAS/LAPACK too
		rc.add(`-DGMX_FFT_LIBRARY=mkl -DMKL_INCLUDE_DIR="$EBROOTMKL/mkl/include"`)
		libs, _ := staticLibs(rc.env.Getenv("LAPACK_STATIC_LIBS"))
		dir := rc.env.Getenv("LAPACK_LIB_DIR")
		mkl := []string{"-Wl,--start-group"}
		for _, lib := range libs {
			mkl = append(mkl, filepath.Join(dir, lib))
		}
		mkl = append(mkl, "-Wl,--end-group")
		rc.add(`-DMKL_LIBRARIES="` + strings.Join(mkl, ";") + `"`)
		return nil
	}

	for _, name := range []string{"BLAS", "LAPACK"} {
		dir := rc.env.Getenv(name + "_LIB_DIR")
		if isCrayPE(rc.cfg.Toolchain) {
			matches, err := filepath.Glob(filepath.Join(dir, "libsci_*_mpi_mp.a"))
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				return fmt.Errorf("%w: no libsci library to link with for %s in %q",
					build.ErrConfigConflict, name, dir)
			}
			rc.add("-DGMX_" + name + "_USER=" + quote(matches[0]))
			continue
		}

		libs, gfortran := staticLibs(rc.env.Getenv(name + "_STATIC_LIBS"))
		if len(libs) == 0 {
			rc.log.Warnf("$%s_STATIC_LIBS is not set, leaving %s detection to GROMACS", name, name)
			continue
		}
		paths := make([]string, len(libs))
		for i, lib := range libs {
			paths[i] = filepath.Join(dir, lib)
		}
		rc.add(`-DGMX_` + name + `_USER="` + strings.Join(paths, ";") + `"`)
		if gfortran {
			rc.env.AppendFlag("LDFLAGS", "-lgfortran -lm")
		}
	}
	return nil
}

func gsl(_ context.Context, rc *ruleContext) error {
	_, ok := rc.root("GSL")
	rc.onOff("-DGMX_GSL", ok)
	return nil
}

// The tests link against libxml2, which needs zlib and XZ.
func compressionLDFlags(_ context.Context, rc *ruleContext) error {
	for _, dep := range []struct{ name, flag string }{
		{"XZ", "-llzma"},
		{"zlib", "-lz"},
	} {
		root, ok := rc.root(dep.name)
		if !ok {
			continue
		}
		libdir := filepath.Join(root, rc.probe.LibDir(dep.name))
		rc.env.AppendFlag("LDFLAGS", "-L"+libdir+" "+dep.flag)
	}
	return nil
}
