// Package gromacs builds and installs GROMACS as a matrix of precision and
// MPI variants on top of the cmake and configure drivers.
package gromacs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"path"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/goplus/gmxbuild/formula"
	"github.com/goplus/gmxbuild/internal/build"
	"github.com/goplus/gmxbuild/internal/env"
	"github.com/goplus/gmxbuild/internal/hostcpu"
	"github.com/goplus/gmxbuild/internal/version"
	"github.com/goplus/gmxbuild/pkgs/buildsys"
	"github.com/goplus/gmxbuild/pkgs/buildsys/autotools"
	"github.com/goplus/gmxbuild/pkgs/buildsys/cmake"
	"github.com/qiniu/x/log"
)

// driver is what a Block needs from a build system helper.
type driver interface {
	buildsys.BuildSystem
	envFlags
	SplitOptions(opts string) ([]string, error)
	InstallCmd(cmd ...string)
}

var (
	_ driver = (*cmake.CMake)(nil)
	_ driver = (*autotools.AutoTools)(nil)
)

// Block runs the steps of the current variant of a matrix State.
type Block struct {
	Config *Config
	State  *build.State
	Probe  env.Probe
	Host   hostcpu.Info
	Log    *log.Logger

	// DryRun logs commands instead of running them.
	DryRun bool
	Stdout io.Writer
	Stderr io.Writer

	// LookPath finds the MPI launcher, exec.LookPath by default.
	LookPath func(file string) (string, error)

	// Tools runs plumed-patch and extension commands. It defaults to an
	// Exec in the source directory.
	Tools Commander

	// InstallFS overrides the install tree inspected after installation.
	InstallFS fs.FS

	sys       driver
	libSubdir string
}

var _ build.Driver = (*Block)(nil)

// NewBlock returns a Block for the variants of st.
func NewBlock(cfg *Config, st *build.State, probe env.Probe, logger *log.Logger) *Block {
	return &Block{
		Config:   cfg,
		State:    st,
		Probe:    probe,
		Host:     hostcpu.Detect(),
		Log:      logger,
		LookPath: exec.LookPath,
	}
}

// Runner returns a Runner that drives b, skips double precision variants
// while CUDA is loaded and installs the extensions after the last variant.
func (b *Block) Runner() *build.Runner {
	return &build.Runner{
		Driver:   b,
		Skip:     SkipDoubleCUDA(b.Probe),
		Finalize: b.Extensions,
		Log:      b.Log,
	}
}

// Project describes the source, build and install trees.
func (b *Block) Project() formula.Project {
	return formula.Project{
		Name:       b.Config.Name,
		Version:    b.Config.Version,
		SourceDir:  b.Config.SourceDir,
		BuildDir:   b.Config.BuildDir,
		InstallDir: b.Config.InstallDir,
		InstallFS:  b.InstallFS,
	}
}

// LibSubdir returns the install subdirectory holding the GROMACS
// libraries, known after the first install step.
func (b *Block) LibSubdir() string {
	return b.libSubdir
}

func (b *Block) logger() *log.Logger {
	return stdOr(b.Log)
}

func (b *Block) current() (formula.Variant, error) {
	st := b.State
	if st == nil || st.Current < 0 || st.Current >= len(st.Variants) {
		return formula.Variant{}, errors.New("gromacs: no current variant")
	}
	return st.Variants[st.Current], nil
}

// variantBuildDir keeps the trees of the variants apart.
func (b *Block) variantBuildDir(v formula.Variant) string {
	return filepath.Join(b.Config.BuildDir, strings.ReplaceAll(v.Label, " ", "-"))
}

func (b *Block) setup(e *buildsys.Exec) {
	e.Log = b.Log
	e.DryRun = b.DryRun
	e.Stdout = b.Stdout
	e.Stderr = b.Stderr
}

// dependencies are the optional software the configure rules look for.
var dependencies = []string{"CUDA", "GSL", "imkl", "Python", "PLUMED", "XZ", "zlib"}

func (b *Block) newDriver(v formula.Variant) driver {
	cfg := b.Config
	dir := b.variantBuildDir(v)
	var d driver
	if usesCMake(cfg.Version) {
		c := cmake.New(cfg.SourceDir, dir, cfg.InstallDir)
		c.BuildType(cfg.BuildType)
		b.setup(&c.Exec)
		d = c
	} else {
		a := autotools.New(cfg.SourceDir, dir, cfg.InstallDir)
		b.setup(&a.Exec)
		d = a
	}
	d.InstallCmd(InstallCommand(cfg.Version)...)
	for _, name := range dependencies {
		if root, ok := b.Probe.Root(name); ok {
			d.Use(root)
		}
	}
	return d
}

func (b *Block) tools() Commander {
	if b.Tools != nil {
		return b.Tools
	}
	e := &buildsys.Exec{Dir: b.Config.SourceDir}
	b.setup(e)
	e.Env("GROMACS_DIR", b.Config.InstallDir)
	b.Tools = e
	return e
}

func (b *Block) lookPath(file string) (string, error) {
	if b.LookPath != nil {
		return b.LookPath(file)
	}
	return exec.LookPath(file)
}

func (b *Block) jobs() []string {
	return []string{"-j", strconv.Itoa(b.Config.Parallel)}
}

// Configure evaluates the configure rules for the current variant and runs
// cmake, or the configure script before 4.6.
func (b *Block) Configure(ctx context.Context, opts formula.Options) (string, error) {
	v, err := b.current()
	if err != nil {
		return "", err
	}
	cfg := b.Config
	d := b.newDriver(v)
	b.sys = d

	rc := &ruleContext{
		cfg:      cfg,
		variant:  v,
		probe:    b.Probe,
		host:     b.Host,
		env:      d,
		tools:    b.tools(),
		lookPath: b.lookPath,
		log:      b.logger(),
		dryRun:   b.DryRun,
	}
	if err := applyRules(ctx, rc); err != nil {
		return "", err
	}

	args, err := d.SplitOptions(strings.Join(append([]string{opts.Configure}, rc.opts...), " "))
	if err != nil {
		return "", fmt.Errorf("gromacs: configure options: %w", err)
	}
	out, err := d.Configure(ctx, args...)
	if err != nil {
		return out, err
	}

	if !usesCMake(cfg.Version) && rc.plumedPatch != nil {
		if err := rc.tools.Run(ctx, "plumed-patch", rc.plumedPatch...); err != nil {
			return out, err
		}
	}
	if version.AtLeast(cfg.Version, "4.6.5") && !b.DryRun {
		if err := checkConfigureOutput(out); err != nil {
			return out, err
		}
	}
	return out, nil
}

// A decent BLAS, LAPACK and FFT must be found and used.
var configurePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)Using external FFT library - \S*`),
	regexp.MustCompile(`(?m)Looking for dgemm_ - found`),
	regexp.MustCompile(`(?m)Looking for cheev_ - found`),
}

func checkConfigureOutput(out string) error {
	for _, re := range configurePatterns {
		if !re.MatchString(out) {
			return fmt.Errorf("gromacs: pattern %q not found in configure output", re.String())
		}
	}
	return nil
}

func (b *Block) active() (driver, error) {
	if b.sys == nil {
		return nil, errors.New("gromacs: configure has not run")
	}
	return b.sys, nil
}

// Build runs make -j N with the build options.
func (b *Block) Build(ctx context.Context, opts formula.Options) error {
	d, err := b.active()
	if err != nil {
		return err
	}
	args, err := d.SplitOptions(opts.Build)
	if err != nil {
		return fmt.Errorf("gromacs: build options: %w", err)
	}
	return d.Build(ctx, append(b.jobs(), args...)...)
}

// Test runs the test target, "check" unless configured otherwise, with a
// single OpenMP thread.
func (b *Block) Test(ctx context.Context, _ formula.Options) error {
	d, err := b.active()
	if err != nil {
		return err
	}
	target, ok := b.Config.TestTarget()
	if !ok {
		b.logger().Info("skipping test step")
		return nil
	}
	// more than one thread hangs the regression tests
	d.Env("OMP_NUM_THREADS", "1")
	args, err := d.SplitOptions(target)
	if err != nil {
		return fmt.Errorf("gromacs: test target: %w", err)
	}
	return d.Test(ctx, append(args, b.jobs()...)...)
}

// Install runs the install command in parallel and then locates the
// directory the libraries were installed to.
func (b *Block) Install(ctx context.Context, opts formula.Options) error {
	d, err := b.active()
	if err != nil {
		return err
	}
	args, err := d.SplitOptions(opts.Install)
	if err != nil {
		return fmt.Errorf("gromacs: install options: %w", err)
	}
	if err := d.Install(ctx, append(args, b.jobs()...)...); err != nil {
		return err
	}
	if b.DryRun {
		return nil
	}

	pattern := b.libPattern()
	sub, err := findLibSubdir(b.Project().Installed(), pattern)
	if err != nil {
		return fmt.Errorf("gromacs: %w in %s", err, b.Config.InstallDir)
	}
	b.libSubdir = sub
	b.logger().Infof("Found lib subdirectory that contains %s: %s", pattern, sub)
	return nil
}

func sharedLibExt() string {
	switch runtime.GOOS {
	case "darwin":
		return "dylib"
	case "windows":
		return "dll"
	}
	return "so"
}

func (b *Block) libExt() string {
	if b.Config.SharedLibs() {
		return sharedLibExt()
	}
	return "a"
}

func (b *Block) libPattern() string {
	if version.Less(b.Config.Version, "5.0") {
		return "libgmx*." + b.libExt()
	}
	return "libgromacs*." + b.libExt()
}

// findLibSubdir returns the first of lib, lib/*, lib64 and lib64/* holding
// a file that matches pattern.
func findLibSubdir(fsys fs.FS, pattern string) (string, error) {
	for _, libdir := range []string{"lib", "lib64"} {
		if _, err := fs.Stat(fsys, libdir); err != nil {
			continue
		}
		for _, sub := range []string{libdir, path.Join(libdir, "*")} {
			matches, err := fs.Glob(fsys, path.Join(sub, pattern))
			if err != nil {
				return "", err
			}
			if len(matches) > 0 {
				return path.Dir(matches[0]), nil
			}
		}
	}
	return "", fmt.Errorf("failed to determine lib subdirectory for %s", pattern)
}

// Extensions runs the configured extension commands once every variant is
// installed. They get the common install options, without -j.
func (b *Block) Extensions(ctx context.Context, st *build.State) error {
	if len(b.Config.Extensions) == 0 {
		return nil
	}
	tools := b.tools()
	for _, ext := range b.Config.Extensions {
		args, err := buildsys.SplitOptions(ext.Command+" "+st.Common.Install, nil)
		if err != nil {
			return fmt.Errorf("extension %s: %w", ext.Name, err)
		}
		if len(args) == 0 {
			return fmt.Errorf("extension %s: empty command", ext.Name)
		}
		b.logger().Infof("Installing extension %s", ext.Name)
		if err := tools.Run(ctx, args[0], args[1:]...); err != nil {
			return fmt.Errorf("extension %s: %w", ext.Name, err)
		}
	}
	return nil
}

// Sanity returns the paths the install tree must contain after the run.
func (b *Block) Sanity() Paths {
	double := false
	if b.State != nil && !cudaLoaded(b.Probe) {
		for _, v := range b.State.Variants {
			if v.Value(AxisPrecision) == Double {
				double = true
			}
		}
	}
	return SanityPaths(b.Config, b.libSubdir, double)
}

// SanityCheck verifies the install tree after a run.
func (b *Block) SanityCheck() error {
	return SanityCheck(b.Project().Installed(), b.Sanity())
}
