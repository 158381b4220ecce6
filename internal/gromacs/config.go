package gromacs

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goplus/gmxbuild/formula"
	"github.com/goplus/gmxbuild/internal/env"
	"github.com/goplus/gmxbuild/internal/version"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

const (
	defaultName        = "GROMACS"
	defaultMPISuffix   = "_mpi"
	defaultMPIExec     = "mpirun"
	defaultNumProcFlag = "-np"
	defaultTestTarget  = "check"
	defaultBuildType   = "Release"
)

// Toolchain names the compiler toolchain the build runs under.
type Toolchain struct {
	Family   string `hcl:"family,optional"`   // e.g. "foss", "intel", "CrayPE"
	Compiler string `hcl:"compiler,optional"` // e.g. "GCC", "intel"
}

// Extension is a command run once after every variant is installed, such
// as the pip install of the gmxapi Python package.
type Extension struct {
	Name    string `hcl:"name,label"`
	Command string `hcl:"command"`
}

// Config is a GROMACS build description.
//
//	version    = "2020.4"
//	source_dir = "${env.HOME}/src/gromacs-2020.4"
//	usempi     = true
//	openmp     = true
//
//	toolchain {
//	  family   = "foss"
//	  compiler = "GCC"
//	}
type Config struct {
	Name       string `hcl:"name,optional"`
	Version    string `hcl:"version"`
	SourceDir  string `hcl:"source_dir,optional"`
	BuildDir   string `hcl:"build_dir,optional"`
	InstallDir string `hcl:"install_dir,optional"`

	ConfigOpts  string `hcl:"configopts,optional"`
	BuildOpts   string `hcl:"buildopts,optional"`
	InstallOpts string `hcl:"installopts,optional"`

	// DoublePrecision is unset, true or false. Unset builds double
	// precision too, except for GPU builds.
	DoublePrecision *bool `hcl:"double_precision,optional"`
	UseMPI          bool  `hcl:"usempi,optional"`
	OpenMP          bool  `hcl:"openmp,optional"`
	BuildSharedLibs bool  `hcl:"build_shared_libs,optional"`
	Parallel        int   `hcl:"parallel,optional"`

	RunTest   *string `hcl:"runtest,optional"`
	SkipTests bool    `hcl:"skip_tests,optional"`

	MPISuffix          string `hcl:"mpisuffix,optional"`
	MPIExec            string `hcl:"mpiexec,optional"`
	MPIExecNumProcFlag string `hcl:"mpiexec_numproc_flag,optional"`
	MPINumProcs        int    `hcl:"mpi_numprocs,optional"`

	// BuildType is CMAKE_BUILD_TYPE, "Release" by default.
	BuildType string `hcl:"build_type,optional"`

	OptArch           string `hcl:"optarch,optional"`
	RegressionTestDir string `hcl:"regressiontest_dir,optional"`

	Toolchain  *Toolchain  `hcl:"toolchain,block"`
	Extensions []Extension `hcl:"extension,block"`
}

// LoadConfig reads and decodes the build file at path. Files ending in
// .json use the JSON syntax, all others the native HCL syntax.
func LoadConfig(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return ParseConfig(abs, src, os.Environ())
}

// ParseConfig decodes src as a build description. filename is used in
// diagnostics and relative paths are resolved against its directory. environ
// is exposed to expressions as the env object.
func ParseConfig(filename string, src []byte, environ []string) (*Config, error) {
	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": envObject(environ),
		},
	}
	parser := hclparse.NewParser()
	var (
		file  *hcl.File
		diags hcl.Diagnostics
	)
	// any other name is read as native syntax
	if strings.HasSuffix(filename, ".json") {
		file, diags = parser.ParseJSON(src, filename)
	} else {
		file, diags = parser.ParseHCL(src, filename)
	}
	if diags.HasErrors() {
		return nil, fmt.Errorf("gromacs: %w", diags)
	}
	var cfg Config
	if diags := gohcl.DecodeBody(file.Body, ctx, &cfg); diags.HasErrors() {
		return nil, fmt.Errorf("gromacs: %w", diags)
	}
	if err := cfg.setDefaults(filepath.Dir(filename)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envObject(environ []string) cty.Value {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok && isIdent(k) {
			vars[k] = cty.StringVal(v)
		}
	}
	if len(vars) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(vars)
}

// isIdent reports whether name can be referenced as env.NAME.
func isIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}

func (c *Config) setDefaults(baseDir string) error {
	if strings.TrimSpace(c.Version) == "" {
		return fmt.Errorf("gromacs: version must not be empty")
	}
	if c.Name == "" {
		c.Name = defaultName
	}
	if c.Parallel <= 0 {
		c.Parallel = runtime.NumCPU()
	}
	if c.MPISuffix == "" {
		c.MPISuffix = defaultMPISuffix
	}
	if c.MPIExec == "" {
		c.MPIExec = defaultMPIExec
	}
	if c.MPIExecNumProcFlag == "" {
		c.MPIExecNumProcFlag = defaultNumProcFlag
	}
	if c.Toolchain == nil {
		c.Toolchain = &Toolchain{}
	}
	if c.BuildType == "" {
		c.BuildType = defaultBuildType
	}

	if c.SourceDir == "" {
		c.SourceDir = baseDir
	}
	if c.BuildDir == "" || c.InstallDir == "" {
		work, err := env.WorkDir()
		if err != nil {
			return fmt.Errorf("gromacs: %w", err)
		}
		id := c.Name + "-" + c.Version
		if c.BuildDir == "" {
			c.BuildDir = filepath.Join(work, "build", id)
		}
		if c.InstallDir == "" {
			c.InstallDir = filepath.Join(work, "install", id)
		}
	}
	for _, p := range []*string{&c.SourceDir, &c.BuildDir, &c.InstallDir, &c.RegressionTestDir} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
	return nil
}

// Common returns the option triple shared by every variant.
func (c *Config) Common() formula.Options {
	return formula.Options{
		Configure: c.ConfigOpts,
		Build:     c.BuildOpts,
		Install:   c.InstallOpts,
	}
}

// TestTarget returns the make target of the test step, or false when
// tests are disabled.
func (c *Config) TestTarget() (string, bool) {
	if c.SkipTests {
		return "", false
	}
	if c.RunTest == nil || strings.TrimSpace(*c.RunTest) == "" {
		return defaultTestTarget, true
	}
	return *c.RunTest, true
}

// explicitTests reports whether a test target was configured and tests
// are enabled.
func (c *Config) explicitTests() bool {
	return !c.SkipTests && c.RunTest != nil && strings.TrimSpace(*c.RunTest) != ""
}

// SharedLibs reports whether shared libraries are built. gmxapi, enabled
// from 2019 on, requires them.
func (c *Config) SharedLibs() bool {
	return c.BuildSharedLibs || version.AtLeast(c.Version, "2019")
}

// MPINumProcsOrDefault returns the number of MPI ranks used by tests.
func (c *Config) MPINumProcsOrDefault() int {
	if c.MPINumProcs <= 0 {
		return c.Parallel
	}
	return c.MPINumProcs
}
