// Package cmake wraps the cmake configure step and the make based
// build/test/install steps that follow it.
package cmake

import (
	"context"
	"os"
	"sort"

	"github.com/goplus/gmxbuild/pkgs/buildsys"
)

// CMake drives CMake-based builds.
type CMake struct {
	buildsys.Exec

	sourceDir  string
	buildDir   string
	installDir string
	buildType  string
	installCmd []string
	defines    map[string]string
}

var _ buildsys.BuildSystem = (*CMake)(nil)

// New returns a ready-to-use CMake. Commands run in buildDir.
func New(sourceDir, buildDir, installDir string) *CMake {
	c := &CMake{
		sourceDir:  sourceDir,
		buildDir:   buildDir,
		installDir: installDir,
		installCmd: []string{"make", "install"},
		defines:    make(map[string]string),
	}
	c.Dir = buildDir
	return c
}

// BuildType sets CMAKE_BUILD_TYPE (e.g. "Release", "Debug").
func (c *CMake) BuildType(name string) { c.buildType = name }

// InstallCmd overrides the install command, "make install" by default.
func (c *CMake) InstallCmd(cmd ...string) { c.installCmd = cmd }

// define adds a -D<key>:STRING=<value> definition.
func (c *CMake) define(key, value string) {
	c.defines[key] = value
}

// Args returns the arguments Configure passes to cmake before args.
func (c *CMake) Args() []string {
	cmakeArgs := []string{"-S", c.sourceDir, "-B", c.buildDir}
	if c.installDir != "" {
		c.define("CMAKE_INSTALL_PREFIX", c.installDir)
	}
	if c.buildType != "" {
		c.define("CMAKE_BUILD_TYPE", c.buildType)
	}
	return append(cmakeArgs, c.definesArgs()...)
}

// Configure runs "cmake -S <source> -B <build>" with all configured options.
// Extra args are appended at the end.
func (c *CMake) Configure(ctx context.Context, args ...string) (string, error) {
	if !c.DryRun {
		if err := os.MkdirAll(c.buildDir, 0o755); err != nil {
			return "", err
		}
	}
	return c.Output(ctx, "cmake", append(c.Args(), args...)...)
}

// Build runs make in the build directory.
func (c *CMake) Build(ctx context.Context, args ...string) error {
	return c.Run(ctx, "make", args...)
}

// Test runs make with the given test target in the build directory.
func (c *CMake) Test(ctx context.Context, args ...string) error {
	return c.Run(ctx, "make", args...)
}

// Install runs the install command with optional extra arguments.
func (c *CMake) Install(ctx context.Context, args ...string) error {
	cmd := append(append([]string{}, c.installCmd[1:]...), args...)
	return c.Run(ctx, c.installCmd[0], cmd...)
}

// OutputDir returns installDir if set, otherwise buildDir.
func (c *CMake) OutputDir() string {
	if c.installDir != "" {
		return c.installDir
	}
	return c.buildDir
}

func (c *CMake) definesArgs() []string {
	if len(c.defines) == 0 {
		return nil
	}
	keys := make([]string, 0, len(c.defines))
	for k := range c.defines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, "-D"+k+":STRING="+c.defines[k])
	}
	return args
}
