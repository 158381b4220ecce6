// Package autotools wraps the classic configure/make/make-install workflow.
package autotools

import (
	"context"
	"os"
	"path/filepath"

	"github.com/goplus/gmxbuild/pkgs/buildsys"
)

// AutoTools drives Autotools-style builds.
type AutoTools struct {
	buildsys.Exec

	sourceDir  string
	buildDir   string
	installDir string
	installCmd []string
}

var _ buildsys.BuildSystem = (*AutoTools)(nil)

// New returns a ready-to-use AutoTools. Commands run in buildDir.
func New(sourceDir, buildDir, installDir string) *AutoTools {
	a := &AutoTools{
		sourceDir:  sourceDir,
		buildDir:   buildDir,
		installDir: installDir,
		installCmd: []string{"make", "install"},
	}
	a.Dir = buildDir
	return a
}

// InstallCmd overrides the install command, "make install" by default.
func (a *AutoTools) InstallCmd(cmd ...string) { a.installCmd = cmd }

// Configure runs <source>/configure --prefix=<install> in the build directory.
func (a *AutoTools) Configure(ctx context.Context, args ...string) (string, error) {
	if !a.DryRun {
		if err := os.MkdirAll(a.buildDir, 0o755); err != nil {
			return "", err
		}
	}
	exe := filepath.Join(a.sourceDir, "configure")
	var configArgs []string
	if a.installDir != "" {
		configArgs = append(configArgs, "--prefix="+a.installDir)
	}
	configArgs = append(configArgs, args...)
	return a.Output(ctx, exe, configArgs...)
}

// Build runs make in the build directory.
func (a *AutoTools) Build(ctx context.Context, args ...string) error {
	return a.Run(ctx, "make", args...)
}

// Test runs make with the given test target in the build directory.
func (a *AutoTools) Test(ctx context.Context, args ...string) error {
	return a.Run(ctx, "make", args...)
}

// Install runs the install command with optional extra arguments.
func (a *AutoTools) Install(ctx context.Context, args ...string) error {
	cmd := append(append([]string{}, a.installCmd[1:]...), args...)
	return a.Run(ctx, a.installCmd[0], cmd...)
}

// OutputDir returns installDir if set, otherwise buildDir.
func (a *AutoTools) OutputDir() string {
	if a.installDir != "" {
		return a.installDir
	}
	return a.buildDir
}
