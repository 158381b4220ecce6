package autotools

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/qiniu/x/log"
)

func TestOutputDir(t *testing.T) {
	if got := New("", "build", "").OutputDir(); got != "build" {
		t.Errorf("OutputDir = %q, want %q", got, "build")
	}
	if got := New("", "build", "inst").OutputDir(); got != "inst" {
		t.Errorf("OutputDir = %q, want %q", got, "inst")
	}
}

func TestDryRunCommands(t *testing.T) {
	var buf bytes.Buffer
	a := New("/src", "/build", "/inst")
	a.Log = log.New(&buf, "", 0)
	a.DryRun = true
	ctx := context.Background()

	if _, err := a.Configure(ctx, "--enable-mpi", "--program-suffix=_mpi"); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := a.Build(ctx, "mdrun"); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := a.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}

	logged := buf.String()
	for _, want := range []string{
		"run: " + filepath.Join("/src", "configure") + " --prefix=/inst --enable-mpi --program-suffix=_mpi",
		"run: make mdrun",
		"run: make install",
	} {
		if !strings.Contains(logged, want) {
			t.Errorf("log missing %q, got:\n%s", want, logged)
		}
	}
}

func TestConfigureBuildInstallE2E(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	for _, tool := range []string{"sh", "make"} {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not found in PATH", tool)
		}
	}

	tmp := t.TempDir()
	srcDir := filepath.Join(tmp, "src")
	buildDir := filepath.Join(tmp, "build")
	installDir := filepath.Join(tmp, "install")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		t.Fatal(err)
	}

	// A configure script that writes a Makefile installing a marker file.
	script := `#!/bin/sh
prefix=
for arg in "$@"; do
  case "$arg" in
    --prefix=*) prefix="${arg#--prefix=}" ;;
  esac
done
echo "configured with $*"
printf 'all:\n\techo built > built.txt\ninstall:\n\tmkdir -p %s/bin\n\tcp built.txt %s/bin/marker\n' "$prefix" "$prefix" > Makefile
`
	if err := os.WriteFile(filepath.Join(srcDir, "configure"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	a := New(srcDir, buildDir, installDir)
	a.Log = log.New(&bytes.Buffer{}, "", 0)
	ctx := context.Background()

	out, err := a.Configure(ctx, "--without-x")
	if err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if !strings.Contains(out, "--without-x") {
		t.Errorf("Configure output = %q, want the passed flag echoed", out)
	}
	if err := a.Build(ctx); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := a.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if _, err := os.Stat(filepath.Join(installDir, "bin", "marker")); err != nil {
		t.Errorf("missing installed marker: %v", err)
	}
}
