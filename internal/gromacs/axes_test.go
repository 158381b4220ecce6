package gromacs

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/goplus/gmxbuild/formula"
	"github.com/goplus/gmxbuild/internal/build"
	"github.com/goplus/gmxbuild/internal/env"
	"github.com/qiniu/x/log"
)

func quietLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

// probeOf returns a probe that sees the given software roots.
func probeOf(roots map[string]string) env.Probe {
	vars := make(map[string]string, len(roots))
	for name, root := range roots {
		vars[env.VarName("EBROOT", name)] = root
	}
	return env.Software{Getenv: func(k string) string { return vars[k] }}
}

func boolPtr(b bool) *bool { return &b }

func labels(vs []formula.Variant) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.Label
	}
	return out
}

func TestPlanCMake(t *testing.T) {
	cfg := &Config{Version: "2020.4", UseMPI: true, ConfigOpts: "-DFOO=1", InstallOpts: "DESTDIR=/x"}
	st, err := Plan(cfg, probeOf(nil), quietLogger())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	want := []string{
		"single precision nompi",
		"single precision mpi",
		"double precision nompi",
		"double precision mpi",
	}
	if diff := cmp.Diff(want, labels(st.Variants)); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}
	if st.Common != cfg.Common() {
		t.Errorf("Common = %+v", st.Common)
	}

	first := st.Variants[0].Options
	if first.Configure != "-DGMX_DOUBLE=OFF -DGMX_MPI=OFF -DGMX_THREAD_MPI=ON -DFOO=1" {
		t.Errorf("Configure = %q", first.Configure)
	}
	if first.Build != "  " || first.Install != "  DESTDIR=/x" {
		t.Errorf("Build, Install = %q, %q", first.Build, first.Install)
	}
	last := st.Variants[3].Options
	if last.Configure != "-DGMX_DOUBLE=ON -DGMX_MPI=ON -DGMX_THREAD_MPI=OFF -DFOO=1" {
		t.Errorf("Configure = %q", last.Configure)
	}
}

func TestPlanBefore5(t *testing.T) {
	cfg := &Config{Version: "4.6.7", UseMPI: true}
	st, err := Plan(cfg, probeOf(nil), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	nompi, mpi := st.Variants[0].Options, st.Variants[1].Options
	if nompi.Build != "  " || nompi.Install != " install " {
		t.Errorf("nompi Build, Install = %q, %q", nompi.Build, nompi.Install)
	}
	if mpi.Build != " mdrun " || mpi.Install != " install-mdrun " {
		t.Errorf("mpi Build, Install = %q, %q", mpi.Build, mpi.Install)
	}
}

func TestPlanConfigureScript(t *testing.T) {
	cfg := &Config{Version: "4.5.5", UseMPI: true, MPISuffix: "_mpi"}
	st, err := Plan(cfg, probeOf(nil), quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	got := make([]string, len(st.Variants))
	for i, v := range st.Variants {
		got[i] = v.Options.Configure
	}
	want := []string{
		"--disable-double --disable-mpi  ",
		"--disable-double --enable-mpi --program-suffix=_mpi ",
		"--enable-double --disable-mpi  ",
		"--enable-double --enable-mpi --program-suffix=_mpi_d ",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("configure options mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanPrecision(t *testing.T) {
	cuda := map[string]string{"CUDA": "/opt/cuda"}
	tests := []struct {
		name    string
		version string
		double  *bool
		roots   map[string]string
		want    []string
		wantErr error
	}{
		{"default", "2020", nil, nil, []string{"single precision nompi", "double precision nompi"}, nil},
		{"disabled", "2020", boolPtr(false), nil, []string{"single precision nompi"}, nil},
		{"gpu drops double", "2020", nil, cuda, []string{"single precision nompi"}, nil},
		{"gpu without double", "2020", boolPtr(false), cuda, []string{"single precision nompi"}, nil},
		{"gpu with double", "2020", boolPtr(true), cuda, nil, build.ErrConfigConflict},
		{"cuda ignored before 4.6", "4.5.5", boolPtr(true), cuda, []string{"single precision nompi", "double precision nompi"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Version: tt.version, DoublePrecision: tt.double}
			st, err := Plan(cfg, probeOf(tt.roots), quietLogger())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Plan() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if diff := cmp.Diff(tt.want, labels(st.Variants)); diff != "" {
				t.Errorf("labels mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestInstallCommand(t *testing.T) {
	if got := InstallCommand("4.6.7"); !cmp.Equal(got, []string{"make"}) {
		t.Errorf("InstallCommand(4.6.7) = %v", got)
	}
	if got := InstallCommand("5.0"); !cmp.Equal(got, []string{"make", "install"}) {
		t.Errorf("InstallCommand(5.0) = %v", got)
	}
}

func TestSkipDoubleCUDA(t *testing.T) {
	vars := map[string]string{}
	probe := env.Software{Getenv: func(k string) string { return vars[k] }}
	skip := SkipDoubleCUDA(probe)
	double := formula.Variant{Selection: formula.Selection{AxisPrecision: Double, AxisMPI: NoMPI}}
	single := formula.Variant{Selection: formula.Selection{AxisPrecision: Single, AxisMPI: NoMPI}}

	if ok, _ := skip(double); ok {
		t.Error("double skipped without CUDA")
	}
	// the probe is consulted on every call
	vars["EBROOTCUDA"] = "/opt/cuda"
	if ok, reason := skip(double); !ok || reason == "" {
		t.Errorf("skip(double) = %v, %q", ok, reason)
	}
	if ok, _ := skip(single); ok {
		t.Error("single precision skipped")
	}
}

func TestSkipDoubleCUDABefore46(t *testing.T) {
	cuda := probeOf(map[string]string{"CUDA": "/opt/cuda"})
	cfg := &Config{Version: "4.5.5", BuildDir: t.TempDir(), Parallel: 1, SkipTests: true}
	st, err := Plan(cfg, cuda, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	// planned, as the configure script knows no GPU build
	if diff := cmp.Diff([]string{"single precision nompi", "double precision nompi"}, labels(st.Variants)); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}

	b := NewBlock(cfg, st, cuda, quietLogger())
	b.DryRun = true
	b.Tools = &recorder{}
	res, err := b.Runner().Run(context.Background(), st)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"double precision nompi"}, res.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}
	for _, f := range b.Sanity().Files {
		if strings.Contains(f, "_d") {
			t.Errorf("sanity check expects %s although double was skipped", f)
		}
	}
}
