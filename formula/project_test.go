package formula

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
)

func TestProject_Installed(t *testing.T) {
	t.Run("install dir", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.MkdirAll(filepath.Join(dir, "bin"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "bin", "gmx"), nil, 0o755); err != nil {
			t.Fatal(err)
		}
		proj := &Project{InstallDir: dir}
		if _, err := fs.Stat(proj.Installed(), "bin/gmx"); err != nil {
			t.Fatalf("Stat(bin/gmx) error = %v", err)
		}
	})

	t.Run("override", func(t *testing.T) {
		proj := &Project{
			InstallDir: "/nonexistent",
			InstallFS:  fstest.MapFS{"lib/libgromacs.so": {}},
		}
		if _, err := fs.Stat(proj.Installed(), "lib/libgromacs.so"); err != nil {
			t.Fatalf("Stat(lib/libgromacs.so) error = %v", err)
		}
	})
}
