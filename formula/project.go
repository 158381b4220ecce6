package formula

import (
	"io/fs"
	"os"
)

// -----------------------------------------------------------------------------

// Project represents the package being built.
type Project struct {
	Name    string
	Version string

	SourceDir  string
	BuildDir   string
	InstallDir string

	// InstallFS overrides the file system rooted at InstallDir. Used by tests.
	InstallFS fs.FS
}

// Installed returns a file system rooted at the install directory.
func (p Project) Installed() fs.FS {
	if p.InstallFS != nil {
		return p.InstallFS
	}
	return os.DirFS(p.InstallDir)
}

// -----------------------------------------------------------------------------
