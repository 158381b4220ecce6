package gromacs

import (
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/goplus/gmxbuild/internal/version"
)

// Paths lists files and directories relative to the install root.
type Paths struct {
	Files []string
	Dirs  []string
}

// SanityPaths returns the binaries, libraries and directories a complete
// install of cfg contains. libSubdir is the directory holding the
// libraries; double adds the _d suffixed files of double precision
// variants.
func SanityPaths(cfg *Config, libSubdir string, double bool) Paths {
	v := cfg.Version
	shared := cfg.SharedLibs()

	// bins and libs without, and possibly with an MPI suffix
	var bins, libs, mpiBins, mpiLibs []string
	if version.Less(v, "5.1") {
		mpiBins = append(mpiBins, "mdrun")
	}
	if version.AtLeast(v, "5.0") {
		// 5.0 links the other tools to gmx, 5.1 only has gmx
		mpiBins = append(mpiBins, "gmx")
		mpiLibs = append(mpiLibs, "gromacs")
	} else {
		bins = append(bins, "editconf", "g_lie", "genbox", "genconf")
		libs = append(libs, "gmxana")
		byMPI := version.Less(v, "4.6") || shared
		if byMPI {
			mpiLibs = append(mpiLibs, "gmx", "md")
		} else {
			libs = append(libs, "gmx", "md")
		}
		if version.AtLeast(v, "4.5") {
			if byMPI {
				mpiLibs = append(mpiLibs, "gmxpreprocess")
			} else {
				libs = append(libs, "gmxpreprocess")
			}
		}
	}

	if cfg.UseMPI {
		suffix := "_mpi"
		if version.Less(v, "4.6") {
			suffix = cfg.MPISuffix
		}
		for _, b := range mpiBins {
			mpiBins = append(mpiBins, b+suffix)
		}
		for _, l := range mpiLibs {
			mpiLibs = append(mpiLibs, l+suffix)
		}
	}

	suffixes := []string{""}
	if double {
		suffixes = append(suffixes, "_d")
	}
	ext := "a"
	if shared {
		ext = sharedLibExt()
	}

	var p Paths
	for _, b := range append(bins, mpiBins...) {
		for _, s := range suffixes {
			p.Files = append(p.Files, path.Join("bin", b+s))
		}
	}
	for _, l := range append(libs, mpiLibs...) {
		for _, s := range suffixes {
			p.Files = append(p.Files, path.Join(libSubdir, "lib"+l+s+"."+ext))
		}
	}
	p.Dirs = []string{path.Join("include", "gromacs")}
	// no pkgconfig dir before 4.6
	if version.AtLeast(v, "4.6") {
		p.Dirs = append(p.Dirs, path.Join(libSubdir, "pkgconfig"))
	}
	return p
}

// SanityCheck reports every path of p that is missing from fsys.
func SanityCheck(fsys fs.FS, p Paths) error {
	var errs []error
	for _, f := range p.Files {
		fi, err := fs.Stat(fsys, f)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("missing file %s", f))
		case fi.IsDir():
			errs = append(errs, fmt.Errorf("%s is a directory, want a file", f))
		}
	}
	for _, d := range p.Dirs {
		fi, err := fs.Stat(fsys, d)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("missing directory %s", d))
		case !fi.IsDir():
			errs = append(errs, fmt.Errorf("%s is not a directory", d))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("gromacs: sanity check failed: %w", errors.Join(errs...))
	}
	return nil
}

// ModuleEnv returns the install-relative paths each environment variable
// of a module file for the install gets.
func ModuleEnv(libSubdir string) map[string][]string {
	return map[string][]string{
		"PATH":            {"bin"},
		"CPATH":           {"include"},
		"MANPATH":         {path.Join("share", "man")},
		"LD_LIBRARY_PATH": {libSubdir},
		"LIBRARY_PATH":    {libSubdir},
		"PKG_CONFIG_PATH": {path.Join(libSubdir, "pkgconfig")},
	}
}
