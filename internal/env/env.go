package env

import (
	"os"
	"path/filepath"
	"strings"
)

// WorkDir returns the default root for build and install trees.
func WorkDir() (string, error) {
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".gmxbuild"), nil
}

// Probe reports where optional dependencies are installed.
type Probe interface {
	// Root returns the install prefix of the named dependency.
	Root(name string) (string, bool)
	Version(name string) string
	LibDir(name string) string
}

// Software is a Probe backed by the $EBROOT<NAME> / $EBVERSION<NAME>
// variables that environment modules export for loaded software.
type Software struct {
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

var _ Probe = Software{}

// Root returns $EBROOT<NAME>.
func (s Software) Root(name string) (string, bool) {
	root := s.getenv(VarName("EBROOT", name))
	return root, root != ""
}

// Version returns $EBVERSION<NAME>, or "" when unknown.
func (s Software) Version(name string) string {
	return s.getenv(VarName("EBVERSION", name))
}

// LibDir returns "lib64" when the dependency ships one and "lib" otherwise.
func (s Software) LibDir(name string) string {
	root, ok := s.Root(name)
	if !ok {
		return "lib"
	}
	if fi, err := os.Stat(filepath.Join(root, "lib64")); err == nil && fi.IsDir() {
		return "lib64"
	}
	return "lib"
}

func (s Software) getenv(key string) string {
	if s.Getenv != nil {
		return s.Getenv(key)
	}
	return os.Getenv(key)
}

// VarName builds the variable name for a software name, e.g.
// VarName("EBROOT", "Python") = "EBROOTPYTHON" and
// VarName("EBROOT", "libxml-2") = "EBROOTLIBXMLMINUS2".
func VarName(prefix, name string) string {
	return prefix + strings.ReplaceAll(strings.ToUpper(name), "-", "MINUS")
}
