package buildsys

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/qiniu/x/log"
	"mvdan.cc/sh/v3/shell"
)

// Exec runs external commands for a build helper. Variables set through Env
// or Use only affect spawned commands, never the current process.
type Exec struct {
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
	Log    *log.Logger

	// DryRun logs commands instead of running them.
	DryRun bool

	env map[string]string
}

// Env sets key=value for every command spawned later.
func (e *Exec) Env(key, value string) {
	if e.env == nil {
		e.env = make(map[string]string)
	}
	e.env[key] = value
}

// Getenv returns the value key has for spawned commands.
func (e *Exec) Getenv(key string) string {
	if v, ok := e.env[key]; ok {
		return v
	}
	return os.Getenv(key)
}

// Use configures the command environment so that CMake and compilers find
// headers, libraries and pkg-config files of a dependency installed at root.
func (e *Exec) Use(root string) {
	includeDir := filepath.Join(root, "include")
	libDir := filepath.Join(root, "lib")
	pkgconfigDir := filepath.Join(libDir, "pkgconfig")

	if _, err := os.Stat(pkgconfigDir); err == nil {
		e.prependPath("PKG_CONFIG_PATH", pkgconfigDir)
	}
	e.prependPath("CMAKE_PREFIX_PATH", root)
	if _, err := os.Stat(includeDir); err == nil {
		e.prependPath("CMAKE_INCLUDE_PATH", includeDir)
	}
	if _, err := os.Stat(libDir); err == nil {
		e.prependPath("CMAKE_LIBRARY_PATH", libDir)
	}

	if runtime.GOOS == "windows" {
		if _, err := os.Stat(includeDir); err == nil {
			e.prependPath("INCLUDE", includeDir)
		}
		if _, err := os.Stat(libDir); err == nil {
			e.prependPath("LIB", libDir)
		}
	} else {
		if _, err := os.Stat(includeDir); err == nil {
			e.AppendFlag("CPPFLAGS", "-I"+includeDir)
		}
		if _, err := os.Stat(libDir); err == nil {
			e.AppendFlag("LDFLAGS", "-L"+libDir)
		}
	}
}

// AppendFlag appends a space-separated flag to an env var.
func (e *Exec) AppendFlag(key, flag string) {
	if cur := e.Getenv(key); cur != "" {
		flag = strings.TrimSpace(cur + " " + flag)
	}
	e.Env(key, flag)
}

// prependPath prepends value to a PATH-style env var.
func (e *Exec) prependPath(key, value string) {
	sep := ":"
	if runtime.GOOS == "windows" {
		sep = ";"
	}
	if cur := e.Getenv(key); cur != "" {
		value += sep + cur
	}
	e.Env(key, value)
}

// Run runs name with args in e.Dir.
func (e *Exec) Run(ctx context.Context, name string, args ...string) error {
	_, err := e.run(ctx, false, name, args)
	return err
}

// Output runs name with args like Run and also returns everything the
// command wrote to stdout and stderr.
func (e *Exec) Output(ctx context.Context, name string, args ...string) (string, error) {
	return e.run(ctx, true, name, args)
}

func (e *Exec) run(ctx context.Context, capture bool, name string, args []string) (string, error) {
	e.logger().Info("run:", name, strings.Join(args, " "))
	if e.DryRun {
		return "", nil
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = e.Dir
	cmd.Stdout = writerOr(e.Stdout, os.Stdout)
	cmd.Stderr = writerOr(e.Stderr, os.Stderr)
	if len(e.env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), e.env)
	}
	var buf bytes.Buffer
	if capture {
		cmd.Stdout = io.MultiWriter(cmd.Stdout, &buf)
		cmd.Stderr = io.MultiWriter(cmd.Stderr, &buf)
	}
	err := cmd.Run()
	return buf.String(), err
}

func (e *Exec) logger() *log.Logger {
	if e.Log != nil {
		return e.Log
	}
	return log.Std
}

// SplitOptions splits an option string into arguments using shell quoting
// rules. $VAR references are expanded from the command environment.
func (e *Exec) SplitOptions(opts string) ([]string, error) {
	return SplitOptions(opts, e.Getenv)
}

// SplitOptions splits an option string into arguments using shell quoting
// rules, expanding $VAR references through env.
func SplitOptions(opts string, env func(string) string) ([]string, error) {
	if strings.TrimSpace(opts) == "" {
		return nil, nil
	}
	return shell.Fields(opts, env)
}

func writerOr(w, def io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return def
}

func mergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}
