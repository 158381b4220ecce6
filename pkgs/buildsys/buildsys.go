package buildsys

import "context"

// BuildSystem captures shared capabilities of build helpers (CMake, Autotools, etc).
// It keeps the common lifecycle and dependency/env setup; implementations add their own extras.
type BuildSystem interface {
	// Use adds the include, lib and pkg-config paths of a dependency
	// installed at root to the environment of every spawned command.
	Use(root string)

	// Environment helper.
	Env(key, val string)

	// Lifecycle. Configure returns the combined output of the configure run.
	Configure(ctx context.Context, args ...string) (string, error)
	Build(ctx context.Context, args ...string) error
	Test(ctx context.Context, args ...string) error
	Install(ctx context.Context, args ...string) error

	// Where artifacts land.
	OutputDir() string
}
