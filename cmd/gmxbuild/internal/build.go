package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/goplus/gmxbuild/internal/env"
	"github.com/goplus/gmxbuild/internal/gromacs"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var buildOutput string
var buildDryRun bool

var buildCmd = &cobra.Command{
	Use:   "build [file]",
	Short: "Build every variant of a build file",
	Long:  `Build configures, builds, tests and installs every variant of a build file into its install directory.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Output path (directory or .zip file)")
	buildCmd.Flags().BoolVarP(&buildDryRun, "dry-run", "n", false, "Print the commands instead of running them")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := gromacs.LoadConfig(args[0])
	if err != nil {
		return err
	}

	// Resolve output path to absolute before build
	if buildOutput != "" {
		abs, err := filepath.Abs(buildOutput)
		if err != nil {
			return fmt.Errorf("failed to resolve output path: %w", err)
		}
		buildOutput = abs
	}

	probe := env.Software{}
	st, err := gromacs.Plan(cfg, probe, log.Std)
	if err != nil {
		return fmt.Errorf("failed to plan %s: %w", args[0], err)
	}

	block := gromacs.NewBlock(cfg, st, probe, log.Std)
	block.DryRun = buildDryRun
	if verbose {
		block.Stdout, block.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
	} else {
		block.Stdout, block.Stderr = io.Discard, io.Discard
	}

	res, err := block.Runner().Run(context.Background(), st)
	if err != nil {
		return fmt.Errorf("failed to build %s %s: %w", cfg.Name, cfg.Version, err)
	}
	log.Infof("built %d variants, skipped %d", len(res.Built), len(res.Skipped))
	if buildDryRun {
		return nil
	}

	if err := block.SanityCheck(); err != nil {
		return err
	}
	printModuleEnv(cmd.OutOrStdout(), cfg.InstallDir, block.LibSubdir())

	if buildOutput != "" {
		if err := outputResult(cfg.InstallDir, buildOutput); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

// printModuleEnv prints the environment a user of the install needs, one
// variable per line.
func printModuleEnv(w io.Writer, installDir, libSubdir string) {
	vars := gromacs.ModuleEnv(libSubdir)
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		paths := make([]string, len(vars[k]))
		for i, p := range vars[k] {
			paths[i] = filepath.Join(installDir, p)
		}
		fmt.Fprintf(w, "%s=%s\n", k, strings.Join(paths, string(os.PathListSeparator)))
	}
}
