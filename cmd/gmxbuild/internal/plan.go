package internal

import (
	"fmt"
	"io"

	"github.com/goplus/gmxbuild/internal/build"
	"github.com/goplus/gmxbuild/internal/env"
	"github.com/goplus/gmxbuild/internal/gromacs"
	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan [file]",
	Short: "Print the variants of a build file",
	Long:  `Plan loads a build file and prints the options every variant is built with.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPlan,
}

func init() {
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := gromacs.LoadConfig(args[0])
	if err != nil {
		return err
	}
	st, err := gromacs.Plan(cfg, env.Software{}, log.Std)
	if err != nil {
		return fmt.Errorf("failed to plan %s: %w", args[0], err)
	}
	printPlan(cmd.OutOrStdout(), cfg, st)
	return nil
}

func printPlan(w io.Writer, cfg *gromacs.Config, st *build.State) {
	fmt.Fprintf(w, "%s %s: %d variants\n", cfg.Name, cfg.Version, st.Total)
	for i, v := range st.Variants {
		fmt.Fprintf(w, "%d. %s\n", i+1, v.Label)
		fmt.Fprintf(w, "   configure: %s\n", v.Options.Configure)
		fmt.Fprintf(w, "   build:     %s\n", v.Options.Build)
		fmt.Fprintf(w, "   install:   %s\n", v.Options.Install)
	}
}
