package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Kasava-AI/demokit-sub003/config"
	"github.com/Kasava-AI/demokit-sub003/query"
	"github.com/Kasava-AI/demokit-sub003/route"
	"github.com/Kasava-AI/demokit-sub003/swr"
	"github.com/Kasava-AI/demokit-sub003/trpc"
)

// allTargets accepts every fixture kind.
func allTargets() config.Targets {
	return config.Targets{
		Routes:     route.NewFixtures(),
		Queries:    query.NewFixtures(),
		SWR:        swr.NewFixtures(),
		Procedures: trpc.NewFixtures(),
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate GLOB...",
		Short: "Check that fixture files load and register",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			var failed []error
			for _, glob := range args {
				files, err := config.LoadGlob(glob)
				if err == nil {
					err = config.Apply(files, allTargets())
				}
				if err != nil {
					fmt.Fprintf(out, "FAIL %s: %v\n", glob, err)
					failed = append(failed, err)
					continue
				}
				for _, f := range files {
					fmt.Fprintf(out, "ok   %s (%d fixtures)\n", f.Path, len(f.Fixtures))
				}
			}
			return errors.Join(failed...)
		},
	}
}
