package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "drivectl",
		Short:         "Drive operator CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipSetup(cmd) {
				return nil
			}
			return ctx.ensure()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newUsersCommand(ctx))
	rootCmd.AddCommand(newMailCommand(ctx))

	return rootCmd
}

// shouldSkipSetup lets help-only parent commands run without a database.
// The nearest command carrying the annotation decides.
func shouldSkipSetup(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if v, ok := c.Annotations["skipSetup"]; ok {
			return v == "true"
		}
	}
	return false
}
