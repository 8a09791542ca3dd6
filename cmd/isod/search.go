package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "search <query>",
		Short:   "Search supported distributions",
		Example: `  isod search debian`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			matches := globalRegistry.Search(args[0])
			if len(matches) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No distributions match %q\n", args[0])
				return nil
			}
			for _, name := range matches {
				def, _ := globalRegistry.Get(name)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, def.Description)
			}
			return nil
		},
	}
}
