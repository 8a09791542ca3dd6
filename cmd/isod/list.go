package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List supported distributions",
		Args:  cobra.NoArgs,
		RunE:  listRun,
	}
}

func listRun(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDISPLAY NAME\tDESCRIPTION")
	for _, name := range globalRegistry.Names() {
		def, ok := globalRegistry.Get(name)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, def.DisplayName, def.Description)
	}
	return w.Flush()
}
