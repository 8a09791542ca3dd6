package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var versionsRefresh bool

func newVersionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions <distro>",
		Short: "List detected versions for a distribution",
		Example: `  isod versions ubuntu
  isod versions fedora --refresh`,
		Args: cobra.ExactArgs(1),
		RunE: versionsRun,
	}

	cmd.Flags().BoolVar(&versionsRefresh, "refresh", false, "bypass the detection cache")

	return cmd
}

func versionsRun(cmd *cobra.Command, args []string) error {
	distro := args[0]

	if versionsRefresh {
		globalRegistry.InvalidateCache(distro)
	}

	versions, err := globalRegistry.AvailableVersions(cmd.Context(), distro)
	if err != nil {
		return fmt.Errorf("detecting versions: %w", err)
	}
	if len(versions) == 0 {
		fmt.Printf("No versions detected for %s\n", distro)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tTYPE\tRELEASED\tNOTES")
	for _, v := range versions {
		released := v.ReleaseDate
		if released == "" {
			released = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Version, v.ReleaseType, released, v.Notes)
	}
	return w.Flush()
}
