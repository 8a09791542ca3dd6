package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var probeTop int

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <distro> [version]",
		Short: "Measure latency and throughput of a distribution's sources",
		Long: `Probe every HTTP download source for the resolved image: a HEAD request
measures latency, then the fastest responders are sampled for throughput.
Results map onto the 1-10 speed rating used in source selection.`,
		Example: `  isod probe ubuntu
  isod probe fedora 40 --top 5`,
		Args: cobra.RangeArgs(1, 2),
		RunE: probeRun,
	}

	cmd.Flags().IntVar(&probeTop, "top", 3, "how many sources to sample for throughput")

	return cmd
}

func probeRun(cmd *cobra.Command, args []string) error {
	version := ""
	if len(args) == 2 {
		version = args[1]
	}

	info, err := globalRegistry.GetIsoInfo(cmd.Context(), args[0], version, "", "")
	if err != nil {
		return fmt.Errorf("resolving %s: %w", args[0], err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Probing sources for %s...\n", info.Filename)

	results := globalRegistry.ProbeSources(cmd.Context(), info.DownloadSources, probeTop)
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No HTTP sources to probe")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "URL\tLATENCY\tTHROUGHPUT\tRATING")
	for _, res := range results {
		if res.Error != "" {
			fmt.Fprintf(w, "%s\t-\t-\tunreachable\n", res.URL)
			continue
		}
		throughput := "-"
		rating := "-"
		if res.ThroughputKBps > 0 {
			throughput = fmt.Sprintf("%.0f KB/s", res.ThroughputKBps)
			rating = fmt.Sprintf("%d/10", res.SpeedRating())
		}
		fmt.Fprintf(w, "%s\t%dms\t%s\t%s\n", res.URL, res.LatencyMs, throughput, rating)
	}
	return w.Flush()
}
