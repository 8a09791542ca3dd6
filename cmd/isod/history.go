package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/airone01/isod/internal/store"
)

var (
	historyDistro string
	historyLimit  int
	historyStats  bool
	historyPrune  string
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past downloads",
		Example: `  isod history
  isod history --distro fedora --limit 5
  isod history --stats
  isod history --prune 720h`,
		Args: cobra.NoArgs,
		RunE: historyRun,
	}

	cmd.Flags().StringVar(&historyDistro, "distro", "", "filter by distribution")
	cmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum rows to show (0 for all)")
	cmd.Flags().BoolVar(&historyStats, "stats", false, "show aggregate statistics")
	cmd.Flags().StringVar(&historyPrune, "prune", "", "delete entries older than this duration (e.g. 720h)")

	return cmd
}

func historyRun(cmd *cobra.Command, args []string) error {
	st, err := store.New(globalCfg.HistoryDBPath(), logger)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer func() {
		_ = st.Close()
	}()

	if historyPrune != "" {
		age, err := time.ParseDuration(historyPrune)
		if err != nil {
			return fmt.Errorf("parsing prune duration: %w", err)
		}
		n, err := st.PruneBefore(time.Now().Add(-age))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries\n", n)
		return nil
	}

	if historyStats {
		stats, err := st.GetStats()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Total downloads: %d\n", stats.TotalDownloads)
		fmt.Fprintf(out, "Completed:       %d\n", stats.CompletedCount)
		fmt.Fprintf(out, "Failed:          %d\n", stats.FailedCount)
		fmt.Fprintf(out, "Bytes fetched:   %s\n", humanize.IBytes(uint64(stats.BytesDownloaded)))
		return nil
	}

	var records []*store.HistoryRecord
	if historyDistro != "" {
		records, err = st.HistoryForDistro(historyDistro, historyLimit)
	} else {
		records, err = st.ListHistory(historyLimit)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No download history")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WHEN\tDISTRO\tVERSION\tARCH\tSIZE\tSTATUS\tVERIFIED")
	for _, rec := range records {
		verified := "no"
		if rec.ChecksumVerified {
			verified = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.FinishedAt.Format("2006-01-02 15:04"),
			rec.Distro, rec.Version, rec.Architecture,
			humanize.IBytes(uint64(rec.Size)), rec.Status, verified)
	}
	return w.Flush()
}
