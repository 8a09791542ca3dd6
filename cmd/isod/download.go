package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/airone01/isod/internal/download"
	"github.com/airone01/isod/internal/registry"
	"github.com/airone01/isod/internal/safety"
	"github.com/airone01/isod/internal/store"
)

var (
	downloadArch          string
	downloadVariant       string
	downloadNoVerify      bool
	downloadNoResume      bool
	downloadTorrents      bool
	downloadMaxConcurrent int
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <distro> [version]",
		Short: "Download a distribution image",
		Long: `Download an installation image for a distribution. Without a version the
latest stable release is selected. Architecture and variant fall back to
the config file's per-distro selections, then to the distro's defaults.

Interrupted downloads resume from where they stopped on the next run.`,
		Example: `  isod download ubuntu
  isod download ubuntu 22.04 --variant server
  isod download fedora --arch aarch64
  isod download debian --no-verify`,
		Args: cobra.RangeArgs(1, 2),
		RunE: downloadRun,
	}

	cmd.Flags().StringVar(&downloadArch, "arch", "", "target architecture")
	cmd.Flags().StringVar(&downloadVariant, "variant", "", "image variant")
	cmd.Flags().BoolVar(&downloadNoVerify, "no-verify", false, "skip checksum verification")
	cmd.Flags().BoolVar(&downloadNoResume, "no-resume", false, "always start from byte zero")
	cmd.Flags().BoolVar(&downloadTorrents, "prefer-torrents", false, "prefer torrent sources")
	cmd.Flags().IntVar(&downloadMaxConcurrent, "max-concurrent", 0, "override concurrent download limit")

	return cmd
}

func downloadRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	distro := args[0]
	version := ""
	if len(args) == 2 {
		version = args[1]
	}

	arch, variant := downloadArch, downloadVariant
	if dc, ok := globalCfg.DistroFor(distro); ok {
		if arch == "" {
			arch = dc.Architecture
		}
		if variant == "" {
			variant = dc.Variant
		}
	}

	info, err := globalRegistry.GetIsoInfo(ctx, distro, version, arch, variant)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", distro, err)
	}

	logger.Info("resolved image",
		"distro", info.Distro, "version", info.Version,
		"arch", info.Architecture, "variant", info.Variant,
		"filename", info.Filename)

	var expectedChecksum string
	if !downloadNoVerify && globalCfg.General.VerifyChecksums {
		expectedChecksum, err = globalRegistry.GetChecksum(ctx, info)
		if err != nil {
			return fmt.Errorf("fetching checksum: %w", err)
		}
		if expectedChecksum == "" {
			logger.Warn("no published checksum found, downloading unverified",
				"distro", distro, "version", info.Version)
		}
	}

	opts := download.Options{
		MaxConcurrent:   globalCfg.General.MaxConcurrentDownloads,
		PreferTorrents:  downloadTorrents || globalCfg.General.PreferTorrents,
		OutputDirectory: globalCfg.General.OutputDirectory,
		VerifyChecksums: !downloadNoVerify && globalCfg.General.VerifyChecksums,
		ResumeDownloads: !downloadNoResume && globalCfg.General.ResumeDownloads,
	}
	if downloadMaxConcurrent > 0 {
		opts.MaxConcurrent = downloadMaxConcurrent
	}

	manager := download.NewManager(safety.NewDownloadClient(), logger, opts)

	startedAt := time.Now()
	id, err := manager.DownloadISO(ctx, info, expectedChecksum)
	if err != nil {
		return fmt.Errorf("starting download: %w", err)
	}

	final, sourceURL := watchProgress(manager.Events(), id)
	manager.Wait()

	recordHistory(info, sourceURL, expectedChecksum, final, startedAt)

	switch final.Kind {
	case download.EventCompleted:
		if !final.ChecksumVerified && expectedChecksum != "" {
			fmt.Fprintf(os.Stderr, "WARNING: checksum mismatch for %s\n", info.Filename)
		}
		fmt.Printf("Downloaded %s (%s)\n", info.Filename, download.FormatBytes(final.BytesDownloaded))
		return nil
	case download.EventCancelled:
		return fmt.Errorf("download cancelled")
	default:
		return fmt.Errorf("download failed: %s", final.Err)
	}
}

// watchProgress renders events for one task until it reaches a terminal
// state, returning the terminal event and the source URL.
func watchProgress(events <-chan download.Event, id string) (download.Event, string) {
	var bar *progressbar.ProgressBar
	var sourceURL string

	for ev := range events {
		if ev.ID != id {
			continue
		}
		switch ev.Kind {
		case download.EventStarted:
			sourceURL = ev.URL
			logger.Debug("download started", "id", ev.ID, "url", ev.URL)
		case download.EventProgress:
			if bar == nil && ev.TotalBytes > 0 {
				bar = progressbar.NewOptions64(ev.TotalBytes,
					progressbar.OptionSetDescription(id),
					progressbar.OptionShowBytes(true),
					progressbar.OptionSetWidth(30),
					progressbar.OptionSetWriter(os.Stderr),
				)
			}
			if bar != nil {
				_ = bar.Set64(ev.BytesDownloaded)
			}
		case download.EventRetry:
			fmt.Fprintf(os.Stderr, "\nretrying (%d/%d) in %s\n", ev.Attempt, ev.MaxAttempts, ev.Delay)
		case download.EventVerifyingChecksum:
			fmt.Fprintln(os.Stderr, "\nverifying checksum...")
		case download.EventChecksumVerified:
			fmt.Fprintln(os.Stderr, "checksum OK")
		case download.EventChecksumFailed:
			fmt.Fprintf(os.Stderr, "checksum MISMATCH (expected %s)\n", ev.ExpectedChecksum)
		case download.EventError:
			fmt.Fprintf(os.Stderr, "\n%s\n", ev.Err)
		case download.EventCompleted, download.EventFailed, download.EventCancelled:
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(os.Stderr)
			}
			return ev, sourceURL
		}
	}
	return download.Event{Kind: download.EventFailed, ID: id, Err: "event stream closed"}, sourceURL
}

// recordHistory best-effort appends the outcome to the history database.
func recordHistory(info *registry.IsoInfo, sourceURL, checksum string, final download.Event, startedAt time.Time) {
	st, err := store.New(globalCfg.HistoryDBPath(), logger)
	if err != nil {
		logger.Warn("history database unavailable", "error", err)
		return
	}
	defer func() {
		_ = st.Close()
	}()

	rec := &store.HistoryRecord{
		Distro:           info.Distro,
		Version:          info.Version,
		Architecture:     info.Architecture,
		Variant:          info.Variant,
		Filename:         info.Filename,
		URL:              sourceURL,
		Size:             final.BytesDownloaded,
		Checksum:         checksum,
		ChecksumVerified: final.ChecksumVerified,
		Attempts:         final.Attempt,
		ErrorMessage:     final.Err,
		StartedAt:        startedAt,
		FinishedAt:       time.Now(),
	}
	if rec.Attempts == 0 {
		rec.Attempts = 1
	}

	switch final.Kind {
	case download.EventCompleted:
		rec.Status = store.StatusCompleted
	case download.EventCancelled:
		rec.Status = store.StatusCancelled
	default:
		rec.Status = store.StatusFailed
	}

	if err := st.RecordDownload(rec); err != nil {
		logger.Warn("failed to record history", "error", err)
	}
}
