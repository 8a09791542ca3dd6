package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/airone01/isod/internal/registry"
)

var (
	infoArch    string
	infoVariant string
)

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <distro> [version]",
		Short: "Show the resolved download descriptor for a distribution",
		Long: `Resolve a distro (and optionally a version) into the concrete image that
would be downloaded: filename, release metadata, and the ranked list of
download sources.`,
		Example: `  isod info ubuntu
  isod info fedora 40 --variant server`,
		Args: cobra.RangeArgs(1, 2),
		RunE: infoRun,
	}

	cmd.Flags().StringVar(&infoArch, "arch", "", "target architecture")
	cmd.Flags().StringVar(&infoVariant, "variant", "", "image variant")

	return cmd
}

func infoRun(cmd *cobra.Command, args []string) error {
	version := ""
	if len(args) == 2 {
		version = args[1]
	}

	info, err := globalRegistry.GetIsoInfo(cmd.Context(), args[0], version, infoArch, infoVariant)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", args[0], err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Distro:        %s\n", info.Distro)
	fmt.Fprintf(out, "Version:       %s (%s)\n", info.Version, info.ReleaseType)
	fmt.Fprintf(out, "Architecture:  %s\n", info.Architecture)
	if info.Variant != "" {
		fmt.Fprintf(out, "Variant:       %s\n", info.Variant)
	}
	if info.ReleaseDate != "" {
		fmt.Fprintf(out, "Released:      %s\n", info.ReleaseDate)
	}
	fmt.Fprintf(out, "Filename:      %s\n", info.Filename)
	fmt.Fprintf(out, "Checksum type: %s\n", info.ChecksumType)

	sources := make([]registry.DownloadSource, len(info.DownloadSources))
	copy(sources, info.DownloadSources)
	registry.SortSources(sources)

	fmt.Fprintf(out, "\nSources (best first):\n")
	for _, s := range sources {
		var attrs []string
		if s.Region != "" {
			attrs = append(attrs, s.Region)
		}
		if s.Verified {
			attrs = append(attrs, "verified")
		}
		if s.SpeedRating > 0 {
			attrs = append(attrs, fmt.Sprintf("speed %d/10", s.SpeedRating))
		}
		suffix := ""
		if len(attrs) > 0 {
			suffix = " (" + strings.Join(attrs, ", ") + ")"
		}
		fmt.Fprintf(out, "  [%s] %s%s\n", s.Type, s.Endpoint(), suffix)
	}
	return nil
}
