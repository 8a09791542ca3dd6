package distros

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/airone01/isod/internal/registry"
)

// Arch builds the definition for Arch Linux monthly installation images.
// Arch is a rolling release, so versions are ISO snapshot dates.
func Arch(client *http.Client, logger *slog.Logger) (*registry.DistroDefinition, error) {
	scraper, err := registry.NewWebScrapeDetector(client,
		"https://archlinux.org/download/",
		".download-info",
		`(\d{4}\.\d{2}\.\d{2})`)
	if err != nil {
		return nil, fmt.Errorf("arch scrape detector: %w", err)
	}
	feed, err := registry.NewFeedDetector(client,
		"https://archlinux.org/feeds/news/",
		`(\d{4}\.\d{2}\.\d{2})`,
		registry.ReleaseStable)
	if err != nil {
		return nil, fmt.Errorf("arch feed detector: %w", err)
	}

	detector := registry.NewCompositeDetector(logger).
		Add(scraper).
		Add(feed).
		Add(registry.NewAPIDetector(client,
			"https://gitlab.archlinux.org/api/v4/projects/archlinux%2Farch-release-dates/repository/tags",
			"$.name")).
		Add(registry.NewStaticDetector([]registry.VersionInfo{
			{
				Version:         "2024.06.01",
				ReleaseType:     registry.ReleaseStable,
				ReleaseDate:     "2024-06-01",
				DownloadURLBase: "https://archive.archlinux.org/iso/2024.06.01/",
				Notes:           "Monthly rolling release",
			},
			{
				Version:         "2024.05.01",
				ReleaseType:     registry.ReleaseStable,
				ReleaseDate:     "2024-05-01",
				DownloadURLBase: "https://archive.archlinux.org/iso/2024.05.01/",
			},
			{
				Version:         "2024.04.01",
				ReleaseType:     registry.ReleaseStable,
				ReleaseDate:     "2024-04-01",
				DownloadURLBase: "https://archive.archlinux.org/iso/2024.04.01/",
			},
		}))

	return &registry.DistroDefinition{
		Name:        "arch",
		DisplayName: "Arch Linux",
		Description: "A lightweight and flexible Linux distribution that follows the rolling release model",
		Homepage:    "https://archlinux.org",
		// The main distribution only targets x86_64; ARM builds are a
		// separate project.
		SupportedArchitectures: []string{"x86_64"},
		SupportedVariants:      []string{"base"},
		DefaultVariant:         "base",
		Detector:               detector,
		DownloadSources: []registry.DownloadSource{
			registry.Direct("https://archlinux.org/iso/latest/{filename}", registry.PriorityPreferred).
				WithDescription("Official Arch Linux downloads").AsVerified(),
			registry.Direct("https://archive.archlinux.org/iso/{version}/{filename}", registry.PriorityPreferred).
				WithDescription("Arch Linux archive").AsVerified(),
			registry.Mirror("https://mirrors.kernel.org/archlinux/iso/latest/{filename}", registry.PriorityHigh, "US").
				WithDescription("Kernel.org mirror").WithSpeedRating(9),
			registry.Mirror("https://mirror.rackspace.com/archlinux/iso/latest/{filename}", registry.PriorityHigh, "US").
				WithDescription("Rackspace mirror").WithSpeedRating(8),
			registry.Mirror("https://america.mirror.pkgbuild.com/iso/latest/{filename}", registry.PriorityHigh, "US").
				WithDescription("Official US mirror"),
			registry.Mirror("https://europe.mirror.pkgbuild.com/iso/latest/{filename}", registry.PriorityHigh, "EU").
				WithDescription("Official EU mirror"),
			registry.Mirror("https://asia.mirror.pkgbuild.com/iso/latest/{filename}", registry.PriorityHigh, "AS").
				WithDescription("Official Asia mirror"),
			registry.Mirror("https://ftp.jaist.ac.jp/pub/Linux/ArchLinux/iso/latest/{filename}", registry.PriorityMedium, "JP").
				WithDescription("JAIST Japan mirror"),
			registry.Mirror("https://mirror.aarnet.edu.au/pub/archlinux/iso/latest/{filename}", registry.PriorityMedium, "AU").
				WithDescription("AARNet Australian mirror"),
			registry.Magnet("magnet:?xt=urn:btih:PLACEHOLDER&dn={filename}", registry.PriorityHigh, []string{
				"udp://tracker.archlinux.org:6969",
				"udp://tracker.openbittorrent.com:80",
				"udp://tracker.publicbt.com:80",
			}).WithDescription("Arch Linux BitTorrent"),
		},
		FilenamePattern: "archlinux-{version}-{arch}.iso",
		ChecksumURLs: []string{
			"https://archlinux.org/iso/latest/sha256sums.txt",
			"https://archive.archlinux.org/iso/{version}/sha256sums.txt",
		},
	}, nil
}
