// Package distros holds the built-in distribution definitions. Each
// definition combines live version detectors with a static fallback so
// resolution keeps working when the network sources are unreachable.
package distros

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/airone01/isod/internal/registry"
)

// Ubuntu builds the definition for Ubuntu release images.
func Ubuntu(client *http.Client, logger *slog.Logger) (*registry.DistroDefinition, error) {
	feed, err := registry.NewFeedDetector(client,
		"https://ubuntu.com/security/notices/rss.xml",
		`Ubuntu (\d+\.\d+)`,
		registry.ReleaseStable)
	if err != nil {
		return nil, fmt.Errorf("ubuntu feed detector: %w", err)
	}
	scraper, err := registry.NewWebScrapeDetector(client,
		"https://releases.ubuntu.com/",
		".release-row .version",
		`(\d+\.\d+(?:\.\d+)?)`)
	if err != nil {
		return nil, fmt.Errorf("ubuntu scrape detector: %w", err)
	}

	detector := registry.NewCompositeDetector(logger).
		Add(feed).
		Add(scraper).
		Add(registry.NewStaticDetector([]registry.VersionInfo{
			{
				Version:         "24.04",
				ReleaseType:     registry.ReleaseLTS,
				ReleaseDate:     "2024-04-25",
				DownloadURLBase: "https://releases.ubuntu.com/24.04/",
			},
			{
				Version:         "23.10",
				ReleaseType:     registry.ReleaseStable,
				ReleaseDate:     "2023-10-12",
				DownloadURLBase: "https://releases.ubuntu.com/23.10/",
			},
			{
				Version:         "22.04",
				ReleaseType:     registry.ReleaseLTS,
				ReleaseDate:     "2022-04-21",
				DownloadURLBase: "https://releases.ubuntu.com/22.04/",
			},
			{
				Version:         "20.04",
				ReleaseType:     registry.ReleaseLTS,
				ReleaseDate:     "2020-04-23",
				DownloadURLBase: "https://releases.ubuntu.com/20.04/",
			},
		}))

	return &registry.DistroDefinition{
		Name:        "ubuntu",
		DisplayName: "Ubuntu",
		Description: "A popular, user-friendly Linux distribution based on Debian",
		Homepage:    "https://ubuntu.com",
		SupportedArchitectures: []string{
			"amd64", "arm64", "armhf", "ppc64el", "s390x",
		},
		SupportedVariants: []string{"desktop", "server", "live-server"},
		DefaultVariant:    "desktop",
		Detector:          detector,
		DownloadSources: []registry.DownloadSource{
			registry.Direct("https://releases.ubuntu.com/{version}/{filename}", registry.PriorityPreferred).
				WithDescription("Official Ubuntu releases").AsVerified(),
			registry.Mirror("https://mirror.arizona.edu/ubuntu-releases/{version}/{filename}", registry.PriorityHigh, "US").
				WithDescription("University of Arizona mirror"),
			registry.Mirror("https://ftp.halifax.rwth-aachen.de/ubuntu-releases/{version}/{filename}", registry.PriorityHigh, "DE").
				WithDescription("RWTH Aachen mirror"),
			registry.Mirror("https://mirror.us.leaseweb.net/ubuntu-releases/{version}/{filename}", registry.PriorityMedium, "US").
				WithDescription("Leaseweb US mirror"),
			registry.Mirror("https://mirror.nl.leaseweb.net/ubuntu-releases/{version}/{filename}", registry.PriorityMedium, "EU").
				WithDescription("Leaseweb Netherlands mirror"),
			registry.Torrent("https://releases.ubuntu.com/{version}/{filename}.torrent", registry.PriorityHigh).
				WithDescription("Official Ubuntu torrent"),
		},
		FilenamePattern: "ubuntu-{version}-{variant}-{arch}.iso",
		ChecksumURLs: []string{
			"https://releases.ubuntu.com/{version}/SHA256SUMS",
			"https://releases.ubuntu.com/{version}/MD5SUMS",
		},
	}, nil
}
